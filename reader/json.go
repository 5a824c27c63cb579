package reader

import (
	"bufio"
	"bytes"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/segmentio/encoding/json"
	"github.com/tidwall/gjson"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// JSONOptions configures ReadJSON
type JSONOptions struct {
	// Schema, when set, fixes the columns. Each column name is a gjson path,
	// so "address.city" reaches into nested objects.
	Schema *schema.Schema
	// MultiLine reads a top-level array of objects, or objects spanning
	// several lines, instead of one object per line
	MultiLine bool
	// SamplingLimit is the number of records inspected by inference
	SamplingLimit int
}

// maxLineSize bounds a single JSON line
const maxLineSize = 64 << 20

// ReadJSON reads JSON records, optionally compressed (see codec.Detect).
// Without a schema, columns are the top-level keys in first-seen order and
// types are inferred; nested objects become strings holding their raw JSON.
func ReadJSON(path string, opts JSONOptions) (*table.Table, error) {
	records, err := readJSONRecords(path, opts.MultiLine)
	if err != nil {
		return nil, err
	}
	if opts.Schema != nil {
		return jsonWithSchema(path, records, opts.Schema)
	}

	var names []string
	seen := make(map[string]bool)
	values := make([]map[string]gjson.Result, len(records))
	for i, rec := range records {
		m := make(map[string]gjson.Result)
		rec.ForEach(func(key, value gjson.Result) bool {
			k := key.String()
			m[k] = value
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
			return true
		})
		values[i] = m
	}
	if len(names) == 0 {
		return nil, errors.SchemaError{Reason: fmt.Sprintf("%s: no fields found, cannot derive columns", path)}
	}

	rows := make([]table.Row, len(values))
	inf := schema.NewInferrer(names, opts.SamplingLimit)
	for i, m := range values {
		row := make(table.Row, len(names))
		for j, n := range names {
			if r, ok := m[n]; ok {
				row[j] = schema.FromJSON(r)
			}
		}
		inf.Observe(row)
		rows[i] = row
	}
	s, err := inf.Schema()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	for i, row := range rows {
		if err := coerceRow(s, row, i+1); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if relaxed := relaxNullability(s, rows); relaxed != nil {
		s = relaxed
	}
	return table.New(s, rows)
}

func jsonWithSchema(path string, records []gjson.Result, s *schema.Schema) (*table.Table, error) {
	rows := make([]table.Row, len(records))
	for i, rec := range records {
		row := make(table.Row, s.Len())
		for j, f := range s.Fields() {
			row[j] = schema.FromJSON(rec.Get(f.Name))
		}
		if err := coerceRow(s, row, i+1); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		rows[i] = row
	}
	return table.New(s, rows)
}

// coerceRow converts the values of row to the column types in place
func coerceRow(s *schema.Schema, row table.Row, record int) error {
	for j, v := range row {
		f := s.Field(j)
		c, err := schema.Coerce(v, f.Type)
		if err != nil {
			actual := fmt.Sprintf("%T", v)
			if vt, ok := schema.TypeOf(v); ok {
				actual = vt.String()
			}
			return errors.TypeMismatchError{Column: f.Name, Expected: f.Type.String(), Actual: fmt.Sprintf("%s in record %d", actual, record)}
		}
		row[j] = c
	}
	return nil
}

func readJSONRecords(path string, multiLine bool) (recs []gjson.Result, err error) {
	in, err := openStream(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := in.Close(); cerr != nil && err == nil {
			err = errors.IOFailure{Op: "close", Path: path, Err: cerr}
		}
	}()
	if multiLine {
		return readMultiLine(path, in)
	}

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for line := 1; sc.Scan(); line++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		if !gjson.ValidBytes(text) {
			return nil, errors.IOFailure{Op: "parse", Path: path, Err: fmt.Errorf("line %d is not valid JSON", line)}
		}
		rec := gjson.ParseBytes(text)
		if !rec.IsObject() {
			return nil, errors.IOFailure{Op: "parse", Path: path, Err: fmt.Errorf("line %d is not a JSON object", line)}
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.IOFailure{Op: "read", Path: path, Err: err}
	}
	return recs, nil
}

// readMultiLine accepts one top-level array of objects or a sequence of
// objects separated by whitespace
func readMultiLine(path string, in io.Reader) ([]gjson.Result, error) {
	dec := json.NewDecoder(in)
	var recs []gjson.Result
	for n := 1; ; n++ {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if stderrors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, errors.IOFailure{Op: "parse", Path: path, Err: fmt.Errorf("value %d: %w", n, err)}
		}
		v := gjson.ParseBytes(raw)
		switch {
		case v.IsArray():
			for i, e := range v.Array() {
				if !e.IsObject() {
					return nil, errors.IOFailure{Op: "parse", Path: path, Err: fmt.Errorf("array element %d is not a JSON object", i)}
				}
				recs = append(recs, e)
			}
		case v.IsObject():
			recs = append(recs, v)
		default:
			return nil, errors.IOFailure{Op: "parse", Path: path, Err: fmt.Errorf("value %d is not a JSON object", n)}
		}
	}
}
