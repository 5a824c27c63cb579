package reader

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// CSVOptions configures ReadCSV
type CSVOptions struct {
	// Header means the first record holds column names
	Header bool
	// Schema, when set, fixes names and types and makes the read lazy
	Schema *schema.Schema
	// InferSchema derives column types from a sample of records; without it
	// and without Schema every column is a nullable string
	InferSchema bool
	// SamplingLimit is the number of records inspected by inference
	SamplingLimit int
	// Delimiter defaults to ','
	Delimiter rune
	// NullValue is the text read as null, DefaultNullValue when empty.
	// Empty fields of non-string columns are always null.
	NullValue string
	// EmptyIsNull also reads empty fields of string columns as null
	EmptyIsNull bool
	// Comment starts lines that are ignored; zero disables comments
	Comment rune
}

// DefaultNullValue marks nulls in CSV files when no other marker is
// configured. The writer uses the same marker, so an empty string and a null
// stay distinct across a round trip.
const DefaultNullValue = `\N`

func (o CSVOptions) nullValue() string {
	if o.NullValue == "" {
		return DefaultNullValue
	}
	return o.NullValue
}

func (o CSVOptions) newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	if o.Delimiter != 0 {
		cr.Comma = o.Delimiter
	}
	cr.Comment = o.Comment
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = false
	return cr
}

// ReadCSV reads a CSV file, optionally compressed (see codec.Detect)
func ReadCSV(path string, opts CSVOptions) (*table.Table, error) {
	if opts.Schema != nil {
		s := opts.Schema
		return table.FromProducer(s, func(emit func(table.Row) error) error {
			return scanCSV(path, opts, func(line int, rec []string) error {
				if line == 1 && opts.Header {
					if len(rec) != s.Len() {
						return errors.SchemaError{Reason: fmt.Sprintf("%s: header has %d columns, schema has %d", path, len(rec), s.Len())}
					}
					return nil
				}
				row, err := convertRecord(s, rec, opts, line)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				return emit(row)
			})
		}), nil
	}

	var names []string
	var records [][]string
	var lines []int
	err := scanCSV(path, opts, func(line int, rec []string) error {
		if names == nil {
			names = headerNames(rec, opts.Header)
			if opts.Header {
				return nil
			}
		}
		records = append(records, rec)
		lines = append(lines, line)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if names == nil {
		return nil, errors.SchemaError{Reason: fmt.Sprintf("%s: empty file, cannot derive columns", path)}
	}

	s, err := csvSchema(names, records, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rows := make([]table.Row, len(records))
	for i, rec := range records {
		row, err := convertRecord(s, rec, opts, lines[i])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		rows[i] = row
	}
	// records past the sample may hold nulls the sample did not show
	if relaxed := relaxNullability(s, rows); relaxed != nil {
		s = relaxed
	}
	return table.New(s, rows)
}

func scanCSV(path string, opts CSVOptions, fn func(line int, rec []string) error) (err error) {
	in, err := openStream(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := in.Close(); cerr != nil && err == nil {
			err = errors.IOFailure{Op: "close", Path: path, Err: cerr}
		}
	}()

	cr := opts.newReader(in)
	for n := 1; ; n++ {
		rec, rerr := cr.Read()
		if stderrors.Is(rerr, io.EOF) {
			return nil
		}
		if rerr != nil {
			return errors.IOFailure{Op: "read", Path: path, Err: rerr}
		}
		if err := fn(n, rec); err != nil {
			return err
		}
	}
}

func headerNames(first []string, header bool) []string {
	names := make([]string, len(first))
	for i := range first {
		if header && first[i] != "" {
			names[i] = first[i]
		} else {
			names[i] = fmt.Sprintf("_c%d", i)
		}
	}
	return names
}

func csvSchema(names []string, records [][]string, opts CSVOptions) (*schema.Schema, error) {
	if !opts.InferSchema {
		fields := make([]schema.Field, len(names))
		for i, n := range names {
			fields[i] = schema.Field{Name: n, Type: schema.StringType, Nullable: true}
		}
		return schema.New(fields...)
	}
	inf := schema.NewInferrer(names, opts.SamplingLimit)
	for _, rec := range records {
		if inf.Done() {
			break
		}
		inf.ObserveText(rec, opts.nullValue())
	}
	return inf.Schema()
}

func convertRecord(s *schema.Schema, rec []string, opts CSVOptions, line int) (table.Row, error) {
	if len(rec) != s.Len() {
		return nil, errors.SchemaError{Reason: fmt.Sprintf("line %d has %d fields, expected %d", line, len(rec), s.Len())}
	}
	nullValue := opts.nullValue()
	row := make(table.Row, len(rec))
	for i, raw := range rec {
		f := s.Field(i)
		if raw == nullValue || (raw == "" && (opts.EmptyIsNull || f.Type.Kind != schema.String)) {
			continue
		}
		v, err := schema.ParseValue(raw, f.Type)
		if err != nil {
			var tm errors.TypeMismatchError
			if stderrors.As(err, &tm) {
				tm.Column = f.Name
				tm.Actual = fmt.Sprintf("%s on line %d", tm.Actual, line)
				return nil, tm
			}
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// relaxNullability returns a copy of s with every column that holds a null
// marked nullable, or nil when s already allows them
func relaxNullability(s *schema.Schema, rows []table.Row) *schema.Schema {
	fields := s.Fields()
	changed := false
	for _, r := range rows {
		for i, v := range r {
			if v == nil && !fields[i].Nullable {
				fields[i].Nullable = true
				changed = true
			}
		}
	}
	if !changed {
		return nil
	}
	return schema.MustNew(fields...)
}
