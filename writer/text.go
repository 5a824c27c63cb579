package writer

import (
	"encoding/csv"
	"io"

	"github.com/segmentio/encoding/json"

	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

func writeCSV(w io.Writer, t *table.Table, opts Options) error {
	cw := csv.NewWriter(w)
	if opts.Delimiter != 0 {
		cw.Comma = opts.Delimiter
	}
	if opts.Header {
		if err := cw.Write(t.Schema().Names()); err != nil {
			return err
		}
	}

	record := make([]string, t.Schema().Len())
	err := t.Each(func(_ int, r table.Row) error {
		for i, v := range r {
			record[i] = formatCell(v, opts.NullValue)
		}
		return cw.Write(record)
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// formatCell renders a value the way the CSV reader parses it back.
// Arrays are written as JSON text.
func formatCell(v interface{}, nullValue string) string {
	switch val := v.(type) {
	case nil:
		return nullValue
	case []interface{}:
		return schema.FormatArray(val)
	default:
		return schema.FormatScalar(val)
	}
}

// writeJSON writes one object per line with keys in column order
func writeJSON(w io.Writer, t *table.Table, _ Options) error {
	names := t.Schema().Names()
	keys := make([][]byte, len(names))
	for i, n := range names {
		k, err := json.Marshal(n)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	var buf []byte
	return t.Each(func(_ int, r table.Row) error {
		buf = append(buf[:0], '{')
		for i, v := range r {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, keys[i]...)
			buf = append(buf, ':')
			b, err := json.Marshal(schema.JSONValue(v))
			if err != nil {
				return err
			}
			buf = append(buf, b...)
		}
		buf = append(buf, '}', '\n')
		_, err := w.Write(buf)
		return err
	})
}
