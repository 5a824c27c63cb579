package output

import (
	"io"

	"github.com/segmentio/encoding/json"

	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// JSONFormatter outputs rows as JSON Lines format
type JSONFormatter struct {
	writer io.Writer
}

// NewJSONFormatter creates a new JSON Lines formatter
func NewJSONFormatter(w io.Writer) *JSONFormatter {
	return &JSONFormatter{writer: w}
}

// SetOutput sets the output writer
func (j *JSONFormatter) SetOutput(w io.Writer) {
	j.writer = w
}

// Format writes rows as JSON Lines (one JSON object per line). Keys are
// sorted; dates render as YYYY-MM-DD.
func (j *JSONFormatter) Format(t *table.Table) error {
	encoder := json.NewEncoder(j.writer)
	names := t.Schema().Names()
	return t.Each(func(_ int, row table.Row) error {
		obj := make(map[string]interface{}, len(names))
		for i, n := range names {
			obj[n] = schema.JSONValue(row[i])
		}
		return encoder.Encode(obj)
	})
}
