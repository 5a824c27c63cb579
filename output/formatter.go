package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/vegasq/tabular/reader"
	"github.com/vegasq/tabular/table"
)

// Formatter defines the interface for output formatters.
//
// Implementers must provide Format to render a table in the target format
// and SetOutput to change the output destination.
type Formatter interface {
	// Format writes the table in the formatter's specific format
	Format(t *table.Table) error

	// SetOutput changes the output writer
	SetOutput(w io.Writer)
}

// New returns the formatter for a display format name: "json", "csv" or
// "table"
func New(name string, w io.Writer) (Formatter, error) {
	switch strings.ToLower(name) {
	case "", "table", "show":
		return NewTableFormatter(w), nil
	case string(reader.JSON), "jsonl":
		return NewJSONFormatter(w), nil
	case string(reader.CSV):
		return NewCSVFormatter(w), nil
	}
	return nil, fmt.Errorf("unknown output format %q", name)
}
