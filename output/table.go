package output

import (
	"fmt"
	"io"

	"github.com/mattn/go-runewidth"
	"github.com/olekukonko/tablewriter"

	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// DefaultMaxCellWidth is the display width cells are truncated to
const DefaultMaxCellWidth = 20

// TableFormatter renders rows as an aligned text grid with the column types
// in the header
type TableFormatter struct {
	writer io.Writer

	// MaxCellWidth truncates wider cells; zero or less disables truncation
	MaxCellWidth int
	// Footer prints the row count below the grid
	Footer bool
}

// NewTableFormatter creates a new grid formatter
func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{writer: w, MaxCellWidth: DefaultMaxCellWidth, Footer: true}
}

// SetOutput sets the output writer
func (f *TableFormatter) SetOutput(w io.Writer) {
	f.writer = w
}

// Format writes the grid. Nulls show as "null".
func (f *TableFormatter) Format(t *table.Table) error {
	s := t.Schema()
	tw := tablewriter.NewWriter(f.writer)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)

	header := make([]string, s.Len())
	for i, fd := range s.Fields() {
		header[i] = f.truncate(fd.Name) + "\n" + fd.Type.String()
	}
	tw.SetHeader(header)

	count := 0
	err := t.Each(func(_ int, row table.Row) error {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = f.truncate(displayValue(v))
		}
		tw.Append(cells)
		count++
		return nil
	})
	if err != nil {
		return err
	}
	tw.Render()

	if f.Footer {
		noun := "rows"
		if count == 1 {
			noun = "row"
		}
		if _, err := fmt.Fprintf(f.writer, "(%d %s)\n", count, noun); err != nil {
			return err
		}
	}
	return nil
}

func (f *TableFormatter) truncate(s string) string {
	if f.MaxCellWidth <= 0 || runewidth.StringWidth(s) <= f.MaxCellWidth {
		return s
	}
	return runewidth.Truncate(s, f.MaxCellWidth, "...")
}

func displayValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return schema.FormatArray(val)
	default:
		return schema.FormatScalar(val)
	}
}
