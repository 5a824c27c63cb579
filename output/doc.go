// Package output renders tables for display.
//
// This package defines the Formatter interface and provides implementations
// for JSON Lines, CSV and an aligned text grid. Unlike package writer, the
// output is meant for terminals and pipes rather than for reading back.
//
// # Supported Formats
//
//   - JSON Lines: One JSON object per line (suitable for streaming)
//   - CSV: Comma-separated values with a header row in schema order
//   - Table: a bordered grid with column types, truncated cells and a row count
//
// # Basic Usage
//
//	formatter, err := output.New("table", os.Stdout)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := formatter.Format(t); err != nil {
//	    log.Fatal(err)
//	}
//
// # Writing to Different Destinations
//
//	var buf bytes.Buffer
//	formatter := output.NewCSVFormatter(os.Stdout)
//	formatter.SetOutput(&buf)
//
// # Type Handling
//
//   - Dates render as YYYY-MM-DD
//   - Arrays render as JSON arrays in every format
//   - The CSV formatter prefixes cells starting with =, +, -, @ or | with a
//     quote so spreadsheets do not evaluate them
//   - Nulls are empty in CSV, null in JSON and "null" in the grid
package output
