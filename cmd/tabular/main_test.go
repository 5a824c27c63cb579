package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/vegasq/tabular/reader"
	"github.com/vegasq/tabular/schema"
)

const salesCSV = `dept,name,amount
a,x,10
a,y,20
b,w,5
`

// TestRow defines a simple test data structure
type TestRow struct {
	ID     int64   `parquet:"id"`
	Name   string  `parquet:"name"`
	Salary float64 `parquet:"salary"`
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

// createTestParquetFile creates a temporary parquet file with test data
func createTestParquetFile(t *testing.T, dir, filename string, rows []TestRow) string {
	t.Helper()
	testFile := filepath.Join(dir, filename)

	f, err := os.Create(testFile)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	w := parquet.NewGenericWriter[TestRow](f)
	if _, err := w.Write(rows); err != nil {
		t.Fatalf("failed to write test data: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close file: %v", err)
	}
	return testFile
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunQuery(t *testing.T) {
	dir := t.TempDir()
	sales := writeTestFile(t, dir, "sales.csv", salesCSV)

	code, out, errOut := runCLI(t, "-f", "csv",
		"-q", "select dept, sum(amount) as total from sales group by dept order by dept", sales)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, errOut)
	}
	if want := "dept,total\na,30\nb,5\n"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRunPathAsTable(t *testing.T) {
	dir := t.TempDir()
	sales := writeTestFile(t, dir, "sales.csv", salesCSV)

	code, out, errOut := runCLI(t, "-f", "csv",
		"-q", "select name from '"+sales+"' where amount > 10")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, errOut)
	}
	if want := "name\ny\n"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRunNamedTablesAndLimit(t *testing.T) {
	dir := t.TempDir()
	sales := writeTestFile(t, dir, "sales.csv", salesCSV)
	depts := writeTestFile(t, dir, "depts.json", `{"dept": "a", "title": "Accounts"}
{"dept": "b", "title": "Billing"}
`)

	code, out, errOut := runCLI(t, "-f", "csv", "-limit", "1",
		"-t", "s="+sales, "-t", "d="+depts,
		"-q", "select s.name, d.title from s join d using (dept) order by s.name desc")
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, errOut)
	}
	if want := "name,title\ny,Accounts\n"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRunWritesOutput(t *testing.T) {
	dir := t.TempDir()
	sales := writeTestFile(t, dir, "sales.csv", salesCSV)
	out := filepath.Join(dir, "out")

	code, _, errOut := runCLI(t, "-o", out, "-of", "json", "-q", "select name, amount from sales where dept = 'a'", sales)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, errOut)
	}

	s, err := schema.ParseDDL("name string, amount bigint")
	if err != nil {
		t.Fatal(err)
	}
	back, err := reader.Read(context.Background(), out, reader.JSON, reader.Options{JSON: reader.JSONOptions{Schema: s}})
	if err != nil {
		t.Fatalf("failed to read output: %v", err)
	}
	if n, _ := back.Len(); n != 2 {
		t.Errorf("expected 2 rows, got %d", n)
	}

	// default mode refuses to overwrite
	code, _, errOut = runCLI(t, "-o", out, "-of", "json", "-q", "select * from sales", sales)
	if code != 1 || !strings.Contains(errOut, "exists") {
		t.Errorf("expected exists error, got %d: %s", code, errOut)
	}
	code, _, errOut = runCLI(t, "-o", out, "-of", "json", "-mode", "overwrite", "-q", "select * from sales", sales)
	if code != 0 {
		t.Errorf("overwrite failed with %d: %s", code, errOut)
	}
}

func TestRunPlan(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "sales.csv", salesCSV)
	planFile := writeTestFile(t, dir, "plan.yaml", `
inputs:
  sales: {path: sales.csv, header: true, infer_schema: true}
steps:
  - filter: "amount >= 10"
  - with_column: {name: double, expr: "amount * 2"}
  - select: [name, double]
  - sort: [double desc]
`)

	code, out, errOut := runCLI(t, "-f", "csv", "-plan", planFile)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, errOut)
	}
	if want := "name,double\ny,40\nx,20\n"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRunUDF(t *testing.T) {
	dir := t.TempDir()
	sales := writeTestFile(t, dir, "sales.csv", salesCSV)
	src := writeTestFile(t, dir, "shout.go", `package udf

import "strings"

func Shout(args []interface{}) (interface{}, error) {
	return strings.ToUpper(args[0].(string)) + "!", nil
}
`)

	code, out, errOut := runCLI(t, "-f", "csv", "-udf", "shout:string="+src,
		"-q", "select shout(name) as loud from sales where dept = 'b'", sales)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, errOut)
	}
	if want := "loud\nW!\n"; out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRunSchema(t *testing.T) {
	dir := t.TempDir()
	pq := createTestParquetFile(t, dir, "people.parquet", []TestRow{
		{ID: 1, Name: "Alice", Salary: 50000},
	})
	code, out, errOut := runCLI(t, "-schema", "-f", "csv", pq)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, errOut)
	}
	for _, col := range []string{"physical_type", "id", "name", "salary"} {
		if !strings.Contains(out, col) {
			t.Errorf("schema output missing %q:\n%s", col, out)
		}
	}

	sales := writeTestFile(t, dir, "sales.csv", salesCSV)
	code, out, errOut = runCLI(t, "-schema", "-f", "csv", sales)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, errOut)
	}
	if !strings.Contains(out, "amount,int64,false") {
		t.Errorf("expected inferred amount column, got:\n%s", out)
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	sales := writeTestFile(t, dir, "sales.csv", salesCSV)

	tests := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"negative limit", []string{"-limit", "-1", sales}, 2, "non-negative"},
		{"schema with query", []string{"-schema", "-q", "select * from t", sales}, 2, "cannot be combined"},
		{"query with plan", []string{"-q", "select * from t", "-plan", "p.yaml"}, 2, "cannot be used together"},
		{"bad log level", []string{"-log-level", "loud", sales}, 2, "log level"},
		{"missing file", []string{filepath.Join(dir, "nope.csv")}, 1, "not found"},
		{"nothing to do", nil, 1, "missing"},
		{"unknown table", []string{"-q", "select * from other", sales}, 1, "other"},
		{"bad table flag", []string{"-t", "novalue"}, 1, "name=path"},
		{"bad format", []string{"-f", "xml", sales}, 1, "xml"},
		{"bad query", []string{"-q", "select from", sales}, 1, "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, tt.args...)
			if code != tt.code {
				t.Errorf("expected exit code %d, got %d (%s)", tt.code, code, errOut)
			}
			if !strings.Contains(errOut, tt.want) {
				t.Errorf("expected %q in stderr, got %q", tt.want, errOut)
			}
		})
	}
}

func TestTableName(t *testing.T) {
	tests := map[string]string{
		"sales.csv":             "sales",
		"data/sales.csv.gz":     "sales",
		"/tmp/2024-01.json":     "t_2024_01",
		"dir/my-table.parquet":  "my_table",
		"events.snappy.parquet": "events",
	}
	for in, want := range tests {
		if got := tableName(in); got != want {
			t.Errorf("tableName(%q) = %q, want %q", in, got, want)
		}
	}
}
