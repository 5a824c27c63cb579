package reader

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vegasq/tabular/codec"
	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func rows(t *testing.T, tb *table.Table) []table.Row {
	t.Helper()
	out, err := tb.Rows()
	require.NoError(t, err)
	return out
}

func date(s string) time.Time {
	d, err := schema.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestReadCSVInferSchema(t *testing.T) {
	path := writeFile(t, t.TempDir(), "people.csv",
		"name,age,score,joined,active\n"+
			"alice,30,1.5,2024-01-02,true\n"+
			"bob,,2,2024-02-03,false\n")
	tb, err := ReadCSV(path, CSVOptions{Header: true, InferSchema: true})
	require.NoError(t, err)
	require.Equal(t, "name STRING NOT NULL, age BIGINT, score DOUBLE NOT NULL, joined DATE NOT NULL, active BOOLEAN NOT NULL", tb.Schema().DDL())
	require.Equal(t, []table.Row{
		{"alice", int64(30), 1.5, date("2024-01-02"), true},
		{"bob", nil, 2.0, date("2024-02-03"), false},
	}, rows(t, tb))
}

func TestReadCSVWithoutHeaderOrInference(t *testing.T) {
	path := writeFile(t, t.TempDir(), "raw.csv", "1,a\n2,b\n")
	tb, err := ReadCSV(path, CSVOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"_c0", "_c1"}, tb.Schema().Names())
	require.Equal(t, []table.Row{{"1", "a"}, {"2", "b"}}, rows(t, tb))
}

func TestReadCSVExplicitSchemaIsLazy(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "late.csv")
	s := schema.MustNew(
		schema.Field{Name: "id", Type: schema.Int64Type},
		schema.Field{Name: "label", Type: schema.StringType, Nullable: true},
	)

	// nothing is opened until rows are needed
	tb, err := ReadCSV(path, CSVOptions{Header: true, Schema: s, EmptyIsNull: true})
	require.NoError(t, err)
	writeFile(t, dir, "late.csv", "id,label\n7,seven\n8,\n")

	require.Equal(t, []table.Row{{int64(7), "seven"}, {int64(8), nil}}, rows(t, tb))
}

func TestReadCSVNullMarker(t *testing.T) {
	path := writeFile(t, t.TempDir(), "marked.csv", "id,label\n1,\n2,\\N\n,x\n")
	tb, err := ReadCSV(path, CSVOptions{Header: true, InferSchema: true})
	require.NoError(t, err)
	require.Equal(t, []table.Row{{int64(1), ""}, {int64(2), nil}, {nil, "x"}}, rows(t, tb))
}

func TestReadCSVTypeMismatch(t *testing.T) {
	path := writeFile(t, t.TempDir(), "bad.csv", "1\nx\n")
	s := schema.MustNew(schema.Field{Name: "a", Type: schema.Int64Type})
	tb, err := ReadCSV(path, CSVOptions{Schema: s})
	require.NoError(t, err)

	_, err = tb.Rows()
	var tm errors.TypeMismatchError
	require.True(t, stderrors.As(err, &tm))
	require.Equal(t, "a", tm.Column)
	require.Contains(t, tm.Actual, "line 2")
}

func TestReadCSVOptions(t *testing.T) {
	path := writeFile(t, t.TempDir(), "opts.csv",
		"# exported\n"+
			"k;v\n"+
			"a;NA\n"+
			"b;3\n")
	tb, err := ReadCSV(path, CSVOptions{Header: true, InferSchema: true, Delimiter: ';', NullValue: "NA", Comment: '#'})
	require.NoError(t, err)
	require.Equal(t, "k STRING NOT NULL, v BIGINT", tb.Schema().DDL())
	require.Equal(t, []table.Row{{"a", nil}, {"b", int64(3)}}, rows(t, tb))
}

func TestReadCSVSamplingRelaxesNullability(t *testing.T) {
	path := writeFile(t, t.TempDir(), "sparse.csv", "a,b\n1,x\n,y\n")
	tb, err := ReadCSV(path, CSVOptions{Header: true, InferSchema: true, SamplingLimit: 1})
	require.NoError(t, err)
	_, f, err := tb.Schema().Lookup("a")
	require.NoError(t, err)
	require.Equal(t, schema.Int64Type, f.Type)
	require.True(t, f.Nullable)
}

func TestReadJSONLines(t *testing.T) {
	path := writeFile(t, t.TempDir(), "events.json",
		`{"name":"a","age":1,"tags":["x"],"addr":{"city":"c"}}`+"\n"+
			"\n"+
			`{"name":"b","score":2.5}`+"\n")
	tb, err := ReadJSON(path, JSONOptions{})
	require.NoError(t, err)
	require.Equal(t, []string{"name", "age", "tags", "addr", "score"}, tb.Schema().Names())
	require.Equal(t, "name STRING NOT NULL, age BIGINT, tags ARRAY<STRING>, addr STRING, score DOUBLE", tb.Schema().DDL())
	require.Equal(t, []table.Row{
		{"a", int64(1), []interface{}{"x"}, `{"city":"c"}`, nil},
		{"b", nil, nil, nil, 2.5},
	}, rows(t, tb))
}

func TestReadJSONSchemaPaths(t *testing.T) {
	path := writeFile(t, t.TempDir(), "nested.json",
		`{"name":"a","addr":{"city":"Oslo"}}`+"\n"+`{"name":"b"}`+"\n")
	s := schema.MustNew(
		schema.Field{Name: "name", Type: schema.StringType},
		schema.Field{Name: "addr.city", Type: schema.StringType, Nullable: true},
	)
	tb, err := ReadJSON(path, JSONOptions{Schema: s})
	require.NoError(t, err)
	require.Equal(t, []table.Row{{"a", "Oslo"}, {"b", nil}}, rows(t, tb))
}

func TestReadJSONMultiLine(t *testing.T) {
	dir := t.TempDir()
	tests := map[string]string{
		"array.json":  "[\n  {\"id\": 1},\n  {\"id\": 2}\n]\n",
		"concat.json": "{\n  \"id\": 1\n}\n{\n  \"id\": 2\n}\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			tb, err := ReadJSON(writeFile(t, dir, name, content), JSONOptions{MultiLine: true})
			require.NoError(t, err)
			require.Equal(t, []table.Row{{int64(1)}, {int64(2)}}, rows(t, tb))
		})
	}

	_, err := ReadJSON(writeFile(t, dir, "lines.json", "{\"id\":\n1}\n"), JSONOptions{})
	var ioErr errors.IOFailure
	require.True(t, stderrors.As(err, &ioErr))
}

func TestReadCompressedDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "part-0001.csv", "id,v\n1,2\n")
	writeFile(t, dir, "_SUCCESS", "")
	writeFile(t, dir, ".part-0003.csv.crc", "junk")

	f, err := os.Create(filepath.Join(dir, "part-0002.csv.gz"))
	require.NoError(t, err)
	w, err := codec.NewWriter(f, codec.Gzip)
	require.NoError(t, err)
	_, err = w.Write([]byte("id,v\n2,2.5\n"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	tb, err := Read(context.Background(), dir, "", Options{CSV: CSVOptions{Header: true, InferSchema: true}})
	require.NoError(t, err)
	require.Equal(t, "id BIGINT NOT NULL, v DOUBLE NOT NULL", tb.Schema().DDL())
	require.Equal(t, []table.Row{{int64(1), 2.0}, {int64(2), 2.5}}, rows(t, tb))
}

func TestResolveFilesErrors(t *testing.T) {
	dir := t.TempDir()
	var ioErr errors.IOFailure

	_, err := ResolveFiles(filepath.Join(dir, "missing.csv"))
	require.True(t, stderrors.As(err, &ioErr))

	_, err = ResolveFiles(filepath.Join(dir, "*.csv"))
	require.True(t, stderrors.As(err, &ioErr))

	_, err = ResolveFiles(dir)
	require.True(t, stderrors.As(err, &ioErr))

	_, err = DetectFormat("data.bin")
	require.Error(t, err)
	f, err := DetectFormat("data.jsonl.zst")
	require.NoError(t, err)
	require.Equal(t, JSON, f)
}

func TestReadArrow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.arrow")
	mem := memory.NewGoAllocator()
	as := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "tags", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
	}, nil)

	b := array.NewRecordBuilder(mem, as)
	defer b.Release()
	b.Field(0).(*array.Int64Builder).AppendValues([]int64{1, 2}, nil)
	nb := b.Field(1).(*array.StringBuilder)
	nb.Append("a")
	nb.AppendNull()
	lb := b.Field(2).(*array.ListBuilder)
	vb := lb.ValueBuilder().(*array.StringBuilder)
	lb.Append(true)
	vb.Append("x")
	vb.Append("y")
	lb.AppendNull()
	rec := b.NewRecord()
	defer rec.Release()

	f, err := os.Create(path)
	require.NoError(t, err)
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(as), ipc.WithAllocator(mem))
	require.NoError(t, err)
	require.NoError(t, w.Write(rec))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	tb, err := ReadArrow(path)
	require.NoError(t, err)
	require.Equal(t, "id BIGINT NOT NULL, name STRING, tags ARRAY<STRING>", tb.Schema().DDL())
	require.Equal(t, []table.Row{
		{int64(1), "a", []interface{}{"x", "y"}},
		{int64(2), nil, nil},
	}, rows(t, tb))
}
