package reader

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
)

func writeParquet[T any](t *testing.T, path string, rows []T) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}
	writer := parquet.NewGenericWriter[T](f)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("failed to write test data: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("failed to close file: %v", err)
	}
}

type person struct {
	ID     int64    `parquet:"id"`
	Name   string   `parquet:"name"`
	Age    int32    `parquet:"age"`
	Score  float64  `parquet:"score"`
	Active bool     `parquet:"active"`
	Nick   *string  `parquet:"nick,optional"`
	Tags   []string `parquet:"tags"`
}

func people(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "people.parquet")
	nick := "al"
	writeParquet(t, path, []person{
		{ID: 1, Name: "Alice", Age: 30, Score: 95.5, Active: true, Nick: &nick, Tags: []string{"a", "b"}},
		{ID: 2, Name: "Bob", Age: 41, Score: 70, Active: false},
	})
	return path
}

func TestExtractSchemaInfo_PrimitiveTypes(t *testing.T) {
	infos, err := ExtractSchemaInfo(people(t))
	if err != nil {
		t.Fatalf("ExtractSchemaInfo() error = %v", err)
	}
	if len(infos) != 7 {
		t.Fatalf("ExtractSchemaInfo() returned %d fields, want 7", len(infos))
	}

	fieldMap := make(map[string]SchemaInfo)
	for _, info := range infos {
		fieldMap[info.Name] = info
	}
	expectedTypes := map[string]string{
		"id":     "INT64",
		"name":   "STRING",
		"age":    "INT32",
		"score":  "FLOAT64",
		"active": "BOOLEAN",
		"nick":   "STRING",
		"tags":   "STRING",
	}
	for name, want := range expectedTypes {
		info, ok := fieldMap[name]
		if !ok {
			t.Errorf("%s field not found in schema", name)
			continue
		}
		if info.Type != want {
			t.Errorf("%s type = %s, want %s", name, info.Type, want)
		}
	}
	if !fieldMap["id"].Required {
		t.Errorf("id should be required")
	}
	if !fieldMap["nick"].Optional {
		t.Errorf("nick should be optional")
	}
	if !fieldMap["tags"].Repeated {
		t.Errorf("tags should be repeated")
	}
}

func TestExtractSchemaInfo_FileNotFound(t *testing.T) {
	_, err := ExtractSchemaInfo(filepath.Join(t.TempDir(), "nonexistent.parquet"))
	var ioErr errors.IOFailure
	if !stderrors.As(err, &ioErr) {
		t.Fatalf("ExtractSchemaInfo() error = %v, want IOFailure", err)
	}
	if !stderrors.Is(err, os.ErrNotExist) {
		t.Errorf("IOFailure should wrap os.ErrNotExist, got %v", err)
	}
}

func TestExtractSchemaInfo_InvalidParquetFile(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "invalid.parquet")
	if err := os.WriteFile(testFile, []byte("not a parquet file"), 0644); err != nil {
		t.Fatalf("failed to create invalid file: %v", err)
	}
	if _, err := ExtractSchemaInfo(testFile); err == nil {
		t.Errorf("ExtractSchemaInfo() expected error for invalid parquet file, got nil")
	}
}

func TestReadParquet_ForeignFile(t *testing.T) {
	tb, err := ReadParquet(people(t))
	if err != nil {
		t.Fatalf("ReadParquet() error = %v", err)
	}
	s := tb.Schema()

	wantTypes := map[string]schema.Type{
		"id":     schema.Int64Type,
		"age":    schema.Int64Type,
		"score":  schema.Float64Type,
		"active": schema.BoolType,
		"nick":   schema.StringType,
		"tags":   schema.ArrayOf(schema.StringType),
	}
	for name, want := range wantTypes {
		_, f, err := s.Lookup(name)
		if err != nil {
			t.Fatalf("Lookup(%s) error = %v", name, err)
		}
		if !f.Type.Equal(want) {
			t.Errorf("%s type = %s, want %s", name, f.Type, want)
		}
	}
	if _, f, _ := s.Lookup("nick"); !f.Nullable {
		t.Errorf("nick should be nullable")
	}
	if _, f, _ := s.Lookup("id"); f.Nullable {
		t.Errorf("id should not be nullable")
	}

	nicks, err := tb.Column("nick")
	if err != nil {
		t.Fatalf("Column() error = %v", err)
	}
	if nicks[0] != "al" || nicks[1] != nil {
		t.Errorf("nick = %v, want [al <nil>]", nicks)
	}

	tags, err := tb.Column("tags")
	if err != nil {
		t.Fatalf("Column() error = %v", err)
	}
	first, _ := tags[0].([]interface{})
	if len(first) != 2 || first[0] != "a" || first[1] != "b" {
		t.Errorf("tags[0] = %v, want [a b]", tags[0])
	}
	second, ok := tags[1].([]interface{})
	if !ok || len(second) != 0 {
		t.Errorf("tags[1] = %#v, want empty array", tags[1])
	}

	ages, err := tb.Column("age")
	if err != nil {
		t.Fatalf("Column() error = %v", err)
	}
	if ages[1] != int64(41) {
		t.Errorf("age[1] = %#v, want int64(41)", ages[1])
	}
}

func TestReadParquet_Glob(t *testing.T) {
	dir := t.TempDir()
	for i, name := range []string{"b.parquet", "a.parquet"} {
		writeParquet(t, filepath.Join(dir, name), []struct {
			ID int64 `parquet:"id"`
		}{{ID: int64(i)}})
	}
	tb, err := Read(t.Context(), filepath.Join(dir, "*.parquet"), "", Options{})
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	ids, err := tb.Column("id")
	if err != nil {
		t.Fatalf("Column() error = %v", err)
	}
	// lexical order: a.parquet (id 1) before b.parquet (id 0)
	if len(ids) != 2 || ids[0] != int64(1) || ids[1] != int64(0) {
		t.Errorf("ids = %v, want [1 0]", ids)
	}
}
