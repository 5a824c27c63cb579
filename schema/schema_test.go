package schema

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vegasq/tabular/errors"
)

func TestNewRejectsDuplicates(t *testing.T) {
	_, err := New(
		Field{Name: "id", Type: Int64Type},
		Field{Name: "id", Type: StringType},
	)
	var schemaErr errors.SchemaError
	require.True(t, stderrors.As(err, &schemaErr))
	require.Contains(t, schemaErr.Reason, "duplicate")

	_, err = New(Field{Name: "", Type: StringType})
	require.True(t, stderrors.As(err, &schemaErr))
}

func TestParseDDL(t *testing.T) {
	s, err := ParseDDL("name STRING, age INT NOT NULL, salary double, tags ARRAY<STRING>, hired date, active boolean")
	require.NoError(t, err)
	require.Equal(t, []string{"name", "age", "salary", "tags", "hired", "active"}, s.Names())

	require.Equal(t, StringType, s.Field(0).Type)
	require.True(t, s.Field(0).Nullable)
	require.Equal(t, Int64Type, s.Field(1).Type)
	require.False(t, s.Field(1).Nullable)
	require.Equal(t, Float64Type, s.Field(2).Type)
	require.True(t, s.Field(3).Type.Equal(ArrayOf(StringType)))
	require.Equal(t, DateType, s.Field(4).Type)
	require.Equal(t, BoolType, s.Field(5).Type)
}

func TestParseDDLRoundTrip(t *testing.T) {
	s, err := ParseDDL("a bigint not null, b array<array<double>>, `full name` string")
	require.NoError(t, err)

	again, err := ParseDDL(s.DDL())
	require.NoError(t, err)
	require.True(t, s.Equal(again), "%s != %s", s.DDL(), again.DDL())
	require.Equal(t, "full name", again.Field(2).Name)
}

func TestParseDDLErrors(t *testing.T) {
	tests := []struct {
		name string
		ddl  string
	}{
		{"unknown type", "a STRNG"},
		{"duplicate", "a int, a string"},
		{"missing type", "a"},
		{"unbalanced", "a array<string"},
		{"empty column", "a int,,b int"},
		{"empty", "   "},
		{"extra tokens", "a int primary key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseDDL(tt.ddl)
			var schemaErr errors.SchemaError
			require.True(t, stderrors.As(err, &schemaErr), "got %v", err)
		})
	}
}

func TestWiden(t *testing.T) {
	require.Equal(t, Float64Type, Widen(Int64Type, Float64Type))
	require.Equal(t, StringType, Widen(Int64Type, BoolType))
	require.Equal(t, StringType, Widen(DateType, StringType))
	require.Equal(t, Int64Type, Widen(Int64Type, Int64Type))
	require.True(t, Widen(ArrayOf(Int64Type), ArrayOf(Float64Type)).Equal(ArrayOf(Float64Type)))
}

func TestInferrer(t *testing.T) {
	in := NewInferrer([]string{"i", "f", "s", "b", "d", "n", "mixed"}, 10)
	in.ObserveText([]string{"1", "1.5", "x", "true", "2024-01-02", "", "1"}, "")
	in.ObserveText([]string{"2", "3", "y", "FALSE", "2024-02-03", "", "true"}, "")
	in.ObserveText([]string{"", "4", "z", "true", "2024-03-04", "", "2"}, "")

	s, err := in.Schema()
	require.NoError(t, err)

	want := []Field{
		{Name: "i", Type: Int64Type, Nullable: true},
		{Name: "f", Type: Float64Type, Nullable: false},
		{Name: "s", Type: StringType, Nullable: false},
		{Name: "b", Type: BoolType, Nullable: false},
		{Name: "d", Type: DateType, Nullable: false},
		{Name: "n", Type: StringType, Nullable: true},
		{Name: "mixed", Type: StringType, Nullable: false},
	}
	require.Equal(t, want, s.Fields())
}

func TestInferrerSamplingLimit(t *testing.T) {
	in := NewInferrer([]string{"v"}, 2)
	in.Observe([]interface{}{int64(1)})
	in.Observe([]interface{}{int64(2)})
	require.True(t, in.Done())
	in.Observe([]interface{}{"not a number"})

	s, err := in.Schema()
	require.NoError(t, err)
	require.Equal(t, Int64Type, s.Field(0).Type)
}

func TestCoerce(t *testing.T) {
	v, err := Coerce(3, Float64Type)
	require.NoError(t, err)
	require.Equal(t, 3.0, v)

	v, err = Coerce(4.0, Int64Type)
	require.NoError(t, err)
	require.Equal(t, int64(4), v)

	_, err = Coerce(4.5, Int64Type)
	var tm errors.TypeMismatchError
	require.True(t, stderrors.As(err, &tm))
	require.Equal(t, "int64", tm.Expected)

	v, err = Coerce("2024-05-06", DateType)
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC), v)

	v, err = Coerce(int64(7), StringType)
	require.NoError(t, err)
	require.Equal(t, "7", v)

	v, err = Coerce([]interface{}{int64(1), nil}, ArrayOf(Float64Type))
	require.NoError(t, err)
	require.Equal(t, []interface{}{1.0, nil}, v)

	_, err = Coerce("abc", BoolType)
	require.Error(t, err)

	v, err = Coerce(nil, Int64Type)
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestParseValueArray(t *testing.T) {
	v, err := ParseValue(`["a","b"]`, ArrayOf(StringType))
	require.NoError(t, err)
	require.Equal(t, []interface{}{"a", "b"}, v)

	require.Equal(t, `["a","b"]`, FormatArray([]interface{}{"a", "b"}))
}

func TestSchemaTransforms(t *testing.T) {
	s := MustNew(
		Field{Name: "a", Type: Int64Type},
		Field{Name: "b", Type: StringType, Nullable: true},
		Field{Name: "c", Type: BoolType},
	)

	p, err := s.Project("c", "a")
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a"}, p.Names())

	_, err = s.Project("zzz")
	var notFound errors.ColumnNotFoundError
	require.True(t, stderrors.As(err, &notFound))
	require.Equal(t, []string{"a", "b", "c"}, notFound.Available)

	require.Equal(t, []string{"a", "c"}, s.Drop("b").Names())

	r, err := s.Rename("b", "bee")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "bee", "c"}, r.Names())

	_, err = s.Rename("a", "c")
	require.Error(t, err)

	w, idx := s.With(Field{Name: "d", Type: DateType})
	require.Equal(t, 3, idx)
	require.Equal(t, 4, w.Len())

	w, idx = s.With(Field{Name: "b", Type: Float64Type})
	require.Equal(t, 1, idx)
	require.Equal(t, Float64Type, w.Field(1).Type)
	require.Equal(t, StringType, s.Field(1).Type)
}
