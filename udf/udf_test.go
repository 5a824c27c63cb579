package udf

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vegasq/tabular/eval"
	"github.com/vegasq/tabular/expr"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

const shoutSrc = `package udf

import "strings"

func Shout(args []interface{}) (interface{}, error) {
	s, _ := args[0].(string)
	return strings.ToUpper(s) + "!", nil
}
`

const bandSrc = `package udf

import "fmt"

func Band(args []interface{}) (interface{}, error) {
	v, ok := args[0].(int64)
	if !ok {
		return nil, fmt.Errorf("want int64, got %T", args[0])
	}
	switch {
	case v < 10:
		return "low", nil
	case v < 100:
		return "mid", nil
	}
	return "high", nil
}
`

func people(t *testing.T) *table.Table {
	t.Helper()
	s, err := schema.ParseDDL("name string, score bigint")
	require.NoError(t, err)
	return table.MustNew(s, []table.Row{{"ann", 5}, {"bob", 50}, {nil, 500}})
}

func TestCompile(t *testing.T) {
	fn, err := Compile(shoutSrc, "Shout")
	require.NoError(t, err)
	out, err := fn([]interface{}{"hey"})
	require.NoError(t, err)
	assert.Equal(t, "HEY!", out)
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name, src, symbol, want string
	}{
		{"syntax", "package udf\nfunc Broken( {", "Broken", "compile"},
		{"missing symbol", shoutSrc, "Whisper", "does not define"},
		{"not a function", "package udf\nvar Answer = 42\n", "Answer", "not a function"},
		{"wrong signature", "package udf\nfunc Inc(x int) int { return x + 1 }\n", "Inc", "want func"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.src, tt.symbol)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRegisteredUDFInPipeline(t *testing.T) {
	require.NoError(t, Register("band", bandSrc, schema.StringType))

	out, err := eval.Evaluate(people(t), pipeline.New().WithColumn("band", expr.Call("band", expr.Col("score"))))
	require.NoError(t, err)
	band, err := out.Column("band")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"low", "mid", "high"}, band)
}

func TestNullHandling(t *testing.T) {
	calls := 0
	count := func(args []interface{}) (interface{}, error) {
		calls++
		return args[0] == nil, nil
	}
	r := expr.NewFunctionRegistry()
	r.Register(FromFunc("is_missing", schema.BoolType, count))
	r.Register(FromFunc("is_missing_safe", schema.BoolType, count, AcceptNulls()))

	out, err := eval.Evaluate(people(t), pipeline.New().
		WithColumn("a", expr.CallIn(r, "is_missing", expr.Col("name"))).
		WithColumn("b", expr.CallIn(r, "is_missing_safe", expr.Col("name"))))
	require.NoError(t, err)

	a, _ := out.Column("a")
	b, _ := out.Column("b")
	assert.Equal(t, []interface{}{false, false, nil}, a)
	assert.Equal(t, []interface{}{false, false, true}, b)
	assert.Equal(t, 5, calls)
}

func TestArityAndErrors(t *testing.T) {
	r := expr.NewFunctionRegistry()
	join := FromFunc("joined", schema.StringType, func(args []interface{}) (interface{}, error) {
		parts := make([]string, len(args))
		for i, a := range args {
			parts[i] = fmt.Sprint(a)
		}
		return strings.Join(parts, "/"), nil
	}, WithArity(2, -1))
	r.Register(join)
	r.Register(FromFunc("boom", schema.StringType, func([]interface{}) (interface{}, error) {
		panic("kaboom")
	}))

	out, err := eval.Evaluate(people(t), pipeline.New().
		WithColumn("j", expr.CallIn(r, "joined", expr.Col("score"), expr.Lit("x"), expr.Lit(1))))
	require.NoError(t, err)
	j, _ := out.Column("j")
	assert.Equal(t, "5/x/1", j[0])

	_, err = eval.Evaluate(people(t), pipeline.New().WithColumn("j", expr.CallIn(r, "joined", expr.Col("score"))))
	assert.Error(t, err)

	_, err = eval.Evaluate(people(t), pipeline.New().WithColumn("b", expr.CallIn(r, "boom", expr.Col("score"))))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
}
