package plan

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/eval"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/query"
	"github.com/vegasq/tabular/reader"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

const salesCSV = `dept_id,name,amount
d03,x,10
d03,y,20
d10,z,
d03,q,20
d99,w,5
`

const deptsJSON = `{"dept_id": "d03", "department": "Accounts"}
{"dept_id": "d10", "department": "HR"}
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestRunWritesOutput(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sales.csv", salesCSV)
	writeFile(t, dir, "depts.json", deptsJSON)
	writeFile(t, dir, "plan.yaml", `
inputs:
  sales: {path: sales.csv, header: true, schema: "dept_id string, name string, amount bigint"}
  depts: {path: depts.json}
from: sales
steps:
  - fill_nulls: {value: 0, columns: [amount]}
  - filter: "amount > 0"
  - join: {right: depts, on: [dept_id], kind: inner}
  - group_by:
      keys: [department]
      aggs:
        - {func: sum, column: amount, as: total}
        - {func: count, as: n}
  - sort: [total desc]
output: {path: out, format: json, mode: overwrite}
`)

	p, err := Load(filepath.Join(dir, "plan.yaml"))
	require.NoError(t, err)

	result, err := p.Run(context.Background(), query.NewCatalog(), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"department", "total", "n"}, result.Schema().Names())
	rows, err := result.Rows()
	require.NoError(t, err)
	assert.Equal(t, []table.Row{{"Accounts", int64(50), int64(3)}}, rows)

	s, err := schema.ParseDDL("department string, total bigint, n bigint")
	require.NoError(t, err)
	back, err := reader.Read(context.Background(), filepath.Join(dir, "out"), reader.JSON, reader.Options{JSON: reader.JSONOptions{Schema: s}})
	require.NoError(t, err)
	backRows, err := back.Rows()
	require.NoError(t, err)
	assert.Equal(t, rows, backRows)
}

func TestBuildFromQuery(t *testing.T) {
	cat := query.NewCatalog()
	s, err := schema.ParseDDL("dept string, amount bigint")
	require.NoError(t, err)
	require.NoError(t, cat.Register("sales", table.MustNew(s, []table.Row{
		{"a", 10}, {"a", 20}, {"b", 5}, {"b", 7},
	})))

	p, err := Parse([]byte(`
query: "SELECT dept, amount, amount * 2 AS twice FROM sales"
steps:
  - window:
      func: row_number
      partition_by: [dept]
      order_by: [amount desc]
      as: rn
  - window:
      func: sum
      column: amount
      order_by: [amount]
      frame: {unit: rows, start: 1 preceding, end: current row}
      as: pair
  - filter: "rn = 1"
  - select: [dept, twice, pair]
  - sort: [dept]
  - limit: {n: 5}
`))
	require.NoError(t, err)

	in, pl, err := p.Build(cat)
	require.NoError(t, err)
	out, err := eval.Evaluate(in, pl)
	require.NoError(t, err)
	rows, err := out.Rows()
	require.NoError(t, err)
	// sorted by amount: 5, 7, 10, 20 gives pair sums 5, 12, 17, 30
	assert.Equal(t, []table.Row{{"a", int64(40), int64(30)}, {"b", int64(14), int64(12)}}, rows)
}

func TestStepsTranslate(t *testing.T) {
	p, err := Parse([]byte(`
from: t
steps:
  - select: [a, b]
  - with_column: {name: c, expr: "upper(a)"}
  - drop: [b]
  - rename: {c: d}
  - drop_nulls: {mode: all}
  - dedupe: {}
  - limit: 3
`))
	require.NoError(t, err)

	cat := query.NewCatalog()
	s, err := schema.ParseDDL("a string, b bigint")
	require.NoError(t, err)
	require.NoError(t, cat.Register("t", table.MustNew(s, []table.Row{{"x", 1}, {"x", 2}, {nil, 3}})))

	_, pl, err := p.Build(cat)
	require.NoError(t, err)
	assert.Equal(t, "select -> withColumn -> drop -> rename -> dropNulls -> dedupe -> limit", pl.String())

	ops := pl.Ops()
	assert.Equal(t, pipeline.Limit{N: 3}, ops[6])
	assert.Equal(t, pipeline.DropNulls{Mode: pipeline.All}, ops[4])
}

func TestWindowOffsets(t *testing.T) {
	p, err := Parse([]byte(`
from: t
steps:
  - window: {func: lag, column: b, order_by: [b], as: prev}
  - window: {func: lead, column: b, order_by: [b], offset: 0, as: same}
`))
	require.NoError(t, err)

	cat := query.NewCatalog()
	s, err := schema.ParseDDL("a string, b bigint")
	require.NoError(t, err)
	require.NoError(t, cat.Register("t", table.MustNew(s, []table.Row{{"x", 1}, {"y", 2}})))

	in, pl, err := p.Build(cat)
	require.NoError(t, err)
	ops := pl.Ops()
	assert.Equal(t, int64(1), ops[0].(pipeline.Window).Offset)
	assert.Equal(t, int64(0), ops[1].(pipeline.Window).Offset)

	out, err := eval.Evaluate(in, pl)
	require.NoError(t, err)
	rows, err := out.Rows()
	require.NoError(t, err)
	assert.Equal(t, []table.Row{{"x", int64(1), nil, int64(1)}, {"y", int64(2), int64(1), int64(2)}}, rows)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", `steps: []`},
		{"unknown key", "from: t\nsteps:\n  - explode: [a]\n"},
		{"two ops", "from: t\nsteps:\n  - {select: [a], drop: [b]}\n"},
		{"empty step", "from: t\nsteps:\n  - {}\n"},
		{"bad limit", "from: t\nsteps:\n  - limit: ten\n"},
		{"from and query", "from: t\nquery: SELECT * FROM t\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestBuildErrors(t *testing.T) {
	cat := query.NewCatalog()
	s, err := schema.ParseDDL("a string")
	require.NoError(t, err)
	require.NoError(t, cat.Register("t", table.Empty(s)))

	docs := []string{
		"from: missing\n",
		"from: t\nsteps:\n  - join: {right: nope, on: [a]}\n",
		"from: t\nsteps:\n  - sort: [a sideways]\n",
		"from: t\nsteps:\n  - drop_nulls: {mode: some}\n",
		"from: t\nsteps:\n  - window: {func: sum, column: a, order_by: [a], frame: {start: current row, end: 1 preceding}}\n",
		"from: t\nsteps:\n  - window: {func: sum, column: a, frame: {start: three preceding}}\n",
	}
	for _, doc := range docs {
		p, err := Parse([]byte(doc))
		require.NoError(t, err, doc)
		_, _, err = p.Build(cat)
		var plan errors.InvalidPlanError
		assert.True(t, stderrors.As(err, &plan), "%s: %v", doc, err)
	}

	p, err := Parse([]byte("from: t\nsteps:\n  - filter: \"a = \"\n"))
	require.NoError(t, err)
	_, _, err = p.Build(cat)
	assert.Error(t, err)
}

func TestParseBound(t *testing.T) {
	tests := map[string]pipeline.Bound{
		"unbounded preceding": {Kind: pipeline.UnboundedPreceding},
		"3 PRECEDING":         {Kind: pipeline.Preceding, Offset: 3},
		"current row":         {Kind: pipeline.CurrentRow},
		"2 following":         {Kind: pipeline.Following, Offset: 2},
		"unbounded following": {Kind: pipeline.UnboundedFollowing},
		"":                    {Kind: pipeline.CurrentRow},
	}
	for in, want := range tests {
		got, err := parseBound(in, pipeline.CurrentRow)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
