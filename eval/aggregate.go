package eval

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// accumulator folds the values of one group
type accumulator interface {
	add(v interface{})
	result() interface{}
}

type aggPlan struct {
	agg   pipeline.Aggregation
	col   int // -1 counts rows
	field schema.Field
}

func planAggregation(s *schema.Schema, a pipeline.Aggregation) (aggPlan, error) {
	p := aggPlan{agg: a, col: -1}
	var in schema.Field
	if a.Column == "" {
		if a.Func != pipeline.Count {
			return p, errors.InvalidPlanError{Op: "groupAggregate", Reason: fmt.Sprintf("%s needs a column", a.Func)}
		}
	} else {
		idx, f, err := s.Lookup(a.Column)
		if err != nil {
			return p, err
		}
		p.col = idx
		in = f
	}
	out := schema.Field{Name: a.OutputName(), Nullable: true}
	switch a.Func {
	case pipeline.Sum:
		if !in.Type.IsNumeric() {
			return p, errors.TypeMismatchError{Column: a.Column, Expected: "numeric", Actual: in.Type.String()}
		}
		out.Type = in.Type
	case pipeline.Avg, pipeline.StdDev, pipeline.Variance:
		if !in.Type.IsNumeric() {
			return p, errors.TypeMismatchError{Column: a.Column, Expected: "numeric", Actual: in.Type.String()}
		}
		out.Type = schema.Float64Type
	case pipeline.Count, pipeline.CountDistinct:
		out.Type = schema.Int64Type
		out.Nullable = false
	case pipeline.CollectList:
		out.Type = schema.ArrayOf(in.Type)
		out.Nullable = false
	case pipeline.Min, pipeline.Max, pipeline.First:
		out.Type = in.Type
	default:
		return p, errors.InvalidPlanError{Op: "groupAggregate", Reason: fmt.Sprintf("unsupported aggregate %s", a.Func)}
	}
	p.field = out
	return p, nil
}

func (p aggPlan) newAccumulator() accumulator {
	switch p.agg.Func {
	case pipeline.Sum:
		return &sumAcc{float: p.field.Type.Kind == schema.Float64}
	case pipeline.Avg:
		return &statAcc{fn: func(xs []float64) float64 { return stat.Mean(xs, nil) }, min: 1}
	case pipeline.StdDev:
		return &statAcc{fn: func(xs []float64) float64 { return stat.StdDev(xs, nil) }, min: 2}
	case pipeline.Variance:
		return &statAcc{fn: func(xs []float64) float64 { return stat.Variance(xs, nil) }, min: 2}
	case pipeline.Count:
		return &countAcc{rows: p.col < 0}
	case pipeline.CountDistinct:
		return &distinctAcc{g: newGrouper()}
	case pipeline.CollectList:
		return &listAcc{}
	case pipeline.Min:
		return &extremeAcc{sign: -1}
	case pipeline.Max:
		return &extremeAcc{sign: 1}
	case pipeline.First:
		return &firstAcc{}
	}
	return nil
}

type sumAcc struct {
	float bool
	seen  bool
	i     int64
	f     float64
}

func (a *sumAcc) add(v interface{}) {
	switch n := v.(type) {
	case int64:
		a.i += n
		a.f += float64(n)
	case float64:
		a.f += n
	default:
		return
	}
	a.seen = true
}

func (a *sumAcc) result() interface{} {
	if !a.seen {
		return nil
	}
	if a.float {
		return a.f
	}
	return a.i
}

// statAcc collects values for a gonum statistic; groups with fewer than min
// values yield null
type statAcc struct {
	fn  func([]float64) float64
	min int
	xs  []float64
}

func (a *statAcc) add(v interface{}) {
	if f, ok := toFloat64(v); ok {
		a.xs = append(a.xs, f)
	}
}

func (a *statAcc) result() interface{} {
	if len(a.xs) < a.min {
		return nil
	}
	return a.fn(a.xs)
}

type countAcc struct {
	rows bool
	n    int64
}

func (a *countAcc) add(v interface{}) {
	if a.rows || v != nil {
		a.n++
	}
}

func (a *countAcc) result() interface{} { return a.n }

type distinctAcc struct{ g *grouper }

func (a *distinctAcc) add(v interface{}) {
	if v != nil {
		a.g.id([]interface{}{v})
	}
}

func (a *distinctAcc) result() interface{} { return int64(a.g.len()) }

type listAcc struct{ vals []interface{} }

func (a *listAcc) add(v interface{}) {
	if v != nil {
		a.vals = append(a.vals, v)
	}
}

func (a *listAcc) result() interface{} {
	if a.vals == nil {
		return []interface{}{}
	}
	return a.vals
}

type extremeAcc struct {
	sign int
	val  interface{}
}

func (a *extremeAcc) add(v interface{}) {
	if v == nil {
		return
	}
	if a.val == nil || table.Compare(v, a.val)*a.sign > 0 {
		a.val = v
	}
}

func (a *extremeAcc) result() interface{} { return a.val }

// firstAcc keeps the first non-null value
type firstAcc struct{ val interface{} }

func (a *firstAcc) add(v interface{}) {
	if a.val == nil {
		a.val = v
	}
}

func (a *firstAcc) result() interface{} { return a.val }

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func applyAggregate(t *table.Table, op pipeline.GroupAggregate) (*table.Table, error) {
	if len(op.Aggs) == 0 && len(op.Keys) == 0 {
		return nil, errors.InvalidPlanError{Op: "groupAggregate", Reason: "needs keys or aggregations"}
	}
	in := t.Schema()
	keyIdx, err := in.Indices(op.Keys)
	if err != nil {
		return nil, err
	}
	fields := make([]schema.Field, 0, len(op.Keys)+len(op.Aggs))
	for _, i := range keyIdx {
		fields = append(fields, in.Field(i))
	}
	plans := make([]aggPlan, len(op.Aggs))
	for i, a := range op.Aggs {
		p, err := planAggregation(in, a)
		if err != nil {
			return nil, err
		}
		plans[i] = p
		fields = append(fields, p.field)
	}
	out, err := schema.New(fields...)
	if err != nil {
		return nil, err
	}

	g := newGrouper()
	var accs [][]accumulator
	newGroup := func() {
		group := make([]accumulator, len(plans))
		for i, p := range plans {
			group[i] = p.newAccumulator()
		}
		accs = append(accs, group)
	}
	if len(keyIdx) == 0 {
		// a global aggregate yields one row even for empty input
		g.id(nil)
		newGroup()
	}
	err = t.Each(func(_ int, r table.Row) error {
		id, created := g.id(pick(r, keyIdx))
		if created {
			newGroup()
		}
		for i, p := range plans {
			var v interface{}
			if p.col >= 0 {
				v = r[p.col]
			}
			accs[id][i].add(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	rows := make([]table.Row, g.len())
	for id, key := range g.keys {
		row := make(table.Row, 0, out.Len())
		row = append(row, key...)
		for _, acc := range accs[id] {
			row = append(row, acc.result())
		}
		rows[id] = row
	}
	return table.New(out, rows)
}
