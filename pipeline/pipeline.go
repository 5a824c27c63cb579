// Package pipeline describes table transformations as data.
//
// A Pipeline is an ordered list of Op values. Building one executes nothing;
// the eval package interprets the ops against an input table. Pipelines are
// values: every builder method returns a new Pipeline and leaves the receiver
// unchanged, so a common prefix can be shared and extended safely.
//
//	p := pipeline.New().
//	    Filter(expr.Eq(expr.Col("type"), expr.Lit("Regular"))).
//	    GroupAggregate([]string{"outlet"}, pipeline.Agg(pipeline.Sum, "sales").As("total")).
//	    Sort(pipeline.Desc("total"))
package pipeline

import (
	"strings"

	"github.com/vegasq/tabular/expr"
	"github.com/vegasq/tabular/table"
)

// Pipeline is an immutable sequence of ops
type Pipeline struct {
	ops []Op
}

// New creates a pipeline from ops
func New(ops ...Op) Pipeline {
	return Pipeline{ops: append([]Op(nil), ops...)}
}

// Then returns a new pipeline with op appended
func (p Pipeline) Then(op Op) Pipeline {
	ops := make([]Op, len(p.ops), len(p.ops)+1)
	copy(ops, p.ops)
	return Pipeline{ops: append(ops, op)}
}

// Concat returns a new pipeline running p then q
func (p Pipeline) Concat(q Pipeline) Pipeline {
	ops := make([]Op, 0, len(p.ops)+len(q.ops))
	ops = append(ops, p.ops...)
	return Pipeline{ops: append(ops, q.ops...)}
}

// Ops returns a copy of the ops
func (p Pipeline) Ops() []Op {
	return append([]Op(nil), p.ops...)
}

// Len returns the number of ops
func (p Pipeline) Len() int {
	return len(p.ops)
}

// String lists the op names, e.g. "filter -> groupAggregate -> sort"
func (p Pipeline) String() string {
	names := make([]string, len(p.ops))
	for i, op := range p.ops {
		names[i] = op.Name()
	}
	return strings.Join(names, " -> ")
}

func (p Pipeline) Select(cols ...string) Pipeline {
	return p.Then(Select{Columns: cols})
}

func (p Pipeline) Project(items ...ProjectItem) Pipeline {
	return p.Then(Project{Items: items})
}

func (p Pipeline) Filter(pred expr.Expr) Pipeline {
	return p.Then(Filter{Predicate: pred})
}

func (p Pipeline) WithColumn(name string, e expr.Expr) Pipeline {
	return p.Then(WithColumn{Column: name, Expr: e})
}

func (p Pipeline) Drop(cols ...string) Pipeline {
	return p.Then(Drop{Columns: cols})
}

func (p Pipeline) Rename(from, to string) Pipeline {
	return p.Then(Rename{From: from, To: to})
}

func (p Pipeline) Join(right *table.Table, kind JoinKind, keys ...string) Pipeline {
	return p.Then(Join{Right: right, Keys: keys, Kind: kind})
}

func (p Pipeline) GroupAggregate(keys []string, aggs ...Aggregation) Pipeline {
	return p.Then(GroupAggregate{Keys: keys, Aggs: aggs})
}

func (p Pipeline) Window(w Window) Pipeline {
	return p.Then(w)
}

func (p Pipeline) DropNulls(mode NullMode, subset ...string) Pipeline {
	return p.Then(DropNulls{Mode: mode, Subset: subset})
}

func (p Pipeline) FillNulls(value interface{}, subset ...string) Pipeline {
	return p.Then(FillNulls{Value: value, Subset: subset})
}

func (p Pipeline) Sort(keys ...SortKey) Pipeline {
	return p.Then(Sort{Keys: keys})
}

func (p Pipeline) Dedupe(subset ...string) Pipeline {
	return p.Then(Dedupe{Subset: subset})
}

func (p Pipeline) Union(other *table.Table, byName bool) Pipeline {
	return p.Then(Union{Other: other, ByName: byName})
}

func (p Pipeline) Limit(n int) Pipeline {
	return p.Then(Limit{N: n})
}
