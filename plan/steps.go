package plan

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/query"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// Step is one pipeline op. Exactly one field is set.
type Step struct {
	Select     []string          `yaml:"select"`
	Filter     string            `yaml:"filter"`
	WithColumn *ColumnStep       `yaml:"with_column"`
	Drop       []string          `yaml:"drop"`
	Rename     map[string]string `yaml:"rename"`
	Join       *JoinStep         `yaml:"join"`
	GroupBy    *GroupStep        `yaml:"group_by"`
	Window     *WindowStep       `yaml:"window"`
	DropNulls  *NullStep         `yaml:"drop_nulls"`
	FillNulls  *FillStep         `yaml:"fill_nulls"`
	Sort       []string          `yaml:"sort"`
	Dedupe     *DedupeStep       `yaml:"dedupe"`
	Union      *UnionStep        `yaml:"union"`
	Limit      *LimitStep        `yaml:"limit"`
}

// ColumnStep adds or replaces a column computed by a SQL expression
type ColumnStep struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// JoinStep joins a registered table on equal key columns
type JoinStep struct {
	Right string   `yaml:"right"`
	On    []string `yaml:"on"`
	Kind  string   `yaml:"kind"`
}

// GroupStep groups by Keys and computes Aggs
type GroupStep struct {
	Keys []string  `yaml:"keys"`
	Aggs []AggStep `yaml:"aggs"`
}

// AggStep is one aggregation. A count with no column (or "*") counts rows.
type AggStep struct {
	Func   string `yaml:"func"`
	Column string `yaml:"column"`
	As     string `yaml:"as"`
}

// WindowStep adds a window function column
type WindowStep struct {
	Func        string      `yaml:"func"`
	Column      string      `yaml:"column"`
	As          string      `yaml:"as"`
	PartitionBy []string    `yaml:"partition_by"`
	OrderBy     []string    `yaml:"order_by"`
	Offset      *int64      `yaml:"offset"`
	Default     interface{} `yaml:"default"`
	Frame       *FrameStep  `yaml:"frame"`
}

// FrameStep is a window frame such as {unit: rows, start: 2 preceding,
// end: current row}
type FrameStep struct {
	Unit  string `yaml:"unit"`
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// NullStep drops rows with nulls
type NullStep struct {
	Mode    string   `yaml:"mode"`
	Columns []string `yaml:"columns"`
}

// FillStep replaces nulls with Value
type FillStep struct {
	Value   interface{} `yaml:"value"`
	Columns []string    `yaml:"columns"`
}

// DedupeStep keeps the first row per Columns combination (all columns when
// empty)
type DedupeStep struct {
	Columns []string `yaml:"columns"`
}

// UnionStep appends the rows of a registered table
type UnionStep struct {
	Other  string `yaml:"other"`
	ByName bool   `yaml:"by_name"`
}

// LimitStep is written either as a count (limit: 10) or as a mapping
// (limit: {n: 10, offset: 5})
type LimitStep struct {
	N      int `yaml:"n"`
	Offset int `yaml:"offset"`
}

// UnmarshalYAML accepts the scalar and mapping forms
func (l *LimitStep) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		n, err := strconv.Atoi(node.Value)
		if err != nil {
			return fmt.Errorf("line %d: limit must be an integer, got %q", node.Line, node.Value)
		}
		*l = LimitStep{N: n}
		return nil
	}
	type plain LimitStep
	v := plain{N: -1}
	if err := node.Decode(&v); err != nil {
		return err
	}
	*l = LimitStep(v)
	return nil
}

// kind names the op the step sets
func (s Step) kind() (string, error) {
	var set []string
	check := func(name string, ok bool) {
		if ok {
			set = append(set, name)
		}
	}
	check("select", s.Select != nil)
	check("filter", s.Filter != "")
	check("with_column", s.WithColumn != nil)
	check("drop", s.Drop != nil)
	check("rename", s.Rename != nil)
	check("join", s.Join != nil)
	check("group_by", s.GroupBy != nil)
	check("window", s.Window != nil)
	check("drop_nulls", s.DropNulls != nil)
	check("fill_nulls", s.FillNulls != nil)
	check("sort", s.Sort != nil)
	check("dedupe", s.Dedupe != nil)
	check("union", s.Union != nil)
	check("limit", s.Limit != nil)

	switch len(set) {
	case 0:
		return "", errors.InvalidPlanError{Op: "plan", Reason: "empty step"}
	case 1:
		return set[0], nil
	}
	return "", errors.InvalidPlanError{Op: "plan", Reason: fmt.Sprintf("step sets several ops: %s", strings.Join(set, ", "))}
}

// apply appends the step's op to p. Tables named by join and union steps
// are looked up in cat.
func (s Step) apply(p pipeline.Pipeline, cat *query.Catalog) (pipeline.Pipeline, error) {
	lookup := func(name string) (*table.Table, error) {
		t, ok := cat.Table(name)
		if !ok {
			return nil, errors.InvalidPlanError{Op: "plan", Reason: fmt.Sprintf("table %q is not registered", name)}
		}
		return t, nil
	}

	switch {
	case s.Select != nil:
		return p.Select(s.Select...), nil

	case s.Filter != "":
		e, err := query.ParseExpr(s.Filter)
		if err != nil {
			return p, err
		}
		return p.Filter(e), nil

	case s.WithColumn != nil:
		if s.WithColumn.Name == "" {
			return p, errors.InvalidPlanError{Op: "withColumn", Reason: "name is required"}
		}
		e, err := query.ParseExpr(s.WithColumn.Expr)
		if err != nil {
			return p, err
		}
		return p.WithColumn(s.WithColumn.Name, e), nil

	case s.Drop != nil:
		return p.Drop(s.Drop...), nil

	case s.Rename != nil:
		from := make([]string, 0, len(s.Rename))
		for name := range s.Rename {
			from = append(from, name)
		}
		sort.Strings(from)
		for _, name := range from {
			p = p.Rename(name, s.Rename[name])
		}
		return p, nil

	case s.Join != nil:
		right, err := lookup(s.Join.Right)
		if err != nil {
			return p, err
		}
		kind := pipeline.Inner
		if s.Join.Kind != "" {
			if kind, err = pipeline.ParseJoinKind(s.Join.Kind); err != nil {
				return p, err
			}
		}
		return p.Join(right, kind, s.Join.On...), nil

	case s.GroupBy != nil:
		aggs := make([]pipeline.Aggregation, 0, len(s.GroupBy.Aggs))
		for _, a := range s.GroupBy.Aggs {
			fn, err := pipeline.ParseAggFunc(a.Func)
			if err != nil {
				return p, err
			}
			agg := pipeline.Agg(fn, a.Column)
			if fn == pipeline.Count && (a.Column == "" || a.Column == "*") {
				agg = pipeline.CountRows()
			}
			aggs = append(aggs, agg.As(a.As))
		}
		return p.GroupAggregate(s.GroupBy.Keys, aggs...), nil

	case s.Window != nil:
		w, err := s.Window.window()
		if err != nil {
			return p, err
		}
		return p.Window(w), nil

	case s.DropNulls != nil:
		mode := pipeline.Any
		switch strings.ToLower(s.DropNulls.Mode) {
		case "", "any":
		case "all":
			mode = pipeline.All
		default:
			return p, errors.InvalidPlanError{Op: "dropNulls", Reason: fmt.Sprintf("unknown mode %q", s.DropNulls.Mode)}
		}
		return p.DropNulls(mode, s.DropNulls.Columns...), nil

	case s.FillNulls != nil:
		return p.FillNulls(schema.Normalize(s.FillNulls.Value), s.FillNulls.Columns...), nil

	case s.Sort != nil:
		keys, err := sortKeys(s.Sort)
		if err != nil {
			return p, err
		}
		return p.Sort(keys...), nil

	case s.Dedupe != nil:
		return p.Dedupe(s.Dedupe.Columns...), nil

	case s.Union != nil:
		other, err := lookup(s.Union.Other)
		if err != nil {
			return p, err
		}
		return p.Union(other, s.Union.ByName), nil

	case s.Limit != nil:
		return p.Then(pipeline.Limit{N: s.Limit.N, Offset: s.Limit.Offset}), nil
	}
	return p, errors.InvalidPlanError{Op: "plan", Reason: "empty step"}
}

func (w *WindowStep) window() (pipeline.Window, error) {
	fn, err := pipeline.ParseWindowFunc(w.Func)
	if err != nil {
		return pipeline.Window{}, err
	}
	order, err := sortKeys(w.OrderBy)
	if err != nil {
		return pipeline.Window{}, err
	}
	out := pipeline.Window{
		Spec:    pipeline.WindowSpec{PartitionBy: w.PartitionBy, OrderBy: order},
		Func:    fn,
		Column:  w.Column,
		Output:  w.As,
		Default: schema.Normalize(w.Default),
	}
	switch {
	case w.Offset != nil:
		out.Offset = *w.Offset
	case fn == pipeline.Lag || fn == pipeline.Lead:
		out.Offset = 1
	}
	if w.Frame != nil {
		if out.Spec.Frame, err = w.Frame.frame(); err != nil {
			return pipeline.Window{}, err
		}
	}
	return out, nil
}

func (f *FrameStep) frame() (*pipeline.Frame, error) {
	out := &pipeline.Frame{Unit: pipeline.Rows}
	switch strings.ToLower(f.Unit) {
	case "", "rows":
	case "range":
		out.Unit = pipeline.Range
	default:
		return nil, errors.InvalidPlanError{Op: "window", Reason: fmt.Sprintf("unknown frame unit %q", f.Unit)}
	}
	var err error
	if out.Start, err = parseBound(f.Start, pipeline.UnboundedPreceding); err != nil {
		return nil, err
	}
	if out.End, err = parseBound(f.End, pipeline.CurrentRow); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, errors.InvalidPlanError{Op: "window", Reason: err.Error()}
	}
	return out, nil
}

// parseBound parses "unbounded preceding", "3 preceding", "current row",
// "2 following" or "unbounded following"
func parseBound(s string, def pipeline.BoundKind) (pipeline.Bound, error) {
	fields := strings.Fields(strings.ToLower(s))
	bad := errors.InvalidPlanError{Op: "window", Reason: fmt.Sprintf("invalid frame bound %q", s)}
	switch len(fields) {
	case 0:
		return pipeline.Bound{Kind: def}, nil
	case 2:
	default:
		return pipeline.Bound{}, bad
	}

	if fields[0] == "current" && fields[1] == "row" {
		return pipeline.Bound{Kind: pipeline.CurrentRow}, nil
	}
	unbounded := fields[0] == "unbounded"
	var offset int64
	if !unbounded {
		n, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil || n < 0 {
			return pipeline.Bound{}, bad
		}
		offset = n
	}
	switch fields[1] {
	case "preceding":
		if unbounded {
			return pipeline.Bound{Kind: pipeline.UnboundedPreceding}, nil
		}
		return pipeline.Bound{Kind: pipeline.Preceding, Offset: offset}, nil
	case "following":
		if unbounded {
			return pipeline.Bound{Kind: pipeline.UnboundedFollowing}, nil
		}
		return pipeline.Bound{Kind: pipeline.Following, Offset: offset}, nil
	}
	return pipeline.Bound{}, bad
}

// sortKeys parses "col", "col asc" and "col desc"
func sortKeys(specs []string) ([]pipeline.SortKey, error) {
	keys := make([]pipeline.SortKey, 0, len(specs))
	for _, spec := range specs {
		fields := strings.Fields(spec)
		switch {
		case len(fields) == 1:
			keys = append(keys, pipeline.Asc(fields[0]))
		case len(fields) == 2 && strings.EqualFold(fields[1], "asc"):
			keys = append(keys, pipeline.Asc(fields[0]))
		case len(fields) == 2 && strings.EqualFold(fields[1], "desc"):
			keys = append(keys, pipeline.Desc(fields[0]))
		default:
			return nil, errors.InvalidPlanError{Op: "sort", Reason: fmt.Sprintf("invalid sort key %q", spec)}
		}
	}
	return keys, nil
}
