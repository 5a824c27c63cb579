package pipeline

import (
	"fmt"
	"strings"

	"github.com/vegasq/tabular/expr"
	"github.com/vegasq/tabular/table"
)

// Op is one declarative transformation step. The set of ops is closed; the
// evaluator interprets each variant.
type Op interface {
	// Name returns a short label used in logs and errors
	Name() string
	isOp()
}

// Select projects the named columns in the given order
type Select struct {
	Columns []string
}

// ProjectItem is one computed output column
type ProjectItem struct {
	Name string
	Expr expr.Expr
}

// Project replaces the columns with computed expressions, in order
type Project struct {
	Items []ProjectItem
}

// Filter keeps rows whose predicate is true; null counts as false
type Filter struct {
	Predicate expr.Expr
}

// WithColumn adds a column, or replaces the column of the same name in place
type WithColumn struct {
	Column string
	Expr   expr.Expr
}

// Drop removes columns. Unknown names are ignored.
type Drop struct {
	Columns []string
}

// Rename renames one column
type Rename struct {
	From, To string
}

// JoinKind selects which unmatched rows a join keeps
type JoinKind int

const (
	Inner JoinKind = iota
	Left
	Right
	Full
	Anti
	Semi
)

func (k JoinKind) String() string {
	switch k {
	case Inner:
		return "inner"
	case Left:
		return "left"
	case Right:
		return "right"
	case Full:
		return "full"
	case Anti:
		return "anti"
	case Semi:
		return "semi"
	}
	return fmt.Sprintf("join(%d)", int(k))
}

// ParseJoinKind accepts the usual spellings: inner, left, left_outer,
// right, full, outer, anti, left_anti, semi, left_semi
func ParseJoinKind(s string) (JoinKind, error) {
	switch strings.ToLower(strings.ReplaceAll(s, " ", "_")) {
	case "", "inner":
		return Inner, nil
	case "left", "left_outer", "leftouter":
		return Left, nil
	case "right", "right_outer", "rightouter":
		return Right, nil
	case "full", "outer", "full_outer", "fullouter":
		return Full, nil
	case "anti", "left_anti", "leftanti":
		return Anti, nil
	case "semi", "left_semi", "leftsemi":
		return Semi, nil
	}
	return Inner, fmt.Errorf("unknown join kind %q", s)
}

// Join combines the input with Right on equal key columns. The output holds
// the left columns followed by the right non-key columns; anti and semi joins
// output only the left columns.
type Join struct {
	Right *table.Table
	Keys  []string
	Kind  JoinKind
}

// GroupAggregate groups rows by key columns and computes aggregations per
// group. Without keys the whole input is one group.
type GroupAggregate struct {
	Keys []string
	Aggs []Aggregation
}

// NullMode selects how DropNulls treats a row
type NullMode int

const (
	// Any drops a row when any subset column is null
	Any NullMode = iota
	// All drops a row only when every subset column is null
	All
)

// DropNulls removes rows with nulls in Subset (all columns when empty)
type DropNulls struct {
	Mode   NullMode
	Subset []string
}

// FillNulls replaces nulls in Subset (all columns when empty) with Value.
// An explicitly named column whose type Value cannot be coerced to is an
// error; with an empty subset such columns are skipped.
type FillNulls struct {
	Value  interface{}
	Subset []string
}

// SortKey is one sort column and its direction
type SortKey struct {
	Column string
	Desc   bool
}

// Asc sorts a column ascending, nulls first
func Asc(col string) SortKey { return SortKey{Column: col} }

// Desc sorts a column descending, nulls last
func Desc(col string) SortKey { return SortKey{Column: col, Desc: true} }

// Sort is a stable multi-key sort
type Sort struct {
	Keys []SortKey
}

// Dedupe keeps the first row of each Subset key combination (all columns
// when empty). Nulls compare equal to each other.
type Dedupe struct {
	Subset []string
}

// Union appends Other's rows. Positional unions need equal arity and
// compatible types; ByName unions align Other's columns by name.
type Union struct {
	Other  *table.Table
	ByName bool
}

// Limit skips Offset rows and keeps at most N of the rest. N < 0 keeps all.
type Limit struct {
	N      int
	Offset int
}

func (Select) Name() string         { return "select" }
func (Project) Name() string        { return "project" }
func (Filter) Name() string         { return "filter" }
func (WithColumn) Name() string     { return "withColumn" }
func (Drop) Name() string           { return "drop" }
func (Rename) Name() string         { return "rename" }
func (Join) Name() string           { return "join" }
func (GroupAggregate) Name() string { return "groupAggregate" }
func (Window) Name() string         { return "window" }
func (DropNulls) Name() string      { return "dropNulls" }
func (FillNulls) Name() string      { return "fillNulls" }
func (Sort) Name() string           { return "sort" }
func (Dedupe) Name() string         { return "dedupe" }
func (Union) Name() string          { return "union" }
func (Limit) Name() string          { return "limit" }

func (Select) isOp()         {}
func (Project) isOp()        {}
func (Filter) isOp()         {}
func (WithColumn) isOp()     {}
func (Drop) isOp()           {}
func (Rename) isOp()         {}
func (Join) isOp()           {}
func (GroupAggregate) isOp() {}
func (Window) isOp()         {}
func (DropNulls) isOp()      {}
func (FillNulls) isOp()      {}
func (Sort) isOp()           {}
func (Dedupe) isOp()         {}
func (Union) isOp()          {}
func (Limit) isOp()          {}
