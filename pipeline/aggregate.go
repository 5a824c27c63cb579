package pipeline

import (
	"fmt"
	"strings"
)

// AggFunc is an aggregation function
type AggFunc int

const (
	Sum AggFunc = iota
	Avg
	Count
	CollectList
	Min
	Max
	CountDistinct
	First
	StdDev
	Variance
)

var aggNames = map[AggFunc]string{
	Sum:           "sum",
	Avg:           "avg",
	Count:         "count",
	CollectList:   "collect_list",
	Min:           "min",
	Max:           "max",
	CountDistinct: "count_distinct",
	First:         "first",
	StdDev:        "stddev",
	Variance:      "variance",
}

func (f AggFunc) String() string {
	if n, ok := aggNames[f]; ok {
		return n
	}
	return fmt.Sprintf("agg(%d)", int(f))
}

// ParseAggFunc parses an aggregation name, case-insensitively. "mean",
// "collectlist" and "stddev_samp" style aliases are accepted.
func ParseAggFunc(name string) (AggFunc, error) {
	n := strings.ToLower(name)
	switch n {
	case "mean":
		return Avg, nil
	case "collectlist":
		return CollectList, nil
	case "countdistinct":
		return CountDistinct, nil
	case "stddev_samp", "std":
		return StdDev, nil
	case "var_samp", "variance_samp":
		return Variance, nil
	}
	for f, s := range aggNames {
		if s == n {
			return f, nil
		}
	}
	return Sum, fmt.Errorf("unknown aggregate function %q", name)
}

// Aggregation computes one output column per group. An empty Column with
// Count counts rows, including rows of nulls.
type Aggregation struct {
	Func   AggFunc
	Column string
	Output string
}

// OutputName returns Output, or a name derived from the function and column
func (a Aggregation) OutputName() string {
	if a.Output != "" {
		return a.Output
	}
	col := a.Column
	if col == "" {
		col = "*"
	}
	return fmt.Sprintf("%s(%s)", a.Func, col)
}

// As returns a copy with the given output name
func (a Aggregation) As(name string) Aggregation {
	a.Output = name
	return a
}

// Agg builds an aggregation of fn over col
func Agg(fn AggFunc, col string) Aggregation {
	return Aggregation{Func: fn, Column: col}
}

// CountRows counts every row of the group
func CountRows() Aggregation {
	return Aggregation{Func: Count}
}
