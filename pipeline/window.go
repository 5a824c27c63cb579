package pipeline

import (
	"fmt"
	"strings"
)

// WindowFunc is a function computed over a window of rows
type WindowFunc int

const (
	RowNumber WindowFunc = iota
	Rank
	DenseRank
	WindowSum
	WindowAvg
	WindowMin
	WindowMax
	WindowCount
	Lag
	Lead
	NTile
	FirstValue
	LastValue
)

var windowNames = map[WindowFunc]string{
	RowNumber:   "row_number",
	Rank:        "rank",
	DenseRank:   "dense_rank",
	WindowSum:   "sum",
	WindowAvg:   "avg",
	WindowMin:   "min",
	WindowMax:   "max",
	WindowCount: "count",
	Lag:         "lag",
	Lead:        "lead",
	NTile:       "ntile",
	FirstValue:  "first_value",
	LastValue:   "last_value",
}

func (f WindowFunc) String() string {
	if n, ok := windowNames[f]; ok {
		return n
	}
	return fmt.Sprintf("window(%d)", int(f))
}

// ParseWindowFunc parses a window function name, case-insensitively.
// camelCase spellings such as rowNumber are accepted.
func ParseWindowFunc(name string) (WindowFunc, error) {
	n := strings.ToLower(name)
	switch n {
	case "rownumber":
		return RowNumber, nil
	case "denserank":
		return DenseRank, nil
	case "mean":
		return WindowAvg, nil
	case "firstvalue", "first":
		return FirstValue, nil
	case "lastvalue", "last":
		return LastValue, nil
	}
	for f, s := range windowNames {
		if s == n {
			return f, nil
		}
	}
	return RowNumber, fmt.Errorf("unknown window function %q", name)
}

// RequiresOrder reports whether the function is meaningless without order
// columns. rowNumber is allowed without them and follows input order.
func (f WindowFunc) RequiresOrder() bool {
	switch f {
	case Rank, DenseRank, NTile, Lag, Lead:
		return true
	}
	return false
}

// IsAggregate reports whether the function aggregates over a frame
func (f WindowFunc) IsAggregate() bool {
	switch f {
	case WindowSum, WindowAvg, WindowMin, WindowMax, WindowCount, FirstValue, LastValue:
		return true
	}
	return false
}

// FrameUnit chooses how frame offsets are measured
type FrameUnit int

const (
	// Rows offsets count physical rows
	Rows FrameUnit = iota
	// Range offsets are value distances on the single order column; the
	// current row bound includes all peers
	Range
)

// BoundKind is the kind of a frame boundary
type BoundKind int

const (
	UnboundedPreceding BoundKind = iota
	Preceding
	CurrentRow
	Following
	UnboundedFollowing
)

// Bound is one end of a window frame. Offset applies to Preceding and
// Following.
type Bound struct {
	Kind   BoundKind
	Offset int64
}

func (b Bound) String() string {
	switch b.Kind {
	case UnboundedPreceding:
		return "UNBOUNDED PRECEDING"
	case Preceding:
		return fmt.Sprintf("%d PRECEDING", b.Offset)
	case CurrentRow:
		return "CURRENT ROW"
	case Following:
		return fmt.Sprintf("%d FOLLOWING", b.Offset)
	case UnboundedFollowing:
		return "UNBOUNDED FOLLOWING"
	}
	return "?"
}

// position maps a bound onto a number line for ordering checks
func (b Bound) position() int64 {
	switch b.Kind {
	case UnboundedPreceding:
		return -1 << 62
	case Preceding:
		return -b.Offset
	case Following:
		return b.Offset
	case UnboundedFollowing:
		return 1 << 62
	}
	return 0
}

// Frame is the range of rows, relative to the current row, that a frame
// aggregate sees
type Frame struct {
	Unit       FrameUnit
	Start, End Bound
}

// Validate checks that the frame is well formed
func (f Frame) Validate() error {
	if f.Start.Kind == UnboundedFollowing {
		return fmt.Errorf("frame cannot start at UNBOUNDED FOLLOWING")
	}
	if f.End.Kind == UnboundedPreceding {
		return fmt.Errorf("frame cannot end at UNBOUNDED PRECEDING")
	}
	if f.Start.Offset < 0 || f.End.Offset < 0 {
		return fmt.Errorf("frame offsets must be non-negative")
	}
	if f.Start.position() > f.End.position() {
		return fmt.Errorf("frame start %s is after end %s", f.Start, f.End)
	}
	return nil
}

func (f Frame) String() string {
	unit := "ROWS"
	if f.Unit == Range {
		unit = "RANGE"
	}
	return fmt.Sprintf("%s BETWEEN %s AND %s", unit, f.Start, f.End)
}

// RowsBetween builds a ROWS frame
func RowsBetween(start, end Bound) *Frame {
	return &Frame{Unit: Rows, Start: start, End: end}
}

// RangeBetween builds a RANGE frame
func RangeBetween(start, end Bound) *Frame {
	return &Frame{Unit: Range, Start: start, End: end}
}

// WindowSpec partitions and orders rows for a window function. A nil Frame
// means the whole partition without order columns, and RANGE BETWEEN
// UNBOUNDED PRECEDING AND CURRENT ROW with them.
type WindowSpec struct {
	PartitionBy []string
	OrderBy     []SortKey
	Frame       *Frame
}

// EffectiveFrame returns the frame that applies to aggregate functions
func (w WindowSpec) EffectiveFrame() Frame {
	if w.Frame != nil {
		return *w.Frame
	}
	if len(w.OrderBy) == 0 {
		return Frame{Unit: Rows, Start: Bound{Kind: UnboundedPreceding}, End: Bound{Kind: UnboundedFollowing}}
	}
	return Frame{Unit: Range, Start: Bound{Kind: UnboundedPreceding}, End: Bound{Kind: CurrentRow}}
}

// Window adds Output computed by Func over Spec. Column is the input of
// aggregate, lag, lead and value functions. Offset is the lag/lead distance,
// where 0 reads the current row, or the ntile bucket count. Default fills lag/lead rows that
// fall outside the partition.
type Window struct {
	Spec    WindowSpec
	Func    WindowFunc
	Column  string
	Output  string
	Offset  int64
	Default interface{}
}

// OutputName returns Output, or a name derived from the function and column
func (w Window) OutputName() string {
	if w.Output != "" {
		return w.Output
	}
	if w.Column == "" {
		return w.Func.String()
	}
	return fmt.Sprintf("%s(%s)", w.Func, w.Column)
}
