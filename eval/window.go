package eval

import (
	"fmt"
	"sort"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// rowInfo stores a row with its original index
type rowInfo struct {
	row           table.Row
	originalIndex int
}

// windowPlan is a window op resolved against its input schema
type windowPlan struct {
	op    pipeline.Window
	order []orderKey
	frame pipeline.Frame
	col   int
	field schema.Field
	def   interface{}
}

func planWindow(s *schema.Schema, w pipeline.Window) (*windowPlan, error) {
	invalid := func(format string, args ...interface{}) error {
		return errors.InvalidPlanError{Op: "window", Reason: fmt.Sprintf(format, args...)}
	}
	p := &windowPlan{op: w, col: -1, frame: w.Spec.EffectiveFrame()}
	if _, err := s.Indices(w.Spec.PartitionBy); err != nil {
		return nil, err
	}
	order, err := resolveOrder(s, w.Spec.OrderBy)
	if err != nil {
		return nil, err
	}
	p.order = order
	if w.Func.RequiresOrder() && len(order) == 0 {
		return nil, invalid("%s requires order columns", w.Func)
	}
	if err := p.frame.Validate(); err != nil {
		return nil, invalid("%v", err)
	}
	if p.frame.Unit == pipeline.Range && (hasOffset(p.frame.Start) || hasOffset(p.frame.End)) {
		if len(order) != 1 || !s.Field(order[0].idx).Type.IsNumeric() {
			return nil, invalid("RANGE frames with offsets need exactly one numeric order column")
		}
	}

	var in schema.Field
	if w.Column != "" {
		idx, f, err := s.Lookup(w.Column)
		if err != nil {
			return nil, err
		}
		p.col = idx
		in = f
	}
	out := schema.Field{Name: w.OutputName(), Nullable: true}
	switch w.Func {
	case pipeline.RowNumber, pipeline.Rank, pipeline.DenseRank:
		out.Type, out.Nullable = schema.Int64Type, false
	case pipeline.NTile:
		if w.Offset <= 0 {
			return nil, invalid("ntile needs a positive bucket count")
		}
		out.Type, out.Nullable = schema.Int64Type, false
	case pipeline.WindowCount:
		out.Type, out.Nullable = schema.Int64Type, false
	case pipeline.WindowSum, pipeline.WindowAvg:
		if p.col < 0 {
			return nil, invalid("%s needs a column", w.Func)
		}
		if !in.Type.IsNumeric() {
			return nil, errors.TypeMismatchError{Column: w.Column, Expected: "numeric", Actual: in.Type.String()}
		}
		out.Type = in.Type
		if w.Func == pipeline.WindowAvg {
			out.Type = schema.Float64Type
		}
	case pipeline.WindowMin, pipeline.WindowMax, pipeline.FirstValue, pipeline.LastValue:
		if p.col < 0 {
			return nil, invalid("%s needs a column", w.Func)
		}
		out.Type = in.Type
	case pipeline.Lag, pipeline.Lead:
		if p.col < 0 {
			return nil, invalid("%s needs a column", w.Func)
		}
		if w.Offset < 0 {
			return nil, invalid("%s offset must be non-negative", w.Func)
		}
		def, err := schema.Coerce(w.Default, in.Type)
		if err != nil {
			return nil, errors.TypeMismatchError{Column: w.Column, Expected: in.Type.String(), Actual: fmt.Sprintf("default %v", w.Default)}
		}
		p.def = def
		out.Type = in.Type
	default:
		return nil, invalid("unsupported window function %s", w.Func)
	}
	p.field = out
	return p, nil
}

func hasOffset(b pipeline.Bound) bool {
	return b.Kind == pipeline.Preceding || b.Kind == pipeline.Following
}

func applyWindow(t *table.Table, w pipeline.Window) (*table.Table, error) {
	s := t.Schema()
	p, err := planWindow(s, w)
	if err != nil {
		return nil, err
	}
	partIdx, err := s.Indices(w.Spec.PartitionBy)
	if err != nil {
		return nil, err
	}
	rows, err := t.Rows()
	if err != nil {
		return nil, err
	}

	results := make([]interface{}, len(rows))
	for _, partition := range partitionRows(rows, partIdx) {
		sorted := sortPartition(partition, p.order)
		for i, v := range p.compute(sorted) {
			results[sorted[i].originalIndex] = v
		}
	}

	out, pos := s.With(p.field)
	for i, r := range rows {
		row := make(table.Row, out.Len())
		copy(row, r)
		row[pos] = results[i]
		rows[i] = row
	}
	return table.New(out, rows)
}

// partitionRows splits rows by partition key, keeping first-seen partition
// order and input order within each partition
func partitionRows(rows []table.Row, partIdx []int) [][]rowInfo {
	g := newGrouper()
	var partitions [][]rowInfo
	for i, r := range rows {
		id, created := g.id(pick(r, partIdx))
		if created {
			partitions = append(partitions, nil)
		}
		partitions[id] = append(partitions[id], rowInfo{row: r, originalIndex: i})
	}
	return partitions
}

// sortPartition stably sorts a partition by the order keys
func sortPartition(partition []rowInfo, order []orderKey) []rowInfo {
	if len(order) == 0 {
		return partition
	}
	sorted := make([]rowInfo, len(partition))
	copy(sorted, partition)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareOrdered(sorted[i].row, sorted[j].row, order) < 0
	})
	return sorted
}

func (p *windowPlan) compute(part []rowInfo) []interface{} {
	switch p.op.Func {
	case pipeline.RowNumber:
		return computeRowNumber(part)
	case pipeline.Rank:
		return p.computeRank(part, false)
	case pipeline.DenseRank:
		return p.computeRank(part, true)
	case pipeline.NTile:
		return computeNTile(len(part), p.op.Offset)
	case pipeline.Lag:
		return p.computeShift(part, -1)
	case pipeline.Lead:
		return p.computeShift(part, 1)
	}
	return p.computeFrameAggregate(part)
}

func computeRowNumber(part []rowInfo) []interface{} {
	results := make([]interface{}, len(part))
	for i := range part {
		results[i] = int64(i + 1)
	}
	return results
}

// computeRank gives peers the same rank. Dense ranks have no gaps.
func (p *windowPlan) computeRank(part []rowInfo, dense bool) []interface{} {
	results := make([]interface{}, len(part))
	rank := int64(1)
	for i := range part {
		if i > 0 && compareOrdered(part[i-1].row, part[i].row, p.order) != 0 {
			if dense {
				rank++
			} else {
				rank = int64(i + 1)
			}
		}
		results[i] = rank
	}
	return results
}

// computeNTile splits n rows into buckets whose sizes differ by at most one,
// larger buckets first
func computeNTile(n int, buckets int64) []interface{} {
	results := make([]interface{}, n)
	size := int64(n) / buckets
	extra := int64(n) % buckets
	row := 0
	for b := int64(1); b <= buckets && row < n; b++ {
		count := size
		if b <= extra {
			count++
		}
		for k := int64(0); k < count && row < n; k++ {
			results[row] = b
			row++
		}
	}
	return results
}

// computeShift implements lag (dir -1) and lead (dir 1)
func (p *windowPlan) computeShift(part []rowInfo, dir int) []interface{} {
	results := make([]interface{}, len(part))
	for i := range part {
		j := i + dir*int(p.op.Offset)
		if j >= 0 && j < len(part) {
			results[i] = part[j].row[p.col]
		} else {
			results[i] = p.def
		}
	}
	return results
}

func (p *windowPlan) computeFrameAggregate(part []rowInfo) []interface{} {
	results := make([]interface{}, len(part))
	for i := range part {
		lo, hi := p.frameBounds(part, i)
		if lo > hi {
			switch p.op.Func {
			case pipeline.WindowCount:
				results[i] = int64(0)
			default:
				results[i] = nil
			}
			continue
		}
		switch p.op.Func {
		case pipeline.FirstValue:
			results[i] = part[lo].row[p.col]
			continue
		case pipeline.LastValue:
			results[i] = part[hi].row[p.col]
			continue
		}
		acc := p.accumulator()
		for j := lo; j <= hi; j++ {
			var v interface{}
			if p.col >= 0 {
				v = part[j].row[p.col]
			}
			acc.add(v)
		}
		results[i] = acc.result()
	}
	return results
}

func (p *windowPlan) accumulator() accumulator {
	var fn pipeline.AggFunc
	switch p.op.Func {
	case pipeline.WindowSum:
		fn = pipeline.Sum
	case pipeline.WindowAvg:
		fn = pipeline.Avg
	case pipeline.WindowMin:
		fn = pipeline.Min
	case pipeline.WindowMax:
		fn = pipeline.Max
	default:
		fn = pipeline.Count
	}
	return aggPlan{agg: pipeline.Aggregation{Func: fn}, col: p.col, field: p.field}.newAccumulator()
}

// frameBounds returns the inclusive index range of the frame around row i.
// lo > hi means the frame is empty.
func (p *windowPlan) frameBounds(part []rowInfo, i int) (int, int) {
	n := len(part)
	if p.frame.Unit == pipeline.Rows {
		lo := rowBound(p.frame.Start, i, n)
		hi := rowBound(p.frame.End, i, n)
		if lo < 0 {
			lo = 0
		}
		if hi > n-1 {
			hi = n - 1
		}
		return lo, hi
	}
	return p.rangeStart(part, i), p.rangeEnd(part, i)
}

func rowBound(b pipeline.Bound, i, n int) int {
	switch b.Kind {
	case pipeline.UnboundedPreceding:
		return 0
	case pipeline.Preceding:
		return i - int(b.Offset)
	case pipeline.Following:
		return i + int(b.Offset)
	case pipeline.UnboundedFollowing:
		return n - 1
	}
	return i
}

func (p *windowPlan) peers(part []rowInfo, i, j int) bool {
	return compareOrdered(part[i].row, part[j].row, p.order) == 0
}

// rangeKey returns the order value of row j as a float, negated for
// descending order so that frame offsets always grow with the index
func (p *windowPlan) rangeKey(part []rowInfo, j int) (float64, bool) {
	f, ok := toFloat64(part[j].row[p.order[0].idx])
	if p.order[0].desc {
		f = -f
	}
	return f, ok
}

func (p *windowPlan) rangeStart(part []rowInfo, i int) int {
	b := p.frame.Start
	switch b.Kind {
	case pipeline.UnboundedPreceding:
		return 0
	case pipeline.CurrentRow:
		lo := i
		for lo > 0 && p.peers(part, lo-1, i) {
			lo--
		}
		return lo
	case pipeline.UnboundedFollowing:
		return len(part)
	}
	cur, ok := p.rangeKey(part, i)
	if !ok {
		// a null order value only frames its null peers
		return p.nullPeerStart(part, i)
	}
	target := cur - float64(b.Offset)
	if b.Kind == pipeline.Following {
		target = cur + float64(b.Offset)
	}
	for j := range part {
		if v, ok := p.rangeKey(part, j); ok && v >= target {
			return j
		}
	}
	return len(part)
}

func (p *windowPlan) rangeEnd(part []rowInfo, i int) int {
	b := p.frame.End
	n := len(part)
	switch b.Kind {
	case pipeline.UnboundedFollowing:
		return n - 1
	case pipeline.CurrentRow:
		hi := i
		for hi < n-1 && p.peers(part, hi+1, i) {
			hi++
		}
		return hi
	case pipeline.UnboundedPreceding:
		return -1
	}
	cur, ok := p.rangeKey(part, i)
	if !ok {
		return p.nullPeerEnd(part, i)
	}
	target := cur + float64(b.Offset)
	if b.Kind == pipeline.Preceding {
		target = cur - float64(b.Offset)
	}
	for j := n - 1; j >= 0; j-- {
		if v, ok := p.rangeKey(part, j); ok && v <= target {
			return j
		}
	}
	return -1
}

func (p *windowPlan) nullPeerStart(part []rowInfo, i int) int {
	lo := i
	for lo > 0 && part[lo-1].row[p.order[0].idx] == nil {
		lo--
	}
	return lo
}

func (p *windowPlan) nullPeerEnd(part []rowInfo, i int) int {
	hi := i
	for hi < len(part)-1 && part[hi+1].row[p.order[0].idx] == nil {
		hi++
	}
	return hi
}
