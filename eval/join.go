package eval

import (
	"fmt"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// joinLayout describes how left and right rows map onto the output row
type joinLayout struct {
	schema   *schema.Schema
	leftKey  []int
	rightKey []int
	// keyOut holds the output position and type of each key column
	keyOut  []int
	keyType []schema.Type
	// rightCols are the right non-key columns, appended after the left ones
	rightCols []int
}

func planJoin(left, right *schema.Schema, op pipeline.Join) (*joinLayout, error) {
	if len(op.Keys) == 0 {
		return nil, errors.InvalidPlanError{Op: "join", Reason: "at least one key column is required"}
	}
	l := &joinLayout{}
	isKey := make(map[string]bool, len(op.Keys))
	fields := left.Fields()
	for _, k := range op.Keys {
		if isKey[k] {
			return nil, errors.InvalidPlanError{Op: "join", Reason: fmt.Sprintf("duplicate key %q", k)}
		}
		isKey[k] = true
		li, lf, err := left.Lookup(k)
		if err != nil {
			return nil, err
		}
		ri, rf, err := right.Lookup(k)
		if err != nil {
			return nil, err
		}
		if !schema.Compatible(lf.Type, rf.Type) {
			return nil, errors.JoinKeyTypeMismatchError{Key: k, Left: lf.Type.String(), Right: rf.Type.String()}
		}
		kt := schema.Widen(lf.Type, rf.Type)
		l.leftKey = append(l.leftKey, li)
		l.rightKey = append(l.rightKey, ri)
		l.keyOut = append(l.keyOut, li)
		l.keyType = append(l.keyType, kt)

		fields[li].Type = kt
		switch op.Kind {
		case pipeline.Right:
			fields[li].Nullable = rf.Nullable
		case pipeline.Full:
			fields[li].Nullable = lf.Nullable || rf.Nullable
		}
	}

	if op.Kind == pipeline.Anti || op.Kind == pipeline.Semi {
		l.schema = left
		return l, nil
	}

	if op.Kind == pipeline.Right || op.Kind == pipeline.Full {
		for i := range fields {
			if !isKey[fields[i].Name] {
				fields[i].Nullable = true
			}
		}
	}
	for i, rf := range right.Fields() {
		if isKey[rf.Name] {
			continue
		}
		if _, clash := left.Index(rf.Name); clash {
			return nil, errors.SchemaError{Reason: fmt.Sprintf("join output would contain column %q twice; rename one side first", rf.Name)}
		}
		if op.Kind == pipeline.Left || op.Kind == pipeline.Full {
			rf.Nullable = true
		}
		fields = append(fields, rf)
		l.rightCols = append(l.rightCols, i)
	}
	s, err := schema.New(fields...)
	if err != nil {
		return nil, err
	}
	l.schema = s
	return l, nil
}

func applyJoin(t *table.Table, op pipeline.Join) (*table.Table, error) {
	if op.Right == nil {
		return nil, errors.InvalidPlanError{Op: "join", Reason: "right table is nil"}
	}
	layout, err := planJoin(t.Schema(), op.Right.Schema(), op)
	if err != nil {
		return nil, err
	}
	leftRows, err := t.Rows()
	if err != nil {
		return nil, err
	}
	rightRows, err := op.Right.Rows()
	if err != nil {
		return nil, fmt.Errorf("failed to read right side: %w", err)
	}

	// hash the right side; null keys never match and are not indexed
	index := make(map[uint64][]int)
	for i, r := range rightRows {
		key := pick(r, layout.rightKey)
		if hasNull(key) {
			continue
		}
		h := hashKey(key)
		index[h] = append(index[h], i)
	}
	matches := func(key []interface{}) []int {
		if hasNull(key) {
			return nil
		}
		var out []int
		for _, ri := range index[hashKey(key)] {
			if keysEqual(key, pick(rightRows[ri], layout.rightKey)) {
				out = append(out, ri)
			}
		}
		return out
	}

	width := layout.schema.Len()
	leftWidth := t.Schema().Len()
	combine := func(l, r table.Row) (table.Row, error) {
		row := make(table.Row, width)
		if l != nil {
			copy(row, l)
		}
		for i, ri := range layout.rightCols {
			if r != nil {
				row[leftWidth+i] = r[ri]
			}
		}
		for i, pos := range layout.keyOut {
			v := row[pos]
			if l == nil {
				v = r[layout.rightKey[i]]
			}
			c, err := schema.Coerce(v, layout.keyType[i])
			if err != nil {
				return nil, err
			}
			row[pos] = c
		}
		return row, nil
	}

	var out []table.Row
	matchedRight := make([]bool, len(rightRows))
	for _, l := range leftRows {
		found := matches(pick(l, layout.leftKey))
		switch op.Kind {
		case pipeline.Anti:
			if len(found) == 0 {
				out = append(out, l)
			}
			continue
		case pipeline.Semi:
			if len(found) > 0 {
				out = append(out, l)
			}
			continue
		}
		for _, ri := range found {
			matchedRight[ri] = true
			row, err := combine(l, rightRows[ri])
			if err != nil {
				return nil, err
			}
			out = append(out, row)
		}
		if len(found) == 0 && (op.Kind == pipeline.Left || op.Kind == pipeline.Full) {
			row, err := combine(l, nil)
			if err != nil {
				return nil, err
			}
			out = append(out, row)
		}
	}
	if op.Kind == pipeline.Right || op.Kind == pipeline.Full {
		for ri, r := range rightRows {
			if matchedRight[ri] {
				continue
			}
			row, err := combine(nil, r)
			if err != nil {
				return nil, err
			}
			out = append(out, row)
		}
	}
	return table.New(layout.schema, out)
}
