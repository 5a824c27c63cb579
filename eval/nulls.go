package eval

import (
	"fmt"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// subsetIndices resolves a column subset; an empty subset means all columns
func subsetIndices(s *schema.Schema, subset []string) ([]int, error) {
	if len(subset) == 0 {
		idx := make([]int, s.Len())
		for i := range idx {
			idx[i] = i
		}
		return idx, nil
	}
	return s.Indices(subset)
}

func applyDropNulls(t *table.Table, op pipeline.DropNulls) (*table.Table, error) {
	idx, err := subsetIndices(t.Schema(), op.Subset)
	if err != nil {
		return nil, err
	}
	var out []table.Row
	err = t.Each(func(_ int, r table.Row) error {
		nulls := 0
		for _, i := range idx {
			if r[i] == nil {
				nulls++
			}
		}
		drop := nulls > 0
		if op.Mode == pipeline.All {
			drop = nulls == len(idx)
		}
		if !drop {
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table.New(t.Schema(), out)
}

// fillValue converts v for a column of type t. Strings fill dates only when
// they parse; otherwise the value's type must be compatible with t.
func fillValue(v interface{}, t schema.Type) (interface{}, bool) {
	vt, ok := schema.TypeOf(v)
	if !ok {
		return nil, false
	}
	if !schema.Compatible(vt, t) && !(t.Kind == schema.Date && vt.Kind == schema.String) {
		return nil, false
	}
	c, err := schema.Coerce(v, t)
	if err != nil {
		return nil, false
	}
	return c, true
}

func applyFillNulls(t *table.Table, op pipeline.FillNulls) (*table.Table, error) {
	value := schema.Normalize(op.Value)
	if value == nil {
		return nil, errors.InvalidPlanError{Op: "fillNulls", Reason: "fill value must not be null"}
	}
	s := t.Schema()
	idx, err := subsetIndices(s, op.Subset)
	if err != nil {
		return nil, err
	}
	fills := make(map[int]interface{}, len(idx))
	for _, i := range idx {
		f := s.Field(i)
		c, ok := fillValue(value, f.Type)
		if !ok {
			if len(op.Subset) > 0 {
				vt, _ := schema.TypeOf(value)
				return nil, errors.TypeMismatchError{Column: f.Name, Expected: f.Type.String(), Actual: fmt.Sprintf("fill value of type %s", vt)}
			}
			continue
		}
		fills[i] = c
	}
	var out []table.Row
	err = t.Each(func(_ int, r table.Row) error {
		row := r.Clone()
		for i, c := range fills {
			if row[i] == nil {
				row[i] = c
			}
		}
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table.New(s, out)
}
