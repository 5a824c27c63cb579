package eval

import (
	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

func applyDedupe(t *table.Table, op pipeline.Dedupe) (*table.Table, error) {
	idx, err := subsetIndices(t.Schema(), op.Subset)
	if err != nil {
		return nil, err
	}
	g := newGrouper()
	var out []table.Row
	err = t.Each(func(_ int, r table.Row) error {
		if _, created := g.id(pick(r, idx)); created {
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table.New(t.Schema(), out)
}

func applyUnion(t *table.Table, op pipeline.Union) (*table.Table, error) {
	if op.Other == nil {
		return nil, errors.InvalidPlanError{Op: "union", Reason: "other table is nil"}
	}
	left, right := t.Schema(), op.Other.Schema()
	if left.Len() != right.Len() {
		return nil, errors.SchemaMismatchError{Left: left.Names(), Right: right.Names()}
	}

	// mapping[i] is the position in the other table feeding output column i
	mapping := make([]int, left.Len())
	for i := range mapping {
		mapping[i] = i
		if op.ByName {
			j, ok := right.Index(left.Field(i).Name)
			if !ok {
				return nil, errors.SchemaMismatchError{Left: left.Names(), Right: right.Names()}
			}
			mapping[i] = j
		}
	}

	fields := left.Fields()
	for i := range fields {
		rf := right.Field(mapping[i])
		if !schema.Compatible(fields[i].Type, rf.Type) {
			return nil, errors.TypeMismatchError{Column: fields[i].Name, Expected: fields[i].Type.String(), Actual: rf.Type.String()}
		}
		fields[i].Type = schema.Widen(fields[i].Type, rf.Type)
		fields[i].Nullable = fields[i].Nullable || rf.Nullable
	}
	out, err := schema.New(fields...)
	if err != nil {
		return nil, err
	}

	rows, err := t.Rows()
	if err != nil {
		return nil, err
	}
	err = op.Other.Each(func(_ int, r table.Row) error {
		rows = append(rows, table.Row(pick(r, mapping)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		for i, v := range r {
			c, err := schema.Coerce(v, fields[i].Type)
			if err != nil {
				return nil, err
			}
			r[i] = c
		}
	}
	return table.New(out, rows)
}
