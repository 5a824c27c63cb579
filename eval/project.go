package eval

import (
	"fmt"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/expr"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

func applySelect(t *table.Table, op pipeline.Select) (*table.Table, error) {
	s, err := t.Schema().Project(op.Columns...)
	if err != nil {
		return nil, err
	}
	idx, err := t.Schema().Indices(op.Columns)
	if err != nil {
		return nil, err
	}
	var out []table.Row
	err = t.Each(func(_ int, r table.Row) error {
		out = append(out, table.Row(pick(r, idx)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table.New(s, out)
}

func applyProject(t *table.Table, op pipeline.Project) (*table.Table, error) {
	if len(op.Items) == 0 {
		return nil, errors.InvalidPlanError{Op: "project", Reason: "no output columns"}
	}
	fields := make([]schema.Field, len(op.Items))
	bound := make([]expr.Bound, len(op.Items))
	for i, item := range op.Items {
		b, err := item.Expr.Bind(t.Schema())
		if err != nil {
			return nil, err
		}
		name := item.Name
		if name == "" {
			name = item.Expr.String()
		}
		fields[i] = schema.Field{Name: name, Type: b.Type(), Nullable: b.Nullable()}
		bound[i] = b
	}
	s, err := schema.New(fields...)
	if err != nil {
		return nil, err
	}
	var out []table.Row
	err = t.Each(func(_ int, r table.Row) error {
		row := make(table.Row, len(bound))
		for i, b := range bound {
			v, err := b.Eval(r)
			if err != nil {
				return err
			}
			row[i] = v
		}
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table.New(s, out)
}

func applyFilter(t *table.Table, op pipeline.Filter) (*table.Table, error) {
	b, err := op.Predicate.Bind(t.Schema())
	if err != nil {
		return nil, err
	}
	if b.Type().Kind != schema.Bool {
		return nil, errors.TypeMismatchError{Column: op.Predicate.String(), Expected: "boolean", Actual: b.Type().String()}
	}
	var out []table.Row
	err = t.Each(func(_ int, r table.Row) error {
		v, err := b.Eval(r)
		if err != nil {
			return err
		}
		if expr.Truthy(v) {
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table.New(t.Schema(), out)
}

func applyWithColumn(t *table.Table, op pipeline.WithColumn) (*table.Table, error) {
	if op.Column == "" {
		return nil, errors.SchemaError{Reason: "withColumn needs a column name"}
	}
	b, err := op.Expr.Bind(t.Schema())
	if err != nil {
		return nil, err
	}
	s, pos := t.Schema().With(schema.Field{Name: op.Column, Type: b.Type(), Nullable: b.Nullable()})
	var out []table.Row
	err = t.Each(func(_ int, r table.Row) error {
		v, err := b.Eval(r)
		if err != nil {
			return err
		}
		row := make(table.Row, s.Len())
		copy(row, r)
		row[pos] = v
		out = append(out, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return table.New(s, out)
}

func applyDrop(t *table.Table, op pipeline.Drop) (*table.Table, error) {
	s := t.Schema().Drop(op.Columns...)
	if s.Len() == t.Schema().Len() {
		return t, nil
	}
	if s.Len() == 0 {
		return nil, errors.SchemaError{Reason: "drop would remove every column"}
	}
	return applySelect(t, pipeline.Select{Columns: s.Names()})
}

func applyRename(t *table.Table, op pipeline.Rename) (*table.Table, error) {
	if op.To == "" {
		return nil, errors.SchemaError{Reason: fmt.Sprintf("cannot rename %q to an empty name", op.From)}
	}
	s, err := t.Schema().Rename(op.From, op.To)
	if err != nil {
		return nil, err
	}
	rows, err := t.Rows()
	if err != nil {
		return nil, err
	}
	return table.New(s, rows)
}

func applyLimit(t *table.Table, op pipeline.Limit) (*table.Table, error) {
	if op.Offset < 0 {
		return nil, errors.InvalidPlanError{Op: "limit", Reason: "offset must be non-negative"}
	}
	rows, err := t.Rows()
	if err != nil {
		return nil, err
	}
	if op.Offset >= len(rows) {
		rows = nil
	} else {
		rows = rows[op.Offset:]
	}
	if op.N >= 0 && op.N < len(rows) {
		rows = rows[:op.N]
	}
	return table.New(t.Schema(), rows)
}
