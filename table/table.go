// Package table provides the immutable Table: a schema plus an ordered
// sequence of rows, either held in memory or produced lazily on first access.
//
// Tables never change after construction. Accessors hand out copies, so a
// Table can be shared between goroutines and evaluators without locking.
package table

import (
	"fmt"
	"sync"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
)

// Row is a positional sequence of values matching a schema
type Row []interface{}

// Clone returns a shallow copy of the row
func (r Row) Clone() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// Producer emits rows one at a time. Returning an error from emit stops
// production and the error is propagated.
type Producer func(emit func(Row) error) error

// Table is an immutable relation
type Table struct {
	schema *schema.Schema

	once     sync.Once
	producer Producer
	rows     []Row
	err      error
}

// New creates a table from in-memory rows. Every row is copied and checked
// against the schema: arity, value types and nullability. Go numeric kinds are
// normalized, and int64 values are accepted into float64 columns.
func New(s *schema.Schema, rows []Row) (*Table, error) {
	checked := make([]Row, len(rows))
	for i, row := range rows {
		r, err := conformRow(s, row, i)
		if err != nil {
			return nil, err
		}
		checked[i] = r
	}
	return &Table{schema: s, rows: checked}, nil
}

// MustNew is New that panics on error
func MustNew(s *schema.Schema, rows []Row) *Table {
	t, err := New(s, rows)
	if err != nil {
		panic(err)
	}
	return t
}

// Empty returns a table with no rows
func Empty(s *schema.Schema) *Table {
	return MustNew(s, nil)
}

// FromProducer creates a lazy table. The producer runs at most once, on the
// first call that needs rows; its rows are validated like New's.
func FromProducer(s *schema.Schema, p Producer) *Table {
	return &Table{schema: s, producer: p}
}

// FromMaps creates a table from rows keyed by column name. Missing keys
// become nulls; keys not in the schema are rejected.
func FromMaps(s *schema.Schema, records []map[string]interface{}) (*Table, error) {
	rows := make([]Row, len(records))
	for i, rec := range records {
		row := make(Row, s.Len())
		for k, v := range rec {
			idx, _, err := s.Lookup(k)
			if err != nil {
				return nil, err
			}
			row[idx] = v
		}
		rows[i] = row
	}
	return New(s, rows)
}

func (t *Table) materialize() {
	t.once.Do(func() {
		if t.producer == nil {
			return
		}
		var rows []Row
		err := t.producer(func(r Row) error {
			checked, err := conformRow(t.schema, r, len(rows))
			if err != nil {
				return err
			}
			rows = append(rows, checked)
			return nil
		})
		if err != nil {
			t.err = err
			return
		}
		t.rows = rows
		t.producer = nil
	})
}

// Schema returns the table schema
func (t *Table) Schema() *schema.Schema {
	return t.schema
}

// Err materializes the table and returns the production error, if any
func (t *Table) Err() error {
	t.materialize()
	return t.err
}

// Rows returns copies of all rows
func (t *Table) Rows() ([]Row, error) {
	t.materialize()
	if t.err != nil {
		return nil, t.err
	}
	out := make([]Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Clone()
	}
	return out, nil
}

// Each calls fn for every row without copying the row slice. fn must not
// modify the row.
func (t *Table) Each(fn func(i int, r Row) error) error {
	t.materialize()
	if t.err != nil {
		return t.err
	}
	for i, r := range t.rows {
		if err := fn(i, r); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of rows
func (t *Table) Len() (int, error) {
	t.materialize()
	if t.err != nil {
		return 0, t.err
	}
	return len(t.rows), nil
}

// Column returns the values of one column
func (t *Table) Column(name string) ([]interface{}, error) {
	idx, _, err := t.schema.Lookup(name)
	if err != nil {
		return nil, err
	}
	t.materialize()
	if t.err != nil {
		return nil, t.err
	}
	out := make([]interface{}, len(t.rows))
	for i, r := range t.rows {
		out[i] = r[idx]
	}
	return out, nil
}

// Head returns a table with at most n leading rows
func (t *Table) Head(n int) (*Table, error) {
	rows, err := t.Rows()
	if err != nil {
		return nil, err
	}
	if n >= 0 && n < len(rows) {
		rows = rows[:n]
	}
	return &Table{schema: t.schema, rows: rows}, nil
}

func conformRow(s *schema.Schema, row Row, idx int) (Row, error) {
	if len(row) != s.Len() {
		return nil, errors.SchemaError{Reason: fmt.Sprintf("row %d has %d values, schema has %d columns", idx, len(row), s.Len())}
	}
	out := make(Row, len(row))
	for i, v := range row {
		f := s.Field(i)
		v = schema.Normalize(v)
		if v == nil {
			if !f.Nullable {
				return nil, errors.TypeMismatchError{Column: f.Name, Expected: f.Type.String() + " not null", Actual: "null"}
			}
			continue
		}
		c, ok := conformValue(v, f.Type)
		if !ok {
			actual := fmt.Sprintf("%T", v)
			if vt, known := schema.TypeOf(v); known {
				actual = vt.String()
			}
			return nil, errors.TypeMismatchError{Column: f.Name, Expected: f.Type.String(), Actual: actual}
		}
		out[i] = c
	}
	return out, nil
}

func conformValue(v interface{}, t schema.Type) (interface{}, bool) {
	if t.Kind == schema.Float64 {
		if n, ok := v.(int64); ok {
			return float64(n), true
		}
	}
	if t.Kind == schema.Array {
		arr, ok := v.([]interface{})
		if !ok {
			return nil, false
		}
		elem := t.ElemType()
		out := make([]interface{}, len(arr))
		for i, e := range arr {
			if e == nil {
				continue
			}
			c, ok := conformValue(e, elem)
			if !ok {
				return nil, false
			}
			out[i] = c
		}
		return out, true
	}
	if !schema.Conforms(v, t) {
		return nil, false
	}
	return v, true
}
