// Package expr provides column expressions evaluated per row.
//
// An Expr is an unresolved description such as Col("price").Mul(Lit(2)).
// Binding it against a schema resolves column positions and the result type
// once, producing a Bound that is then evaluated for every row:
//
//	b, err := expr.Gt(expr.Col("age"), expr.Lit(30)).Bind(s)
//	if err != nil {
//	    return err
//	}
//	v, err := b.Eval(row) // true, false or nil
//
// Comparisons follow SQL null semantics: any comparison with null yields null,
// and filters treat null as false.
package expr

import (
	"fmt"

	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// Expr is an unbound expression
type Expr interface {
	// Bind resolves the expression against a schema
	Bind(s *schema.Schema) (Bound, error)
	// String renders the expression, used to name derived columns
	String() string
}

// Bound is an expression resolved against a schema
type Bound interface {
	// Type returns the result type
	Type() schema.Type
	// Nullable reports whether Eval may return nil
	Nullable() bool
	// Eval evaluates the expression for one row
	Eval(row table.Row) (interface{}, error)
}

// Truthy reports whether a predicate result counts as true. Null is false.
func Truthy(v interface{}) bool {
	b, ok := v.(bool)
	return ok && b
}

type column struct{ name string }

// Col references a column by name
func Col(name string) Expr {
	return column{name: name}
}

// ColumnName returns the referenced name when e is a plain column reference
func ColumnName(e Expr) (string, bool) {
	c, ok := e.(column)
	return c.name, ok
}

func (c column) String() string { return c.name }

func (c column) Bind(s *schema.Schema) (Bound, error) {
	idx, f, err := s.Lookup(c.name)
	if err != nil {
		return nil, err
	}
	return boundColumn{idx: idx, field: f}, nil
}

type boundColumn struct {
	idx   int
	field schema.Field
}

func (b boundColumn) Type() schema.Type { return b.field.Type }
func (b boundColumn) Nullable() bool    { return b.field.Nullable }

func (b boundColumn) Eval(row table.Row) (interface{}, error) {
	return row[b.idx], nil
}

type literal struct {
	value interface{}
	typ   schema.Type
}

// Lit creates a constant. Go numeric kinds are normalized; nil is the SQL
// null literal.
func Lit(v interface{}) Expr {
	v = schema.Normalize(v)
	t, ok := schema.TypeOf(v)
	if !ok {
		t = schema.StringType
		if v != nil {
			v = fmt.Sprintf("%v", v)
		}
	}
	return literal{value: v, typ: t}
}

// Null is the SQL null literal
func Null() Expr {
	return Lit(nil)
}

func (l literal) String() string {
	switch v := l.value.(type) {
	case nil:
		return "NULL"
	case string:
		return fmt.Sprintf("'%s'", v)
	default:
		return schema.FormatScalar(v)
	}
}

func (l literal) Bind(*schema.Schema) (Bound, error) {
	return boundLiteral(l), nil
}

type boundLiteral literal

func (b boundLiteral) Type() schema.Type { return b.typ }
func (b boundLiteral) Nullable() bool    { return b.value == nil }

func (b boundLiteral) Eval(table.Row) (interface{}, error) {
	return b.value, nil
}

// isNullLiteral reports whether b is the bare null literal, which adopts the
// type of whatever it is combined with
func isNullLiteral(b Bound) bool {
	l, ok := b.(boundLiteral)
	return ok && l.value == nil
}

// bindAll binds several expressions against the same schema
func bindAll(s *schema.Schema, exprs []Expr) ([]Bound, error) {
	out := make([]Bound, len(exprs))
	for i, e := range exprs {
		b, err := e.Bind(s)
		if err != nil {
			return nil, err
		}
		out[i] = b
	}
	return out, nil
}
