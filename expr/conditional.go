package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

type branch struct {
	cond, value Expr
}

// CaseExpr is a chain of WHEN branches with an optional fallback. The first
// branch whose condition is true supplies the value; without a match the
// fallback is used, or null when there is none.
type CaseExpr struct {
	branches  []branch
	otherwise Expr
}

// When starts a conditional expression
func When(cond, value Expr) *CaseExpr {
	return &CaseExpr{branches: []branch{{cond: cond, value: value}}}
}

// When appends a branch and returns a new CaseExpr
func (c *CaseExpr) When(cond, value Expr) *CaseExpr {
	branches := append(append([]branch(nil), c.branches...), branch{cond: cond, value: value})
	return &CaseExpr{branches: branches, otherwise: c.otherwise}
}

// Otherwise sets the fallback value and returns a new CaseExpr
func (c *CaseExpr) Otherwise(value Expr) *CaseExpr {
	return &CaseExpr{branches: c.branches, otherwise: value}
}

func (c *CaseExpr) String() string {
	var sb strings.Builder
	sb.WriteString("CASE")
	for _, b := range c.branches {
		fmt.Fprintf(&sb, " WHEN %s THEN %s", b.cond, b.value)
	}
	if c.otherwise != nil {
		fmt.Fprintf(&sb, " ELSE %s", c.otherwise)
	}
	sb.WriteString(" END")
	return sb.String()
}

func (c *CaseExpr) Bind(s *schema.Schema) (Bound, error) {
	out := &boundCase{}
	var values []Bound
	for _, br := range c.branches {
		cond, err := bindBool(s, br.cond)
		if err != nil {
			return nil, err
		}
		val, err := br.value.Bind(s)
		if err != nil {
			return nil, err
		}
		out.conds = append(out.conds, cond)
		values = append(values, val)
	}
	if c.otherwise != nil {
		val, err := c.otherwise.Bind(s)
		if err != nil {
			return nil, err
		}
		out.otherwise = val
		values = append(values, val)
	} else {
		out.nullable = true
	}

	typ, nullable, err := commonType(c.String(), values)
	if err != nil {
		return nil, err
	}
	out.values = values[:len(c.branches)]
	out.typ = typ
	out.nullable = out.nullable || nullable
	return out, nil
}

// commonType widens the result types of several expressions, ignoring null
// literals. Incompatible types are rejected.
func commonType(name string, values []Bound) (schema.Type, bool, error) {
	var typ schema.Type
	seen, nullable := false, false
	for _, v := range values {
		if v.Nullable() {
			nullable = true
		}
		if isNullLiteral(v) {
			continue
		}
		if !seen {
			typ, seen = v.Type(), true
			continue
		}
		if !schema.Compatible(typ, v.Type()) {
			return schema.Type{}, false, errors.TypeMismatchError{Column: name, Expected: typ.String(), Actual: v.Type().String()}
		}
		typ = schema.Widen(typ, v.Type())
	}
	if !seen {
		typ = schema.StringType
	}
	return typ, nullable, nil
}

type boundCase struct {
	conds     []Bound
	values    []Bound
	otherwise Bound
	typ       schema.Type
	nullable  bool
}

func (b *boundCase) Type() schema.Type { return b.typ }
func (b *boundCase) Nullable() bool    { return b.nullable }

func (b *boundCase) Eval(row table.Row) (interface{}, error) {
	for i, cond := range b.conds {
		cv, err := cond.Eval(row)
		if err != nil {
			return nil, err
		}
		if Truthy(cv) {
			return evalAs(b.values[i], row, b.typ)
		}
	}
	if b.otherwise == nil {
		return nil, nil
	}
	return evalAs(b.otherwise, row, b.typ)
}

// evalAs evaluates b and widens the result to t
func evalAs(b Bound, row table.Row, t schema.Type) (interface{}, error) {
	v, err := b.Eval(row)
	if err != nil || v == nil {
		return nil, err
	}
	return schema.Coerce(v, t)
}

type coalesce struct{ args []Expr }

// Coalesce returns the first non-null argument
func Coalesce(args ...Expr) Expr { return coalesce{args: args} }

func (c coalesce) String() string {
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = a.String()
	}
	return "coalesce(" + strings.Join(parts, ", ") + ")"
}

func (c coalesce) Bind(s *schema.Schema) (Bound, error) {
	if len(c.args) == 0 {
		return nil, errors.InvalidPlanError{Op: "coalesce", Reason: "requires at least one argument"}
	}
	args, err := bindAll(s, c.args)
	if err != nil {
		return nil, err
	}
	typ, _, err := commonType(c.String(), args)
	if err != nil {
		return nil, err
	}
	nullable := true
	for _, a := range args {
		if !a.Nullable() {
			nullable = false
		}
	}
	return boundCoalesce{args: args, typ: typ, nullable: nullable}, nil
}

type boundCoalesce struct {
	args     []Bound
	typ      schema.Type
	nullable bool
}

func (b boundCoalesce) Type() schema.Type { return b.typ }
func (b boundCoalesce) Nullable() bool    { return b.nullable }

func (b boundCoalesce) Eval(row table.Row) (interface{}, error) {
	for _, a := range b.args {
		v, err := a.Eval(row)
		if err != nil {
			return nil, err
		}
		if v != nil {
			return schema.Coerce(v, b.typ)
		}
	}
	return nil, nil
}

type cast struct {
	e   Expr
	typ schema.Type
}

// Cast converts e to t. Values that cannot be converted become null.
func Cast(e Expr, t schema.Type) Expr { return cast{e: e, typ: t} }

func (c cast) String() string {
	return fmt.Sprintf("CAST(%s AS %s)", c.e, c.typ)
}

func (c cast) Bind(s *schema.Schema) (Bound, error) {
	b, err := c.e.Bind(s)
	if err != nil {
		return nil, err
	}
	return boundCast{inner: b, typ: c.typ}, nil
}

type boundCast struct {
	inner Bound
	typ   schema.Type
}

func (b boundCast) Type() schema.Type { return b.typ }
func (b boundCast) Nullable() bool    { return true }

func (b boundCast) Eval(row table.Row) (interface{}, error) {
	v, err := b.inner.Eval(row)
	if err != nil || v == nil {
		return nil, err
	}
	return CastValue(v, b.typ), nil
}

// CastValue converts a value to t, returning nil when it cannot be converted
func CastValue(v interface{}, t schema.Type) interface{} {
	v = schema.Normalize(v)
	if v == nil {
		return nil
	}
	if schema.Conforms(v, t) {
		return v
	}
	switch t.Kind {
	case schema.String:
		if arr, ok := v.([]interface{}); ok {
			return schema.FormatArray(arr)
		}
		return schema.FormatScalar(v)
	case schema.Int64:
		switch n := v.(type) {
		case float64:
			if math.IsNaN(n) || math.IsInf(n, 0) {
				return nil
			}
			return int64(n)
		case bool:
			if n {
				return int64(1)
			}
			return int64(0)
		case string:
			s := strings.TrimSpace(n)
			if i, err := strconv.ParseInt(s, 10, 64); err == nil {
				return i
			}
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return int64(f)
			}
		}
	case schema.Float64:
		switch n := v.(type) {
		case int64:
			return float64(n)
		case bool:
			if n {
				return 1.0
			}
			return 0.0
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f
			}
		}
	case schema.Bool:
		switch n := v.(type) {
		case int64:
			return n != 0
		case float64:
			return n != 0
		case string:
			if b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(n))); err == nil {
				return b
			}
		}
	case schema.Date:
		if s, ok := v.(string); ok {
			if d, err := schema.ParseDate(s); err == nil {
				return d
			}
		}
	case schema.Array:
		if arr, ok := v.([]interface{}); ok {
			out := make([]interface{}, len(arr))
			for i, e := range arr {
				out[i] = CastValue(e, t.ElemType())
			}
			return out
		}
	}
	return nil
}
