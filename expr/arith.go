package expr

import (
	"fmt"
	"math"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

type arithOp int

const (
	opAdd arithOp = iota
	opSub
	opMul
	opDiv
	opMod
)

var arithSymbols = map[arithOp]string{
	opAdd: "+",
	opSub: "-",
	opMul: "*",
	opDiv: "/",
	opMod: "%",
}

type arith struct {
	op          arithOp
	left, right Expr
}

// Add returns l + r
func Add(l, r Expr) Expr { return arith{op: opAdd, left: l, right: r} }

// Sub returns l - r
func Sub(l, r Expr) Expr { return arith{op: opSub, left: l, right: r} }

// Mul returns l * r
func Mul(l, r Expr) Expr { return arith{op: opMul, left: l, right: r} }

// Div returns l / r as float64. Division by zero yields null.
func Div(l, r Expr) Expr { return arith{op: opDiv, left: l, right: r} }

// Mod returns the remainder of l / r. A zero divisor yields null.
func Mod(l, r Expr) Expr { return arith{op: opMod, left: l, right: r} }

func (a arith) String() string {
	return fmt.Sprintf("(%s %s %s)", a.left, arithSymbols[a.op], a.right)
}

func (a arith) Bind(s *schema.Schema) (Bound, error) {
	l, err := a.left.Bind(s)
	if err != nil {
		return nil, err
	}
	r, err := a.right.Bind(s)
	if err != nil {
		return nil, err
	}

	lt, rt := l.Type(), r.Type()
	if isNullLiteral(l) {
		lt = rt
	}
	if isNullLiteral(r) {
		rt = lt
	}
	if isNullLiteral(l) && isNullLiteral(r) {
		lt, rt = schema.Float64Type, schema.Float64Type
	}
	for _, t := range []schema.Type{lt, rt} {
		if !t.IsNumeric() {
			return nil, errors.TypeMismatchError{Column: a.String(), Expected: "numeric", Actual: t.String()}
		}
	}

	out := schema.Float64Type
	if lt.Kind == schema.Int64 && rt.Kind == schema.Int64 && a.op != opDiv {
		out = schema.Int64Type
	}
	nullable := l.Nullable() || r.Nullable() || a.op == opDiv || a.op == opMod
	return boundArith{op: a.op, left: l, right: r, typ: out, nullable: nullable}, nil
}

type boundArith struct {
	op          arithOp
	left, right Bound
	typ         schema.Type
	nullable    bool
}

func (b boundArith) Type() schema.Type { return b.typ }
func (b boundArith) Nullable() bool    { return b.nullable }

func (b boundArith) Eval(row table.Row) (interface{}, error) {
	lv, err := b.left.Eval(row)
	if err != nil || lv == nil {
		return nil, err
	}
	rv, err := b.right.Eval(row)
	if err != nil || rv == nil {
		return nil, err
	}

	if b.typ.Kind == schema.Int64 {
		x, y := lv.(int64), rv.(int64)
		switch b.op {
		case opAdd:
			return x + y, nil
		case opSub:
			return x - y, nil
		case opMul:
			return x * y, nil
		case opMod:
			if y == 0 {
				return nil, nil
			}
			return x % y, nil
		}
	}

	x, _ := toFloat(lv)
	y, _ := toFloat(rv)
	switch b.op {
	case opAdd:
		return x + y, nil
	case opSub:
		return x - y, nil
	case opMul:
		return x * y, nil
	case opDiv:
		if y == 0 {
			return nil, nil
		}
		return x / y, nil
	case opMod:
		if y == 0 {
			return nil, nil
		}
		return math.Mod(x, y), nil
	}
	return nil, fmt.Errorf("unknown arithmetic operator %d", b.op)
}

type neg struct{ e Expr }

// Neg returns -e
func Neg(e Expr) Expr { return neg{e: e} }

func (n neg) String() string { return "-" + n.e.String() }

func (n neg) Bind(s *schema.Schema) (Bound, error) {
	b, err := n.e.Bind(s)
	if err != nil {
		return nil, err
	}
	if !b.Type().IsNumeric() {
		return nil, errors.TypeMismatchError{Column: n.String(), Expected: "numeric", Actual: b.Type().String()}
	}
	return boundNeg{b}, nil
}

type boundNeg struct{ Bound }

func (b boundNeg) Eval(row table.Row) (interface{}, error) {
	v, err := b.Bound.Eval(row)
	if err != nil || v == nil {
		return nil, err
	}
	switch n := v.(type) {
	case int64:
		return -n, nil
	case float64:
		return -n, nil
	}
	return nil, errors.TypeMismatchError{Expected: "numeric", Actual: fmt.Sprintf("%T", v)}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
