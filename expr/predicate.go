package expr

import (
	"fmt"
	"strings"
	"time"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// CompareOp is a comparison operator
type CompareOp int

const (
	OpEq CompareOp = iota
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
)

var compareSymbols = map[CompareOp]string{
	OpEq: "=",
	OpNe: "!=",
	OpLt: "<",
	OpLe: "<=",
	OpGt: ">",
	OpGe: ">=",
}

type comparison struct {
	op          CompareOp
	left, right Expr
}

// Compare builds a comparison with the given operator
func Compare(op CompareOp, l, r Expr) Expr { return comparison{op: op, left: l, right: r} }

// Eq returns l = r
func Eq(l, r Expr) Expr { return Compare(OpEq, l, r) }

// Ne returns l != r
func Ne(l, r Expr) Expr { return Compare(OpNe, l, r) }

// Lt returns l < r
func Lt(l, r Expr) Expr { return Compare(OpLt, l, r) }

// Le returns l <= r
func Le(l, r Expr) Expr { return Compare(OpLe, l, r) }

// Gt returns l > r
func Gt(l, r Expr) Expr { return Compare(OpGt, l, r) }

// Ge returns l >= r
func Ge(l, r Expr) Expr { return Compare(OpGe, l, r) }

func (c comparison) String() string {
	return fmt.Sprintf("(%s %s %s)", c.left, compareSymbols[c.op], c.right)
}

func (c comparison) Bind(s *schema.Schema) (Bound, error) {
	l, err := c.left.Bind(s)
	if err != nil {
		return nil, err
	}
	r, err := c.right.Bind(s)
	if err != nil {
		return nil, err
	}
	if err := checkComparable(c.String(), l, r); err != nil {
		return nil, err
	}
	return boundComparison{op: c.op, left: l, right: r}, nil
}

// checkComparable accepts compatible types, a null literal on either side, and
// dates compared with strings (parsed as YYYY-MM-DD)
func checkComparable(name string, l, r Bound) error {
	if isNullLiteral(l) || isNullLiteral(r) {
		return nil
	}
	lt, rt := l.Type(), r.Type()
	if schema.Compatible(lt, rt) {
		return nil
	}
	if (lt.Kind == schema.Date && rt.Kind == schema.String) || (lt.Kind == schema.String && rt.Kind == schema.Date) {
		return nil
	}
	return errors.TypeMismatchError{Column: name, Expected: lt.String(), Actual: rt.String()}
}

type boundComparison struct {
	op          CompareOp
	left, right Bound
}

func (b boundComparison) Type() schema.Type { return schema.BoolType }
func (b boundComparison) Nullable() bool    { return true }

func (b boundComparison) Eval(row table.Row) (interface{}, error) {
	lv, err := b.left.Eval(row)
	if err != nil || lv == nil {
		return nil, err
	}
	rv, err := b.right.Eval(row)
	if err != nil || rv == nil {
		return nil, err
	}
	lv, rv, ok := alignDates(lv, rv)
	if !ok {
		return nil, nil
	}

	c := table.Compare(lv, rv)
	switch b.op {
	case OpEq:
		return c == 0, nil
	case OpNe:
		return c != 0, nil
	case OpLt:
		return c < 0, nil
	case OpLe:
		return c <= 0, nil
	case OpGt:
		return c > 0, nil
	case OpGe:
		return c >= 0, nil
	}
	return nil, fmt.Errorf("unknown comparison operator %d", b.op)
}

// alignDates parses the string side of a date/string comparison. ok is false
// when the string is not a valid date.
func alignDates(a, b interface{}) (interface{}, interface{}, bool) {
	_, aDate := a.(time.Time)
	_, bDate := b.(time.Time)
	if aDate == bDate {
		return a, b, true
	}
	if s, isStr := a.(string); isStr && bDate {
		d, err := schema.ParseDate(s)
		return d, b, err == nil
	}
	if s, isStr := b.(string); isStr && aDate {
		d, err := schema.ParseDate(s)
		return a, d, err == nil
	}
	return a, b, true
}

type logical struct {
	and         bool
	left, right Expr
}

// And is the three-valued conjunction: false wins over null
func And(l, r Expr) Expr { return logical{and: true, left: l, right: r} }

// Or is the three-valued disjunction: true wins over null
func Or(l, r Expr) Expr { return logical{and: false, left: l, right: r} }

func (g logical) String() string {
	op := "OR"
	if g.and {
		op = "AND"
	}
	return fmt.Sprintf("(%s %s %s)", g.left, op, g.right)
}

func (g logical) Bind(s *schema.Schema) (Bound, error) {
	l, err := bindBool(s, g.left)
	if err != nil {
		return nil, err
	}
	r, err := bindBool(s, g.right)
	if err != nil {
		return nil, err
	}
	return boundLogical{and: g.and, left: l, right: r}, nil
}

func bindBool(s *schema.Schema, e Expr) (Bound, error) {
	b, err := e.Bind(s)
	if err != nil {
		return nil, err
	}
	if b.Type().Kind != schema.Bool && !isNullLiteral(b) {
		return nil, errors.TypeMismatchError{Column: e.String(), Expected: "bool", Actual: b.Type().String()}
	}
	return b, nil
}

type boundLogical struct {
	and         bool
	left, right Bound
}

func (b boundLogical) Type() schema.Type { return schema.BoolType }
func (b boundLogical) Nullable() bool    { return b.left.Nullable() || b.right.Nullable() }

func (b boundLogical) Eval(row table.Row) (interface{}, error) {
	lv, err := b.left.Eval(row)
	if err != nil {
		return nil, err
	}
	// short circuit on the dominant value
	if lb, ok := lv.(bool); ok && lb != b.and {
		return lb, nil
	}
	rv, err := b.right.Eval(row)
	if err != nil {
		return nil, err
	}
	if rb, ok := rv.(bool); ok && rb != b.and {
		return rb, nil
	}
	if lv == nil || rv == nil {
		return nil, nil
	}
	return b.and, nil
}

type not struct{ e Expr }

// Not negates a boolean; null stays null
func Not(e Expr) Expr { return not{e: e} }

func (n not) String() string { return "NOT " + n.e.String() }

func (n not) Bind(s *schema.Schema) (Bound, error) {
	b, err := bindBool(s, n.e)
	if err != nil {
		return nil, err
	}
	return boundNot{b}, nil
}

type boundNot struct{ Bound }

func (b boundNot) Type() schema.Type { return schema.BoolType }

func (b boundNot) Eval(row table.Row) (interface{}, error) {
	v, err := b.Bound.Eval(row)
	if err != nil || v == nil {
		return nil, err
	}
	return !v.(bool), nil
}

type isNull struct {
	e      Expr
	negate bool
}

// IsNull reports whether e is null. It never returns null itself.
func IsNull(e Expr) Expr { return isNull{e: e} }

// IsNotNull reports whether e is not null
func IsNotNull(e Expr) Expr { return isNull{e: e, negate: true} }

func (n isNull) String() string {
	if n.negate {
		return n.e.String() + " IS NOT NULL"
	}
	return n.e.String() + " IS NULL"
}

func (n isNull) Bind(s *schema.Schema) (Bound, error) {
	b, err := n.e.Bind(s)
	if err != nil {
		return nil, err
	}
	return boundIsNull{inner: b, negate: n.negate}, nil
}

type boundIsNull struct {
	inner  Bound
	negate bool
}

func (b boundIsNull) Type() schema.Type { return schema.BoolType }
func (b boundIsNull) Nullable() bool    { return false }

func (b boundIsNull) Eval(row table.Row) (interface{}, error) {
	v, err := b.inner.Eval(row)
	if err != nil {
		return nil, err
	}
	return (v == nil) != b.negate, nil
}

type in struct {
	e      Expr
	list   []Expr
	negate bool
}

// In reports whether e equals any of the listed values
func In(e Expr, list ...Expr) Expr { return in{e: e, list: list} }

// NotIn is the negation of In, with the same null behavior
func NotIn(e Expr, list ...Expr) Expr { return in{e: e, list: list, negate: true} }

func (n in) String() string {
	parts := make([]string, len(n.list))
	for i, e := range n.list {
		parts[i] = e.String()
	}
	op := " IN "
	if n.negate {
		op = " NOT IN "
	}
	return n.e.String() + op + "(" + strings.Join(parts, ", ") + ")"
}

func (n in) Bind(s *schema.Schema) (Bound, error) {
	b, err := n.e.Bind(s)
	if err != nil {
		return nil, err
	}
	list, err := bindAll(s, n.list)
	if err != nil {
		return nil, err
	}
	for _, item := range list {
		if err := checkComparable(n.String(), b, item); err != nil {
			return nil, err
		}
	}
	return boundIn{inner: b, list: list, negate: n.negate}, nil
}

type boundIn struct {
	inner  Bound
	list   []Bound
	negate bool
}

func (b boundIn) Type() schema.Type { return schema.BoolType }
func (b boundIn) Nullable() bool    { return true }

func (b boundIn) Eval(row table.Row) (interface{}, error) {
	v, err := b.inner.Eval(row)
	if err != nil || v == nil {
		return nil, err
	}
	sawNull := false
	for _, item := range b.list {
		iv, err := item.Eval(row)
		if err != nil {
			return nil, err
		}
		if iv == nil {
			sawNull = true
			continue
		}
		x, y, ok := alignDates(v, iv)
		if ok && table.Compare(x, y) == 0 {
			return !b.negate, nil
		}
	}
	if sawNull {
		return nil, nil
	}
	return b.negate, nil
}

type like struct {
	e       Expr
	pattern string
	negate  bool
}

// Like matches a string against a SQL pattern: % matches any run of
// characters, _ matches exactly one
func Like(e Expr, pattern string) Expr { return like{e: e, pattern: pattern} }

// NotLike is the negation of Like
func NotLike(e Expr, pattern string) Expr { return like{e: e, pattern: pattern, negate: true} }

func (l like) String() string {
	op := " LIKE "
	if l.negate {
		op = " NOT LIKE "
	}
	return l.e.String() + op + "'" + l.pattern + "'"
}

func (l like) Bind(s *schema.Schema) (Bound, error) {
	b, err := l.e.Bind(s)
	if err != nil {
		return nil, err
	}
	if b.Type().Kind != schema.String && !isNullLiteral(b) {
		return nil, errors.TypeMismatchError{Column: l.e.String(), Expected: "string", Actual: b.Type().String()}
	}
	return boundLike{inner: b, pattern: []rune(l.pattern), negate: l.negate}, nil
}

type boundLike struct {
	inner   Bound
	pattern []rune
	negate  bool
}

func (b boundLike) Type() schema.Type { return schema.BoolType }
func (b boundLike) Nullable() bool    { return b.inner.Nullable() }

func (b boundLike) Eval(row table.Row) (interface{}, error) {
	v, err := b.inner.Eval(row)
	if err != nil || v == nil {
		return nil, err
	}
	return matchLike([]rune(v.(string)), b.pattern) != b.negate, nil
}

// matchLike matches str against a LIKE pattern, backtracking to the most
// recent % on mismatch
func matchLike(str, pat []rune) bool {
	si, pi := 0, 0
	star, mark := -1, 0
	for si < len(str) {
		switch {
		case pi < len(pat) && (pat[pi] == '_' || pat[pi] == str[si]):
			si++
			pi++
		case pi < len(pat) && pat[pi] == '%':
			star, mark = pi, si
			pi++
		case star >= 0:
			pi = star + 1
			mark++
			si = mark
		default:
			return false
		}
	}
	for pi < len(pat) && pat[pi] == '%' {
		pi++
	}
	return pi == len(pat)
}

// Between returns lo <= e AND e <= hi
func Between(e, lo, hi Expr) Expr {
	return And(Ge(e, lo), Le(e, hi))
}
