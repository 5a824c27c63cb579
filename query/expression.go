package query

import (
	"fmt"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/expr"
)

// ParseExpr parses a scalar SQL expression, such as a WHERE predicate, into
// an expression over unqualified column names. Aggregate and window calls
// are rejected.
func ParseExpr(s string) (expr.Expr, error) {
	tokens, err := DefaultLimits.lex(s)
	if err != nil {
		return nil, err
	}

	p := NewParser(tokens)
	n, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	switch tok := p.current(); tok.Type {
	case TokenEOF:
	case TokenError:
		return nil, fmt.Errorf("invalid character in expression: %s", tok.Value)
	default:
		return nil, fmt.Errorf("unexpected trailing tokens after expression: %s", tok.Value)
	}

	if hasAggregate(n) || hasWindow(n) {
		return nil, errors.InvalidPlanError{Op: "expression", Reason: fmt.Sprintf("%s: aggregate and window functions need a query", n)}
	}
	b := &builder{
		qualifiers: map[string]bool{},
		renamed:    map[string]string{},
		subs:       map[string]string{},
		windows:    map[*WindowCall]string{},
		hidden:     map[string]bool{},
	}
	return b.toExpr(n)
}
