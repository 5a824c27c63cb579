package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/schema"
)

// parseExpr parses a full expression (lowest precedence: OR)
func (p *Parser) parseExpr() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.parseOr()
}

// parseOr parses OR expressions
func (p *Parser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(TokenOr) {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: TokenOr, Left: left, Right: right}
	}
	return left, nil
}

// parseAnd parses AND expressions (higher precedence than OR)
func (p *Parser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.accept(TokenAnd) {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: TokenAnd, Left: left, Right: right}
	}
	return left, nil
}

func (p *Parser) parseNot() (Node, error) {
	if p.accept(TokenNot) {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: TokenNot, Operand: operand}, nil
	}
	return p.parsePredicate()
}

func isComparison(t TokenType) bool {
	switch t {
	case TokenEqual, TokenNotEqual, TokenLess, TokenGreater, TokenLessEqual, TokenGreaterEqual:
		return true
	}
	return false
}

// parsePredicate parses comparisons and the IN, LIKE, BETWEEN and IS NULL
// forms
func (p *Parser) parsePredicate() (Node, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	if op := p.current().Type; isComparison(op) {
		p.advance()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Op: op, Left: left, Right: right}, nil
	}

	negate := false
	if p.current().Type == TokenNot {
		switch p.peek().Type {
		case TokenIn, TokenLike, TokenBetween:
			negate = true
			p.advance()
		default:
			return nil, fmt.Errorf("expected IN, LIKE, or BETWEEN after NOT, got %v", p.peek().Type)
		}
	}

	switch p.current().Type {
	case TokenIn:
		p.advance()
		if err := p.expect(TokenLeftParen); err != nil {
			return nil, fmt.Errorf("expected ( after IN: %w", err)
		}
		if p.startsQuery() {
			sub, err := p.parseSubquery()
			if err != nil {
				return nil, err
			}
			return &InNode{Operand: left, Subquery: sub, Negate: negate}, nil
		}
		list, err := p.parseExprList()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRightParen); err != nil {
			return nil, err
		}
		return &InNode{Operand: left, List: list, Negate: negate}, nil
	case TokenLike:
		p.advance()
		if p.current().Type != TokenString {
			return nil, p.unexpected("pattern string after LIKE")
		}
		pattern := p.current().Value
		p.advance()
		return &LikeNode{Operand: left, Pattern: pattern, Negate: negate}, nil
	case TokenBetween:
		p.advance()
		lower, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenAnd); err != nil {
			return nil, fmt.Errorf("expected AND in BETWEEN: %w", err)
		}
		upper, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		return &BetweenNode{Operand: left, Lower: lower, Upper: upper, Negate: negate}, nil
	case TokenIs:
		p.advance()
		not := p.accept(TokenNot)
		if err := p.expect(TokenNull); err != nil {
			return nil, fmt.Errorf("expected NULL after IS: %w", err)
		}
		return &IsNullNode{Operand: left, Negate: not}, nil
	}
	return left, nil
}

// parseAdditive parses +, - and || (string concatenation)
func (p *Parser) parseAdditive() (Node, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		op := p.current().Type
		if op != TokenPlus && op != TokenMinus && op != TokenConcat {
			return left, nil
		}
		p.advance()
		right, err := p.parseMultiplicative()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
}

// parseMultiplicative parses *, / and %
func (p *Parser) parseMultiplicative() (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.current().Type
		if op != TokenStar && op != TokenSlash && op != TokenPercent {
			return left, nil
		}
		p.advance()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &BinaryOp{Op: op, Left: left, Right: right}
	}
}

// parseUnary parses a leading minus. Negated numeric literals are folded.
func (p *Parser) parseUnary() (Node, error) {
	if p.accept(TokenPlus) {
		return p.parseUnary()
	}
	if !p.accept(TokenMinus) {
		return p.parsePrimary()
	}
	operand, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if lit, ok := operand.(*Literal); ok {
		switch v := lit.Value.(type) {
		case int64:
			return &Literal{Value: -v}, nil
		case float64:
			return &Literal{Value: -v}, nil
		}
	}
	return &UnaryOp{Op: TokenMinus, Operand: operand}, nil
}

// parsePrimary parses literals, column references, function calls, CASE,
// CAST and parenthesized expressions
func (p *Parser) parsePrimary() (Node, error) {
	tok := p.current()
	switch tok.Type {
	case TokenNumber:
		p.advance()
		return parseNumber(tok.Value)
	case TokenString:
		p.advance()
		return &Literal{Value: tok.Value}, nil
	case TokenBool:
		p.advance()
		return &Literal{Value: strings.EqualFold(tok.Value, "true")}, nil
	case TokenNull:
		p.advance()
		return &Literal{Value: nil}, nil
	case TokenLeftParen:
		p.advance()
		if p.startsQuery() {
			sub, err := p.parseSubquery()
			if err != nil {
				return nil, err
			}
			return &SubqueryNode{Query: sub}, nil
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenRightParen); err != nil {
			return nil, fmt.Errorf("expected ) to close expression: %w", err)
		}
		return e, nil
	case TokenCase:
		return p.parseCaseExpression()
	case TokenCast:
		return p.parseCast()
	case TokenIdent, TokenLeft, TokenRight:
		p.advance()
		if p.current().Type == TokenLeftParen {
			return p.parseFunctionCall(tok.Value)
		}
		if tok.Type != TokenIdent {
			return nil, fmt.Errorf("unexpected keyword %s", tok.Value)
		}
		if strings.EqualFold(tok.Value, "date") && p.current().Type == TokenString {
			d, err := schema.ParseDate(p.current().Value)
			if err != nil {
				return nil, fmt.Errorf("invalid DATE literal %q", p.current().Value)
			}
			p.advance()
			return &Literal{Value: d}, nil
		}
		if err := p.limits.name("column", tok.Value); err != nil {
			return nil, err
		}
		return columnRef(tok.Value), nil
	}
	return nil, p.unexpected("expression")
}

func parseNumber(raw string) (Node, error) {
	if !strings.ContainsAny(raw, ".eE") {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return &Literal{Value: n}, nil
		}
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid number %q", raw)
	}
	return &Literal{Value: f}, nil
}

// columnRef splits a possibly qualified name at its first dot. Whether the
// prefix is really a table alias is decided when the query is planned.
func columnRef(name string) *ColumnRef {
	if i := strings.IndexByte(name, '.'); i > 0 && i < len(name)-1 {
		return &ColumnRef{Qualifier: name[:i], Column: name[i+1:]}
	}
	return &ColumnRef{Column: name}
}

// parseCaseExpression parses CASE WHEN c THEN v [...] [ELSE v] END
func (p *Parser) parseCaseExpression() (Node, error) {
	p.advance() // consume CASE
	node := &CaseNode{}
	for p.accept(TokenWhen) {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expect(TokenThen); err != nil {
			return nil, fmt.Errorf("expected THEN after WHEN condition: %w", err)
		}
		result, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.Whens = append(node.Whens, WhenClause{Condition: cond, Result: result})
	}
	if len(node.Whens) == 0 {
		return nil, fmt.Errorf("CASE requires at least one WHEN clause")
	}
	if p.accept(TokenElse) {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		node.Else = e
	}
	if err := p.expect(TokenEnd); err != nil {
		return nil, fmt.Errorf("expected END to close CASE: %w", err)
	}
	return node, nil
}

// parseCast parses CAST(expr AS type)
func (p *Parser) parseCast() (Node, error) {
	p.advance() // consume CAST
	if err := p.expect(TokenLeftParen); err != nil {
		return nil, err
	}
	operand, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenAs); err != nil {
		return nil, fmt.Errorf("expected AS in CAST: %w", err)
	}
	// type tokens such as array<string> span several tokens
	var sb strings.Builder
	depth := 0
	for {
		tok := p.current()
		if tok.Type == TokenEOF || (tok.Type == TokenRightParen && depth == 0) {
			break
		}
		switch tok.Type {
		case TokenLess:
			depth++
		case TokenGreater:
			depth--
		}
		sb.WriteString(tok.Value)
		p.advance()
	}
	t, err := schema.ParseType(sb.String())
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenRightParen); err != nil {
		return nil, err
	}
	return &CastNode{Operand: operand, Type: t}, nil
}

// parseFunctionCall parses the argument list of name(...) and an optional
// OVER clause. Aggregate names become AggregateCall nodes.
func (p *Parser) parseFunctionCall(name string) (Node, error) {
	p.advance() // consume (

	var args []Node
	star, distinct := false, false
	switch {
	case p.accept(TokenStar):
		star = true
	case p.current().Type == TokenRightParen:
	default:
		distinct = p.accept(TokenDistinct)
		var err error
		if args, err = p.parseExprList(); err != nil {
			return nil, err
		}
	}
	if err := p.expect(TokenRightParen); err != nil {
		return nil, fmt.Errorf("expected ) after arguments of %s: %w", name, err)
	}

	if p.accept(TokenOver) {
		if distinct {
			return nil, fmt.Errorf("DISTINCT is not supported in window function %s", name)
		}
		fn, err := pipeline.ParseWindowFunc(name)
		if err != nil {
			return nil, err
		}
		spec, err := p.parseWindowSpec()
		if err != nil {
			return nil, err
		}
		if star && fn != pipeline.WindowCount {
			return nil, fmt.Errorf("%s(*) is not a window function", name)
		}
		return &WindowCall{Func: fn, Args: args, Spec: spec}, nil
	}

	if fn, err := pipeline.ParseAggFunc(name); err == nil {
		if star {
			if fn != pipeline.Count {
				return nil, fmt.Errorf("%s(*) is not supported", name)
			}
			return &AggregateCall{Func: pipeline.Count}, nil
		}
		if len(args) != 1 {
			return nil, fmt.Errorf("aggregate %s takes exactly one argument, got %d", name, len(args))
		}
		if distinct {
			if fn != pipeline.Count {
				return nil, fmt.Errorf("DISTINCT is only supported in COUNT")
			}
			fn = pipeline.CountDistinct
		}
		return &AggregateCall{Func: fn, Arg: args[0], Distinct: distinct}, nil
	}

	if star || distinct {
		return nil, fmt.Errorf("unexpected * or DISTINCT in call to %s", name)
	}
	return &FuncCall{Name: name, Args: args}, nil
}

// parseWindowSpec parses ( [PARTITION BY ...] [ORDER BY ...] [frame] )
func (p *Parser) parseWindowSpec() (WindowSpec, error) {
	var spec WindowSpec
	if err := p.expect(TokenLeftParen); err != nil {
		return spec, fmt.Errorf("expected '(' after OVER: %w", err)
	}

	if p.accept(TokenPartition) {
		if err := p.expect(TokenBy); err != nil {
			return spec, fmt.Errorf("expected BY after PARTITION: %w", err)
		}
		list, err := p.parseExprList()
		if err != nil {
			return spec, err
		}
		spec.PartitionBy = list
	}

	if p.accept(TokenOrder) {
		if err := p.expect(TokenBy); err != nil {
			return spec, fmt.Errorf("expected BY after ORDER: %w", err)
		}
		orderBy, err := p.parseOrderByList()
		if err != nil {
			return spec, fmt.Errorf("failed to parse ORDER BY in window: %w", err)
		}
		spec.OrderBy = orderBy
	}

	if p.current().Type == TokenRows || p.current().Type == TokenRange {
		frame, err := p.parseWindowFrame()
		if err != nil {
			return spec, fmt.Errorf("failed to parse window frame: %w", err)
		}
		spec.Frame = frame
	}

	if err := p.expect(TokenRightParen); err != nil {
		return spec, fmt.Errorf("expected ')' after window specification: %w", err)
	}
	return spec, nil
}

// parseWindowFrame parses ROWS|RANGE BETWEEN bound AND bound, or a single
// bound meaning BETWEEN bound AND CURRENT ROW
func (p *Parser) parseWindowFrame() (*pipeline.Frame, error) {
	frame := &pipeline.Frame{Unit: pipeline.Rows}
	if p.current().Type == TokenRange {
		frame.Unit = pipeline.Range
	}
	p.advance()

	if p.accept(TokenBetween) {
		start, err := p.parseFrameBound()
		if err != nil {
			return nil, fmt.Errorf("failed to parse frame start bound: %w", err)
		}
		if err := p.expect(TokenAnd); err != nil {
			return nil, fmt.Errorf("expected AND in BETWEEN frame clause: %w", err)
		}
		end, err := p.parseFrameBound()
		if err != nil {
			return nil, fmt.Errorf("failed to parse frame end bound: %w", err)
		}
		frame.Start, frame.End = start, end
	} else {
		bound, err := p.parseFrameBound()
		if err != nil {
			return nil, fmt.Errorf("failed to parse frame bound: %w", err)
		}
		frame.Start = bound
		frame.End = pipeline.Bound{Kind: pipeline.CurrentRow}
	}

	if err := frame.Validate(); err != nil {
		return nil, err
	}
	return frame, nil
}

// parseFrameBound parses a single frame bound
func (p *Parser) parseFrameBound() (pipeline.Bound, error) {
	var bound pipeline.Bound

	switch p.current().Type {
	case TokenUnbounded:
		p.advance()
		switch {
		case p.accept(TokenPreceding):
			bound.Kind = pipeline.UnboundedPreceding
		case p.accept(TokenFollowing):
			bound.Kind = pipeline.UnboundedFollowing
		default:
			return bound, fmt.Errorf("expected PRECEDING or FOLLOWING after UNBOUNDED")
		}
		return bound, nil
	case TokenCurrent:
		p.advance()
		if err := p.expect(TokenRow); err != nil {
			return bound, fmt.Errorf("expected ROW after CURRENT")
		}
		bound.Kind = pipeline.CurrentRow
		return bound, nil
	case TokenNumber:
		offset, err := strconv.ParseInt(p.current().Value, 10, 64)
		if err != nil {
			return bound, fmt.Errorf("invalid offset in frame bound: %w", err)
		}
		bound.Offset = offset
		p.advance()
		switch {
		case p.accept(TokenPreceding):
			bound.Kind = pipeline.Preceding
		case p.accept(TokenFollowing):
			bound.Kind = pipeline.Following
		default:
			return bound, fmt.Errorf("expected PRECEDING or FOLLOWING after offset")
		}
		return bound, nil
	}
	return bound, fmt.Errorf("invalid frame bound")
}

func (p *Parser) startsQuery() bool {
	t := p.current().Type
	return t == TokenSelect || t == TokenWith
}

// parseSubquery parses a query and the ) closing it
func (p *Parser) parseSubquery() (*Query, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	q, err := p.parseQuery()
	if err != nil {
		return nil, fmt.Errorf("failed to parse subquery: %w", err)
	}
	if err := p.expect(TokenRightParen); err != nil {
		return nil, fmt.Errorf("expected ) after subquery: %w", err)
	}
	return q, nil
}
