package query

import (
	stderrors "errors"
	"fmt"
	"strconv"

	"github.com/vegasq/tabular/pipeline"
)

// Limits bounds the input the parser accepts. A zero field disables that
// check.
type Limits struct {
	QueryBytes int
	Tokens     int
	Depth      int
	NameLength int
}

// DefaultLimits is used by Parse and ParseExpr
var DefaultLimits = Limits{QueryBytes: 1 << 20, Tokens: 10000, Depth: 100, NameLength: 256}

// ErrLimit matches every LimitError with errors.Is
var ErrLimit = stderrors.New("query limit exceeded")

// LimitError reports which limit a query broke
type LimitError struct {
	What string
	Got  int
	Max  int
}

func (e LimitError) Error() string {
	return fmt.Sprintf("%s: %d exceeds limit of %d", e.What, e.Got, e.Max)
}

func (e LimitError) Is(target error) bool { return target == ErrLimit }

func over(what string, got, max int) error {
	if max > 0 && got > max {
		return LimitError{What: what, Got: got, Max: max}
	}
	return nil
}

// lex tokenizes s after checking its size
func (l Limits) lex(s string) ([]Token, error) {
	if err := over("query bytes", len(s), l.QueryBytes); err != nil {
		return nil, err
	}
	tokens := Tokenize(s)
	if err := over("tokens", len(tokens), l.Tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

func (l Limits) name(kind, name string) error {
	return over(kind+" name length", len(name), l.NameLength)
}

// Parser parses SQL queries into AST
type Parser struct {
	tokens []Token
	pos    int
	limits Limits
	depth  int
}

// NewParser creates a parser over tokens with the default limits
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens, limits: DefaultLimits}
}

// enter guards recursion into a nested expression; pair it with leave
func (p *Parser) enter() error {
	p.depth++
	return over("expression depth", p.depth, p.limits.Depth)
}

func (p *Parser) leave() { p.depth-- }

// current returns the current token
func (p *Parser) current() Token {
	if p.pos >= len(p.tokens) {
		return Token{Type: TokenEOF, Value: ""}
	}
	return p.tokens[p.pos]
}

// peek returns the next token without advancing
func (p *Parser) peek() Token {
	if p.pos+1 >= len(p.tokens) {
		return Token{Type: TokenEOF, Value: ""}
	}
	return p.tokens[p.pos+1]
}

// advance moves to the next token
func (p *Parser) advance() {
	p.pos++
}

// accept advances past the current token when it has the given type
func (p *Parser) accept(tokType TokenType) bool {
	if p.current().Type == tokType {
		p.advance()
		return true
	}
	return false
}

// expect checks if current token matches expected type and advances
func (p *Parser) expect(tokType TokenType) error {
	if p.current().Type != tokType {
		return p.unexpected(tokType.String())
	}
	p.advance()
	return nil
}

func (p *Parser) unexpected(want string) error {
	tok := p.current()
	if tok.Type == TokenError {
		return fmt.Errorf("invalid character in query: %s", tok.Value)
	}
	if tok.Value == "" {
		return fmt.Errorf("expected %s, got %v", want, tok.Type)
	}
	return fmt.Errorf("expected %s, got %v %q", want, tok.Type, tok.Value)
}

// Parse parses a SQL query with DefaultLimits
func Parse(query string) (*Query, error) {
	return ParseWithLimits(query, DefaultLimits)
}

// ParseWithLimits parses a SQL query, rejecting input beyond l
func ParseWithLimits(query string, l Limits) (*Query, error) {
	tokens, err := l.lex(query)
	if err != nil {
		return nil, err
	}

	parser := &Parser{tokens: tokens, limits: l}
	q, err := parser.parseQuery()
	if err != nil {
		return nil, err
	}

	// Validate that we consumed all tokens (should be at EOF)
	if parser.current().Type == TokenError {
		return nil, fmt.Errorf("invalid character in query: %s", parser.current().Value)
	}
	if parser.current().Type != TokenEOF {
		return nil, fmt.Errorf("unexpected trailing tokens after query: %s", parser.current().Value)
	}

	return q, nil
}

// parseQuery parses: [WITH cte AS (...)] SELECT ... FROM ... [JOIN ...]
// [WHERE ...] [GROUP BY ...] [HAVING ...] [ORDER BY ...] [LIMIT n] [OFFSET m]
func (p *Parser) parseQuery() (*Query, error) {
	q := &Query{}

	if p.current().Type == TokenWith {
		ctes, err := p.parseWithClause()
		if err != nil {
			return nil, err
		}
		q.CTEs = ctes
	}

	if err := p.expect(TokenSelect); err != nil {
		return nil, fmt.Errorf("query must start with SELECT (or WITH): %w", err)
	}
	q.Distinct = p.accept(TokenDistinct)

	selectList, err := p.parseSelectList()
	if err != nil {
		return nil, fmt.Errorf("failed to parse SELECT list: %w", err)
	}
	q.SelectList = selectList

	if err := p.expect(TokenFrom); err != nil {
		return nil, fmt.Errorf("expected FROM after SELECT list: %w", err)
	}
	from, err := p.parseTableRef()
	if err != nil {
		return nil, err
	}
	q.From = from

	for isJoinStart(p.current().Type) {
		join, err := p.parseJoin()
		if err != nil {
			return nil, fmt.Errorf("failed to parse JOIN: %w", err)
		}
		q.Joins = append(q.Joins, join)
	}

	if p.accept(TokenWhere) {
		if q.Where, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}

	if p.current().Type == TokenGroup {
		p.advance()
		if err := p.expect(TokenBy); err != nil {
			return nil, fmt.Errorf("expected BY after GROUP: %w", err)
		}
		if q.GroupBy, err = p.parseExprList(); err != nil {
			return nil, err
		}
	}

	if p.accept(TokenHaving) {
		if q.Having, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}

	if p.current().Type == TokenOrder {
		p.advance()
		if err := p.expect(TokenBy); err != nil {
			return nil, fmt.Errorf("expected BY after ORDER: %w", err)
		}
		if q.OrderBy, err = p.parseOrderByList(); err != nil {
			return nil, err
		}
	}

	if p.accept(TokenLimit) {
		if q.Limit, err = p.parseCount("LIMIT"); err != nil {
			return nil, err
		}
	}
	if p.accept(TokenOffset) {
		if q.Offset, err = p.parseCount("OFFSET"); err != nil {
			return nil, err
		}
	}

	return q, nil
}

// parseWithClause parses WITH name AS (query) [, name AS (query)]
func (p *Parser) parseWithClause() ([]CTE, error) {
	p.advance() // consume WITH
	var ctes []CTE
	for {
		if p.current().Type != TokenIdent {
			return nil, p.unexpected("CTE name")
		}
		name := p.current().Value
		p.advance()
		if err := p.expect(TokenAs); err != nil {
			return nil, fmt.Errorf("expected AS after CTE name %s: %w", name, err)
		}
		if err := p.expect(TokenLeftParen); err != nil {
			return nil, err
		}
		sub, err := p.parseQuery()
		if err != nil {
			return nil, fmt.Errorf("failed to parse CTE %s: %w", name, err)
		}
		if err := p.expect(TokenRightParen); err != nil {
			return nil, err
		}
		ctes = append(ctes, CTE{Name: name, Query: sub})
		if !p.accept(TokenComma) {
			return ctes, nil
		}
	}
}

// parseTableRef parses a table name or a parenthesized subquery, with an
// optional alias
func (p *Parser) parseTableRef() (TableRef, error) {
	var ref TableRef
	switch p.current().Type {
	case TokenLeftParen:
		p.advance()
		sub, err := p.parseQuery()
		if err != nil {
			return ref, fmt.Errorf("failed to parse subquery: %w", err)
		}
		if err := p.expect(TokenRightParen); err != nil {
			return ref, fmt.Errorf("expected ) after subquery: %w", err)
		}
		ref.Subquery = sub
	case TokenIdent, TokenString:
		ref.Name = p.current().Value
		if err := p.limits.name("table", ref.Name); err != nil {
			return ref, err
		}
		p.advance()
	default:
		return ref, p.unexpected("table name or subquery")
	}

	if p.accept(TokenAs) {
		if p.current().Type != TokenIdent {
			return ref, p.unexpected("alias")
		}
	}
	if p.current().Type == TokenIdent {
		ref.Alias = p.current().Value
		p.advance()
	}
	return ref, nil
}

func isJoinStart(t TokenType) bool {
	switch t {
	case TokenJoin, TokenInner, TokenLeft, TokenRight, TokenFull, TokenAnti, TokenSemi:
		return true
	}
	return false
}

// parseJoin parses a JOIN clause
func (p *Parser) parseJoin() (JoinClause, error) {
	var join JoinClause

	switch p.current().Type {
	case TokenJoin:
		join.Kind = pipeline.Inner
	case TokenInner:
		join.Kind = pipeline.Inner
		p.advance()
	case TokenLeft:
		p.advance()
		switch {
		case p.accept(TokenAnti):
			join.Kind = pipeline.Anti
		case p.accept(TokenSemi):
			join.Kind = pipeline.Semi
		default:
			p.accept(TokenOuter)
			join.Kind = pipeline.Left
		}
	case TokenRight:
		p.advance()
		p.accept(TokenOuter)
		join.Kind = pipeline.Right
	case TokenFull:
		p.advance()
		p.accept(TokenOuter)
		join.Kind = pipeline.Full
	case TokenAnti:
		p.advance()
		join.Kind = pipeline.Anti
	case TokenSemi:
		p.advance()
		join.Kind = pipeline.Semi
	}
	if err := p.expect(TokenJoin); err != nil {
		return join, err
	}

	ref, err := p.parseTableRef()
	if err != nil {
		return join, err
	}
	join.Table = ref

	switch {
	case p.accept(TokenUsing):
		if err := p.expect(TokenLeftParen); err != nil {
			return join, err
		}
		for {
			if p.current().Type != TokenIdent {
				return join, p.unexpected("column name in USING")
			}
			join.Using = append(join.Using, p.current().Value)
			p.advance()
			if !p.accept(TokenComma) {
				break
			}
		}
		if err := p.expect(TokenRightParen); err != nil {
			return join, err
		}
	case p.accept(TokenOn):
		cond, err := p.parseExpr()
		if err != nil {
			return join, fmt.Errorf("failed to parse JOIN condition: %w", err)
		}
		if join.On, err = equalityPairs(cond); err != nil {
			return join, err
		}
	default:
		return join, p.unexpected("ON or USING")
	}
	return join, nil
}

// equalityPairs flattens a.x = b.y AND c.z = d.w into column pairs
func equalityPairs(n Node) ([]JoinPair, error) {
	b, ok := n.(*BinaryOp)
	if !ok {
		return nil, fmt.Errorf("JOIN condition must be column equalities joined by AND, got %s", n)
	}
	switch b.Op {
	case TokenAnd:
		left, err := equalityPairs(b.Left)
		if err != nil {
			return nil, err
		}
		right, err := equalityPairs(b.Right)
		if err != nil {
			return nil, err
		}
		return append(left, right...), nil
	case TokenEqual:
		l, lok := b.Left.(*ColumnRef)
		r, rok := b.Right.(*ColumnRef)
		if lok && rok {
			return []JoinPair{{Left: l, Right: r}}, nil
		}
	}
	return nil, fmt.Errorf("JOIN condition must be column equalities joined by AND, got %s", n)
}

// parseSelectList parses a comma-separated list of select items
func (p *Parser) parseSelectList() ([]SelectItem, error) {
	var items []SelectItem
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		if !p.accept(TokenComma) {
			return items, nil
		}
	}
}

// parseSelectItem parses *, t.*, or expr [[AS] alias]
func (p *Parser) parseSelectItem() (SelectItem, error) {
	if p.accept(TokenStar) {
		return SelectItem{Star: true}, nil
	}
	if tok := p.current(); tok.Type == TokenIdent && len(tok.Value) > 1 && tok.Value[len(tok.Value)-1] == '.' && p.peek().Type == TokenStar {
		p.advance()
		p.advance()
		return SelectItem{Star: true}, nil
	}

	e, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: e}
	if p.accept(TokenAs) {
		if p.current().Type != TokenIdent && p.current().Type != TokenString {
			return item, p.unexpected("alias after AS")
		}
		item.Alias = p.current().Value
		p.advance()
	} else if p.current().Type == TokenIdent {
		item.Alias = p.current().Value
		p.advance()
	}
	if err := p.limits.name("column", item.Alias); err != nil {
		return item, err
	}
	return item, nil
}

// parseExprList parses expr [, expr ...]
func (p *Parser) parseExprList() ([]Node, error) {
	var out []Node
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if !p.accept(TokenComma) {
			return out, nil
		}
	}
}

// parseOrderByList parses expr [ASC|DESC] [, ...]
func (p *Parser) parseOrderByList() ([]OrderByItem, error) {
	var items []OrderByItem
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		item := OrderByItem{Expr: e}
		if p.accept(TokenDesc) {
			item.Desc = true
		} else {
			p.accept(TokenAsc)
		}
		items = append(items, item)
		if !p.accept(TokenComma) {
			return items, nil
		}
	}
}

// parseCount parses the non-negative integer of LIMIT or OFFSET
func (p *Parser) parseCount(clause string) (*int64, error) {
	if p.current().Type != TokenNumber {
		return nil, fmt.Errorf("expected number after %s, got %v", clause, p.current().Type)
	}
	n, err := strconv.ParseInt(p.current().Value, 10, 64)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid %s value: %s", clause, p.current().Value)
	}
	p.advance()
	return &n, nil
}
