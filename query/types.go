package query

import (
	"fmt"
	"strings"

	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/schema"
)

// TokenType represents the type of a token
type TokenType int

const (
	// Keywords
	TokenSelect TokenType = iota
	TokenFrom
	TokenWhere
	TokenAnd
	TokenOr
	TokenAs
	TokenGroup
	TokenBy
	TokenHaving
	TokenOrder
	TokenAsc
	TokenDesc
	TokenLimit
	TokenOffset
	TokenIn
	TokenLike
	TokenBetween
	TokenIs
	TokenNot
	TokenNull
	TokenDistinct
	TokenCase
	TokenWhen
	TokenThen
	TokenElse
	TokenEnd
	TokenOver
	TokenPartition
	TokenRows
	TokenRange
	TokenWith
	TokenJoin
	TokenInner
	TokenLeft
	TokenRight
	TokenFull
	TokenOuter
	TokenAnti
	TokenSemi
	TokenOn
	TokenUsing
	TokenCast
	TokenUnbounded
	TokenPreceding
	TokenFollowing
	TokenCurrent
	TokenRow

	// Operators
	TokenEqual        // =
	TokenNotEqual     // != or <>
	TokenLess         // <
	TokenGreater      // >
	TokenLessEqual    // <=
	TokenGreaterEqual // >=
	TokenPlus         // +
	TokenMinus        // -
	TokenStar         // *
	TokenSlash        // /
	TokenPercent      // %
	TokenConcat       // ||

	// Literals
	TokenString
	TokenNumber
	TokenIdent
	TokenBool

	// Delimiters
	TokenComma      // ,
	TokenLeftParen  // (
	TokenRightParen // )

	// Special
	TokenEOF
	TokenError
)

var tokenNames = map[TokenType]string{
	TokenEqual: "'='", TokenNotEqual: "'!='", TokenLess: "'<'", TokenGreater: "'>'",
	TokenLessEqual: "'<='", TokenGreaterEqual: "'>='", TokenPlus: "'+'", TokenMinus: "'-'",
	TokenStar: "'*'", TokenSlash: "'/'", TokenPercent: "'%'", TokenConcat: "'||'",
	TokenString: "string", TokenNumber: "number", TokenIdent: "identifier", TokenBool: "boolean",
	TokenComma: "','", TokenLeftParen: "'('", TokenRightParen: "')'",
	TokenEOF: "end of query", TokenError: "invalid character",
}

func (t TokenType) String() string {
	if n, ok := tokenNames[t]; ok {
		return n
	}
	for word, tt := range keywords {
		if tt == t {
			return word
		}
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// Token represents a lexical token
type Token struct {
	Type  TokenType
	Value string
}

// Query represents a parsed SELECT statement
type Query struct {
	CTEs       []CTE        // WITH clause CTEs
	From       TableRef     // FROM source
	Joins      []JoinClause // JOIN clauses, applied left to right
	Distinct   bool         // DISTINCT modifier
	SelectList []SelectItem
	Where      Node
	GroupBy    []Node
	Having     Node          // Post-aggregation filter
	OrderBy    []OrderByItem // Sort specification
	Limit      *int64        // Row limit
	Offset     *int64        // Row offset
}

// CTE represents a Common Table Expression (WITH clause)
type CTE struct {
	Name  string
	Query *Query
}

// TableRef names a registered table or a subquery, with an optional alias
type TableRef struct {
	Name     string
	Subquery *Query
	Alias    string
}

// JoinClause represents a JOIN. Either Using or On is set; On holds the
// equality pairs of an ON a.x = b.y [AND ...] condition.
type JoinClause struct {
	Kind  pipeline.JoinKind
	Table TableRef
	Using []string
	On    []JoinPair
}

// JoinPair is one equality of an ON condition
type JoinPair struct {
	Left, Right *ColumnRef
}

// SelectItem represents a column or expression in the SELECT list
type SelectItem struct {
	Star  bool // SELECT * or t.*
	Expr  Node
	Alias string
}

// OrderByItem represents one sort key
type OrderByItem struct {
	Expr Node
	Desc bool
}

// Node is an expression in the parsed query
type Node interface {
	String() string
}

// ColumnRef references a column, optionally qualified with a table alias
type ColumnRef struct {
	Qualifier string
	Column    string
}

// Literal is a constant
type Literal struct {
	Value interface{}
}

// BinaryOp is an arithmetic, comparison or logical operation
type BinaryOp struct {
	Op          TokenType
	Left, Right Node
}

// UnaryOp is NOT or unary minus
type UnaryOp struct {
	Op      TokenType
	Operand Node
}

// FuncCall is a scalar function call
type FuncCall struct {
	Name string
	Args []Node
}

// AggregateCall is an aggregate function. A nil Arg means COUNT(*).
type AggregateCall struct {
	Func     pipeline.AggFunc
	Arg      Node
	Distinct bool
}

// WindowCall is a window function with its OVER clause
type WindowCall struct {
	Func pipeline.WindowFunc
	Args []Node
	Spec WindowSpec
}

// WindowSpec is the parsed OVER clause
type WindowSpec struct {
	PartitionBy []Node
	OrderBy     []OrderByItem
	Frame       *pipeline.Frame
}

// CaseNode is a searched CASE expression
type CaseNode struct {
	Whens []WhenClause
	Else  Node
}

// WhenClause represents a single WHEN condition and result
type WhenClause struct {
	Condition, Result Node
}

// InNode is x [NOT] IN (v, ...)
type InNode struct {
	Operand  Node
	List     []Node
	// Subquery replaces List for x IN (SELECT ...)
	Subquery *Query
	Negate   bool
}

// SubqueryNode is a parenthesized SELECT used as a single value. The
// subquery cannot reference columns of the enclosing query.
type SubqueryNode struct {
	Query *Query
}

// LikeNode is x [NOT] LIKE 'pattern'
type LikeNode struct {
	Operand Node
	Pattern string
	Negate  bool
}

// BetweenNode is x [NOT] BETWEEN lo AND hi
type BetweenNode struct {
	Operand, Lower, Upper Node
	Negate                bool
}

// IsNullNode is x IS [NOT] NULL
type IsNullNode struct {
	Operand Node
	Negate  bool
}

// CastNode is CAST(x AS type)
type CastNode struct {
	Operand Node
	Type    schema.Type
}

func (c *ColumnRef) String() string {
	if c.Qualifier == "" {
		return c.Column
	}
	return c.Qualifier + "." + c.Column
}

func (l *Literal) String() string {
	switch v := l.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	default:
		return schema.FormatScalar(v)
	}
}

var operatorText = map[TokenType]string{
	TokenEqual: "=", TokenNotEqual: "!=", TokenLess: "<", TokenGreater: ">",
	TokenLessEqual: "<=", TokenGreaterEqual: ">=", TokenPlus: "+", TokenMinus: "-",
	TokenStar: "*", TokenSlash: "/", TokenPercent: "%", TokenConcat: "||",
	TokenAnd: "AND", TokenOr: "OR",
}

func (b *BinaryOp) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left, operatorText[b.Op], b.Right)
}

func (u *UnaryOp) String() string {
	if u.Op == TokenNot {
		return "NOT " + u.Operand.String()
	}
	return "-" + u.Operand.String()
}

func (f *FuncCall) String() string {
	return fmt.Sprintf("%s(%s)", strings.ToLower(f.Name), joinNodes(f.Args))
}

func (a *AggregateCall) String() string {
	if a.Arg == nil {
		return "count(*)"
	}
	if a.Func == pipeline.CountDistinct {
		return fmt.Sprintf("count(DISTINCT %s)", a.Arg)
	}
	return fmt.Sprintf("%s(%s)", a.Func, a.Arg)
}

func (w *WindowCall) String() string {
	return fmt.Sprintf("%s(%s) OVER (...)", w.Func, joinNodes(w.Args))
}

func (c *CaseNode) String() string {
	var sb strings.Builder
	sb.WriteString("CASE")
	for _, w := range c.Whens {
		fmt.Fprintf(&sb, " WHEN %s THEN %s", w.Condition, w.Result)
	}
	if c.Else != nil {
		fmt.Fprintf(&sb, " ELSE %s", c.Else)
	}
	sb.WriteString(" END")
	return sb.String()
}

func (n *InNode) String() string {
	op := "IN"
	if n.Negate {
		op = "NOT IN"
	}
	if n.Subquery != nil {
		return fmt.Sprintf("%s %s (SELECT ...)", n.Operand, op)
	}
	return fmt.Sprintf("%s %s (%s)", n.Operand, op, joinNodes(n.List))
}

func (s *SubqueryNode) String() string { return "(SELECT ...)" }

func (n *LikeNode) String() string {
	op := "LIKE"
	if n.Negate {
		op = "NOT LIKE"
	}
	return fmt.Sprintf("%s %s '%s'", n.Operand, op, n.Pattern)
}

func (n *BetweenNode) String() string {
	op := "BETWEEN"
	if n.Negate {
		op = "NOT BETWEEN"
	}
	return fmt.Sprintf("%s %s %s AND %s", n.Operand, op, n.Lower, n.Upper)
}

func (n *IsNullNode) String() string {
	if n.Negate {
		return n.Operand.String() + " IS NOT NULL"
	}
	return n.Operand.String() + " IS NULL"
}

func (c *CastNode) String() string {
	return fmt.Sprintf("cast(%s AS %s)", c.Operand, c.Type)
}

func joinNodes(nodes []Node) string {
	parts := make([]string, len(nodes))
	for i, n := range nodes {
		parts[i] = n.String()
	}
	return strings.Join(parts, ", ")
}
