package query

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/eval"
	"github.com/vegasq/tabular/expr"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// hiddenPrefix marks helper columns the planner adds and removes again
const hiddenPrefix = "__"

// schemaEval evaluates partial pipelines against empty inputs to learn schemas
var schemaEval = eval.New(eval.WithLogger(slog.New(slog.DiscardHandler)))

// builder translates one parsed SELECT into an input table and a pipeline
type builder struct {
	input *table.Table
	p     pipeline.Pipeline

	// qualifiers holds the table names and aliases in scope
	qualifiers map[string]bool
	// renamed maps "qualifier.column" of ON join keys to the column they
	// were merged into
	renamed map[string]string
	// subs maps the text of a computed expression to the column holding it
	subs    map[string]string
	windows map[*WindowCall]string
	hidden  map[string]bool
	seq     int

	// sub evaluates subqueries used as values; nil outside a catalog query
	sub func(*Query) (*table.Table, error)
}

// plan resolves the sources of q against tables (registered tables plus
// CTEs in scope) and returns the input table and pipeline computing q.
// resolve evaluates CTEs and subqueries.
func plan(q *Query, tables func(string) (*table.Table, bool), resolve func(*Query) (*table.Table, error)) (*table.Table, pipeline.Pipeline, error) {
	b := &builder{
		qualifiers: map[string]bool{},
		renamed:    map[string]string{},
		subs:       map[string]string{},
		windows:    map[*WindowCall]string{},
		hidden:     map[string]bool{},
		sub:        resolve,
	}

	source := func(ref TableRef) (*table.Table, error) {
		if ref.Alias != "" {
			b.qualifiers[ref.Alias] = true
		}
		if ref.Subquery != nil {
			return resolve(ref.Subquery)
		}
		b.qualifiers[ref.Name] = true
		t, ok := tables(ref.Name)
		if !ok {
			return nil, errors.InvalidPlanError{Op: "from", Reason: fmt.Sprintf("table %q is not registered", ref.Name)}
		}
		return t, nil
	}

	in, err := source(q.From)
	if err != nil {
		return nil, pipeline.Pipeline{}, err
	}
	b.input = in

	for _, j := range q.Joins {
		right, err := source(j.Table)
		if err != nil {
			return nil, pipeline.Pipeline{}, err
		}
		if err := b.join(j, right); err != nil {
			return nil, pipeline.Pipeline{}, err
		}
	}

	if q.Where != nil {
		if hasAggregate(q.Where) || hasWindow(q.Where) {
			return nil, pipeline.Pipeline{}, errors.InvalidPlanError{Op: "filter", Reason: "aggregate and window functions are not allowed in WHERE"}
		}
		pred, err := b.toExpr(q.Where)
		if err != nil {
			return nil, pipeline.Pipeline{}, err
		}
		b.p = b.p.Filter(pred)
	}

	if err := b.aggregate(q); err != nil {
		return nil, pipeline.Pipeline{}, err
	}
	if err := b.window(q); err != nil {
		return nil, pipeline.Pipeline{}, err
	}
	if err := b.project(q); err != nil {
		return nil, pipeline.Pipeline{}, err
	}
	return b.input, b.p, nil
}

// schema returns the schema the pipeline built so far produces
func (b *builder) schema() (*schema.Schema, error) {
	out, err := schemaEval.Evaluate(table.Empty(b.input.Schema()), b.p)
	if err != nil {
		return nil, err
	}
	return out.Schema(), nil
}

func (b *builder) hiddenName(kind string) string {
	name := fmt.Sprintf("%s%s%d", hiddenPrefix, kind, b.seq)
	b.seq++
	b.hidden[name] = true
	return name
}

// resolve maps a column reference to a column name of the current table.
// A qualifier that names no table in scope is part of a nested column path.
func (b *builder) resolve(ref *ColumnRef) string {
	if ref.Qualifier == "" {
		return ref.Column
	}
	if !b.qualifiers[ref.Qualifier] {
		return ref.String()
	}
	if name, ok := b.renamed[ref.String()]; ok {
		return name
	}
	return ref.Column
}

// join appends a join against right. ON keys whose names differ are merged
// by renaming the right column to the left name.
func (b *builder) join(j JoinClause, right *table.Table) error {
	keys := j.Using
	if len(j.On) > 0 {
		left, err := b.schema()
		if err != nil {
			return err
		}
		rightName := j.Table.Alias
		if rightName == "" {
			rightName = j.Table.Name
		}
		var renames pipeline.Pipeline
		keys = nil
		for _, pair := range j.On {
			l, r := pair.Left, pair.Right
			if onRight(l, rightName, left, right.Schema()) {
				l, r = r, l
			}
			ln, rn := b.resolve(l), r.Column
			if _, ok := right.Schema().Index(rn); !ok {
				return errors.InvalidPlanError{Op: "join", Reason: fmt.Sprintf("ON column %s not found in %s", r, rightName)}
			}
			if rn != ln {
				renames = renames.Rename(rn, ln)
				if r.Qualifier != "" {
					b.renamed[r.String()] = ln
				}
				b.renamed[rightName+"."+rn] = ln
			}
			keys = append(keys, ln)
		}
		if renames.Len() > 0 {
			var err error
			if right, err = schemaEval.Evaluate(right, renames); err != nil {
				return err
			}
		}
	}
	if len(keys) == 0 {
		return errors.InvalidPlanError{Op: "join", Reason: "join needs USING or ON"}
	}
	b.p = b.p.Join(right, j.Kind, keys...)
	return nil
}

// onRight reports whether ref belongs to the right side of a join
func onRight(ref *ColumnRef, rightName string, left, right *schema.Schema) bool {
	if ref.Qualifier != "" {
		return ref.Qualifier == rightName
	}
	if _, ok := left.Index(ref.Column); ok {
		return false
	}
	_, ok := right.Index(ref.Column)
	return ok
}

// columnFor returns the column holding n, computing it into a hidden
// column when n is not a plain column reference
func (b *builder) columnFor(n Node) (string, error) {
	if ref, ok := n.(*ColumnRef); ok {
		return b.resolve(ref), nil
	}
	if name, ok := b.subs[n.String()]; ok {
		return name, nil
	}
	if w, ok := n.(*WindowCall); ok {
		if name, ok := b.windows[w]; ok {
			return name, nil
		}
	}
	e, err := b.toExpr(n)
	if err != nil {
		return "", err
	}
	name := b.hiddenName("c")
	b.p = b.p.WithColumn(name, e)
	b.subs[n.String()] = name
	return name, nil
}

// aggregate plans GROUP BY, aggregate calls and HAVING
func (b *builder) aggregate(q *Query) error {
	var calls []*AggregateCall
	seen := map[string]bool{}
	collect := func(n Node) {
		walk(n, func(n Node) bool {
			if a, ok := n.(*AggregateCall); ok {
				if !seen[a.String()] {
					seen[a.String()] = true
					calls = append(calls, a)
				}
				return false
			}
			return true
		})
	}
	for _, item := range q.SelectList {
		if item.Expr != nil {
			collect(item.Expr)
		}
	}
	if q.Having != nil {
		collect(q.Having)
	}
	for _, o := range q.OrderBy {
		collect(o.Expr)
	}
	if len(q.GroupBy) == 0 && len(calls) == 0 {
		if q.Having != nil {
			return errors.InvalidPlanError{Op: "having", Reason: "HAVING needs GROUP BY or an aggregate"}
		}
		return nil
	}

	keys := make([]string, 0, len(q.GroupBy))
	keyText := map[string]string{}
	for _, g := range q.GroupBy {
		if lit, ok := g.(*Literal); ok {
			n, isInt := lit.Value.(int64)
			if !isInt || n < 1 || int(n) > len(q.SelectList) || q.SelectList[n-1].Expr == nil {
				return errors.InvalidPlanError{Op: "groupBy", Reason: fmt.Sprintf("GROUP BY position %s is out of range", lit)}
			}
			g = q.SelectList[n-1].Expr
		}
		if hasAggregate(g) || hasWindow(g) {
			return errors.InvalidPlanError{Op: "groupBy", Reason: fmt.Sprintf("cannot group by %s", g)}
		}
		name, err := b.columnFor(g)
		if err != nil {
			return err
		}
		keys = append(keys, name)
		if _, ok := g.(*ColumnRef); !ok {
			keyText[g.String()] = name
		}
	}

	aggs := make([]pipeline.Aggregation, 0, len(calls))
	outputs := map[string]string{}
	for _, call := range calls {
		out := b.hiddenName("agg")
		outputs[call.String()] = out
		if call.Arg == nil {
			aggs = append(aggs, pipeline.CountRows().As(out))
			continue
		}
		if hasAggregate(call.Arg) || hasWindow(call.Arg) {
			return errors.InvalidPlanError{Op: "groupAggregate", Reason: fmt.Sprintf("nested aggregate in %s", call)}
		}
		col, err := b.columnFor(call.Arg)
		if err != nil {
			return err
		}
		aggs = append(aggs, pipeline.Agg(call.Func, col).As(out))
	}
	b.p = b.p.GroupAggregate(keys, aggs...)

	// only group keys and aggregates survive grouping
	b.subs = map[string]string{}
	for text, name := range keyText {
		b.subs[text] = name
	}
	for text, name := range outputs {
		b.subs[text] = name
	}

	if q.Having != nil {
		pred, err := b.toExpr(q.Having)
		if err != nil {
			return err
		}
		b.p = b.p.Filter(pred)
	}
	return nil
}

// window plans the window calls of the select list and ORDER BY
func (b *builder) window(q *Query) error {
	var calls []*WindowCall
	collect := func(n Node) {
		walk(n, func(n Node) bool {
			if w, ok := n.(*WindowCall); ok {
				calls = append(calls, w)
				return false
			}
			return true
		})
	}
	for _, item := range q.SelectList {
		if item.Expr != nil {
			collect(item.Expr)
		}
	}
	for _, o := range q.OrderBy {
		collect(o.Expr)
	}

	for _, call := range calls {
		if _, done := b.windows[call]; done {
			continue
		}
		w := pipeline.Window{Func: call.Func, Spec: pipeline.WindowSpec{Frame: call.Spec.Frame}}
		for _, n := range call.Spec.PartitionBy {
			col, err := b.columnFor(n)
			if err != nil {
				return err
			}
			w.Spec.PartitionBy = append(w.Spec.PartitionBy, col)
		}
		for _, o := range call.Spec.OrderBy {
			col, err := b.columnFor(o.Expr)
			if err != nil {
				return err
			}
			w.Spec.OrderBy = append(w.Spec.OrderBy, pipeline.SortKey{Column: col, Desc: o.Desc})
		}
		if err := b.windowArgs(call, &w); err != nil {
			return err
		}
		w.Output = b.hiddenName("w")
		b.p = b.p.Window(w)
		b.windows[call] = w.Output
	}
	return nil
}

// windowArgs fills the input column, offset and default of w
func (b *builder) windowArgs(call *WindowCall, w *pipeline.Window) error {
	bad := func(reason string) error {
		return errors.InvalidPlanError{Op: "window", Reason: fmt.Sprintf("%s: %s", call.Func, reason)}
	}
	args := call.Args
	switch call.Func {
	case pipeline.RowNumber, pipeline.Rank, pipeline.DenseRank:
		if len(args) != 0 {
			return bad("takes no arguments")
		}
		return nil
	case pipeline.NTile:
		if len(args) != 1 {
			return bad("takes one argument")
		}
		n, ok := intLiteral(args[0])
		if !ok || n < 1 {
			return bad("bucket count must be a positive integer")
		}
		w.Offset = n
		return nil
	case pipeline.Lag, pipeline.Lead:
		if len(args) < 1 || len(args) > 3 {
			return bad("takes one to three arguments")
		}
		w.Offset = 1
		if len(args) > 1 {
			n, ok := intLiteral(args[1])
			if !ok || n < 0 {
				return bad("offset must be a non-negative integer")
			}
			w.Offset = n
		}
		if len(args) > 2 {
			lit, ok := args[2].(*Literal)
			if !ok {
				return bad("default must be a literal")
			}
			w.Default = lit.Value
		}
	case pipeline.WindowCount:
		if len(args) == 0 {
			args = []Node{&Literal{Value: int64(1)}}
		}
		if len(args) != 1 {
			return bad("takes one argument")
		}
	default:
		if len(args) != 1 {
			return bad("takes one argument")
		}
	}
	col, err := b.columnFor(args[0])
	if err != nil {
		return err
	}
	w.Column = col
	return nil
}

func intLiteral(n Node) (int64, bool) {
	lit, ok := n.(*Literal)
	if !ok {
		return 0, false
	}
	v, ok := lit.Value.(int64)
	return v, ok
}

// project plans the select list, DISTINCT, ORDER BY, LIMIT and OFFSET
func (b *builder) project(q *Query) error {
	var items []pipeline.ProjectItem
	names := map[string]int{}
	textOf := map[string]string{}

	add := func(name string, e expr.Expr) {
		names[name] = len(items)
		items = append(items, pipeline.ProjectItem{Name: name, Expr: e})
	}

	for _, item := range q.SelectList {
		if item.Star {
			s, err := b.schema()
			if err != nil {
				return err
			}
			for _, f := range s.Fields() {
				if !b.hidden[f.Name] {
					add(f.Name, expr.Col(f.Name))
				}
			}
			continue
		}
		e, err := b.toExpr(item.Expr)
		if err != nil {
			return err
		}
		name := item.Alias
		if name == "" {
			name = defaultName(item.Expr)
		}
		if err := DefaultLimits.name("column", name); err != nil {
			return err
		}
		textOf[item.Expr.String()] = name
		add(name, e)
	}
	visible := len(items)

	var keys []pipeline.SortKey
	var hidden []string
	for _, o := range q.OrderBy {
		name, err := b.orderColumn(o.Expr, items[:visible], names, textOf)
		if err != nil {
			return err
		}
		if name == "" {
			e, err := b.toExpr(o.Expr)
			if err != nil {
				return err
			}
			name = b.hiddenName("order")
			hidden = append(hidden, name)
			add(name, e)
		}
		keys = append(keys, pipeline.SortKey{Column: name, Desc: o.Desc})
	}
	if q.Distinct && len(hidden) > 0 {
		return errors.InvalidPlanError{Op: "sort", Reason: "ORDER BY expressions must appear in the select list when DISTINCT is used"}
	}

	b.p = b.p.Project(items...)
	if q.Distinct {
		b.p = b.p.Dedupe()
	}
	if len(keys) > 0 {
		b.p = b.p.Sort(keys...)
	}
	if len(hidden) > 0 {
		b.p = b.p.Drop(hidden...)
	}
	if q.Limit != nil || q.Offset != nil {
		l := pipeline.Limit{N: -1}
		if q.Limit != nil {
			l.N = int(*q.Limit)
		}
		if q.Offset != nil {
			l.Offset = int(*q.Offset)
		}
		b.p = b.p.Then(l)
	}
	return nil
}

// orderColumn resolves an ORDER BY key against the select list: a position,
// an output name, or an expression repeated from the select list. It returns
// "" when the key must be computed.
func (b *builder) orderColumn(n Node, visible []pipeline.ProjectItem, names map[string]int, textOf map[string]string) (string, error) {
	if lit, ok := n.(*Literal); ok {
		pos, isInt := lit.Value.(int64)
		if !isInt {
			return "", errors.InvalidPlanError{Op: "sort", Reason: fmt.Sprintf("cannot order by constant %s", lit)}
		}
		if pos < 1 || int(pos) > len(visible) {
			return "", errors.InvalidPlanError{Op: "sort", Reason: fmt.Sprintf("ORDER BY position %d is out of range", pos)}
		}
		return visible[pos-1].Name, nil
	}
	if name, ok := textOf[n.String()]; ok {
		return name, nil
	}
	if ref, ok := n.(*ColumnRef); ok {
		if i, ok := names[ref.Column]; ok && i < len(visible) {
			return ref.Column, nil
		}
		if i, ok := names[b.resolve(ref)]; ok && i < len(visible) {
			return b.resolve(ref), nil
		}
	}
	return "", nil
}

// defaultName names an unaliased select item
func defaultName(n Node) string {
	if ref, ok := n.(*ColumnRef); ok {
		return ref.Column
	}
	return n.String()
}

var compareOps = map[TokenType]expr.CompareOp{
	TokenEqual:        expr.OpEq,
	TokenNotEqual:     expr.OpNe,
	TokenLess:         expr.OpLt,
	TokenLessEqual:    expr.OpLe,
	TokenGreater:      expr.OpGt,
	TokenGreaterEqual: expr.OpGe,
}

var arithOps = map[TokenType]func(l, r expr.Expr) expr.Expr{
	TokenPlus:    expr.Add,
	TokenMinus:   expr.Sub,
	TokenStar:    expr.Mul,
	TokenSlash:   expr.Div,
	TokenPercent: expr.Mod,
}

// toExpr converts a parsed node into an expression over the current table
func (b *builder) toExpr(n Node) (expr.Expr, error) {
	switch n := n.(type) {
	case *ColumnRef:
		return expr.Col(b.resolve(n)), nil
	case *Literal:
		return expr.Lit(n.Value), nil
	case *AggregateCall:
		if name, ok := b.subs[n.String()]; ok {
			return expr.Col(name), nil
		}
		return nil, errors.InvalidPlanError{Op: "project", Reason: fmt.Sprintf("aggregate %s is not allowed here", n)}
	case *WindowCall:
		if name, ok := b.windows[n]; ok {
			return expr.Col(name), nil
		}
		return nil, errors.InvalidPlanError{Op: "project", Reason: fmt.Sprintf("window function %s is not allowed here", n)}
	case *SubqueryNode:
		vals, err := b.subquery(n.Query)
		if err != nil {
			return nil, err
		}
		switch len(vals) {
		case 0:
			return expr.Lit(nil), nil
		case 1:
			return expr.Lit(vals[0]), nil
		}
		return nil, errors.InvalidPlanError{Op: "subquery", Reason: fmt.Sprintf("scalar subquery returned %d rows", len(vals))}
	}

	if name, ok := b.subs[n.String()]; ok {
		return expr.Col(name), nil
	}

	switch n := n.(type) {
	case *BinaryOp:
		l, err := b.toExpr(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := b.toExpr(n.Right)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case TokenAnd:
			return expr.And(l, r), nil
		case TokenOr:
			return expr.Or(l, r), nil
		case TokenConcat:
			return expr.Call("concat", l, r), nil
		}
		if op, ok := compareOps[n.Op]; ok {
			return expr.Compare(op, l, r), nil
		}
		if fn, ok := arithOps[n.Op]; ok {
			return fn(l, r), nil
		}
		return nil, fmt.Errorf("unsupported operator %s", n.Op)

	case *UnaryOp:
		e, err := b.toExpr(n.Operand)
		if err != nil {
			return nil, err
		}
		if n.Op == TokenNot {
			return expr.Not(e), nil
		}
		return expr.Neg(e), nil

	case *FuncCall:
		args, err := b.toExprs(n.Args)
		if err != nil {
			return nil, err
		}
		if strings.EqualFold(n.Name, "coalesce") {
			return expr.Coalesce(args...), nil
		}
		return expr.Call(n.Name, args...), nil

	case *CaseNode:
		var c *expr.CaseExpr
		for _, w := range n.Whens {
			cond, err := b.toExpr(w.Condition)
			if err != nil {
				return nil, err
			}
			val, err := b.toExpr(w.Result)
			if err != nil {
				return nil, err
			}
			if c == nil {
				c = expr.When(cond, val)
			} else {
				c = c.When(cond, val)
			}
		}
		if n.Else != nil {
			e, err := b.toExpr(n.Else)
			if err != nil {
				return nil, err
			}
			c = c.Otherwise(e)
		}
		return c, nil

	case *InNode:
		e, err := b.toExpr(n.Operand)
		if err != nil {
			return nil, err
		}
		list, err := b.toExprs(n.List)
		if err != nil {
			return nil, err
		}
		if n.Subquery != nil {
			vals, err := b.subquery(n.Subquery)
			if err != nil {
				return nil, err
			}
			for _, v := range vals {
				list = append(list, expr.Lit(v))
			}
		}
		if n.Negate {
			return expr.NotIn(e, list...), nil
		}
		return expr.In(e, list...), nil

	case *LikeNode:
		e, err := b.toExpr(n.Operand)
		if err != nil {
			return nil, err
		}
		if n.Negate {
			return expr.NotLike(e, n.Pattern), nil
		}
		return expr.Like(e, n.Pattern), nil

	case *BetweenNode:
		args, err := b.toExprs([]Node{n.Operand, n.Lower, n.Upper})
		if err != nil {
			return nil, err
		}
		between := expr.Between(args[0], args[1], args[2])
		if n.Negate {
			return expr.Not(between), nil
		}
		return between, nil

	case *IsNullNode:
		e, err := b.toExpr(n.Operand)
		if err != nil {
			return nil, err
		}
		if n.Negate {
			return expr.IsNotNull(e), nil
		}
		return expr.IsNull(e), nil

	case *CastNode:
		e, err := b.toExpr(n.Operand)
		if err != nil {
			return nil, err
		}
		return expr.Cast(e, n.Type), nil
	}
	return nil, fmt.Errorf("unsupported expression %T", n)
}

func (b *builder) toExprs(nodes []Node) ([]expr.Expr, error) {
	out := make([]expr.Expr, len(nodes))
	for i, n := range nodes {
		e, err := b.toExpr(n)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// subquery evaluates q and returns the values of its only column
func (b *builder) subquery(q *Query) ([]interface{}, error) {
	if b.sub == nil {
		return nil, errors.InvalidPlanError{Op: "subquery", Reason: "subqueries are only allowed inside a query"}
	}
	t, err := b.sub(q)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate subquery: %w", err)
	}
	if n := t.Schema().Len(); n != 1 {
		return nil, errors.InvalidPlanError{Op: "subquery", Reason: fmt.Sprintf("subquery must return one column, got %d", n)}
	}
	rows, err := t.Rows()
	if err != nil {
		return nil, err
	}
	vals := make([]interface{}, len(rows))
	for i, r := range rows {
		vals[i] = r[0]
	}
	return vals, nil
}

// walk visits n and its children depth first. fn returns false to skip the
// children of a node.
func walk(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	switch n := n.(type) {
	case *BinaryOp:
		walk(n.Left, fn)
		walk(n.Right, fn)
	case *UnaryOp:
		walk(n.Operand, fn)
	case *FuncCall:
		for _, a := range n.Args {
			walk(a, fn)
		}
	case *AggregateCall:
		walk(n.Arg, fn)
	case *WindowCall:
		for _, a := range n.Args {
			walk(a, fn)
		}
		for _, p := range n.Spec.PartitionBy {
			walk(p, fn)
		}
		for _, o := range n.Spec.OrderBy {
			walk(o.Expr, fn)
		}
	case *CaseNode:
		for _, w := range n.Whens {
			walk(w.Condition, fn)
			walk(w.Result, fn)
		}
		walk(n.Else, fn)
	case *InNode:
		walk(n.Operand, fn)
		for _, v := range n.List {
			walk(v, fn)
		}
	case *LikeNode:
		walk(n.Operand, fn)
	case *BetweenNode:
		walk(n.Operand, fn)
		walk(n.Lower, fn)
		walk(n.Upper, fn)
	case *IsNullNode:
		walk(n.Operand, fn)
	case *CastNode:
		walk(n.Operand, fn)
	}
}

func hasAggregate(n Node) bool {
	found := false
	walk(n, func(n Node) bool {
		if _, ok := n.(*AggregateCall); ok {
			found = true
		}
		_, isWindow := n.(*WindowCall)
		return !found && !isWindow
	})
	return found
}

func hasWindow(n Node) bool {
	found := false
	walk(n, func(n Node) bool {
		if _, ok := n.(*WindowCall); ok {
			found = true
		}
		return !found
	})
	return found
}
