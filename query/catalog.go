package query

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vegasq/tabular/eval"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/table"
)

// Catalog holds named tables that queries can reference. It is safe for
// concurrent use; table names are case-insensitive.
type Catalog struct {
	mu     sync.RWMutex
	tables map[string]*table.Table

	evaluator *eval.Evaluator
	logger    *slog.Logger
}

// Option configures a Catalog
type Option func(*Catalog)

// WithLogger sets the logger for query and per-op records
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewCatalog creates an empty catalog
func NewCatalog(opts ...Option) *Catalog {
	c := &Catalog{tables: map[string]*table.Table{}, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	c.evaluator = eval.New(eval.WithLogger(c.logger))
	return c
}

// Register adds t under name, replacing any table of that name
func (c *Catalog) Register(name string, t *table.Table) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	if err := DefaultLimits.name("table", name); err != nil {
		return err
	}
	if t == nil {
		return fmt.Errorf("table %q is nil", name)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tables[strings.ToLower(name)] = t
	return nil
}

// Deregister removes a table. Unknown names are ignored.
func (c *Catalog) Deregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tables, strings.ToLower(name))
}

// Table returns the table registered under name
func (c *Catalog) Table(name string) (*table.Table, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.tables[strings.ToLower(name)]
	return t, ok
}

// Names returns the registered names in sorted order
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.tables))
	for name := range c.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Plan parses sql and returns the table it reads and the pipeline that
// computes the result from it. Joined tables, CTEs and subqueries,
// including those used as values, are materialized while planning.
func (c *Catalog) Plan(sql string) (*table.Table, pipeline.Pipeline, error) {
	q, err := Parse(sql)
	if err != nil {
		return nil, pipeline.Pipeline{}, fmt.Errorf("failed to parse query: %w", err)
	}
	return c.plan(q, nil)
}

// Query parses, plans and evaluates sql
func (c *Catalog) Query(sql string) (*table.Table, error) {
	start := time.Now()
	in, p, err := c.Plan(sql)
	if err != nil {
		return nil, err
	}
	out, err := c.evaluator.Evaluate(in, p)
	if err != nil {
		return nil, err
	}
	rows, _ := out.Len()
	c.logger.Debug("query executed",
		slog.String("pipeline", p.String()),
		slog.Int("rows", rows),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// plan evaluates the CTEs of q in order, each seeing the ones before it, and
// plans the main SELECT against them and the registered tables
func (c *Catalog) plan(q *Query, outer map[string]*table.Table) (*table.Table, pipeline.Pipeline, error) {
	scope := make(map[string]*table.Table, len(outer)+len(q.CTEs))
	for name, t := range outer {
		scope[name] = t
	}
	for _, cte := range q.CTEs {
		t, err := c.execute(cte.Query, scope)
		if err != nil {
			return nil, pipeline.Pipeline{}, fmt.Errorf("failed to evaluate %s: %w", cte.Name, err)
		}
		scope[strings.ToLower(cte.Name)] = t
	}

	lookup := func(name string) (*table.Table, bool) {
		if t, ok := scope[strings.ToLower(name)]; ok {
			return t, true
		}
		return c.Table(name)
	}
	resolve := func(sub *Query) (*table.Table, error) {
		return c.execute(sub, scope)
	}
	return plan(q, lookup, resolve)
}

func (c *Catalog) execute(q *Query, scope map[string]*table.Table) (*table.Table, error) {
	in, p, err := c.plan(q, scope)
	if err != nil {
		return nil, err
	}
	return c.evaluator.Evaluate(in, p)
}
