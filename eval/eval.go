// Package eval interprets pipelines against tables.
//
// Evaluation is a pure function of the input table and the pipeline: the
// input is never modified and either the final table or the first error is
// returned, never a partial result. Ops run in order, each producing a new
// in-memory table that feeds the next.
package eval

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/table"
)

// Evaluator runs pipelines. The zero value is not usable; call New.
type Evaluator struct {
	logger *slog.Logger
}

// Option configures an Evaluator
type Option func(*Evaluator)

// WithLogger sets the logger used for per-op debug records
func WithLogger(l *slog.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an evaluator
func New(opts ...Option) *Evaluator {
	e := &Evaluator{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs p against in with a default evaluator
func Evaluate(in *table.Table, p pipeline.Pipeline) (*table.Table, error) {
	return New().Evaluate(in, p)
}

// Evaluate runs every op of p in order. Errors name the failing op and its
// position and wrap the underlying typed error.
func (e *Evaluator) Evaluate(in *table.Table, p pipeline.Pipeline) (*table.Table, error) {
	if err := in.Err(); err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	cur := in
	for i, op := range p.Ops() {
		start := time.Now()
		before, _ := cur.Len()
		next, err := e.apply(cur, op)
		if err != nil {
			return nil, fmt.Errorf("%s (step %d): %w", op.Name(), i+1, err)
		}
		after, _ := next.Len()
		e.logger.Debug("op applied",
			"op", op.Name(),
			"step", i+1,
			"rows_in", before,
			"rows_out", after,
			"duration", time.Since(start),
		)
		cur = next
	}
	return cur, nil
}

func (e *Evaluator) apply(t *table.Table, op pipeline.Op) (*table.Table, error) {
	switch o := op.(type) {
	case pipeline.Select:
		return applySelect(t, o)
	case pipeline.Project:
		return applyProject(t, o)
	case pipeline.Filter:
		return applyFilter(t, o)
	case pipeline.WithColumn:
		return applyWithColumn(t, o)
	case pipeline.Drop:
		return applyDrop(t, o)
	case pipeline.Rename:
		return applyRename(t, o)
	case pipeline.Join:
		return applyJoin(t, o)
	case pipeline.GroupAggregate:
		return applyAggregate(t, o)
	case pipeline.Window:
		return applyWindow(t, o)
	case pipeline.DropNulls:
		return applyDropNulls(t, o)
	case pipeline.FillNulls:
		return applyFillNulls(t, o)
	case pipeline.Sort:
		return applySort(t, o)
	case pipeline.Dedupe:
		return applyDedupe(t, o)
	case pipeline.Union:
		return applyUnion(t, o)
	case pipeline.Limit:
		return applyLimit(t, o)
	}
	return nil, fmt.Errorf("unsupported op %T", op)
}
