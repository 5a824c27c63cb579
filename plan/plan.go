// Package plan loads pipeline definitions from YAML.
//
// A plan names its inputs, the table the pipeline starts from (or a SQL
// query producing it), an ordered list of steps and an optional output:
//
//	inputs:
//	  sales: {path: sales.csv, header: true, infer_schema: true}
//	  depts: {path: depts.json}
//	from: sales
//	steps:
//	  - filter: "amount > 10"
//	  - join: {right: depts, on: [dept_id]}
//	  - group_by:
//	      keys: [department]
//	      aggs: [{func: sum, column: amount, as: total}]
//	  - sort: [total desc]
//	  - limit: 10
//	output: {path: out, format: parquet, mode: overwrite}
//
// Filter and with_column expressions use SQL expression syntax.
package plan

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vegasq/tabular/codec"
	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/eval"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/query"
	"github.com/vegasq/tabular/reader"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
	"github.com/vegasq/tabular/writer"
)

// Plan is a parsed pipeline definition
type Plan struct {
	Inputs map[string]Input `yaml:"inputs"`
	// From names the table the steps start from. It may be omitted when
	// there is exactly one input.
	From string `yaml:"from"`
	// Query, when set, produces the starting table instead of From
	Query  string  `yaml:"query"`
	Steps  []Step  `yaml:"steps"`
	Output *Output `yaml:"output"`

	// dir resolves relative paths
	dir string
}

// Input describes a table to read
type Input struct {
	Path        string `yaml:"path"`
	Format      string `yaml:"format"`
	Schema      string `yaml:"schema"`
	Header      bool   `yaml:"header"`
	InferSchema bool   `yaml:"infer_schema"`
	Delimiter   string `yaml:"delimiter"`
	NullValue   string `yaml:"null_value"`
	MultiLine   bool   `yaml:"multi_line"`
}

// Output describes where the result is written
type Output struct {
	Path        string `yaml:"path"`
	Format      string `yaml:"format"`
	Mode        string `yaml:"mode"`
	Header      bool   `yaml:"header"`
	Delimiter   string `yaml:"delimiter"`
	NullValue   string `yaml:"null_value"`
	Compression string `yaml:"compression"`
}

// Load reads a plan file. Relative paths in the plan are resolved against
// the file's directory.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IOFailure{Op: "read", Path: path, Err: err}
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}
	p.dir = filepath.Dir(path)
	return p, nil
}

// Parse decodes a plan document. Unknown keys are errors.
func Parse(data []byte) (*Plan, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var p Plan
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	if len(p.Inputs) == 0 && p.Query == "" && p.From == "" {
		return nil, errors.InvalidPlanError{Op: "plan", Reason: "no inputs, from or query"}
	}
	if p.From != "" && p.Query != "" {
		return nil, errors.InvalidPlanError{Op: "plan", Reason: "from and query are mutually exclusive"}
	}
	for i, s := range p.Steps {
		if _, err := s.kind(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return &p, nil
}

func (p *Plan) resolve(path string) string {
	if p.dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.dir, path)
}

// Register reads every input and registers it in cat under its name
func (p *Plan) Register(ctx context.Context, cat *query.Catalog) error {
	names := make([]string, 0, len(p.Inputs))
	for name := range p.Inputs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		t, err := p.read(ctx, p.Inputs[name])
		if err != nil {
			return fmt.Errorf("input %s: %w", name, err)
		}
		if err := cat.Register(name, t); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plan) read(ctx context.Context, in Input) (*table.Table, error) {
	if in.Path == "" {
		return nil, errors.InvalidPlanError{Op: "read", Reason: "input has no path"}
	}
	var format reader.Format
	if in.Format != "" {
		f, err := reader.ParseFormat(in.Format)
		if err != nil {
			return nil, err
		}
		format = f
	}
	var s *schema.Schema
	if in.Schema != "" {
		var err error
		if s, err = schema.ParseDDL(in.Schema); err != nil {
			return nil, err
		}
	}
	opts := reader.Options{
		CSV: reader.CSVOptions{
			Header:      in.Header,
			Schema:      s,
			InferSchema: in.InferSchema,
			NullValue:   in.NullValue,
		},
		JSON: reader.JSONOptions{Schema: s, MultiLine: in.MultiLine},
	}
	if in.Delimiter != "" {
		opts.CSV.Delimiter = []rune(in.Delimiter)[0]
	}
	return reader.Read(ctx, p.resolve(in.Path), format, opts)
}

// Build returns the starting table and the pipeline of the plan's steps.
// Inputs must already be registered in cat.
func (p *Plan) Build(cat *query.Catalog) (*table.Table, pipeline.Pipeline, error) {
	var (
		in  *table.Table
		out pipeline.Pipeline
	)
	switch {
	case p.Query != "":
		var err error
		if in, out, err = cat.Plan(p.Query); err != nil {
			return nil, pipeline.Pipeline{}, err
		}
	default:
		from := p.From
		if from == "" {
			if len(p.Inputs) != 1 {
				return nil, pipeline.Pipeline{}, errors.InvalidPlanError{Op: "from", Reason: "from is required with several inputs"}
			}
			for name := range p.Inputs {
				from = name
			}
		}
		t, ok := cat.Table(from)
		if !ok {
			return nil, pipeline.Pipeline{}, errors.InvalidPlanError{Op: "from", Reason: fmt.Sprintf("table %q is not registered", from)}
		}
		in = t
	}

	for i, s := range p.Steps {
		next, err := s.apply(out, cat)
		if err != nil {
			kind, _ := s.kind()
			return nil, pipeline.Pipeline{}, fmt.Errorf("step %d (%s): %w", i+1, kind, err)
		}
		out = next
	}
	return in, out, nil
}

// Run registers the inputs, evaluates the plan and writes the output when
// one is configured
func (p *Plan) Run(ctx context.Context, cat *query.Catalog, logger *slog.Logger) (*table.Table, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	if err := p.Register(ctx, cat); err != nil {
		return nil, err
	}
	in, pl, err := p.Build(cat)
	if err != nil {
		return nil, err
	}
	result, err := eval.New(eval.WithLogger(logger)).Evaluate(in, pl)
	if err != nil {
		return nil, err
	}

	if p.Output != nil {
		opts, err := p.Output.options(logger)
		if err != nil {
			return nil, err
		}
		if err := writer.Write(result, p.resolve(p.Output.Path), opts); err != nil {
			return nil, err
		}
	}
	logger.Info("plan finished",
		slog.String("pipeline", pl.String()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (o *Output) options(logger *slog.Logger) (writer.Options, error) {
	if o.Path == "" {
		return writer.Options{}, errors.InvalidPlanError{Op: "write", Reason: "output has no path"}
	}
	opts := writer.Options{Header: o.Header, NullValue: o.NullValue, Logger: logger}
	var err error
	if o.Format != "" {
		if opts.Format, err = reader.ParseFormat(o.Format); err != nil {
			return opts, err
		}
	}
	if opts.Mode, err = writer.ParseMode(o.Mode); err != nil {
		return opts, err
	}
	if opts.Compression, err = codec.Parse(o.Compression); err != nil {
		return opts, err
	}
	if o.Delimiter != "" {
		opts.Delimiter = []rune(o.Delimiter)[0]
	}
	return opts, nil
}
