package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/vegasq/tabular/codec"
	"github.com/vegasq/tabular/eval"
	"github.com/vegasq/tabular/logging"
	"github.com/vegasq/tabular/output"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/plan"
	"github.com/vegasq/tabular/query"
	"github.com/vegasq/tabular/reader"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
	"github.com/vegasq/tabular/udf"
	"github.com/vegasq/tabular/writer"
)

// listFlag collects a repeatable flag
type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

type options struct {
	query      string
	planFile   string
	tables     listFlag
	udfs       listFlag
	input      string
	ddl        string
	header     bool
	infer      bool
	delimiter  string
	nullValue  string
	format     string
	limit      int
	schemaOnly bool

	out         string
	outFormat   string
	mode        string
	compression string

	logLevel string
	logJSON  bool
	seqURL   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (*options, []string, error) {
	flags := flag.NewFlagSet("tabular", flag.ContinueOnError)
	flags.SetOutput(stderr)

	var o options
	flags.StringVar(&o.query, "q", "", "SQL query (e.g., \"select * from sales where amount > 30\")")
	flags.StringVar(&o.planFile, "plan", "", "Run a YAML pipeline plan")
	flags.Var(&o.tables, "t", "Register a table as name=path (repeatable)")
	flags.Var(&o.udfs, "udf", "Register a Go function as name:type=file.go (repeatable)")
	flags.StringVar(&o.input, "i", "", "Input format: csv, json, parquet, arrow (default: by extension)")
	flags.StringVar(&o.ddl, "ddl", "", "Explicit input schema (e.g., \"name string, age int\")")
	flags.BoolVar(&o.header, "header", true, "CSV input has a header line")
	flags.BoolVar(&o.infer, "infer", true, "Infer CSV column types")
	flags.StringVar(&o.delimiter, "delimiter", ",", "CSV field delimiter")
	flags.StringVar(&o.nullValue, "null", "", "CSV null marker (default \\N)")
	flags.StringVar(&o.format, "f", "table", "Display format: table, json, jsonl, csv")
	flags.IntVar(&o.limit, "limit", 0, "Limit number of rows (0 = unlimited)")
	flags.BoolVar(&o.schemaOnly, "schema", false, "Show schema information instead of data")
	flags.StringVar(&o.out, "o", "", "Write the result to this directory instead of displaying it")
	flags.StringVar(&o.outFormat, "of", "", "Output file format (default: parquet)")
	flags.StringVar(&o.mode, "mode", "error", "Write mode: error, overwrite, append, ignore")
	flags.StringVar(&o.compression, "compression", "", "Output compression: gzip, zstd, lz4, brotli, snappy")
	flags.StringVar(&o.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	flags.BoolVar(&o.logJSON, "log-json", false, "Log as JSON")
	flags.StringVar(&o.seqURL, "seq", "", "Also send logs to a Seq server at this URL")

	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: tabular [options] [file ...]\n\n")
		fmt.Fprintf(stderr, "Read, transform and query CSV, JSON, Parquet and Arrow files.\n\n")
		fmt.Fprintf(stderr, "IMPORTANT: All flags must come BEFORE file arguments.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		flags.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  tabular sales.csv\n")
		fmt.Fprintf(stderr, "  tabular -f csv sales.parquet\n")
		fmt.Fprintf(stderr, "  tabular -q \"select dept, sum(amount) from sales group by dept\" sales.csv\n")
		fmt.Fprintf(stderr, "  tabular -t e=emp.json -t d=dept.csv -q \"select * from e join d using (dept_id)\"\n")
		fmt.Fprintf(stderr, "  tabular -q \"select * from 'logs/*.json' where level = 'error'\"\n")
		fmt.Fprintf(stderr, "  tabular -plan daily.yaml\n")
		fmt.Fprintf(stderr, "  tabular -schema data.parquet\n")
	}

	if err := flags.Parse(args); err != nil {
		return nil, nil, err
	}

	if o.limit < 0 {
		return nil, nil, fmt.Errorf("-limit must be non-negative, got %d", o.limit)
	}
	if o.schemaOnly && (o.query != "" || o.planFile != "") {
		return nil, nil, fmt.Errorf("-schema cannot be combined with -q or -plan")
	}
	if o.query != "" && o.planFile != "" {
		return nil, nil, fmt.Errorf("-q and -plan cannot be used together")
	}
	return &o, flags.Args(), nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	o, files, err := parseFlags(args, stderr)
	if stderrors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	level, err := logging.ParseLevel(o.logLevel)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	logger, closeLog := logging.Setup(logging.Options{Level: level, Output: stderr, JSON: o.logJSON, SeqURL: o.seqURL})
	defer closeLog()

	if err := execute(ctx, o, files, stdout, logger); err != nil {
		logger.Debug("command failed", slog.Any("error", err))
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func execute(ctx context.Context, o *options, files []string, stdout io.Writer, logger *slog.Logger) error {
	for _, spec := range o.udfs {
		if err := registerUDF(spec); err != nil {
			return err
		}
	}

	readOpts, format, err := o.readOptions()
	if err != nil {
		return err
	}

	if o.schemaOnly {
		if len(files) == 0 {
			return fmt.Errorf("missing file argument")
		}
		return showSchema(ctx, files[0], format, readOpts, o.format, stdout)
	}

	cat := query.NewCatalog(query.WithLogger(logger))
	for _, spec := range o.tables {
		name, path, ok := strings.Cut(spec, "=")
		if !ok || name == "" || path == "" {
			return fmt.Errorf("invalid -t %q, expected name=path", spec)
		}
		if err := register(ctx, cat, name, path, format, readOpts); err != nil {
			return err
		}
	}
	for _, path := range files {
		if err := register(ctx, cat, tableName(path), path, format, readOpts); err != nil {
			return err
		}
	}

	var result *table.Table
	switch {
	case o.planFile != "":
		p, err := plan.Load(o.planFile)
		if err != nil {
			return err
		}
		if result, err = p.Run(ctx, cat, logger); err != nil {
			return err
		}
		if p.Output != nil && o.out == "" {
			return nil
		}
	case o.query != "":
		q, err := query.Parse(o.query)
		if err != nil {
			return fmt.Errorf("failed to parse query: %w", err)
		}
		// tables named by a path that exists are read on demand
		for _, ref := range sources(q) {
			if _, ok := cat.Table(ref); ok {
				continue
			}
			if _, err := reader.ResolveFiles(ref); err != nil {
				continue
			}
			if err := register(ctx, cat, ref, ref, format, readOpts); err != nil {
				return err
			}
		}
		if result, err = cat.Query(o.query); err != nil {
			return err
		}
	default:
		names := cat.Names()
		switch len(names) {
		case 0:
			return fmt.Errorf("missing file argument, -q or -plan")
		case 1:
			result, _ = cat.Table(names[0])
		default:
			return fmt.Errorf("%d tables registered, use -q to choose", len(names))
		}
	}

	if o.limit > 0 {
		limited, err := eval.New(eval.WithLogger(logger)).Evaluate(result, pipeline.New().Limit(o.limit))
		if err != nil {
			return err
		}
		result = limited
	}

	if o.out != "" {
		return o.write(result, logger)
	}
	formatter, err := output.New(o.format, stdout)
	if err != nil {
		return err
	}
	return formatter.Format(result)
}

func (o *options) readOptions() (reader.Options, reader.Format, error) {
	var format reader.Format
	if o.input != "" {
		f, err := reader.ParseFormat(o.input)
		if err != nil {
			return reader.Options{}, "", err
		}
		format = f
	}
	var s *schema.Schema
	if o.ddl != "" {
		var err error
		if s, err = schema.ParseDDL(o.ddl); err != nil {
			return reader.Options{}, "", err
		}
	}
	opts := reader.Options{
		CSV: reader.CSVOptions{
			Header:      o.header,
			Schema:      s,
			InferSchema: o.infer,
			NullValue:   o.nullValue,
		},
		JSON: reader.JSONOptions{Schema: s},
	}
	if o.delimiter != "" {
		opts.CSV.Delimiter = []rune(o.delimiter)[0]
	}
	return opts, format, nil
}

func (o *options) write(t *table.Table, logger *slog.Logger) error {
	opts := writer.Options{
		Header:    o.header,
		NullValue: o.nullValue,
		Logger:    logger,
	}
	var err error
	if o.outFormat != "" {
		if opts.Format, err = reader.ParseFormat(o.outFormat); err != nil {
			return err
		}
	}
	if opts.Mode, err = writer.ParseMode(o.mode); err != nil {
		return err
	}
	if opts.Compression, err = codec.Parse(o.compression); err != nil {
		return err
	}
	if o.delimiter != "" {
		opts.Delimiter = []rune(o.delimiter)[0]
	}
	return writer.Write(t, o.out, opts)
}

func register(ctx context.Context, cat *query.Catalog, name, path string, format reader.Format, opts reader.Options) error {
	t, err := reader.Read(ctx, path, format, opts)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("file '%s' not found", path)
		}
		return err
	}
	return cat.Register(name, t)
}

// registerUDF handles name:type=file.go
func registerUDF(spec string) error {
	head, path, ok := strings.Cut(spec, "=")
	if !ok {
		return fmt.Errorf("invalid -udf %q, expected name:type=file.go", spec)
	}
	name, typ, ok := strings.Cut(head, ":")
	if !ok || name == "" {
		return fmt.Errorf("invalid -udf %q, expected name:type=file.go", spec)
	}
	ret, err := schema.ParseType(typ)
	if err != nil {
		return err
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read udf %s: %w", name, err)
	}
	return udf.Register(name, string(src), ret, udf.WithArity(0, -1))
}

// tableName derives a table name from a file path: the base name without
// extensions, with anything but letters, digits and underscores replaced
func tableName(path string) string {
	base := filepath.Base(codec.Trim(path))
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return '_'
	}, base)
	if name == "" || unicode.IsDigit(rune(name[0])) {
		name = "t_" + name
	}
	return name
}

// sources lists the table names a query reads, excluding its CTEs
func sources(q *query.Query) []string {
	var names []string
	ctes := map[string]bool{}
	var visit func(q *query.Query)
	ref := func(r query.TableRef) {
		if r.Subquery != nil {
			visit(r.Subquery)
			return
		}
		if r.Name != "" && !ctes[strings.ToLower(r.Name)] {
			names = append(names, r.Name)
		}
	}
	visit = func(q *query.Query) {
		for _, c := range q.CTEs {
			visit(c.Query)
			ctes[strings.ToLower(c.Name)] = true
		}
		ref(q.From)
		for _, j := range q.Joins {
			ref(j.Table)
		}
	}
	visit(q)
	return names
}

// showSchema prints the columns of a file. Parquet files show their
// physical layout; other formats show the resolved schema.
func showSchema(ctx context.Context, path string, format reader.Format, opts reader.Options, display string, stdout io.Writer) error {
	files, err := reader.ResolveFiles(path)
	if err != nil {
		return err
	}
	first := files[0]
	if format == "" {
		if format, err = reader.DetectFormat(first); err != nil {
			return err
		}
	}

	var info *table.Table
	if format == reader.Parquet {
		infos, err := reader.ExtractSchemaInfo(first)
		if err != nil {
			return err
		}
		rows := make([]table.Row, len(infos))
		for i, f := range infos {
			rows[i] = table.Row{f.Name, f.Type, f.PhysicalType, f.LogicalType, f.Required, f.Optional, f.Repeated}
		}
		info, err = table.New(parquetInfoSchema, rows)
		if err != nil {
			return err
		}
	} else {
		t, err := reader.Read(ctx, first, format, opts)
		if err != nil {
			return err
		}
		fields := t.Schema().Fields()
		rows := make([]table.Row, len(fields))
		for i, f := range fields {
			rows[i] = table.Row{f.Name, f.Type.String(), f.Nullable}
		}
		info, err = table.New(fieldInfoSchema, rows)
		if err != nil {
			return err
		}
	}

	formatter, err := output.New(display, stdout)
	if err != nil {
		return err
	}
	return formatter.Format(info)
}

var (
	parquetInfoSchema = schema.MustNew(
		schema.Field{Name: "name", Type: schema.StringType},
		schema.Field{Name: "type", Type: schema.StringType},
		schema.Field{Name: "physical_type", Type: schema.StringType},
		schema.Field{Name: "logical_type", Type: schema.StringType},
		schema.Field{Name: "required", Type: schema.BoolType},
		schema.Field{Name: "optional", Type: schema.BoolType},
		schema.Field{Name: "repeated", Type: schema.BoolType},
	)
	fieldInfoSchema = schema.MustNew(
		schema.Field{Name: "name", Type: schema.StringType},
		schema.Field{Name: "type", Type: schema.StringType},
		schema.Field{Name: "nullable", Type: schema.BoolType},
	)
)
