package reader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/vegasq/tabular/codec"
	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/eval"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/table"
)

// Format is an input file format
type Format string

const (
	CSV     Format = "csv"
	JSON    Format = "json"
	Parquet Format = "parquet"
	Arrow   Format = "arrow"
)

// maxFiles limits how many files one Read may open
const maxFiles = 1000

// DefaultConcurrency is the number of files read at once
const DefaultConcurrency = 4

// ParseFormat parses a format name. jsonl, ndjson, ipc and feather are
// accepted as aliases.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv", "tsv":
		return CSV, nil
	case "json", "jsonl", "ndjson":
		return JSON, nil
	case "parquet", "pq":
		return Parquet, nil
	case "arrow", "ipc", "feather":
		return Arrow, nil
	}
	return "", fmt.Errorf("unknown format %q", name)
}

// DetectFormat picks the format from a file extension, ignoring any
// compression suffix
func DetectFormat(path string) (Format, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(codec.Trim(path))), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot detect format of %s: no extension", path)
	}
	return ParseFormat(ext)
}

// Options configures Read
type Options struct {
	CSV  CSVOptions
	JSON JSONOptions
	// Concurrency bounds the number of files read at once
	Concurrency int
}

// Read reads a file, a glob pattern, or a directory of part files into one
// table. An empty format is detected per file from its extension. Files are
// read concurrently and concatenated in lexical path order; their columns are
// aligned by name.
func Read(ctx context.Context, path string, format Format, opts Options) (*table.Table, error) {
	files, err := ResolveFiles(path)
	if err != nil {
		return nil, err
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	tables := make([]*table.Table, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			t, err := readFile(file, format, opts)
			if err != nil {
				return err
			}
			// materialize lazily-read files here so they load in parallel
			if err := t.Err(); err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := tables[0]
	for i := 1; i < len(tables); i++ {
		out, err = eval.Evaluate(out, pipeline.New().Union(tables[i], true))
		if err != nil {
			return nil, fmt.Errorf("failed to combine %s: %w", files[i], err)
		}
	}
	return out, nil
}

func readFile(path string, format Format, opts Options) (*table.Table, error) {
	if format == "" {
		f, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		format = f
	}
	switch format {
	case CSV:
		return ReadCSV(path, opts.CSV)
	case JSON:
		return ReadJSON(path, opts.JSON)
	case Parquet:
		return ReadParquet(path)
	case Arrow:
		return ReadArrow(path)
	}
	return nil, fmt.Errorf("unknown format %q", string(format))
}

// ResolveFiles expands path into the data files it names: the matches of a
// glob pattern, the visible files of a directory, or the file itself. Names
// starting with "_" or "." inside a directory are skipped.
func ResolveFiles(path string) ([]string, error) {
	if strings.ContainsAny(path, "*?[") {
		matches, err := filepath.Glob(path)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern: %w", err)
		}
		if len(matches) == 0 {
			return nil, errors.IOFailure{Op: "glob", Path: path, Err: os.ErrNotExist}
		}
		return limitFiles(path, matches)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.IOFailure{Op: "stat", Path: path, Err: err}
	}
	if !info.IsDir() {
		return []string{path}, nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, errors.IOFailure{Op: "list", Path: path, Err: err}
	}
	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "_") || strings.HasPrefix(name, ".") {
			continue
		}
		files = append(files, filepath.Join(path, name))
	}
	if len(files) == 0 {
		return nil, errors.IOFailure{Op: "list", Path: path, Err: fmt.Errorf("no data files")}
	}
	return limitFiles(path, files)
}

func limitFiles(pattern string, files []string) ([]string, error) {
	if len(files) > maxFiles {
		return nil, fmt.Errorf("%s matched too many files (%d), maximum is %d", pattern, len(files), maxFiles)
	}
	sort.Strings(files)
	return files, nil
}

// openStream opens path and wraps it with the codec named by its suffix.
// Closing the stream closes both.
func openStream(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOFailure{Op: "open", Path: path, Err: err}
	}
	rc, err := codec.NewReader(f, codec.Detect(path))
	if err != nil {
		_ = f.Close()
		return nil, errors.IOFailure{Op: "decompress", Path: path, Err: err}
	}
	return &stream{ReadCloser: rc, file: f}, nil
}

type stream struct {
	io.ReadCloser
	file *os.File
}

func (s *stream) Close() error {
	var result *multierror.Error
	if err := s.ReadCloser.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.file.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
