// Package writer persists tables as directories of part files.
//
// Every Write produces one part file named part-<uuid>.<ext> inside the
// target directory and marks the directory complete with an empty _SUCCESS
// file. The part is written under a hidden temporary name and renamed into
// place, so readers never observe a partially written part.
//
//	err := writer.Write(t, "out/sales", writer.Options{
//	    Format: reader.Parquet,
//	    Mode:   writer.Overwrite,
//	})
package writer

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vegasq/tabular/codec"
	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/reader"
	"github.com/vegasq/tabular/table"
)

// Mode decides what happens when the target path already exists
type Mode string

const (
	// ErrorIfExists fails with errors.PathExistsError
	ErrorIfExists Mode = "error"
	// Ignore leaves the existing data untouched and writes nothing
	Ignore Mode = "ignore"
	// Overwrite replaces the existing directory
	Overwrite Mode = "overwrite"
	// Append adds a new part file next to the existing ones
	Append Mode = "append"
)

// SuccessMarker is created in the target directory after a successful write
const SuccessMarker = "_SUCCESS"

// ParseMode parses a mode name. The empty string means ErrorIfExists.
func ParseMode(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "error", "errorifexists", "error-if-exists":
		return ErrorIfExists, nil
	case "ignore":
		return Ignore, nil
	case "overwrite":
		return Overwrite, nil
	case "append":
		return Append, nil
	}
	return "", fmt.Errorf("unknown write mode %q", name)
}

// Options configures Write
type Options struct {
	// Format defaults to parquet
	Format reader.Format
	// Mode defaults to ErrorIfExists
	Mode Mode
	// Header writes a header record (csv only)
	Header bool
	// Delimiter defaults to ',' (csv only)
	Delimiter rune
	// NullValue is the text written for nulls, reader.DefaultNullValue
	// when empty (csv only)
	NullValue string
	// Compression is a stream codec for csv and json and the column or
	// buffer codec for parquet and arrow
	Compression codec.Compression
	Logger      *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = reader.Parquet
	}
	if o.Mode == "" {
		o.Mode = ErrorIfExists
	}
	if o.Compression == "" {
		o.Compression = codec.None
	}
	if o.NullValue == "" {
		o.NullValue = reader.DefaultNullValue
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Write stores t under the directory path according to opts
func Write(t *table.Table, path string, opts Options) error {
	opts = opts.withDefaults()
	if err := t.Err(); err != nil {
		return err
	}
	encode, ext, err := encoderFor(opts)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	switch {
	case err == nil:
		switch opts.Mode {
		case ErrorIfExists:
			return errors.PathExistsError{Path: path}
		case Ignore:
			opts.Logger.Debug("write skipped, path exists", slog.String("path", path))
			return nil
		case Overwrite:
			if err := os.RemoveAll(path); err != nil {
				return errors.IOFailure{Op: "remove", Path: path, Err: err}
			}
		case Append:
			if !info.IsDir() {
				return errors.IOFailure{Op: "append", Path: path, Err: fmt.Errorf("not a directory")}
			}
		default:
			return fmt.Errorf("unknown write mode %q", opts.Mode)
		}
	case !os.IsNotExist(err):
		return errors.IOFailure{Op: "stat", Path: path, Err: err}
	}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return errors.IOFailure{Op: "mkdir", Path: path, Err: err}
	}

	start := time.Now()
	name := "part-" + uuid.NewString() + ext
	final := filepath.Join(path, name)
	if err := writeAtomic(final, func(w io.Writer) error { return encode(w, t, opts) }); err != nil {
		return err
	}

	marker := filepath.Join(path, SuccessMarker)
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return errors.IOFailure{Op: "write", Path: marker, Err: err}
	}

	n, _ := t.Len()
	opts.Logger.Info("table written",
		slog.String("path", final),
		slog.String("format", string(opts.Format)),
		slog.String("mode", string(opts.Mode)),
		slog.Int("row_count", n),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

type encoder func(w io.Writer, t *table.Table, opts Options) error

// encoderFor returns the encoder for the configured format and the part
// file extension
func encoderFor(opts Options) (encoder, string, error) {
	switch opts.Format {
	case reader.CSV:
		return streamed(writeCSV), ".csv" + opts.Compression.Extension(), nil
	case reader.JSON:
		return streamed(writeJSON), ".json" + opts.Compression.Extension(), nil
	case reader.Parquet:
		return writeParquet, ".parquet", nil
	case reader.Arrow:
		if _, err := arrowOptions(opts.Compression); err != nil {
			return nil, "", err
		}
		return writeArrow, ".arrow", nil
	}
	return nil, "", fmt.Errorf("unsupported output format %q", opts.Format)
}

// streamed wraps a text encoder with the stream codec
func streamed(enc encoder) encoder {
	return func(w io.Writer, t *table.Table, opts Options) error {
		cw, err := codec.NewWriter(w, opts.Compression)
		if err != nil {
			return err
		}
		if err := enc(cw, t, opts); err != nil {
			_ = cw.Close()
			return err
		}
		return cw.Close()
	}
}

// writeAtomic writes to a hidden sibling of path and renames it into place.
// The temporary file is removed on any failure.
func writeAtomic(path string, fill func(io.Writer) error) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return errors.IOFailure{Op: "create", Path: tmp, Err: err}
	}

	if err := fill(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return errors.IOFailure{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return errors.IOFailure{Op: "close", Path: tmp, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.IOFailure{Op: "rename", Path: path, Err: err}
	}
	return nil
}
