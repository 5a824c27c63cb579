// Package codec wraps readers and writers with stream compression for the
// text formats (CSV and JSON lines). Parquet and Arrow files compress
// internally and only borrow the Compression names from here.
package codec

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression names a stream compression codec
type Compression string

const (
	None   Compression = "none"
	Gzip   Compression = "gzip"
	Zstd   Compression = "zstd"
	LZ4    Compression = "lz4"
	Brotli Compression = "brotli"
)

var extensions = map[Compression]string{
	None:   "",
	Gzip:   ".gz",
	Zstd:   ".zst",
	LZ4:    ".lz4",
	Brotli: ".br",
}

// Parse parses a codec name. The empty string and "uncompressed" mean None.
func Parse(name string) (Compression, error) {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "", "none", "uncompressed":
		return None, nil
	case "gz":
		return Gzip, nil
	case "zst", "zstandard":
		return Zstd, nil
	case "br":
		return Brotli, nil
	default:
		c := Compression(n)
		if _, ok := extensions[c]; ok {
			return c, nil
		}
	}
	return None, fmt.Errorf("unknown compression %q", name)
}

// Extension returns the file suffix for the codec, e.g. ".gz"
func (c Compression) Extension() string {
	return extensions[c]
}

// Detect picks the codec from a file name suffix
func Detect(path string) Compression {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return None
	}
	for c, e := range extensions {
		if e == ext {
			return c
		}
	}
	return None
}

// Trim removes a compression suffix from path
func Trim(path string) string {
	if c := Detect(path); c != None {
		return strings.TrimSuffix(path, path[len(path)-len(c.Extension()):])
	}
	return path
}

// NewWriter wraps w so that written bytes are compressed. Closing the result
// flushes the codec but does not close w.
func NewWriter(w io.Writer, c Compression) (io.WriteCloser, error) {
	switch c {
	case None, "":
		return nopWriteCloser{w}, nil
	case Gzip:
		return gzip.NewWriter(w), nil
	case Zstd:
		enc, err := zstd.NewWriter(w)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", err)
		}
		return enc, nil
	case LZ4:
		return lz4.NewWriter(w), nil
	case Brotli:
		return brotli.NewWriter(w), nil
	}
	return nil, fmt.Errorf("unknown compression %q", string(c))
}

// NewReader wraps r so that reads return decompressed bytes. Closing the
// result releases the codec but does not close r.
func NewReader(r io.Reader, c Compression) (io.ReadCloser, error) {
	switch c {
	case None, "":
		return io.NopCloser(r), nil
	case Gzip:
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		return zr, nil
	case Zstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		return dec.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	case Brotli:
		return io.NopCloser(brotli.NewReader(r)), nil
	}
	return nil, fmt.Errorf("unknown compression %q", string(c))
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
