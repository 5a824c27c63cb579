package writer

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vegasq/tabular/codec"
	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/reader"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

func sample(t *testing.T) *table.Table {
	t.Helper()
	s, err := schema.ParseDDL("id BIGINT NOT NULL, name STRING, score DOUBLE NOT NULL, active BOOLEAN, day DATE NOT NULL, tags ARRAY<STRING>")
	require.NoError(t, err)
	day := func(v string) interface{} {
		d, err := schema.ParseDate(v)
		require.NoError(t, err)
		return d
	}
	return table.MustNew(s, []table.Row{
		{int64(1), "alice", 1.5, true, day("2024-01-02"), []interface{}{"x", nil}},
		{int64(2), nil, 2.0, nil, day("1969-12-31"), []interface{}{}},
		{int64(3), "c,\"q\"", -0.25, false, day("2000-02-29"), nil},
		{int64(4), "", 0.0, false, day("2024-01-02"), []interface{}{}},
	})
}

func readBack(t *testing.T, dir string, format reader.Format, s *schema.Schema) *table.Table {
	t.Helper()
	got, err := reader.Read(context.Background(), dir, format, reader.Options{
		CSV:  reader.CSVOptions{Header: true, Schema: s},
		JSON: reader.JSONOptions{Schema: s},
	})
	require.NoError(t, err)
	return got
}

func parts(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "part-*"))
	require.NoError(t, err)
	return matches
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		format      reader.Format
		compression codec.Compression
		ext         string
	}{
		{reader.CSV, codec.None, ".csv"},
		{reader.CSV, codec.Gzip, ".csv.gz"},
		{reader.JSON, codec.None, ".json"},
		{reader.JSON, codec.Zstd, ".json.zst"},
		{reader.Parquet, codec.None, ".parquet"},
		{reader.Parquet, codec.Zstd, ".parquet"},
		{reader.Arrow, codec.None, ".arrow"},
		{reader.Arrow, codec.LZ4, ".arrow"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format)+"/"+string(tt.compression), func(t *testing.T) {
			in := sample(t)
			dir := filepath.Join(t.TempDir(), "out")
			require.NoError(t, Write(in, dir, Options{Format: tt.format, Header: true, Compression: tt.compression}))

			files := parts(t, dir)
			require.Len(t, files, 1)
			assert.Equal(t, tt.ext, filepath.Base(files[0])[len("part-")+36:])
			_, err := os.Stat(filepath.Join(dir, SuccessMarker))
			require.NoError(t, err)

			got := readBack(t, dir, tt.format, in.Schema())
			assert.Equal(t, in.Schema().DDL(), got.Schema().DDL())
			assert.True(t, table.EqualUnordered(in, got), "round trip changed rows: %v", rowsOf(t, got))
		})
	}
}

func TestCSVKeepsEmptyStrings(t *testing.T) {
	s, err := schema.ParseDDL("id BIGINT NOT NULL, name STRING NOT NULL, note STRING")
	require.NoError(t, err)
	in := table.MustNew(s, []table.Row{
		{int64(1), "", ""},
		{int64(2), "x", nil},
	})
	dir := filepath.Join(t.TempDir(), "csv")
	require.NoError(t, Write(in, dir, Options{Format: reader.CSV, Header: true}))

	got := readBack(t, dir, reader.CSV, s)
	require.Equal(t, rowsOf(t, in), rowsOf(t, got))

	// inferred columns keep the distinction too
	inferred, err := reader.Read(context.Background(), dir, reader.CSV, reader.Options{
		CSV: reader.CSVOptions{Header: true, InferSchema: true},
	})
	require.NoError(t, err)
	require.Equal(t, []table.Row{{int64(1), "", ""}, {int64(2), "x", nil}}, rowsOf(t, inferred))
}

func rowsOf(t *testing.T, tb *table.Table) []table.Row {
	rows, err := tb.Rows()
	require.NoError(t, err)
	return rows
}

func TestParquetKeepsSchemaWithoutHints(t *testing.T) {
	in := sample(t)
	dir := filepath.Join(t.TempDir(), "pq")
	require.NoError(t, Write(in, dir, Options{}))

	// parquet is the default format and carries its own schema
	got, err := reader.Read(context.Background(), dir, "", reader.Options{})
	require.NoError(t, err)
	require.Equal(t, in.Schema().Names(), got.Schema().Names())
	require.True(t, table.Equal(in, got))
}

func TestModes(t *testing.T) {
	in := sample(t)
	dir := filepath.Join(t.TempDir(), "modes")
	opts := Options{Format: reader.JSON}
	require.NoError(t, Write(in, dir, opts))

	err := Write(in, dir, opts)
	var exists errors.PathExistsError
	require.True(t, stderrors.As(err, &exists))
	require.Equal(t, dir, exists.Path)

	opts.Mode = Ignore
	require.NoError(t, Write(in, dir, opts))
	require.Len(t, parts(t, dir), 1)

	opts.Mode = Append
	require.NoError(t, Write(in, dir, opts))
	require.Len(t, parts(t, dir), 2)
	n, err := readBack(t, dir, reader.JSON, in.Schema()).Len()
	require.NoError(t, err)
	require.Equal(t, 8, n)

	opts.Mode = Overwrite
	require.NoError(t, Write(in, dir, opts))
	require.Len(t, parts(t, dir), 1)
	require.True(t, table.EqualUnordered(in, readBack(t, dir, reader.JSON, in.Schema())))
}

func TestWriteFailures(t *testing.T) {
	in := sample(t)
	root := t.TempDir()

	err := Write(in, filepath.Join(root, "a"), Options{Format: reader.Arrow, Compression: codec.Gzip})
	var plan errors.InvalidPlanError
	require.True(t, stderrors.As(err, &plan))
	_, err = os.Stat(filepath.Join(root, "a"))
	require.True(t, os.IsNotExist(err), "nothing should be created")

	file := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	err = Write(in, file, Options{Mode: Append})
	var ioErr errors.IOFailure
	require.True(t, stderrors.As(err, &ioErr))

	nested, err := schema.ParseDDL("m ARRAY<ARRAY<STRING>>")
	require.NoError(t, err)
	err = Write(table.Empty(nested), filepath.Join(root, "nested"), Options{Format: reader.Parquet})
	var se errors.SchemaError
	require.True(t, stderrors.As(err, &se))
	require.Empty(t, parts(t, filepath.Join(root, "nested")))
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ErrorIfExists, "Overwrite": Overwrite, "append": Append, "ignore": Ignore, "error-if-exists": ErrorIfExists} {
		got, err := ParseMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseMode("merge")
	require.Error(t, err)
}
