// Package reader loads tables from CSV, JSON, Parquet and Arrow files.
//
// A path may name a single file, a directory of part files or a glob
// pattern. Compressed files are recognized by their extension (.gz, .zst,
// .lz4, .br) and decompressed transparently.
//
// # Basic Usage
//
// Reading with format detection:
//
//	t, err := reader.Read(ctx, "data/*.csv.gz", "", reader.Options{
//	    CSV: reader.CSVOptions{Header: true, InferSchema: true},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Multiple files are read concurrently and combined by column name in
// lexical file order. Names starting with "_" or "." inside a directory
// (_SUCCESS, checksum files) are skipped.
//
// # Schemas
//
// CSV and JSON readers either infer the schema from a sample of records
// (SamplingLimit) or take an explicit one. With an explicit schema the CSV
// reader is lazy: the file is opened only when rows are requested.
//
// Parquet files written by this module carry their DDL in the
// "tabular.schema" key/value metadata so that column order, types and
// nullability survive a round trip. Files from other writers are mapped
// from their leaf types.
//
// # Schema Introspection
//
//	infos, err := reader.ExtractSchemaInfo("data.parquet")
//	for _, info := range infos {
//	    fmt.Printf("%s: %s\n", info.Name, info.Type)
//	}
//
// # Resource Management
//
// Always call Close() on a ParquetReader when done to release file handles.
//
// The package uses github.com/parquet-go/parquet-go and
// github.com/apache/arrow-go for the columnar formats.
package reader
