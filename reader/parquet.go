package reader

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// SchemaMetadataKey is the key/value metadata entry holding the table
// schema as DDL. Parquet groups order columns by name; the DDL restores the
// original order, types and nullability.
const SchemaMetadataKey = "tabular.schema"

// ParquetReader reads one parquet file.
//
// It maintains both an OS file handle and a parquet file handle to enable
// proper resource cleanup.
type ParquetReader struct {
	path   string
	file   *os.File
	pqFile *parquet.File
}

// NewParquetReader opens and validates a parquet file.
//
// Example:
//
//	r, err := NewParquetReader("data.parquet")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
func NewParquetReader(path string) (*ParquetReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.IOFailure{Op: "open", Path: path, Err: err}
	}

	stat, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, errors.IOFailure{Op: "stat", Path: path, Err: err}
	}

	pqFile, err := parquet.OpenFile(file, stat.Size())
	if err != nil {
		_ = file.Close()
		return nil, errors.IOFailure{Op: "open parquet", Path: path, Err: err}
	}

	return &ParquetReader{path: path, file: file, pqFile: pqFile}, nil
}

// Schema returns the parquet file schema
func (r *ParquetReader) Schema() *parquet.Schema {
	return r.pqFile.Schema()
}

// Close releases the file handle. It is safe to call Close multiple times.
func (r *ParquetReader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// parquetColumn decodes one leaf column into a table column
type parquetColumn struct {
	field    schema.Field
	leaf     int
	array    bool
	maxDef   int
	emptyDef int
	elemOpt  bool
}

// TableSchema derives the table schema: from the stored DDL when present,
// otherwise from the parquet leaves
func (r *ParquetReader) TableSchema() (*schema.Schema, error) {
	cols, err := r.columns()
	if err != nil {
		return nil, err
	}
	fields := make([]schema.Field, len(cols))
	for i, c := range cols {
		fields[i] = c.field
	}
	return schema.New(fields...)
}

func (r *ParquetReader) columns() ([]parquetColumn, error) {
	pq := r.pqFile.Schema()
	byName := make(map[string]parquetColumn)
	var order []string
	for _, path := range pq.Columns() {
		leaf, ok := pq.Lookup(path...)
		if !ok {
			continue
		}
		c := parquetColumn{leaf: leaf.ColumnIndex, maxDef: leaf.MaxDefinitionLevel}
		name := strings.Join(path, ".")
		switch {
		case leaf.MaxRepetitionLevel > 1:
			return nil, errors.SchemaError{Reason: fmt.Sprintf("column %q: nested lists are not supported", name)}
		case leaf.MaxRepetitionLevel == 1:
			c.array = true
			if n := len(path); n >= 3 && path[n-2] == "list" {
				name = strings.Join(path[:n-2], ".")
			}
			c.elemOpt = leaf.Node.Optional()
			c.emptyDef = c.maxDef - 1
			if c.elemOpt {
				c.emptyDef--
			}
		}
		t, err := leafType(name, leaf.Node)
		if err != nil {
			return nil, err
		}
		c.field = schema.Field{Name: name, Type: t, Nullable: c.maxDef > 0}
		if c.array {
			c.field.Type = schema.ArrayOf(t)
			c.field.Nullable = c.emptyDef > 0
		}
		byName[name] = c
		order = append(order, name)
	}

	ddl, ok := r.pqFile.Lookup(SchemaMetadataKey)
	if !ok {
		cols := make([]parquetColumn, len(order))
		for i, n := range order {
			cols[i] = byName[n]
		}
		return cols, nil
	}
	stored, err := schema.ParseDDL(ddl)
	if err != nil {
		return nil, fmt.Errorf("invalid %s metadata: %w", SchemaMetadataKey, err)
	}
	cols := make([]parquetColumn, stored.Len())
	for i, f := range stored.Fields() {
		c, ok := byName[f.Name]
		if !ok {
			return nil, errors.SchemaError{Reason: fmt.Sprintf("column %q from %s metadata is missing", f.Name, SchemaMetadataKey)}
		}
		c.field = f
		cols[i] = c
	}
	return cols, nil
}

// ReadAll reads every row into memory
func (r *ParquetReader) ReadAll() ([]table.Row, error) {
	cols, err := r.columns()
	if err != nil {
		return nil, err
	}
	byLeaf := make(map[int]int, len(cols))
	for i, c := range cols {
		byLeaf[c.leaf] = i
	}

	pr := parquet.NewReader(r.pqFile)
	defer func() { _ = pr.Close() }()

	var rows []table.Row
	buf := make([]parquet.Row, 256)
	values := make([][]parquet.Value, len(cols))
	for {
		n, rerr := pr.ReadRows(buf)
		for _, pqRow := range buf[:n] {
			for i := range values {
				values[i] = values[i][:0]
			}
			for _, v := range pqRow {
				if i, ok := byLeaf[v.Column()]; ok {
					values[i] = append(values[i], v)
				}
			}
			row := make(table.Row, len(cols))
			for i, c := range cols {
				val, err := c.decode(values[i])
				if err != nil {
					return nil, err
				}
				row[i] = val
			}
			rows = append(rows, row)
		}
		if stderrors.Is(rerr, io.EOF) {
			return rows, nil
		}
		if rerr != nil {
			return nil, errors.IOFailure{Op: "read", Path: r.path, Err: rerr}
		}
	}
}

func (c parquetColumn) decode(vs []parquet.Value) (interface{}, error) {
	if !c.array {
		if len(vs) == 0 || vs[0].IsNull() {
			return nil, nil
		}
		return scalarValue(vs[0], c.field.Type)
	}
	if len(vs) == 0 {
		return nil, nil
	}
	if first := vs[0]; first.IsNull() && first.DefinitionLevel() <= c.emptyDef {
		if first.DefinitionLevel() < c.emptyDef {
			return nil, nil
		}
		return []interface{}{}, nil
	}
	elem := c.field.Type.ElemType()
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		if v.IsNull() {
			continue
		}
		e, err := scalarValue(v, elem)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func scalarValue(v parquet.Value, t schema.Type) (interface{}, error) {
	var raw interface{}
	switch v.Kind() {
	case parquet.Boolean:
		raw = v.Boolean()
	case parquet.Int32:
		if t.Kind == schema.Date {
			return time.Unix(int64(v.Int32())*86400, 0).UTC(), nil
		}
		raw = int64(v.Int32())
	case parquet.Int64:
		raw = v.Int64()
	case parquet.Float:
		raw = float64(v.Float())
	case parquet.Double:
		raw = v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		raw = string(v.ByteArray())
	default:
		return nil, errors.TypeMismatchError{Expected: t.String(), Actual: v.Kind().String()}
	}
	return schema.Coerce(raw, t)
}

// ReadParquet reads a parquet file into a table
func ReadParquet(path string) (*table.Table, error) {
	r, err := NewParquetReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	s, err := r.TableSchema()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return table.New(s, rows)
}
