package writer

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"

	"github.com/vegasq/tabular/codec"
	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/reader"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// parquetLeaf maps one table column onto its parquet leaf column.
// Arrays are written as LIST groups with optional elements.
type parquetLeaf struct {
	pos      int
	index    int
	field    schema.Field
	nullable bool
	array    bool
}

func parquetCodec(c codec.Compression) compress.Codec {
	switch c {
	case codec.Gzip:
		return &parquet.Gzip
	case codec.Zstd:
		return &parquet.Zstd
	case codec.LZ4:
		return &parquet.Lz4Raw
	case codec.Brotli:
		return &parquet.Brotli
	}
	return &parquet.Uncompressed
}

func parquetNode(f schema.Field) (parquet.Node, error) {
	t := f.Type
	if t.Kind == schema.Array {
		if t.ElemType().Kind == schema.Array {
			return nil, errors.SchemaError{Reason: fmt.Sprintf("column %q: nested arrays cannot be written to parquet", f.Name)}
		}
		t = t.ElemType()
	}

	var node parquet.Node
	switch t.Kind {
	case schema.String:
		node = parquet.String()
	case schema.Int64:
		node = parquet.Leaf(parquet.Int64Type)
	case schema.Float64:
		node = parquet.Leaf(parquet.DoubleType)
	case schema.Bool:
		node = parquet.Leaf(parquet.BooleanType)
	case schema.Date:
		node = parquet.Date()
	default:
		return nil, errors.SchemaError{Reason: fmt.Sprintf("column %q has unsupported type %s", f.Name, f.Type)}
	}

	if f.Type.Kind == schema.Array {
		node = parquet.List(parquet.Optional(node))
	}
	if f.Nullable {
		node = parquet.Optional(node)
	}
	return node, nil
}

// parquetLayout builds the parquet schema for s and the leaf of every
// column in leaf order
func parquetLayout(s *schema.Schema) (*parquet.Schema, []parquetLeaf, error) {
	group := make(parquet.Group, s.Len())
	for _, f := range s.Fields() {
		node, err := parquetNode(f)
		if err != nil {
			return nil, nil, err
		}
		group[f.Name] = node
	}
	pq := parquet.NewSchema("tabular", group)

	leaves := make([]parquetLeaf, s.Len())
	for i, f := range s.Fields() {
		path := []string{f.Name}
		array := f.Type.Kind == schema.Array
		if array {
			path = append(path, "list", "element")
		}
		leaf, ok := pq.Lookup(path...)
		if !ok {
			return nil, nil, errors.SchemaError{Reason: fmt.Sprintf("column %q missing from parquet schema", f.Name)}
		}
		leaves[i] = parquetLeaf{pos: i, index: leaf.ColumnIndex, field: f, nullable: f.Nullable, array: array}
	}
	sort.Slice(leaves, func(i, j int) bool { return leaves[i].index < leaves[j].index })
	return pq, leaves, nil
}

func writeParquet(w io.Writer, t *table.Table, opts Options) error {
	s := t.Schema()
	pq, leaves, err := parquetLayout(s)
	if err != nil {
		return err
	}

	pw := parquet.NewWriter(w, pq,
		parquet.KeyValueMetadata(reader.SchemaMetadataKey, s.DDL()),
		parquet.Compression(parquetCodec(opts.Compression)),
	)

	const batchSize = 256
	batch := make([]parquet.Row, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if _, err := pw.WriteRows(batch); err != nil {
			return err
		}
		batch = batch[:0]
		return nil
	}

	err = t.Each(func(_ int, r table.Row) error {
		var row parquet.Row
		for _, l := range leaves {
			var err error
			if row, err = l.append(row, r[l.pos]); err != nil {
				return err
			}
		}
		batch = append(batch, row)
		if len(batch) == batchSize {
			return flush()
		}
		return nil
	})
	if err == nil {
		err = flush()
	}
	if err != nil {
		_ = pw.Close()
		return err
	}
	return pw.Close()
}

// append adds the levelled values of v to row.
//
// For a nullable column the definition level is 1 for present values. An
// array adds a repeated level (empty arrays stop there) and an optional
// element level.
func (l parquetLeaf) append(row parquet.Row, v interface{}) (parquet.Row, error) {
	base := 0
	if l.nullable {
		base = 1
	}
	if v == nil {
		return append(row, parquet.NullValue().Level(0, 0, l.index)), nil
	}
	if !l.array {
		pv, err := parquetValue(v, l.field)
		if err != nil {
			return nil, err
		}
		return append(row, pv.Level(0, base, l.index)), nil
	}

	arr, _ := v.([]interface{})
	if len(arr) == 0 {
		return append(row, parquet.NullValue().Level(0, base, l.index)), nil
	}
	elem := schema.Field{Name: l.field.Name, Type: l.field.Type.ElemType()}
	for i, e := range arr {
		rep := 0
		if i > 0 {
			rep = 1
		}
		if e == nil {
			row = append(row, parquet.NullValue().Level(rep, base+1, l.index))
			continue
		}
		pv, err := parquetValue(e, elem)
		if err != nil {
			return nil, err
		}
		row = append(row, pv.Level(rep, base+2, l.index))
	}
	return row, nil
}

func parquetValue(v interface{}, f schema.Field) (parquet.Value, error) {
	switch val := v.(type) {
	case string:
		return parquet.ByteArrayValue([]byte(val)), nil
	case int64:
		if f.Type.Kind == schema.Float64 {
			return parquet.DoubleValue(float64(val)), nil
		}
		return parquet.Int64Value(val), nil
	case float64:
		return parquet.DoubleValue(val), nil
	case bool:
		return parquet.BooleanValue(val), nil
	case time.Time:
		return parquet.Int32Value(int32(schema.TruncateDate(val).Unix() / 86400)), nil
	}
	return parquet.Value{}, errors.TypeMismatchError{Column: f.Name, Expected: f.Type.String(), Actual: fmt.Sprintf("%T", v)}
}
