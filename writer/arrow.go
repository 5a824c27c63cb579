package writer

import (
	"fmt"
	"io"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/vegasq/tabular/codec"
	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// ToArrowSchema maps a table schema onto an Arrow schema
func ToArrowSchema(s *schema.Schema) *arrow.Schema {
	fields := make([]arrow.Field, s.Len())
	for i, f := range s.Fields() {
		fields[i] = arrow.Field{Name: f.Name, Type: arrowType(f.Type), Nullable: f.Nullable}
	}
	return arrow.NewSchema(fields, nil)
}

func arrowType(t schema.Type) arrow.DataType {
	switch t.Kind {
	case schema.Int64:
		return arrow.PrimitiveTypes.Int64
	case schema.Float64:
		return arrow.PrimitiveTypes.Float64
	case schema.Bool:
		return arrow.FixedWidthTypes.Boolean
	case schema.Date:
		return arrow.FixedWidthTypes.Date32
	case schema.Array:
		return arrow.ListOf(arrowType(t.ElemType()))
	default:
		return arrow.BinaryTypes.String
	}
}

func arrowOptions(c codec.Compression) ([]ipc.Option, error) {
	switch c {
	case codec.None:
		return nil, nil
	case codec.Zstd:
		return []ipc.Option{ipc.WithZstd()}, nil
	case codec.LZ4:
		return []ipc.Option{ipc.WithLZ4()}, nil
	}
	return nil, errors.InvalidPlanError{Op: "write", Reason: fmt.Sprintf("arrow files support lz4 and zstd compression, not %s", c)}
}

// writeArrow writes the table as a single record batch
func writeArrow(w io.Writer, t *table.Table, opts Options) error {
	extra, err := arrowOptions(opts.Compression)
	if err != nil {
		return err
	}
	mem := memory.NewGoAllocator()
	as := ToArrowSchema(t.Schema())

	b := array.NewRecordBuilder(mem, as)
	defer b.Release()
	err = t.Each(func(_ int, r table.Row) error {
		for i, v := range r {
			if err := appendArrow(b.Field(i), v); err != nil {
				return fmt.Errorf("column %q: %w", as.Field(i).Name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	rec := b.NewRecord()
	defer rec.Release()

	fw, err := ipc.NewFileWriter(w, append([]ipc.Option{ipc.WithSchema(as), ipc.WithAllocator(mem)}, extra...)...)
	if err != nil {
		return err
	}
	if err := fw.Write(rec); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

func appendArrow(b array.Builder, v interface{}) error {
	if v == nil {
		b.AppendNull()
		return nil
	}
	switch bb := b.(type) {
	case *array.StringBuilder:
		if s, ok := v.(string); ok {
			bb.Append(s)
			return nil
		}
	case *array.Int64Builder:
		if n, ok := v.(int64); ok {
			bb.Append(n)
			return nil
		}
	case *array.Float64Builder:
		switch n := v.(type) {
		case float64:
			bb.Append(n)
			return nil
		case int64:
			bb.Append(float64(n))
			return nil
		}
	case *array.BooleanBuilder:
		if x, ok := v.(bool); ok {
			bb.Append(x)
			return nil
		}
	case *array.Date32Builder:
		if d, ok := v.(time.Time); ok {
			bb.Append(arrow.Date32FromTime(d))
			return nil
		}
	case *array.ListBuilder:
		if arr, ok := v.([]interface{}); ok {
			bb.Append(true)
			for _, e := range arr {
				if err := appendArrow(bb.ValueBuilder(), e); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return errors.TypeMismatchError{Expected: b.Type().String(), Actual: fmt.Sprintf("%T", v)}
}
