package reader

import (
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// ReadArrow reads an Arrow IPC file. All record batches are concatenated.
func ReadArrow(path string) (t *table.Table, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOFailure{Op: "open", Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.IOFailure{Op: "close", Path: path, Err: cerr}
		}
	}()

	mem := memory.NewGoAllocator()
	r, err := ipc.NewFileReader(f, ipc.WithAllocator(mem))
	if err != nil {
		return nil, errors.IOFailure{Op: "open arrow", Path: path, Err: err}
	}
	defer func() { _ = r.Close() }()

	s, err := FromArrowSchema(r.Schema())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var rows []table.Row
	for i := 0; i < r.NumRecords(); i++ {
		rec, err := r.Record(i)
		if err != nil {
			return nil, errors.IOFailure{Op: "read", Path: path, Err: err}
		}
		for row := 0; row < int(rec.NumRows()); row++ {
			out := make(table.Row, rec.NumCols())
			for c := 0; c < int(rec.NumCols()); c++ {
				out[c] = arrowValue(rec.Column(c), row)
			}
			rows = append(rows, out)
		}
	}
	return table.New(s, rows)
}

// FromArrowSchema maps an Arrow schema onto a table schema
func FromArrowSchema(as *arrow.Schema) (*schema.Schema, error) {
	fields := make([]schema.Field, as.NumFields())
	for i, f := range as.Fields() {
		t, err := fromArrowType(f.Name, f.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = schema.Field{Name: f.Name, Type: t, Nullable: f.Nullable}
	}
	return schema.New(fields...)
}

func fromArrowType(name string, dt arrow.DataType) (schema.Type, error) {
	switch dt.ID() {
	case arrow.STRING, arrow.LARGE_STRING, arrow.BINARY:
		return schema.StringType, nil
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64, arrow.UINT8, arrow.UINT16, arrow.UINT32:
		return schema.Int64Type, nil
	case arrow.FLOAT32, arrow.FLOAT64:
		return schema.Float64Type, nil
	case arrow.BOOL:
		return schema.BoolType, nil
	case arrow.DATE32:
		return schema.DateType, nil
	case arrow.LIST:
		elem, err := fromArrowType(name, dt.(*arrow.ListType).Elem())
		if err != nil {
			return schema.Type{}, err
		}
		return schema.ArrayOf(elem), nil
	}
	return schema.Type{}, errors.SchemaError{Reason: fmt.Sprintf("column %q has unsupported arrow type %s", name, dt)}
}

func arrowValue(arr arrow.Array, i int) interface{} {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Binary:
		return string(a.Value(i))
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Uint8:
		return int64(a.Value(i))
	case *array.Uint16:
		return int64(a.Value(i))
	case *array.Uint32:
		return int64(a.Value(i))
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.Date32:
		return a.Value(i).ToTime().UTC()
	case *array.List:
		start, end := a.ValueOffsets(i)
		values := a.ListValues()
		out := make([]interface{}, 0, end-start)
		for j := start; j < end; j++ {
			out = append(out, arrowValue(values, int(j)))
		}
		return out
	}
	return nil
}
