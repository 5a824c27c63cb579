package table

import (
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.ParseDDL("name STRING NOT NULL, score DOUBLE, tags ARRAY<STRING>")
	require.NoError(t, err)
	return s
}

func TestNewValidatesRows(t *testing.T) {
	s := testSchema(t)

	tbl, err := New(s, []Row{
		{"a", 1, []interface{}{"x"}},
		{"b", nil, nil},
	})
	require.NoError(t, err)
	rows, err := tbl.Rows()
	require.NoError(t, err)
	require.Equal(t, 1.0, rows[0][1], "int widened into float column")

	_, err = New(s, []Row{{"a", 1.0}})
	var schemaErr errors.SchemaError
	require.True(t, stderrors.As(err, &schemaErr))

	_, err = New(s, []Row{{nil, 1.0, nil}})
	var tm errors.TypeMismatchError
	require.True(t, stderrors.As(err, &tm))
	require.Equal(t, "name", tm.Column)

	_, err = New(s, []Row{{"a", "high", nil}})
	require.True(t, stderrors.As(err, &tm))
	require.Equal(t, "score", tm.Column)
	require.Equal(t, "float64", tm.Expected)
	require.Equal(t, "string", tm.Actual)
}

func TestTableIsImmutable(t *testing.T) {
	s := testSchema(t)
	src := []Row{{"a", 1.0, nil}}
	tbl := MustNew(s, src)

	src[0][0] = "mutated"
	rows, err := tbl.Rows()
	require.NoError(t, err)
	require.Equal(t, "a", rows[0][0])

	rows[0][0] = "mutated again"
	again, err := tbl.Rows()
	require.NoError(t, err)
	require.Equal(t, "a", again[0][0])
}

func TestFromProducerRunsOnce(t *testing.T) {
	s := testSchema(t)
	calls := 0
	var mu sync.Mutex
	tbl := FromProducer(s, func(emit func(Row) error) error {
		mu.Lock()
		calls++
		mu.Unlock()
		for i := 0; i < 3; i++ {
			if err := emit(Row{fmt.Sprint(i), float64(i), nil}); err != nil {
				return err
			}
		}
		return nil
	})
	require.Equal(t, 0, calls)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := tbl.Len()
			assert.NoError(t, err)
			assert.Equal(t, 3, n)
		}()
	}
	wg.Wait()
	require.Equal(t, 1, calls)
}

func TestFromProducerError(t *testing.T) {
	s := testSchema(t)
	tbl := FromProducer(s, func(emit func(Row) error) error {
		return emit(Row{"a", "bad", nil})
	})
	_, err := tbl.Rows()
	var tm errors.TypeMismatchError
	require.True(t, stderrors.As(err, &tm))
	require.Equal(t, err, tbl.Err())
}

func TestFromMaps(t *testing.T) {
	s := testSchema(t)
	tbl, err := FromMaps(s, []map[string]interface{}{
		{"name": "a", "score": 2.5},
		{"name": "b", "tags": []string{"t1", "t2"}},
	})
	require.NoError(t, err)
	rows, err := tbl.Rows()
	require.NoError(t, err)
	require.Equal(t, Row{"a", 2.5, nil}, rows[0])
	require.Equal(t, Row{"b", nil, []interface{}{"t1", "t2"}}, rows[1])

	_, err = FromMaps(s, []map[string]interface{}{{"missing": 1}})
	var nf errors.ColumnNotFoundError
	require.True(t, stderrors.As(err, &nf))
}

func TestCompare(t *testing.T) {
	d1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		a, b interface{}
		want int
	}{
		{nil, nil, 0},
		{nil, int64(1), -1},
		{"a", nil, 1},
		{int64(1), 1.5, -1},
		{2.0, int64(2), 0},
		{"b", "a", 1},
		{false, true, -1},
		{d1, d2, -1},
		{[]interface{}{int64(1)}, []interface{}{int64(1), int64(2)}, -1},
		{[]interface{}{"b"}, []interface{}{"a", "z"}, 1},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Compare(tt.a, tt.b), "Compare(%v, %v)", tt.a, tt.b)
	}
}

func TestEqualUnordered(t *testing.T) {
	s := testSchema(t)
	a := MustNew(s, []Row{{"a", 1.0, nil}, {"b", 2.0, nil}})
	b := MustNew(s, []Row{{"b", 2.0, nil}, {"a", 1.0, nil}})

	require.False(t, Equal(a, b))
	require.True(t, EqualUnordered(a, b))
	require.True(t, Equal(a, a))

	c := MustNew(s, []Row{{"a", 1.0, nil}, {"a", 1.0, nil}})
	require.False(t, EqualUnordered(a, c))
}

func TestHeadAndColumn(t *testing.T) {
	s := testSchema(t)
	tbl := MustNew(s, []Row{{"a", 1.0, nil}, {"b", 2.0, nil}, {"c", 3.0, nil}})

	h, err := tbl.Head(2)
	require.NoError(t, err)
	n, err := h.Len()
	require.NoError(t, err)
	require.Equal(t, 2, n)

	col, err := tbl.Column("score")
	require.NoError(t, err)
	require.Equal(t, []interface{}{1.0, 2.0, 3.0}, col)
}
