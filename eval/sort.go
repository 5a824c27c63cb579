package eval

import (
	"sort"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/pipeline"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// orderKey is a resolved sort key
type orderKey struct {
	idx  int
	desc bool
}

func resolveOrder(s *schema.Schema, keys []pipeline.SortKey) ([]orderKey, error) {
	out := make([]orderKey, len(keys))
	for i, k := range keys {
		idx, _, err := s.Lookup(k.Column)
		if err != nil {
			return nil, err
		}
		out[i] = orderKey{idx: idx, desc: k.Desc}
	}
	return out, nil
}

// compareOrdered compares rows on the keys. Nulls sort first ascending and
// last descending.
func compareOrdered(a, b table.Row, keys []orderKey) int {
	for _, k := range keys {
		c := table.Compare(a[k.idx], b[k.idx])
		if c == 0 {
			continue
		}
		if k.desc {
			return -c
		}
		return c
	}
	return 0
}

func applySort(t *table.Table, op pipeline.Sort) (*table.Table, error) {
	if len(op.Keys) == 0 {
		return nil, errors.InvalidPlanError{Op: "sort", Reason: "no sort keys"}
	}
	keys, err := resolveOrder(t.Schema(), op.Keys)
	if err != nil {
		return nil, err
	}
	rows, err := t.Rows()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return compareOrdered(rows[i], rows[j], keys) < 0
	})
	return table.New(t.Schema(), rows)
}
