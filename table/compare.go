package table

import (
	"sort"
	"time"
)

// Compare orders two canonical values. Nil sorts before everything, int64
// and float64 compare numerically, arrays compare element by element. Values
// of unrelated types are ordered by kind so the order stays total.
func Compare(a, b interface{}) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}

	switch av := a.(type) {
	case int64:
		switch bv := b.(type) {
		case int64:
			return cmpOrdered(av, bv)
		case float64:
			return cmpOrdered(float64(av), bv)
		}
	case float64:
		switch bv := b.(type) {
		case float64:
			return cmpOrdered(av, bv)
		case int64:
			return cmpOrdered(av, float64(bv))
		}
	case string:
		if bv, ok := b.(string); ok {
			return cmpOrdered(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	case []interface{}:
		if bv, ok := b.([]interface{}); ok {
			for i := 0; i < len(av) && i < len(bv); i++ {
				if c := Compare(av[i], bv[i]); c != 0 {
					return c
				}
			}
			return cmpOrdered(len(av), len(bv))
		}
	}
	return cmpOrdered(kindRank(a), kindRank(b))
}

func cmpOrdered[T int | int64 | float64 | string](a, b T) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

func kindRank(v interface{}) int {
	switch v.(type) {
	case bool:
		return 1
	case int64, float64:
		return 2
	case string:
		return 3
	case time.Time:
		return 4
	case []interface{}:
		return 5
	default:
		return 6
	}
}

// CompareRows compares two rows value by value
func CompareRows(a, b Row) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmpOrdered(len(a), len(b))
}

// Equal reports whether two tables have equal schemas and equal rows in the
// same order. A materialization error on either side makes them unequal.
func Equal(a, b *Table) bool {
	if !a.Schema().Equal(b.Schema()) {
		return false
	}
	ar, err := a.Rows()
	if err != nil {
		return false
	}
	br, err := b.Rows()
	if err != nil {
		return false
	}
	if len(ar) != len(br) {
		return false
	}
	for i := range ar {
		if CompareRows(ar[i], br[i]) != 0 {
			return false
		}
	}
	return true
}

// EqualUnordered reports whether two tables have equal schemas and the same
// multiset of rows
func EqualUnordered(a, b *Table) bool {
	if !a.Schema().Equal(b.Schema()) {
		return false
	}
	ar, err := a.Rows()
	if err != nil {
		return false
	}
	br, err := b.Rows()
	if err != nil {
		return false
	}
	if len(ar) != len(br) {
		return false
	}
	sortRows(ar)
	sortRows(br)
	for i := range ar {
		if CompareRows(ar[i], br[i]) != 0 {
			return false
		}
	}
	return true
}

func sortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return CompareRows(rows[i], rows[j]) < 0
	})
}
