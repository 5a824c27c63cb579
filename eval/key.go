package eval

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/vegasq/tabular/table"
)

// hashKey hashes a tuple of values. int64 and float64 values that compare
// equal hash equally, so numeric keys of mixed kinds land in one bucket.
func hashKey(vals []interface{}) uint64 {
	d := xxhash.New()
	var buf [9]byte
	for _, v := range vals {
		writeValue(d, buf[:], v)
	}
	return d.Sum64()
}

func writeValue(d *xxhash.Digest, buf []byte, v interface{}) {
	switch val := v.(type) {
	case nil:
		buf[0] = 'n'
		_, _ = d.Write(buf[:1])
	case int64:
		writeNumber(d, buf, float64(val))
	case float64:
		writeNumber(d, buf, val)
	case bool:
		buf[0] = 'b'
		buf[1] = 0
		if val {
			buf[1] = 1
		}
		_, _ = d.Write(buf[:2])
	case string:
		buf[0] = 's'
		binary.LittleEndian.PutUint64(buf[1:], uint64(len(val)))
		_, _ = d.Write(buf[:9])
		_, _ = d.WriteString(val)
	case time.Time:
		buf[0] = 'd'
		binary.LittleEndian.PutUint64(buf[1:], uint64(val.Unix()))
		_, _ = d.Write(buf[:9])
	case []interface{}:
		buf[0] = 'a'
		binary.LittleEndian.PutUint64(buf[1:], uint64(len(val)))
		_, _ = d.Write(buf[:9])
		for _, e := range val {
			writeValue(d, buf, e)
		}
	}
}

func writeNumber(d *xxhash.Digest, buf []byte, f float64) {
	if f == 0 {
		f = 0 // fold -0 into +0
	}
	buf[0] = 'f'
	binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(f))
	_, _ = d.Write(buf[:9])
}

// grouper assigns dense ids to distinct key tuples in first-seen order.
// Nulls are equal to each other here.
type grouper struct {
	buckets map[uint64][]int
	keys    [][]interface{}
}

func newGrouper() *grouper {
	return &grouper{buckets: make(map[uint64][]int)}
}

// id returns the group id of key, creating a group when key is new
func (g *grouper) id(key []interface{}) (int, bool) {
	h := hashKey(key)
	for _, id := range g.buckets[h] {
		if keysEqual(g.keys[id], key) {
			return id, false
		}
	}
	id := len(g.keys)
	g.keys = append(g.keys, key)
	g.buckets[h] = append(g.buckets[h], id)
	return id, true
}

// len returns the number of groups
func (g *grouper) len() int {
	return len(g.keys)
}

func keysEqual(a, b []interface{}) bool {
	for i := range a {
		if table.Compare(a[i], b[i]) != 0 {
			return false
		}
	}
	return true
}

func hasNull(vals []interface{}) bool {
	for _, v := range vals {
		if v == nil {
			return true
		}
	}
	return false
}

// pick extracts the values at idx from row
func pick(row table.Row, idx []int) []interface{} {
	out := make([]interface{}, len(idx))
	for i, j := range idx {
		out[i] = row[j]
	}
	return out
}
