package schema

import (
	"strconv"
	"strings"
)

// DefaultSamplingLimit is the number of rows an Inferrer inspects by default
const DefaultSamplingLimit = 1000

// Inferrer derives a schema from a bounded prefix of rows. Each column's type
// is widened to the narrowest common supertype of the values seen, and the
// column is nullable if any null was seen.
type Inferrer struct {
	names    []string
	types    []Type
	seen     []bool
	nullable []bool
	limit    int
	rows     int
}

// NewInferrer creates an inferrer over the given columns. A limit of zero or
// less means DefaultSamplingLimit.
func NewInferrer(names []string, limit int) *Inferrer {
	if limit <= 0 {
		limit = DefaultSamplingLimit
	}
	return &Inferrer{
		names:    append([]string(nil), names...),
		types:    make([]Type, len(names)),
		seen:     make([]bool, len(names)),
		nullable: make([]bool, len(names)),
		limit:    limit,
	}
}

// Done reports whether the sampling limit has been reached
func (in *Inferrer) Done() bool {
	return in.rows >= in.limit
}

// Observe records one row of canonical values. Rows past the sampling limit
// are ignored. Missing trailing values count as null.
func (in *Inferrer) Observe(values []interface{}) {
	if in.Done() {
		return
	}
	in.rows++
	for i := range in.names {
		var v interface{}
		if i < len(values) {
			v = values[i]
		}
		in.observeValue(i, v)
	}
}

// ObserveText records one row of raw text fields, classifying each field
// with ClassifyText. Fields equal to nullValue are null.
func (in *Inferrer) ObserveText(fields []string, nullValue string) {
	values := make([]interface{}, len(fields))
	for i, f := range fields {
		values[i] = ClassifyText(f, nullValue)
	}
	in.Observe(values)
}

func (in *Inferrer) observeValue(i int, v interface{}) {
	if v == nil {
		in.nullable[i] = true
		return
	}
	t, ok := TypeOf(Normalize(v))
	if !ok {
		t = StringType
	}
	if !in.seen[i] {
		in.types[i] = t
		in.seen[i] = true
		return
	}
	in.types[i] = Widen(in.types[i], t)
}

// Schema returns the inferred schema. Columns that only held nulls become
// nullable strings.
func (in *Inferrer) Schema() (*Schema, error) {
	fields := make([]Field, len(in.names))
	for i, name := range in.names {
		t := in.types[i]
		if !in.seen[i] {
			t = StringType
			in.nullable[i] = true
		}
		fields[i] = Field{Name: name, Type: t, Nullable: in.nullable[i]}
	}
	return New(fields...)
}

// ClassifyText converts a raw text field into the most specific canonical
// value it represents: null, int64, float64, bool, date, a JSON array, or
// the string itself. Empty fields classify as null.
func ClassifyText(raw, nullValue string) interface{} {
	if raw == nullValue || raw == "" {
		return nil
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return raw
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !isSpecialFloat(s) {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if len(s) == len(DateLayout) {
		if d, err := ParseDate(s); err == nil {
			return d
		}
	}
	if strings.HasPrefix(s, "[") {
		if arr, err := parseArrayLiteral(s); err == nil {
			return arr
		}
	}
	return raw
}

// isSpecialFloat rejects words strconv accepts as floats ("inf", "nan")
func isSpecialFloat(s string) bool {
	l := strings.ToLower(strings.TrimLeft(s, "+-"))
	return strings.HasPrefix(l, "inf") || strings.HasPrefix(l, "nan")
}
