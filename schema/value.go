package schema

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/vegasq/tabular/errors"
)

// DateLayout is the textual form of date values
const DateLayout = "2006-01-02"

// Normalize converts Go values into the canonical value model: nil, string,
// int64, float64, bool, time.Time (UTC midnight) and []interface{}.
func Normalize(v interface{}) interface{} {
	switch val := v.(type) {
	case nil:
		return nil
	case int:
		return int64(val)
	case int8:
		return int64(val)
	case int16:
		return int64(val)
	case int32:
		return int64(val)
	case uint8:
		return int64(val)
	case uint16:
		return int64(val)
	case uint32:
		return int64(val)
	case uint:
		return int64(val)
	case uint64:
		return int64(val)
	case float32:
		return float64(val)
	case time.Time:
		return TruncateDate(val)
	case []string:
		out := make([]interface{}, len(val))
		for i, s := range val {
			out[i] = s
		}
		return out
	case []int64:
		out := make([]interface{}, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out
	case []float64:
		out := make([]interface{}, len(val))
		for i, n := range val {
			out[i] = n
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = Normalize(e)
		}
		return out
	default:
		return v
	}
}

// TruncateDate drops the time of day and moves the date to UTC
func TruncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(s), time.UTC)
}

// TypeOf returns the type of a canonical value. Empty arrays report
// array<string>. The boolean is false for nil and unknown Go types.
func TypeOf(v interface{}) (Type, bool) {
	switch val := v.(type) {
	case string:
		return StringType, true
	case int64:
		return Int64Type, true
	case float64:
		return Float64Type, true
	case bool:
		return BoolType, true
	case time.Time:
		return DateType, true
	case []interface{}:
		elem := StringType
		seen := false
		for _, e := range val {
			et, ok := TypeOf(e)
			if !ok {
				continue
			}
			if !seen {
				elem, seen = et, true
				continue
			}
			elem = Widen(elem, et)
		}
		return ArrayOf(elem), true
	default:
		return Type{}, false
	}
}

// Conforms reports whether a non-nil canonical value strictly has type t
func Conforms(v interface{}, t Type) bool {
	switch t.Kind {
	case String:
		_, ok := v.(string)
		return ok
	case Int64:
		_, ok := v.(int64)
		return ok
	case Float64:
		_, ok := v.(float64)
		return ok
	case Bool:
		_, ok := v.(bool)
		return ok
	case Date:
		_, ok := v.(time.Time)
		return ok
	case Array:
		arr, ok := v.([]interface{})
		if !ok {
			return false
		}
		elem := t.ElemType()
		for _, e := range arr {
			if e != nil && !Conforms(e, elem) {
				return false
			}
		}
		return true
	}
	return false
}

// Coerce converts v to type t when the conversion loses no information:
// int64 to float64, integral float64 to int64, YYYY-MM-DD strings to dates,
// any scalar to string, and arrays element-wise. Nil stays nil.
func Coerce(v interface{}, t Type) (interface{}, error) {
	v = Normalize(v)
	if v == nil {
		return nil, nil
	}
	if Conforms(v, t) {
		return v, nil
	}
	mismatch := func() error {
		actual := fmt.Sprintf("%T", v)
		if vt, ok := TypeOf(v); ok {
			actual = vt.String()
		}
		return errors.TypeMismatchError{Expected: t.String(), Actual: actual}
	}
	switch t.Kind {
	case String:
		if _, isArr := v.([]interface{}); isArr {
			return nil, mismatch()
		}
		return FormatScalar(v), nil
	case Float64:
		if n, ok := v.(int64); ok {
			return float64(n), nil
		}
	case Int64:
		if f, ok := v.(float64); ok && f == math.Trunc(f) && !math.IsInf(f, 0) {
			return int64(f), nil
		}
	case Date:
		if s, ok := v.(string); ok {
			d, err := ParseDate(s)
			if err == nil {
				return d, nil
			}
		}
	case Array:
		if arr, ok := v.([]interface{}); ok {
			out := make([]interface{}, len(arr))
			for i, e := range arr {
				c, err := Coerce(e, t.ElemType())
				if err != nil {
					return nil, mismatch()
				}
				out[i] = c
			}
			return out, nil
		}
	}
	return nil, mismatch()
}

// ParseValue converts raw text (as read from CSV) into a value of type t
func ParseValue(raw string, t Type) (interface{}, error) {
	switch t.Kind {
	case String:
		return raw, nil
	case Int64:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, errors.TypeMismatchError{Expected: t.String(), Actual: fmt.Sprintf("%q", raw)}
		}
		return n, nil
	case Float64:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, errors.TypeMismatchError{Expected: t.String(), Actual: fmt.Sprintf("%q", raw)}
		}
		return f, nil
	case Bool:
		b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(raw)))
		if err != nil {
			return nil, errors.TypeMismatchError{Expected: t.String(), Actual: fmt.Sprintf("%q", raw)}
		}
		return b, nil
	case Date:
		d, err := ParseDate(raw)
		if err != nil {
			return nil, errors.TypeMismatchError{Expected: t.String(), Actual: fmt.Sprintf("%q", raw)}
		}
		return d, nil
	case Array:
		arr, err := parseArrayLiteral(raw)
		if err != nil {
			return nil, errors.TypeMismatchError{Expected: t.String(), Actual: fmt.Sprintf("%q", raw)}
		}
		return Coerce(arr, t)
	}
	return nil, errors.TypeMismatchError{Expected: t.String(), Actual: fmt.Sprintf("%q", raw)}
}

// FormatScalar renders a scalar value as text. Dates use DateLayout and
// floats use the shortest representation that round-trips.
func FormatScalar(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case time.Time:
		return val.Format(DateLayout)
	default:
		return fmt.Sprintf("%v", val)
	}
}
