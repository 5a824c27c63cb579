package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/tidwall/gjson"
)

// FromJSON converts a gjson result into a canonical value. Integral numbers
// without a fraction or exponent become int64, other numbers float64, nested
// objects are kept as their raw JSON text.
func FromJSON(r gjson.Result) interface{} {
	switch r.Type {
	case gjson.Null:
		return nil
	case gjson.False:
		return false
	case gjson.True:
		return true
	case gjson.Number:
		if !strings.ContainsAny(r.Raw, ".eE") {
			if n, err := strconv.ParseInt(r.Raw, 10, 64); err == nil {
				return n
			}
		}
		return r.Float()
	case gjson.String:
		return r.String()
	case gjson.JSON:
		if r.IsArray() {
			elems := r.Array()
			out := make([]interface{}, len(elems))
			for i, e := range elems {
				out[i] = FromJSON(e)
			}
			return out
		}
		return r.Raw
	}
	return nil
}

func parseArrayLiteral(raw string) ([]interface{}, error) {
	raw = strings.TrimSpace(raw)
	if !gjson.Valid(raw) {
		return nil, fmt.Errorf("invalid array literal %q", raw)
	}
	r := gjson.Parse(raw)
	if !r.IsArray() {
		return nil, fmt.Errorf("not an array: %q", raw)
	}
	arr, _ := FromJSON(r).([]interface{})
	return arr, nil
}

// JSONValue converts a canonical value into something encoding/json renders
// faithfully: dates become YYYY-MM-DD strings, arrays are converted element-wise.
func JSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return val.Format(DateLayout)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, e := range val {
			out[i] = JSONValue(e)
		}
		return out
	default:
		return v
	}
}

// FormatArray renders an array value as JSON text
func FormatArray(arr []interface{}) string {
	b, err := json.Marshal(JSONValue(arr))
	if err != nil {
		return fmt.Sprintf("%v", arr)
	}
	return string(b)
}
