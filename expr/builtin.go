package expr

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// builtin is a Function defined by plain funcs
type builtin struct {
	name     string
	min, max int
	nullSafe bool
	ret      func(args []schema.Type) (schema.Type, error)
	eval     func(args []interface{}) (interface{}, error)
}

func (b *builtin) Name() string       { return b.name }
func (b *builtin) MinArity() int      { return b.min }
func (b *builtin) MaxArity() int      { return b.max }
func (b *builtin) AcceptsNulls() bool { return b.nullSafe }

func (b *builtin) ReturnType(args []schema.Type) (schema.Type, error) {
	return b.ret(args)
}

func (b *builtin) Evaluate(args []interface{}) (interface{}, error) {
	return b.eval(args)
}

func returns(t schema.Type) func([]schema.Type) (schema.Type, error) {
	return func([]schema.Type) (schema.Type, error) { return t, nil }
}

func numericReturns(t schema.Type, sameAsInput bool) func([]schema.Type) (schema.Type, error) {
	return func(args []schema.Type) (schema.Type, error) {
		for _, a := range args {
			if !a.IsNumeric() {
				return schema.Type{}, errors.TypeMismatchError{Expected: "numeric", Actual: a.String()}
			}
		}
		if sameAsInput {
			return args[0], nil
		}
		return t, nil
	}
}

func dateReturns(t schema.Type) func([]schema.Type) (schema.Type, error) {
	return func(args []schema.Type) (schema.Type, error) {
		if args[0].Kind != schema.Date && args[0].Kind != schema.String {
			return schema.Type{}, errors.TypeMismatchError{Expected: "date", Actual: args[0].String()}
		}
		return t, nil
	}
}

func stringFunc(name string, fn func(string) string) Function {
	return &builtin{
		name: name, min: 1, max: 1,
		ret: returns(schema.StringType),
		eval: func(args []interface{}) (interface{}, error) {
			return fn(asString(args[0])), nil
		},
	}
}

func builtins() []Function {
	return []Function{
		stringFunc("upper", strings.ToUpper),
		stringFunc("lower", strings.ToLower),
		stringFunc("trim", strings.TrimSpace),
		stringFunc("ltrim", func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) }),
		stringFunc("rtrim", func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) }),
		stringFunc("reverse", func(s string) string {
			r := []rune(s)
			for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
				r[i], r[j] = r[j], r[i]
			}
			return string(r)
		}),
		stringFunc("initcap", func(s string) string {
			words := strings.Fields(strings.ToLower(s))
			for i, w := range words {
				r := []rune(w)
				r[0] = unicode.ToUpper(r[0])
				words[i] = string(r)
			}
			return strings.Join(words, " ")
		}),
		&builtin{
			name: "length", min: 1, max: 1,
			ret: returns(schema.Int64Type),
			eval: func(args []interface{}) (interface{}, error) {
				return int64(len([]rune(asString(args[0])))), nil
			},
		},
		&builtin{
			name: "concat", min: 1, max: -1,
			ret: returns(schema.StringType),
			eval: func(args []interface{}) (interface{}, error) {
				var sb strings.Builder
				for _, a := range args {
					sb.WriteString(asString(a))
				}
				return sb.String(), nil
			},
		},
		&builtin{
			name: "concat_ws", min: 2, max: -1, nullSafe: true,
			ret: returns(schema.StringType),
			eval: func(args []interface{}) (interface{}, error) {
				if args[0] == nil {
					return nil, nil
				}
				parts := make([]string, 0, len(args)-1)
				for _, a := range args[1:] {
					if a != nil {
						parts = append(parts, asString(a))
					}
				}
				return strings.Join(parts, asString(args[0])), nil
			},
		},
		&builtin{
			name: "substring", min: 2, max: 3,
			ret: returns(schema.StringType),
			eval: func(args []interface{}) (interface{}, error) {
				r := []rune(asString(args[0]))
				pos, ok := args[1].(int64)
				if !ok {
					return nil, fmt.Errorf("position must be an integer")
				}
				start := int(pos) - 1
				if pos < 0 {
					start = len(r) + int(pos)
				}
				if pos == 0 {
					start = 0
				}
				start = max(0, min(start, len(r)))
				end := len(r)
				if len(args) == 3 {
					n, ok := args[2].(int64)
					if !ok {
						return nil, fmt.Errorf("length must be an integer")
					}
					end = max(start, min(start+int(n), len(r)))
				}
				return string(r[start:end]), nil
			},
		},
		&builtin{
			name: "replace", min: 3, max: 3,
			ret: returns(schema.StringType),
			eval: func(args []interface{}) (interface{}, error) {
				return strings.ReplaceAll(asString(args[0]), asString(args[1]), asString(args[2])), nil
			},
		},
		&builtin{
			name: "split", min: 2, max: 2,
			ret: returns(schema.ArrayOf(schema.StringType)),
			eval: func(args []interface{}) (interface{}, error) {
				parts := strings.Split(asString(args[0]), asString(args[1]))
				out := make([]interface{}, len(parts))
				for i, p := range parts {
					out[i] = p
				}
				return out, nil
			},
		},
		predicateFunc("contains", strings.Contains),
		predicateFunc("startswith", strings.HasPrefix),
		predicateFunc("endswith", strings.HasSuffix),
		&builtin{
			name: "abs", min: 1, max: 1,
			ret: numericReturns(schema.Type{}, true),
			eval: func(args []interface{}) (interface{}, error) {
				switch n := args[0].(type) {
				case int64:
					if n < 0 {
						return -n, nil
					}
					return n, nil
				case float64:
					return math.Abs(n), nil
				}
				return nil, fmt.Errorf("not a number: %v", args[0])
			},
		},
		&builtin{
			name: "round", min: 1, max: 2,
			ret: numericReturns(schema.Type{}, true),
			eval: func(args []interface{}) (interface{}, error) {
				digits := int64(0)
				if len(args) == 2 {
					d, ok := args[1].(int64)
					if !ok {
						return nil, fmt.Errorf("digits must be an integer")
					}
					digits = d
				}
				switch n := args[0].(type) {
				case int64:
					return n, nil
				case float64:
					scale := math.Pow(10, float64(digits))
					return math.Round(n*scale) / scale, nil
				}
				return nil, fmt.Errorf("not a number: %v", args[0])
			},
		},
		mathFunc("floor", math.Floor, schema.Int64Type),
		mathFunc("ceil", math.Ceil, schema.Int64Type),
		mathFunc("sqrt", math.Sqrt, schema.Float64Type),
		&builtin{
			name: "pow", min: 2, max: 2,
			ret: numericReturns(schema.Float64Type, false),
			eval: func(args []interface{}) (interface{}, error) {
				x, _ := toFloat(args[0])
				y, _ := toFloat(args[1])
				return math.Pow(x, y), nil
			},
		},
		datePartFunc("year", func(t time.Time) int64 { return int64(t.Year()) }),
		datePartFunc("month", func(t time.Time) int64 { return int64(t.Month()) }),
		datePartFunc("day", func(t time.Time) int64 { return int64(t.Day()) }),
		&builtin{
			name: "to_date", min: 1, max: 1,
			ret: returns(schema.DateType),
			eval: func(args []interface{}) (interface{}, error) {
				return CastValue(args[0], schema.DateType), nil
			},
		},
		&builtin{
			name: "size", min: 1, max: 1,
			ret: arrayReturns(schema.Int64Type),
			eval: func(args []interface{}) (interface{}, error) {
				arr, _ := args[0].([]interface{})
				return int64(len(arr)), nil
			},
		},
		&builtin{
			name: "array_contains", min: 2, max: 2,
			ret: arrayReturns(schema.BoolType),
			eval: func(args []interface{}) (interface{}, error) {
				arr, _ := args[0].([]interface{})
				for _, e := range arr {
					if e != nil && table.Compare(e, args[1]) == 0 {
						return true, nil
					}
				}
				return false, nil
			},
		},
		&builtin{
			name: "nullif", min: 2, max: 2, nullSafe: true,
			ret: func(args []schema.Type) (schema.Type, error) { return args[0], nil },
			eval: func(args []interface{}) (interface{}, error) {
				if args[0] == nil || (args[1] != nil && table.Compare(args[0], args[1]) == 0) {
					return nil, nil
				}
				return args[0], nil
			},
		},
	}
}

func predicateFunc(name string, fn func(s, sub string) bool) Function {
	return &builtin{
		name: name, min: 2, max: 2,
		ret: returns(schema.BoolType),
		eval: func(args []interface{}) (interface{}, error) {
			return fn(asString(args[0]), asString(args[1])), nil
		},
	}
}

func mathFunc(name string, fn func(float64) float64, out schema.Type) Function {
	return &builtin{
		name: name, min: 1, max: 1,
		ret: numericReturns(out, false),
		eval: func(args []interface{}) (interface{}, error) {
			x, _ := toFloat(args[0])
			r := fn(x)
			if out.Kind == schema.Int64 {
				return int64(r), nil
			}
			if math.IsNaN(r) {
				return nil, nil
			}
			return r, nil
		},
	}
}

func datePartFunc(name string, part func(time.Time) int64) Function {
	return &builtin{
		name: name, min: 1, max: 1,
		ret: dateReturns(schema.Int64Type),
		eval: func(args []interface{}) (interface{}, error) {
			d, ok := CastValue(args[0], schema.DateType).(time.Time)
			if !ok {
				return nil, nil
			}
			return part(d), nil
		},
	}
}

func arrayReturns(t schema.Type) func([]schema.Type) (schema.Type, error) {
	return func(args []schema.Type) (schema.Type, error) {
		if args[0].Kind != schema.Array {
			return schema.Type{}, errors.TypeMismatchError{Expected: "array", Actual: args[0].String()}
		}
		return t, nil
	}
}

func asString(v interface{}) string {
	if arr, ok := v.([]interface{}); ok {
		return schema.FormatArray(arr)
	}
	return schema.FormatScalar(v)
}
