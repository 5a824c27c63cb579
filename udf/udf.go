// Package udf provides user-defined scalar functions.
//
// A UDF is either a native Go function or Go source interpreted with yaegi.
// Source must declare package udf and an exported function with the Func
// signature:
//
//	package udf
//
//	import "strings"
//
//	func Shout(args []interface{}) (interface{}, error) {
//		s, _ := args[0].(string)
//		return strings.ToUpper(s) + "!", nil
//	}
//
// Registered UDFs are callable with expr.Call and from SQL queries.
package udf

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/vegasq/tabular/expr"
	"github.com/vegasq/tabular/schema"
)

// Func is the signature of a UDF body. Arguments arrive as column values
// (string, int64, float64, bool, time.Time, []interface{}); a nil result
// is a SQL null.
type Func func(args []interface{}) (interface{}, error)

// UDF adapts a Func to expr.Function
type UDF struct {
	name     string
	min, max int
	ret      schema.Type
	nullSafe bool
	fn       Func
}

// Option configures a UDF
type Option func(*UDF)

// WithArity sets the accepted argument counts; max -1 means unlimited.
// The default is exactly one argument.
func WithArity(min, max int) Option {
	return func(u *UDF) {
		u.min, u.max = min, max
	}
}

// AcceptNulls passes null arguments to the function instead of returning
// null without calling it
func AcceptNulls() Option {
	return func(u *UDF) {
		u.nullSafe = true
	}
}

// FromFunc wraps a native function
func FromFunc(name string, ret schema.Type, fn Func, opts ...Option) *UDF {
	u := &UDF{name: name, min: 1, max: 1, ret: ret, fn: fn}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *UDF) Name() string       { return u.name }
func (u *UDF) MinArity() int      { return u.min }
func (u *UDF) MaxArity() int      { return u.max }
func (u *UDF) AcceptsNulls() bool { return u.nullSafe }

func (u *UDF) ReturnType([]schema.Type) (schema.Type, error) {
	return u.ret, nil
}

// Evaluate calls the function, turning a panic into an error
func (u *UDF) Evaluate(args []interface{}) (out interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("udf %s panicked: %v", u.name, r)
		}
	}()
	return u.fn(args)
}

// Compile interprets src and returns its function named symbol. Calls into
// the interpreter are serialized.
func Compile(src, symbol string) (Func, error) {
	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib symbols: %w", err)
	}
	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("failed to compile udf source: %w", err)
	}

	pkg, err := packageName(src)
	if err != nil {
		return nil, err
	}
	v, err := i.Eval(pkg + "." + symbol)
	if err != nil {
		return nil, fmt.Errorf("udf source does not define %s: %w", symbol, err)
	}
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s is a %s, not a function", symbol, v.Kind())
	}
	raw, ok := v.Interface().(func([]interface{}) (interface{}, error))
	if !ok {
		return nil, fmt.Errorf("%s has type %s, want func([]interface{}) (interface{}, error)", symbol, v.Type())
	}

	var mu sync.Mutex
	return func(args []interface{}) (interface{}, error) {
		mu.Lock()
		defer mu.Unlock()
		return raw(args)
	}, nil
}

// FromSource compiles src and wraps the function that implements name. The
// symbol is name with its first letter upper-cased, so "shout" is
// implemented by Shout.
func FromSource(name, src string, ret schema.Type, opts ...Option) (*UDF, error) {
	fn, err := Compile(src, exported(name))
	if err != nil {
		return nil, fmt.Errorf("udf %s: %w", name, err)
	}
	return FromFunc(name, ret, fn, opts...), nil
}

// Register compiles src and adds the function to the default expression
// registry
func Register(name, src string, ret schema.Type, opts ...Option) error {
	u, err := FromSource(name, src, ret, opts...)
	if err != nil {
		return err
	}
	expr.Register(u)
	return nil
}

func exported(name string) string {
	r := []rune(name)
	if len(r) == 0 {
		return name
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// packageName returns the name in the package clause of src
func packageName(src string) (string, error) {
	for _, line := range strings.Split(src, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == "package" {
			return fields[1], nil
		}
	}
	return "", fmt.Errorf("udf source has no package clause")
}
