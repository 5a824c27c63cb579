package expr

import (
	"fmt"
	"strings"
	"sync"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
	"github.com/vegasq/tabular/table"
)

// Function is a scalar function callable from expressions and SQL
type Function interface {
	// Name returns the function name (case-insensitive)
	Name() string
	// MinArity returns the minimum number of arguments
	MinArity() int
	// MaxArity returns the maximum number of arguments (-1 for unlimited)
	MaxArity() int
	// ReturnType derives the result type from the argument types
	ReturnType(args []schema.Type) (schema.Type, error)
	// Evaluate evaluates the function with the given arguments
	Evaluate(args []interface{}) (interface{}, error)
}

// NullSafe is implemented by functions that want to see null arguments.
// Other functions return null as soon as any argument is null.
type NullSafe interface {
	AcceptsNulls() bool
}

// FunctionRegistry manages function lookup and registration
type FunctionRegistry struct {
	mu        sync.RWMutex
	functions map[string]Function
}

// NewFunctionRegistry creates an empty registry
func NewFunctionRegistry() *FunctionRegistry {
	return &FunctionRegistry{
		functions: make(map[string]Function),
	}
}

// Register registers a function, replacing any function of the same name
func (r *FunctionRegistry) Register(f Function) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.functions[strings.ToUpper(f.Name())] = f
}

// Get retrieves a function by name (case-insensitive)
func (r *FunctionRegistry) Get(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, exists := r.functions[strings.ToUpper(name)]
	return f, exists
}

// Names returns the registered function names
func (r *FunctionRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for n := range r.functions {
		names = append(names, n)
	}
	return names
}

var globalRegistry = NewFunctionRegistry()

func init() {
	for _, f := range builtins() {
		globalRegistry.Register(f)
	}
}

// Registry returns the default registry used by Call
func Registry() *FunctionRegistry {
	return globalRegistry
}

// Register adds a function to the default registry
func Register(f Function) {
	globalRegistry.Register(f)
}

type call struct {
	name     string
	args     []Expr
	registry *FunctionRegistry
}

// Call invokes a function from the default registry
func Call(name string, args ...Expr) Expr {
	return call{name: name, args: args, registry: globalRegistry}
}

// CallIn invokes a function from a specific registry
func CallIn(r *FunctionRegistry, name string, args ...Expr) Expr {
	return call{name: name, args: args, registry: r}
}

func (c call) String() string {
	parts := make([]string, len(c.args))
	for i, a := range c.args {
		parts[i] = a.String()
	}
	return strings.ToLower(c.name) + "(" + strings.Join(parts, ", ") + ")"
}

func (c call) Bind(s *schema.Schema) (Bound, error) {
	fn, ok := c.registry.Get(c.name)
	if !ok {
		return nil, errors.InvalidPlanError{Op: "function", Reason: fmt.Sprintf("unknown function %q", c.name)}
	}
	if len(c.args) < fn.MinArity() || (fn.MaxArity() >= 0 && len(c.args) > fn.MaxArity()) {
		return nil, errors.InvalidPlanError{Op: "function", Reason: fmt.Sprintf("%s: wrong number of arguments (%d)", fn.Name(), len(c.args))}
	}
	args, err := bindAll(s, c.args)
	if err != nil {
		return nil, err
	}
	types := make([]schema.Type, len(args))
	for i, a := range args {
		types[i] = a.Type()
	}
	ret, err := fn.ReturnType(types)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.String(), err)
	}
	nullSafe := false
	if ns, ok := fn.(NullSafe); ok {
		nullSafe = ns.AcceptsNulls()
	}
	return boundCall{fn: fn, args: args, typ: ret, nullSafe: nullSafe}, nil
}

type boundCall struct {
	fn       Function
	args     []Bound
	typ      schema.Type
	nullSafe bool
}

func (b boundCall) Type() schema.Type { return b.typ }
func (b boundCall) Nullable() bool    { return true }

func (b boundCall) Eval(row table.Row) (interface{}, error) {
	vals := make([]interface{}, len(b.args))
	for i, a := range b.args {
		v, err := a.Eval(row)
		if err != nil {
			return nil, err
		}
		if v == nil && !b.nullSafe {
			return nil, nil
		}
		vals[i] = v
	}
	out, err := b.fn.Evaluate(vals)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.fn.Name(), err)
	}
	out = schema.Normalize(out)
	if out == nil {
		return nil, nil
	}
	return schema.Coerce(out, b.typ)
}
