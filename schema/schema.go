// Package schema defines column types and ordered, typed column sets.
//
// A Schema can be built from explicit fields, parsed from a DDL string such
// as "name STRING, age INT NOT NULL, tags ARRAY<STRING>", or inferred from a
// sample of raw values with an Inferrer.
package schema

import (
	"fmt"
	"strings"

	"github.com/vegasq/tabular/errors"
)

// Field is a single named, typed column
type Field struct {
	Name     string
	Type     Type
	Nullable bool
}

// String renders the field in DDL form
func (f Field) String() string {
	name := f.Name
	if strings.ContainsAny(name, " \t,:<>`") {
		name = "`" + name + "`"
	}
	s := name + " " + strings.ToUpper(ddlTypeName(f.Type))
	if !f.Nullable {
		s += " NOT NULL"
	}
	return s
}

// Schema is an ordered set of uniquely named fields. Schemas are immutable;
// every transforming method returns a new Schema.
type Schema struct {
	fields []Field
	index  map[string]int
}

// New creates a schema, rejecting empty and duplicate column names
func New(fields ...Field) (*Schema, error) {
	s := &Schema{
		fields: make([]Field, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		if f.Name == "" {
			return nil, errors.SchemaError{Reason: fmt.Sprintf("column %d has an empty name", i)}
		}
		if _, dup := s.index[f.Name]; dup {
			return nil, errors.SchemaError{Reason: fmt.Sprintf("duplicate column %q", f.Name)}
		}
		if f.Type.Kind == Array && f.Type.Elem == nil {
			f.Type = ArrayOf(StringType)
		}
		s.fields[i] = f
		s.index[f.Name] = i
	}
	return s, nil
}

// MustNew is New that panics on error, for statically known schemas
func MustNew(fields ...Field) *Schema {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of columns
func (s *Schema) Len() int {
	return len(s.fields)
}

// Field returns the i-th field
func (s *Schema) Field(i int) Field {
	return s.fields[i]
}

// Fields returns a copy of the fields in column order
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Names returns the column names in order
func (s *Schema) Names() []string {
	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of a column
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Lookup returns the position and field of a column, or ColumnNotFoundError
func (s *Schema) Lookup(name string) (int, Field, error) {
	i, ok := s.index[name]
	if !ok {
		return -1, Field{}, errors.ColumnNotFoundError{Column: name, Available: s.Names()}
	}
	return i, s.fields[i], nil
}

// Indices resolves several column names at once
func (s *Schema) Indices(names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, name := range names {
		idx, _, err := s.Lookup(name)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

// Equal reports whether both schemas have the same fields in the same order
func (s *Schema) Equal(o *Schema) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.fields) != len(o.fields) {
		return false
	}
	for i, f := range s.fields {
		g := o.fields[i]
		if f.Name != g.Name || f.Nullable != g.Nullable || !f.Type.Equal(g.Type) {
			return false
		}
	}
	return true
}

// String renders the schema as a DDL string
func (s *Schema) String() string {
	return s.DDL()
}

// DDL renders the schema in the form ParseDDL accepts
func (s *Schema) DDL() string {
	parts := make([]string, len(s.fields))
	for i, f := range s.fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, ", ")
}

// Project returns a schema with only the named columns, in the given order
func (s *Schema) Project(names ...string) (*Schema, error) {
	fields := make([]Field, 0, len(names))
	for _, name := range names {
		_, f, err := s.Lookup(name)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return New(fields...)
}

// Drop returns a schema without the named columns. Unknown names are ignored.
func (s *Schema) Drop(names ...string) *Schema {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	fields := make([]Field, 0, len(s.fields))
	for _, f := range s.fields {
		if !drop[f.Name] {
			fields = append(fields, f)
		}
	}
	return MustNew(fields...)
}

// Rename returns a schema with one column renamed
func (s *Schema) Rename(from, to string) (*Schema, error) {
	i, _, err := s.Lookup(from)
	if err != nil {
		return nil, err
	}
	fields := s.Fields()
	fields[i].Name = to
	return New(fields...)
}

// With returns a schema where f replaces the column of the same name, or is
// appended when no such column exists. The position of f is also returned.
func (s *Schema) With(f Field) (*Schema, int) {
	fields := s.Fields()
	if i, ok := s.index[f.Name]; ok {
		fields[i] = f
		return MustNew(fields...), i
	}
	fields = append(fields, f)
	return MustNew(fields...), len(fields) - 1
}

// WithNullable returns a copy of the schema with every column nullable
func (s *Schema) WithNullable() *Schema {
	fields := s.Fields()
	for i := range fields {
		fields[i].Nullable = true
	}
	return MustNew(fields...)
}
