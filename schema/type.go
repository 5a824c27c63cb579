package schema

import "fmt"

// Kind identifies the semantic type of a column
type Kind int

const (
	String Kind = iota
	Int64
	Float64
	Bool
	Date
	Array
)

// Type is an immutable column type. Elem is set only for Array.
type Type struct {
	Kind Kind
	Elem *Type
}

var (
	StringType  = Type{Kind: String}
	Int64Type   = Type{Kind: Int64}
	Float64Type = Type{Kind: Float64}
	BoolType    = Type{Kind: Bool}
	DateType    = Type{Kind: Date}
)

// ArrayOf returns the array type with the given element type
func ArrayOf(elem Type) Type {
	e := elem
	return Type{Kind: Array, Elem: &e}
}

// String renders the type the way DDL strings spell it
func (t Type) String() string {
	switch t.Kind {
	case String:
		return "string"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	case Date:
		return "date"
	case Array:
		if t.Elem == nil {
			return "array<string>"
		}
		return fmt.Sprintf("array<%s>", t.Elem.String())
	default:
		return fmt.Sprintf("kind(%d)", int(t.Kind))
	}
}

// Equal reports whether two types are identical, recursing into arrays
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind != Array {
		return true
	}
	return t.ElemType().Equal(o.ElemType())
}

// ElemType returns the element type of an array, defaulting to string
func (t Type) ElemType() Type {
	if t.Elem == nil {
		return StringType
	}
	return *t.Elem
}

// IsNumeric reports whether the type is int64 or float64
func (t Type) IsNumeric() bool {
	return t.Kind == Int64 || t.Kind == Float64
}

// Compatible reports whether values of the two types can share a column
// after widening: identical types, or both numeric.
func Compatible(a, b Type) bool {
	if a.IsNumeric() && b.IsNumeric() {
		return true
	}
	if a.Kind == Array && b.Kind == Array {
		return Compatible(a.ElemType(), b.ElemType())
	}
	return a.Equal(b)
}

// Widen returns the narrowest type both a and b fit in. Numeric types widen
// int64 -> float64; anything else that differs falls back to string.
func Widen(a, b Type) Type {
	if a.Equal(b) {
		return a
	}
	if a.IsNumeric() && b.IsNumeric() {
		return Float64Type
	}
	if a.Kind == Array && b.Kind == Array {
		return ArrayOf(Widen(a.ElemType(), b.ElemType()))
	}
	return StringType
}
