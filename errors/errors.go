// Package errors defines the failure types returned by tabular operations.
//
// Every failure class has its own struct type so callers can match on it
// with errors.As after any amount of fmt.Errorf("%w") wrapping.
package errors

import (
	"fmt"
	"strings"
)

// SchemaError occurs when a schema is malformed: duplicate or empty column
// names, an unknown type token, or an operation that would produce an invalid
// output schema.
type SchemaError struct{ Reason string }

// Error returns a textual representation of this SchemaError
func (e SchemaError) Error() string {
	return "schema error: " + e.Reason
}

// ColumnNotFoundError occurs when an operation references a column that does
// not exist in its input
type ColumnNotFoundError struct {
	Column    string
	Available []string
}

// Error returns a textual representation of this ColumnNotFoundError
func (e ColumnNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("column %q not found", e.Column)
	}
	return fmt.Sprintf("column %q not found (available: %s)", e.Column, strings.Join(e.Available, ", "))
}

// TypeMismatchError occurs when a value or column type cannot be coerced to
// the type an operation requires
type TypeMismatchError struct {
	Column   string
	Expected string
	Actual   string
}

// Error returns a textual representation of this TypeMismatchError
func (e TypeMismatchError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("type mismatch: expected %s, got %s", e.Expected, e.Actual)
	}
	return fmt.Sprintf("type mismatch in column %q: expected %s, got %s", e.Column, e.Expected, e.Actual)
}

// JoinKeyTypeMismatchError occurs when a join key has incompatible types on
// the two sides of a join
type JoinKeyTypeMismatchError struct {
	Key   string
	Left  string
	Right string
}

// Error returns a textual representation of this JoinKeyTypeMismatchError
func (e JoinKeyTypeMismatchError) Error() string {
	return fmt.Sprintf("join key %q has incompatible types: %s (left) vs %s (right)", e.Key, e.Left, e.Right)
}

// SchemaMismatchError occurs when two tables cannot be unioned
type SchemaMismatchError struct {
	Left  []string
	Right []string
}

// Error returns a textual representation of this SchemaMismatchError
func (e SchemaMismatchError) Error() string {
	return fmt.Sprintf("schemas do not match: [%s] vs [%s]", strings.Join(e.Left, ", "), strings.Join(e.Right, ", "))
}

// PathExistsError occurs when a writer in error-if-exists mode finds its
// target already present
type PathExistsError struct{ Path string }

// Error returns a textual representation of this PathExistsError
func (e PathExistsError) Error() string {
	return fmt.Sprintf("path %s already exists", e.Path)
}

// IOFailure wraps an underlying I/O or codec failure from a reader or writer
type IOFailure struct {
	Op   string
	Path string
	Err  error
}

// Error returns a textual representation of this IOFailure
func (e IOFailure) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying cause
func (e IOFailure) Unwrap() error {
	return e.Err
}

// InvalidPlanError occurs when an operation is structurally invalid, such as
// a rank window without order columns or an unknown function name
type InvalidPlanError struct {
	Op     string
	Reason string
}

// Error returns a textual representation of this InvalidPlanError
func (e InvalidPlanError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Op, e.Reason)
}
