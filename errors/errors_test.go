package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIOFailureUnwrap(t *testing.T) {
	err := fmt.Errorf("reading input: %w", IOFailure{Op: "open", Path: "/tmp/x.csv", Err: fs.ErrNotExist})

	var ioErr IOFailure
	require.True(t, stderrors.As(err, &ioErr))
	require.Equal(t, "/tmp/x.csv", ioErr.Path)
	require.ErrorIs(t, err, fs.ErrNotExist)
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{SchemaError{Reason: "duplicate column \"a\""}, "schema error: duplicate column \"a\""},
		{ColumnNotFoundError{Column: "x"}, "column \"x\" not found"},
		{ColumnNotFoundError{Column: "x", Available: []string{"a", "b"}}, "column \"x\" not found (available: a, b)"},
		{TypeMismatchError{Column: "age", Expected: "int64", Actual: "string"}, "type mismatch in column \"age\": expected int64, got string"},
		{JoinKeyTypeMismatchError{Key: "id", Left: "int64", Right: "string"}, "join key \"id\" has incompatible types: int64 (left) vs string (right)"},
		{PathExistsError{Path: "out"}, "path out already exists"},
		{InvalidPlanError{Op: "window", Reason: "rank requires order columns"}, "invalid window: rank requires order columns"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, tt.err.Error())
	}
}

func TestErrorsAsThroughWrapping(t *testing.T) {
	err := fmt.Errorf("stage 3: %w", fmt.Errorf("union: %w", SchemaMismatchError{Left: []string{"a"}, Right: []string{"b"}}))
	var sm SchemaMismatchError
	require.True(t, stderrors.As(err, &sm))
	require.Equal(t, []string{"a"}, sm.Left)
}
