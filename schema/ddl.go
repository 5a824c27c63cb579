package schema

import (
	"fmt"
	"strings"

	"github.com/vegasq/tabular/errors"
)

// typeAliases maps accepted DDL type tokens to types
var typeAliases = map[string]Type{
	"string":  StringType,
	"varchar": StringType,
	"text":    StringType,
	"int":     Int64Type,
	"integer": Int64Type,
	"bigint":  Int64Type,
	"long":    Int64Type,
	"int64":   Int64Type,
	"double":  Float64Type,
	"float":   Float64Type,
	"float64": Float64Type,
	"real":    Float64Type,
	"bool":    BoolType,
	"boolean": BoolType,
	"date":    DateType,
}

// ParseDDL parses a comma separated column list such as
// "name STRING, age INT NOT NULL, tags ARRAY<STRING>".
//
// Columns are nullable unless followed by NOT NULL. Names may be wrapped in
// backquotes to include spaces.
func ParseDDL(ddl string) (*Schema, error) {
	parts, err := splitTopLevel(ddl)
	if err != nil {
		return nil, err
	}
	fields := make([]Field, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, errors.SchemaError{Reason: "empty column definition"}
		}
		f, err := parseColumn(part)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	if len(fields) == 0 {
		return nil, errors.SchemaError{Reason: "no columns defined"}
	}
	return New(fields...)
}

// ParseType parses a single type token such as "bigint" or "array<date>"
func ParseType(token string) (Type, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	if strings.HasPrefix(token, "array<") && strings.HasSuffix(token, ">") {
		elem, err := ParseType(token[len("array<") : len(token)-1])
		if err != nil {
			return Type{}, err
		}
		return ArrayOf(elem), nil
	}
	t, ok := typeAliases[token]
	if !ok {
		return Type{}, errors.SchemaError{Reason: fmt.Sprintf("unknown type %q", token)}
	}
	return t, nil
}

func parseColumn(def string) (Field, error) {
	var name, rest string
	if strings.HasPrefix(def, "`") {
		end := strings.Index(def[1:], "`")
		if end < 0 {
			return Field{}, errors.SchemaError{Reason: fmt.Sprintf("unterminated quoted name in %q", def)}
		}
		name = def[1 : end+1]
		rest = strings.TrimSpace(def[end+2:])
	} else {
		i := strings.IndexAny(def, " \t:")
		if i < 0 {
			return Field{}, errors.SchemaError{Reason: fmt.Sprintf("column %q has no type", def)}
		}
		name = def[:i]
		rest = strings.TrimSpace(def[i:])
	}
	rest = strings.TrimSpace(strings.TrimPrefix(rest, ":"))

	nullable := true
	upper := strings.ToUpper(rest)
	if strings.HasSuffix(upper, "NOT NULL") {
		nullable = false
		rest = strings.TrimSpace(rest[:len(rest)-len("NOT NULL")])
	}
	if rest == "" {
		return Field{}, errors.SchemaError{Reason: fmt.Sprintf("column %q has no type", name)}
	}
	if strings.ContainsAny(rest, " \t") && !strings.HasPrefix(strings.ToLower(rest), "array<") {
		return Field{}, errors.SchemaError{Reason: fmt.Sprintf("malformed type %q for column %q", rest, name)}
	}

	t, err := ParseType(strings.ReplaceAll(rest, " ", ""))
	if err != nil {
		return Field{}, err
	}
	return Field{Name: name, Type: t, Nullable: nullable}, nil
}

// splitTopLevel splits on commas that are not inside <...>
func splitTopLevel(s string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i, ch := range s {
		switch ch {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return nil, errors.SchemaError{Reason: "unbalanced '>' in schema"}
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, errors.SchemaError{Reason: "unbalanced '<' in schema"}
	}
	if strings.TrimSpace(s) != "" {
		parts = append(parts, s[start:])
	}
	return parts, nil
}

// ddlTypeName renders a type token that ParseType accepts
func ddlTypeName(t Type) string {
	switch t.Kind {
	case Int64:
		return "bigint"
	case Float64:
		return "double"
	case Bool:
		return "boolean"
	case Array:
		return "array<" + ddlTypeName(t.ElemType()) + ">"
	default:
		return t.String()
	}
}
