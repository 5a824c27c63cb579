package reader

import (
	"fmt"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/vegasq/tabular/errors"
	"github.com/vegasq/tabular/schema"
)

// SchemaInfo represents metadata about a single column in a Parquet file.
type SchemaInfo struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	PhysicalType string `json:"physical_type"`
	LogicalType  string `json:"logical_type"`
	Required     bool   `json:"required"`
	Optional     bool   `json:"optional"`
	Repeated     bool   `json:"repeated"`
}

// ExtractSchemaInfo extracts schema information from a Parquet file.
//
// For nested types, field names use dot notation (e.g., "tags.list.element").
func ExtractSchemaInfo(path string) ([]SchemaInfo, error) {
	r, err := NewParquetReader(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	var infos []SchemaInfo
	for _, field := range r.Schema().Fields() {
		infos = append(infos, extractFieldInfo(field, "", false)...)
	}
	return infos, nil
}

// extractFieldInfo recursively extracts schema information from a field,
// tracking whether any parent field is repeated
func extractFieldInfo(field parquet.Field, prefix string, parentRepeated bool) []SchemaInfo {
	fieldName := field.Name()
	if prefix != "" {
		fieldName = prefix + "." + fieldName
	}
	isRepeated := parentRepeated || field.Repeated()

	// groups only contribute their leaves
	if children := field.Fields(); len(children) > 0 {
		var infos []SchemaInfo
		for _, child := range children {
			infos = append(infos, extractFieldInfo(child, fieldName, isRepeated)...)
		}
		return infos
	}

	return []SchemaInfo{{
		Name:         fieldName,
		Type:         getUserFriendlyType(field),
		PhysicalType: getPhysicalType(field),
		LogicalType:  getLogicalType(field),
		Required:     field.Required(),
		Optional:     field.Optional(),
		Repeated:     isRepeated,
	}}
}

// getPhysicalType returns the physical type name of a Parquet node.
func getPhysicalType(node parquet.Node) string {
	if node.Type() == nil || !node.Leaf() {
		return "GROUP"
	}
	switch node.Type().Kind() {
	case parquet.Boolean:
		return "BOOLEAN"
	case parquet.Int32:
		return "INT32"
	case parquet.Int64:
		return "INT64"
	case parquet.Int96:
		return "INT96"
	case parquet.Float:
		return "FLOAT"
	case parquet.Double:
		return "DOUBLE"
	case parquet.ByteArray:
		return "BYTE_ARRAY"
	case parquet.FixedLenByteArray:
		return "FIXED_LEN_BYTE_ARRAY"
	default:
		return "UNKNOWN"
	}
}

// getLogicalType returns the logical type name of a Parquet node.
func getLogicalType(node parquet.Node) string {
	if node.Type() == nil {
		return ""
	}
	lt := node.Type().LogicalType()
	if lt == nil {
		return ""
	}
	return lt.String()
}

// getUserFriendlyType converts Parquet's physical and logical types into
// simpler type names for end users.
func getUserFriendlyType(node parquet.Node) string {
	if node.Type() == nil || !node.Leaf() {
		return "GROUP"
	}
	switch lt := getLogicalType(node); {
	case strings.HasPrefix(lt, "STRING"), strings.HasPrefix(lt, "UTF8"):
		return "STRING"
	case strings.HasPrefix(lt, "ENUM"), strings.HasPrefix(lt, "UUID"), strings.HasPrefix(lt, "JSON"):
		return "STRING"
	case strings.HasPrefix(lt, "DATE"):
		return "DATE"
	case strings.HasPrefix(lt, "TIMESTAMP"):
		return "TIMESTAMP"
	case strings.HasPrefix(lt, "TIME"):
		return "TIME"
	case strings.HasPrefix(lt, "DECIMAL"):
		return "DECIMAL"
	case strings.HasPrefix(lt, "BSON"):
		return "BSON"
	}
	switch node.Type().Kind() {
	case parquet.Boolean:
		return "BOOLEAN"
	case parquet.Int32:
		return "INT32"
	case parquet.Int64:
		return "INT64"
	case parquet.Int96:
		return "INT96"
	case parquet.Float:
		return "FLOAT32"
	case parquet.Double:
		return "FLOAT64"
	case parquet.ByteArray:
		return "BYTE_ARRAY"
	case parquet.FixedLenByteArray:
		return "FIXED_LEN_BYTE_ARRAY"
	default:
		return "UNKNOWN"
	}
}

// leafType maps a parquet leaf onto a column type
func leafType(name string, node parquet.Node) (schema.Type, error) {
	switch t := getUserFriendlyType(node); t {
	case "STRING", "BYTE_ARRAY", "FIXED_LEN_BYTE_ARRAY":
		return schema.StringType, nil
	case "INT32", "INT64":
		return schema.Int64Type, nil
	case "FLOAT32", "FLOAT64":
		return schema.Float64Type, nil
	case "BOOLEAN":
		return schema.BoolType, nil
	case "DATE":
		return schema.DateType, nil
	default:
		return schema.Type{}, errors.SchemaError{Reason: fmt.Sprintf("column %q has unsupported parquet type %s", name, t)}
	}
}
