package model

import (
	"fmt"
	"strings"
)

// ParseTableSchema builds a table schema from column specs written as
// NAME:TYPE with optional :pk and :notnull suffixes. The policy is left
// unset.
func ParseTableSchema(table string, specs []string) (TableSchema, error) {
	schema := TableSchema{Name: table}
	for i, spec := range specs {
		parts := strings.Split(spec, ":")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			return TableSchema{}, NewParseError(fmt.Sprintf("column %q: want NAME:TYPE", spec), nil)
		}
		col := ColumnSchema{Name: parts[0], Type: strings.ToUpper(parts[1]), Ordinal: i}
		for _, flag := range parts[2:] {
			switch strings.ToLower(flag) {
			case "pk":
				col.PrimaryKey = true
			case "notnull":
				col.NotNull = true
			default:
				return TableSchema{}, NewParseError(fmt.Sprintf("column %q: unknown flag %q", spec, flag), nil)
			}
		}
		schema.Columns = append(schema.Columns, col)
	}
	if len(schema.Columns) == 0 {
		return TableSchema{}, NewParseError(fmt.Sprintf("table %s has no columns", table), nil)
	}
	return schema, nil
}
