package model

import "strings"

// TypeFor maps a PostgreSQL data type, as reported by information_schema or
// written in DDL, onto a semantic type and format. Unknown types are strings.
func TypeFor(pgType string) (Type, Format) {
	t := strings.ToLower(strings.TrimSpace(pgType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if strings.HasSuffix(t, "[]") || t == "array" {
		return TypeString, ""
	}

	switch t {
	case "boolean", "bool":
		return TypeBoolean, ""
	case "bytea":
		return TypeBuffer, ""
	case "bigint", "int8", "int", "int4", "integer", "smallint", "int2", "tinyint",
		"serial", "bigserial", "smallserial":
		return TypeInteger, ""
	case "decimal", "numeric", "real", "float4", "float8", "float", "double", "double precision", "money":
		return TypeNumber, ""
	case "date":
		return TypeString, FormatDate
	case "timestamp", "timestamptz", "timestamp without time zone", "timestamp with time zone":
		return TypeString, FormatDateTime
	case "time", "timetz", "time without time zone", "time with time zone":
		return TypeString, FormatTime
	}
	return TypeString, ""
}
