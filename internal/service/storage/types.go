package storage

import "strings"

// Normalised column types reported for data files.
const (
	TypeString    = "string"
	TypeNumber    = "number"
	TypeBoolean   = "boolean"
	TypeDate      = "date"
	TypeTimestamp = "timestamp"
	TypeJSON      = "json"
	TypeNative    = "sql native"
)

// NormalizeType maps a DuckDB column type to the publisher's type vocabulary.
func NormalizeType(duckType string) string {
	t := strings.ToUpper(strings.TrimSpace(duckType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "VARCHAR", "TEXT", "STRING", "CHAR", "BPCHAR", "UUID":
		return TypeString
	case "TINYINT", "SMALLINT", "INTEGER", "INT", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT", "UHUGEINT",
		"FLOAT", "REAL", "DOUBLE", "DECIMAL", "NUMERIC":
		return TypeNumber
	case "BOOLEAN", "BOOL":
		return TypeBoolean
	case "DATE":
		return TypeDate
	case "JSON":
		return TypeJSON
	}
	if strings.HasPrefix(t, "TIMESTAMP") {
		return TypeTimestamp
	}
	return TypeNative
}
