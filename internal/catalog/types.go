package catalog

import "fmt"

// ColType is one of the SQL scalar types a column may be declared with.
// The vocabulary is fixed; each entry maps to exactly one canonical physical
// type used for the on-disk parquet representation.
type ColType string

// physicalTypes maps every accepted column type to its canonical engine type.
// Synonyms (int/integer, bool/boolean, text/varchar, ...) collapse onto the
// same physical type.
var physicalTypes = map[ColType]string{
	"tinyint":     "TINYINT",
	"smallint":    "SMALLINT",
	"integer":     "INTEGER",
	"int":         "INTEGER",
	"bigint":      "BIGINT",
	"hugeint":     "HUGEINT",
	"bignum":      "HUGEINT",
	"utinyint":    "UTINYINT",
	"usmallint":   "USMALLINT",
	"uinteger":    "UINTEGER",
	"ubigint":     "UBIGINT",
	"uhugeint":    "UHUGEINT",
	"float":       "FLOAT",
	"real":        "FLOAT",
	"double":      "DOUBLE",
	"decimal":     "DECIMAL(18,3)",
	"numeric":     "DECIMAL(18,3)",
	"boolean":     "BOOLEAN",
	"bool":        "BOOLEAN",
	"varchar":     "VARCHAR",
	"text":        "VARCHAR",
	"string":      "VARCHAR",
	"char":        "VARCHAR",
	"uuid":        "UUID",
	"bit":         "BIT",
	"blob":        "BLOB",
	"bytea":       "BLOB",
	"varbinary":   "BLOB",
	"date":        "DATE",
	"time":        "TIME",
	"timestamp":   "TIMESTAMP",
	"timestamptz": "TIMESTAMPTZ",
	"interval":    "INTERVAL",
}

// ValidColType reports whether t is in the fixed type vocabulary.
func ValidColType(t ColType) bool {
	_, ok := physicalTypes[t]
	return ok
}

// PhysicalType returns the canonical engine type for t.
func PhysicalType(t ColType) (string, error) {
	pt, ok := physicalTypes[t]
	if !ok {
		return "", fmt.Errorf("unknown column type %q", t)
	}
	return pt, nil
}

// ColumnInfo describes one column of a table schema. Fields are declared in
// sorted-key order so marshaled JSON is stable for diffs.
type ColumnInfo struct {
	Name     string  `json:"name"`
	Nullable bool    `json:"nullable"`
	Type     ColType `json:"type"`
}

// Validate checks the column against the type vocabulary.
func (c ColumnInfo) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("column has empty name")
	}
	if !ValidColType(c.Type) {
		return fmt.Errorf("column %q has unknown type %q", c.Name, c.Type)
	}
	return nil
}
