package ddl

import (
	"fmt"
	"regexp"
	"strings"
)

// tableNameRe restricts generated table names: letters, digits and underscores.
var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// maxIdentifierLen is the maximum length allowed for a SQL identifier.
const maxIdentifierLen = 128

// ValidateTableName checks that name is a safe unquoted table name.
func ValidateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("table name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("table name must be at most %d characters", maxIdentifierLen)
	}
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("table name must match [a-zA-Z_][a-zA-Z0-9_]*")
	}
	return nil
}

// ValidateColumnName accepts any non-empty name that fits an identifier; column
// names are always quoted, so punctuation is allowed.
func ValidateColumnName(name string) error {
	if name == "" {
		return fmt.Errorf("column name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("column name must be at most %d characters", maxIdentifierLen)
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("column name contains a NUL byte")
	}
	return nil
}

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double-quote characters by doubling them (standard SQL).
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ColumnType is one of the DuckDB types relation columns are loaded as.
type ColumnType string

const (
	TypeBigint    ColumnType = "BIGINT"
	TypeDouble    ColumnType = "DOUBLE"
	TypeVarchar   ColumnType = "VARCHAR"
	TypeBoolean   ColumnType = "BOOLEAN"
	TypeTimestamp ColumnType = "TIMESTAMP"
)

// Validate rejects types outside the supported set.
func (t ColumnType) Validate() error {
	switch t {
	case TypeBigint, TypeDouble, TypeVarchar, TypeBoolean, TypeTimestamp:
		return nil
	case "":
		return fmt.Errorf("column type is required")
	default:
		return fmt.Errorf("column type %q is not supported", string(t))
	}
}

// IsNumeric reports whether arithmetic aggregates apply to t.
func (t ColumnType) IsNumeric() bool { return t == TypeBigint || t == TypeDouble }
