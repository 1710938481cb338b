// Package ddl builds the DuckDB statements used to load relations and aggregate
// them with GROUP BY CUBE.
package ddl

import (
	"fmt"
	"strings"
)

// GroupingColumn is the alias of the GROUPING() bitmask in cube queries.
const GroupingColumn = "__grouping_id"

// ColumnDef describes a column for CREATE TABLE.
type ColumnDef struct {
	Name string
	Type ColumnType
}

// CreateTempTable returns: CREATE TEMP TABLE <table> ("<col1>" TYPE1, ...).
func CreateTempTable(table string, columns []ColumnDef) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	defs := make([]string, len(columns))
	for i, c := range columns {
		if err := ValidateColumnName(c.Name); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c.Name, err)
		}
		if err := c.Type.Validate(); err != nil {
			return "", fmt.Errorf("invalid column type for %q: %w", c.Name, err)
		}
		defs[i] = fmt.Sprintf("%s %s", QuoteIdentifier(c.Name), c.Type)
	}
	return fmt.Sprintf("CREATE TEMP TABLE %s (%s)", table, strings.Join(defs, ", ")), nil
}

// DropTable returns: DROP TABLE IF EXISTS <table>.
func DropTable(table string) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return "DROP TABLE IF EXISTS " + table, nil
}

// InsertRow returns a parameterized INSERT for n columns.
func InsertRow(table string, n int) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if n <= 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	params := strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
	return fmt.Sprintf("INSERT INTO %s VALUES (%s)", table, params), nil
}

// AggregateExpr renders one aggregation over column (of type typ) as "<expr> AS <alias>".
// Integer sums are cast back to BIGINT, and sums of no rows are 0.
func AggregateExpr(fn string, column string, typ ColumnType, alias string) (string, error) {
	col := QuoteIdentifier(column)
	var expr string
	switch fn {
	case "sum":
		if !typ.IsNumeric() {
			return "", fmt.Errorf("cannot sum %s column %q", typ, column)
		}
		if typ == TypeBigint {
			expr = fmt.Sprintf("COALESCE(CAST(SUM(%s) AS BIGINT), 0)", col)
		} else {
			expr = fmt.Sprintf("COALESCE(SUM(%s), 0)", col)
		}
	case "count":
		expr = fmt.Sprintf("COUNT(%s)", col)
	case "count_distinct":
		expr = fmt.Sprintf("COUNT(DISTINCT %s)", col)
	case "mean":
		if !typ.IsNumeric() {
			return "", fmt.Errorf("cannot average %s column %q", typ, column)
		}
		expr = fmt.Sprintf("AVG(%s)", col)
	case "min":
		expr = fmt.Sprintf("MIN(%s)", col)
	case "max":
		expr = fmt.Sprintf("MAX(%s)", col)
	default:
		return "", fmt.Errorf("unsupported aggregation %q", fn)
	}
	return expr + " AS " + QuoteIdentifier(alias), nil
}

// CubeQuery returns a query computing every grouping set of keys in one pass:
//
//	SELECT k1, k2, aggs..., GROUPING(k1, k2) AS __grouping_id
//	FROM table GROUP BY CUBE (k1, k2) ORDER BY __grouping_id, k1, k2
//
// With no keys it returns a single aggregate row with a grouping id of 0.
func CubeQuery(table string, keys []string, aggs []string) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if len(aggs) == 0 {
		return "", fmt.Errorf("at least one aggregation is required")
	}
	if len(keys) == 0 {
		return fmt.Sprintf("SELECT %s, CAST(0 AS BIGINT) AS %s FROM %s",
			strings.Join(aggs, ", "), GroupingColumn, table), nil
	}
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = QuoteIdentifier(k)
	}
	keyList := strings.Join(quoted, ", ")
	return fmt.Sprintf("SELECT %s, %s, CAST(GROUPING(%s) AS BIGINT) AS %s FROM %s GROUP BY CUBE (%s) ORDER BY %s, %s",
		keyList,
		strings.Join(aggs, ", "),
		keyList,
		GroupingColumn,
		table,
		keyList,
		GroupingColumn,
		keyList,
	), nil
}
