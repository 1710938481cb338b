package engine

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver

	"mra/internal/ddl"
	"mra/internal/domain"
)

// Compile-time check.
var _ domain.TabularEngine = (*DuckDB)(nil)

// DuckDB computes cubes with a single GROUP BY CUBE query. The base relation is
// loaded into a temporary table on a dedicated connection so concurrent cubes do
// not see each other's tables. Row-level primitives run in process.
type DuckDB struct {
	db     *sql.DB
	mem    *Memory
	logger *slog.Logger
}

// OpenDuckDB opens a DuckDB database; an empty dsn means in-memory.
func OpenDuckDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}

// NewDuckDB wraps an open database. The caller owns db.
func NewDuckDB(db *sql.DB, logger *slog.Logger) *DuckDB {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DuckDB{db: db, mem: NewMemory(), logger: logger}
}

// GroupByCube aggregates base over every subset of keys, widest first.
func (e *DuckDB) GroupByCube(ctx context.Context, base domain.Relation, keys []string, spec domain.AggregationSpec) ([]domain.GroupingSet, error) {
	if err := checkCubeArgs(base, keys, spec); err != nil {
		return nil, err
	}
	if base.IsEmpty() {
		return e.mem.GroupByCube(ctx, base, keys, spec)
	}

	defs, err := columnDefs(base)
	if err != nil {
		return nil, err
	}
	types := make(map[string]ddl.ColumnType, len(defs))
	for _, d := range defs {
		types[d.Name] = d.Type
	}
	aggs := make([]string, len(spec))
	for i, a := range spec {
		fn, _ := domain.ParseAggFunc(string(a.Func))
		expr, err := ddl.AggregateExpr(string(fn), a.Column, types[a.Column], a.Output())
		if err != nil {
			return nil, domain.ErrInvalidSchema("%s", err.Error())
		}
		aggs[i] = expr
	}

	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, domain.ErrEngineFailure(err, "acquire duckdb connection")
	}
	defer conn.Close() //nolint:errcheck

	table := "mra_base_" + strings.ReplaceAll(domain.NewID(), "-", "_")
	if err := loadTable(ctx, conn, table, defs, base); err != nil {
		return nil, err
	}
	defer func() {
		drop, _ := ddl.DropTable(table)
		if _, err := conn.ExecContext(context.WithoutCancel(ctx), drop); err != nil {
			e.logger.Warn("drop temp table failed", "table", table, "error", err)
		}
	}()

	query, err := ddl.CubeQuery(table, keys, aggs)
	if err != nil {
		return nil, domain.ErrEngineFailure(err, "build cube query")
	}
	start := time.Now()
	bySet, err := scanCube(ctx, conn, query, keys, spec)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("cube computed", "table", table, "keys", keys, "rows", base.Len(), "duration", time.Since(start))

	subsets := Subsets(keys)
	out := make([]domain.GroupingSet, 0, len(subsets))
	for i, subset := range subsets {
		columns := append(append([]string{}, subset...), spec.Outputs()...)
		rel, err := domain.NewRelation(columns, bySet[i])
		if err != nil {
			return nil, err
		}
		out = append(out, domain.GroupingSet{Schema: domain.MustSchema(subset...), Relation: rel})
	}
	return out, nil
}

func loadTable(ctx context.Context, conn *sql.Conn, table string, defs []ddl.ColumnDef, base domain.Relation) error {
	create, err := ddl.CreateTempTable(table, defs)
	if err != nil {
		return domain.ErrInvalidSchema("%s", err.Error())
	}
	if _, err := conn.ExecContext(ctx, create); err != nil {
		return domain.ErrEngineFailure(err, "create temp table")
	}
	insert, err := ddl.InsertRow(table, len(defs))
	if err != nil {
		return domain.ErrEngineFailure(err, "build insert")
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return domain.ErrEngineFailure(err, "begin load")
	}
	defer tx.Rollback() //nolint:errcheck
	stmt, err := tx.PrepareContext(ctx, insert)
	if err != nil {
		return domain.ErrEngineFailure(err, "prepare insert")
	}
	defer stmt.Close() //nolint:errcheck
	for i := 0; i < base.Len(); i++ {
		if _, err := stmt.ExecContext(ctx, base.Row(i).Values()...); err != nil {
			return domain.ErrEngineFailure(err, "insert row %d", i)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.ErrEngineFailure(err, "commit load")
	}
	return nil
}

// scanCube runs query and buckets result rows by their position in Subsets(keys).
// GROUPING() sets a bit for every rolled-up key, so the grouped mask is its
// complement. Rows whose grouped keys hold NULL are dropped.
func scanCube(ctx context.Context, conn *sql.Conn, query string, keys []string, spec domain.AggregationSpec) (map[int][][]any, error) {
	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return nil, domain.ErrEngineFailure(err, "run cube query")
	}
	defer rows.Close() //nolint:errcheck

	n := len(keys)
	full := (1 << n) - 1
	width := n + len(spec) + 1
	out := map[int][][]any{}
	for rows.Next() {
		raw := make([]any, width)
		ptrs := make([]any, width)
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, domain.ErrEngineFailure(err, "scan cube row")
		}
		vals := make([]any, width)
		for i, v := range raw {
			nv, err := fromDuckDB(v)
			if err != nil {
				return nil, err
			}
			vals[i] = nv
		}
		gid, ok := vals[width-1].(int64)
		if !ok {
			return nil, domain.ErrEngineFailure(nil, "unexpected grouping id %v (%T)", vals[width-1], vals[width-1])
		}
		grouped := full &^ int(gid)

		row := make([]any, 0, n+len(spec))
		skip := false
		for i := 0; i < n; i++ {
			if grouped&(1<<(n-1-i)) == 0 {
				continue
			}
			if vals[i] == nil {
				skip = true
				break
			}
			row = append(row, vals[i])
		}
		if skip {
			continue
		}
		row = append(row, vals[n:width-1]...)
		out[full-grouped] = append(out[full-grouped], row)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrEngineFailure(err, "iterate cube rows")
	}
	return out, nil
}

// columnDefs infers a DuckDB type per column from the values it holds.
func columnDefs(base domain.Relation) ([]ddl.ColumnDef, error) {
	cols := base.Columns()
	defs := make([]ddl.ColumnDef, len(cols))
	for i, c := range cols {
		vals, err := base.Column(c)
		if err != nil {
			return nil, err
		}
		typ, err := inferType(vals)
		if err != nil {
			return nil, domain.ErrInvalidSchema("column %q: %s", c, err.Error())
		}
		defs[i] = ddl.ColumnDef{Name: c, Type: typ}
	}
	return defs, nil
}

func inferType(vals []any) (ddl.ColumnType, error) {
	var typ ddl.ColumnType
	for _, v := range vals {
		var t ddl.ColumnType
		switch v.(type) {
		case nil:
			continue
		case int64:
			t = ddl.TypeBigint
		case float64:
			t = ddl.TypeDouble
		case string:
			t = ddl.TypeVarchar
		case bool:
			t = ddl.TypeBoolean
		case time.Time:
			t = ddl.TypeTimestamp
		default:
			return "", fmt.Errorf("unsupported value type %T", v)
		}
		switch {
		case typ == "" || typ == t:
			typ = t
		case typ.IsNumeric() && t.IsNumeric():
			typ = ddl.TypeDouble
		default:
			return "", fmt.Errorf("mixes %s and %s values", typ, t)
		}
	}
	if typ == "" {
		typ = ddl.TypeVarchar
	}
	return typ, nil
}

// fromDuckDB maps driver values onto relation value types.
func fromDuckDB(v any) (any, error) {
	switch x := v.(type) {
	case *big.Int:
		if !x.IsInt64() {
			return nil, domain.ErrEngineFailure(nil, "integer %s overflows int64", x)
		}
		return x.Int64(), nil
	case big.Int:
		return fromDuckDB(&x)
	default:
		nv, err := domain.NormalizeValue(v)
		if err != nil {
			return nil, domain.ErrEngineFailure(err, "unexpected value from duckdb")
		}
		return nv, nil
	}
}

// Select keeps the rows accepted by keep.
func (e *DuckDB) Select(ctx context.Context, rel domain.Relation, keep func(domain.Row) bool) (domain.Relation, error) {
	return e.mem.Select(ctx, rel, keep)
}

// Project keeps columns in the given order.
func (e *DuckDB) Project(ctx context.Context, rel domain.Relation, columns []string) (domain.Relation, error) {
	return e.mem.Project(ctx, rel, columns)
}

// Concat stacks relations sharing one column set.
func (e *DuckDB) Concat(ctx context.Context, rels []domain.Relation) (domain.Relation, error) {
	return e.mem.Concat(ctx, rels)
}

// GroupRows partitions rel by columns in first-appearance order.
func (e *DuckDB) GroupRows(ctx context.Context, rel domain.Relation, columns []string) ([]domain.RowGroup, error) {
	return e.mem.GroupRows(ctx, rel, columns)
}

// Join full-outer-joins right onto left on the on columns.
func (e *DuckDB) Join(ctx context.Context, left, right domain.Relation, on []string) (domain.Relation, error) {
	return e.mem.Join(ctx, left, right, on)
}
