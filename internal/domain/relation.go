package domain

import (
	"fmt"
	"slices"
	"strings"
)

// Relation is an ordered sequence of rows over a fixed list of named columns. It is a
// value: every operation returns a new Relation and never mutates its receiver.
type Relation struct {
	columns []string
	index   map[string]int
	rows    [][]any
}

// Row is a read-only view of one relation row.
type Row struct {
	index  map[string]int
	values []any
}

// Get returns the value of col and whether the column exists.
func (r Row) Get(col string) (any, bool) {
	i, ok := r.index[col]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Value returns the value of col, or nil when the column does not exist.
func (r Row) Value(col string) any {
	v, _ := r.Get(col)
	return v
}

// Values returns a copy of the row's values in column order.
func (r Row) Values() []any { return slices.Clone(r.values) }

// NewRelation builds a relation, copying and normalizing the given rows.
func NewRelation(columns []string, rows [][]any) (Relation, error) {
	if _, err := NewSchema(columns...); err != nil {
		return Relation{}, err
	}
	out := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return Relation{}, ErrInvalidSchema("row %d has %d values, want %d", i, len(row), len(columns))
		}
		vals := make([]any, len(row))
		for j, v := range row {
			nv, err := NormalizeValue(v)
			if err != nil {
				return Relation{}, ErrInvalidSchema("row %d column %q: unsupported value %v (%T)", i, columns[j], v, v)
			}
			vals[j] = nv
		}
		out[i] = vals
	}
	return newRelation(slices.Clone(columns), out), nil
}

// MustRelation is NewRelation for literals known to be valid.
func MustRelation(columns []string, rows ...[]any) Relation {
	r, err := NewRelation(columns, rows)
	if err != nil {
		panic(err)
	}
	return r
}

// EmptyRelation returns a relation with the given columns and no rows.
func EmptyRelation(columns ...string) (Relation, error) {
	return NewRelation(columns, nil)
}

// newRelation takes ownership of columns and rows without validation.
func newRelation(columns []string, rows [][]any) Relation {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return Relation{columns: columns, index: index, rows: rows}
}

// Columns returns the relation's column names in order.
func (r Relation) Columns() []string { return slices.Clone(r.columns) }

// Schema returns the relation's column set.
func (r Relation) Schema() RelationSchema { return MustSchema(r.columns...) }

// Len returns the number of rows.
func (r Relation) Len() int { return len(r.rows) }

// IsEmpty reports whether the relation has no rows.
func (r Relation) IsEmpty() bool { return len(r.rows) == 0 }

// HasColumn reports whether col exists.
func (r Relation) HasColumn(col string) bool {
	_, ok := r.index[col]
	return ok
}

// HasColumns reports whether every column in cols exists.
func (r Relation) HasColumns(cols ...string) bool {
	for _, c := range cols {
		if !r.HasColumn(c) {
			return false
		}
	}
	return true
}

// Row returns the i-th row.
func (r Relation) Row(i int) Row {
	return Row{index: r.index, values: r.rows[i]}
}

// Rows calls fn for each row in order; iteration stops when fn returns false.
func (r Relation) Rows(fn func(i int, row Row) bool) {
	for i, vals := range r.rows {
		if !fn(i, Row{index: r.index, values: vals}) {
			return
		}
	}
}

// Column returns a copy of every value in col.
func (r Relation) Column(col string) ([]any, error) {
	i, ok := r.index[col]
	if !ok {
		return nil, ErrInvalidSchema("column %q not found in relation %v", col, r.columns)
	}
	out := make([]any, len(r.rows))
	for j, row := range r.rows {
		out[j] = row[i]
	}
	return out, nil
}

// Project keeps the listed columns in the listed order.
func (r Relation) Project(cols ...string) (Relation, error) {
	if _, err := NewSchema(cols...); err != nil {
		return Relation{}, err
	}
	idx := make([]int, len(cols))
	for i, c := range cols {
		j, ok := r.index[c]
		if !ok {
			return Relation{}, ErrInvalidSchema("cannot project missing column %q from %v", c, r.columns)
		}
		idx[i] = j
	}
	rows := make([][]any, len(r.rows))
	for i, row := range r.rows {
		vals := make([]any, len(idx))
		for k, j := range idx {
			vals[k] = row[j]
		}
		rows[i] = vals
	}
	return newRelation(slices.Clone(cols), rows), nil
}

// Filter keeps the rows for which keep returns true, preserving order.
func (r Relation) Filter(keep func(Row) bool) Relation {
	var rows [][]any
	for _, vals := range r.rows {
		if keep(Row{index: r.index, values: vals}) {
			rows = append(rows, vals)
		}
	}
	return newRelation(slices.Clone(r.columns), rows)
}

// WithColumn derives a column from each row. An existing column of the same name
// is replaced in place; otherwise the column is appended.
func (r Relation) WithColumn(name string, derive func(Row) (any, error)) (Relation, error) {
	if strings.TrimSpace(name) == "" {
		return Relation{}, ErrInvalidSchema("derived column name must not be empty")
	}
	pos, exists := r.index[name]
	cols := slices.Clone(r.columns)
	if !exists {
		pos = len(cols)
		cols = append(cols, name)
	}
	rows := make([][]any, len(r.rows))
	for i, vals := range r.rows {
		v, err := derive(Row{index: r.index, values: vals})
		if err != nil {
			return Relation{}, fmt.Errorf("derive %q at row %d: %w", name, i, err)
		}
		nv, err := NormalizeValue(v)
		if err != nil {
			return Relation{}, err
		}
		out := make([]any, len(cols))
		copy(out, vals)
		out[pos] = nv
		rows[i] = out
	}
	return newRelation(cols, rows), nil
}

// Prepend returns the relation with the region's columns placed before its own.
// Region columns the relation already carries stay where they are and must hold
// the region's value in every row, otherwise the result is SchemaMismatch.
func (r Relation) Prepend(region RelationTuple) (Relation, error) {
	var cols []string
	var consts []any
	for i, c := range region.Columns() {
		v := region.values[i]
		j, ok := r.index[c]
		if !ok {
			cols = append(cols, c)
			consts = append(consts, v)
			continue
		}
		for n, vals := range r.rows {
			if !ValuesEqual(vals[j], v) {
				return Relation{}, ErrSchemaMismatch("row %d has %s=%v but region %s has %v", n, c, vals[j], region, v)
			}
		}
	}
	if len(cols) == 0 {
		return r, nil
	}
	rows := make([][]any, len(r.rows))
	for i, vals := range r.rows {
		out := make([]any, 0, len(consts)+len(vals))
		out = append(out, consts...)
		out = append(out, vals...)
		rows[i] = out
	}
	return newRelation(append(cols, r.columns...), rows), nil
}

// Concat appends the rows of rels below r. Every relation must have the same column
// set; columns are aligned by name to r's order.
func Concat(rels ...Relation) (Relation, error) {
	if len(rels) == 0 {
		return Relation{}, ErrInvalidSchema("concat needs at least one relation")
	}
	base := rels[0]
	want := base.Schema()
	var rows [][]any
	for n, rel := range rels {
		if !rel.Schema().Equal(want) {
			return Relation{}, ErrSchemaMismatch("relation %d has columns %v, want %v", n, rel.columns, base.columns)
		}
		for _, vals := range rel.rows {
			out := make([]any, len(base.columns))
			for i, c := range base.columns {
				out[i] = vals[rel.index[c]]
			}
			rows = append(rows, out)
		}
	}
	return newRelation(slices.Clone(base.columns), rows), nil
}

// Union returns the rows of a followed by the rows of b that do not occur in a.
// Both relations must have the same column set.
func Union(a, b Relation) (Relation, error) {
	if !a.Schema().Equal(b.Schema()) {
		return Relation{}, ErrSchemaMismatch("cannot union %v with %v", a.columns, b.columns)
	}
	seen := make(map[string]bool, len(a.rows))
	for i := range a.rows {
		seen[a.RowKey(i, a.columns)] = true
	}
	rows := make([][]any, 0, len(a.rows)+len(b.rows))
	rows = append(rows, a.rows...)
	for i, vals := range b.rows {
		if seen[b.RowKey(i, a.columns)] {
			continue
		}
		out := make([]any, len(a.columns))
		for j, c := range a.columns {
			out[j] = vals[b.index[c]]
		}
		rows = append(rows, out)
	}
	return newRelation(slices.Clone(a.columns), rows), nil
}

// RowKey encodes the values of cols in row i for hashing.
func (r Relation) RowKey(i int, cols []string) string {
	vals := make([]any, len(cols))
	for k, c := range cols {
		vals[k] = r.rows[i][r.index[c]]
	}
	return encodeValues(vals)
}

// Tuple projects row i onto cols as a RelationTuple.
func (r Relation) Tuple(i int, cols []string) (RelationTuple, error) {
	m := make(map[string]any, len(cols))
	for _, c := range cols {
		j, ok := r.index[c]
		if !ok {
			return RelationTuple{}, ErrInvalidSchema("column %q not found in relation %v", c, r.columns)
		}
		m[c] = r.rows[i][j]
	}
	return NewTuple(m)
}

// Equal reports whether both relations hold the same columns (in any order) and the
// same rows in the same order.
func (r Relation) Equal(o Relation) bool {
	if !r.Schema().Equal(o.Schema()) || len(r.rows) != len(o.rows) {
		return false
	}
	for i := range r.rows {
		if r.RowKey(i, r.columns) != o.RowKey(i, r.columns) {
			return false
		}
	}
	return true
}

// SameRows reports whether both relations hold the same multiset of rows,
// ignoring row and column order.
func (r Relation) SameRows(o Relation) bool {
	if !r.Schema().Equal(o.Schema()) || len(r.rows) != len(o.rows) {
		return false
	}
	counts := make(map[string]int, len(r.rows))
	for i := range r.rows {
		counts[r.RowKey(i, r.columns)]++
	}
	for i := range o.rows {
		k := o.RowKey(i, r.columns)
		if counts[k] == 0 {
			return false
		}
		counts[k]--
	}
	return true
}

func (r Relation) String() string {
	var b strings.Builder
	b.WriteString(strings.Join(r.columns, "\t"))
	for _, row := range r.rows {
		b.WriteByte('\n')
		for i, v := range row {
			if i > 0 {
				b.WriteByte('\t')
			}
			fmt.Fprintf(&b, "%v", v)
		}
	}
	return b.String()
}
