package domain

import (
	"fmt"
	"sort"
	"strings"
)

// RelationTuple is a row projected onto a schema. It identifies a region: the
// entity a slice tuple is organized around. Pairs are kept sorted by column so
// that equality and Key are independent of construction order.
type RelationTuple struct {
	columns []string
	values  []any
	key     string
}

// NewTuple builds a tuple from column/value pairs.
func NewTuple(values map[string]any) (RelationTuple, error) {
	cols := make([]string, 0, len(values))
	for c := range values {
		if strings.TrimSpace(c) == "" {
			return RelationTuple{}, ErrInvalidSchema("tuple column name must not be empty")
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	vals := make([]any, len(cols))
	for i, c := range cols {
		v, err := NormalizeValue(values[c])
		if err != nil {
			return RelationTuple{}, err
		}
		vals[i] = v
	}
	return RelationTuple{columns: cols, values: vals, key: tupleKey(cols, vals)}, nil
}

// MustTuple is NewTuple for literals known to be valid.
func MustTuple(values map[string]any) RelationTuple {
	t, err := NewTuple(values)
	if err != nil {
		panic(err)
	}
	return t
}

func tupleKey(cols []string, vals []any) string {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(0x1e)
		}
		b.WriteString(c)
		b.WriteByte('=')
		b.WriteString(encodeValue(vals[i]))
	}
	return b.String()
}

// Columns returns the tuple's columns in sorted order.
func (t RelationTuple) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Values returns the values aligned with Columns.
func (t RelationTuple) Values() []any {
	out := make([]any, len(t.values))
	copy(out, t.values)
	return out
}

// Schema returns the tuple's column set.
func (t RelationTuple) Schema() RelationSchema { return MustSchema(t.columns...) }

// Len returns the number of pairs.
func (t RelationTuple) Len() int { return len(t.columns) }

// Get returns the value for col.
func (t RelationTuple) Get(col string) (any, bool) {
	i := sort.SearchStrings(t.columns, col)
	if i < len(t.columns) && t.columns[i] == col {
		return t.values[i], true
	}
	return nil, false
}

// Key is the structural identity of the tuple.
func (t RelationTuple) Key() string { return t.key }

// Equal compares tuples structurally.
func (t RelationTuple) Equal(o RelationTuple) bool { return t.key == o.key }

// Map returns the tuple as a column/value map.
func (t RelationTuple) Map() map[string]any {
	m := make(map[string]any, len(t.columns))
	for i, c := range t.columns {
		m[c] = t.values[i]
	}
	return m
}

// Without returns the tuple minus col.
func (t RelationTuple) Without(col string) RelationTuple {
	m := t.Map()
	delete(m, col)
	return MustTuple(m)
}

// Matches reports whether row agrees with every pair of t. Columns the row does
// not carry count as a mismatch.
func (t RelationTuple) Matches(row Row) bool {
	for i, c := range t.columns {
		v, ok := row.Get(c)
		if !ok || !ValuesEqual(v, t.values[i]) {
			return false
		}
	}
	return true
}

func (t RelationTuple) String() string {
	parts := make([]string, len(t.columns))
	for i, c := range t.columns {
		parts[i] = fmt.Sprintf("%s=%v", c, t.values[i])
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
