package domain

import (
	"slices"
	"sort"
	"strings"
)

// RelationSchema is an immutable set of column names that identifies a relation's
// grouping granularity. Column order is kept for output but does not affect identity.
type RelationSchema struct {
	columns []string
	key     string
}

// NewSchema builds a schema, rejecting empty or duplicate column names.
func NewSchema(columns ...string) (RelationSchema, error) {
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		if strings.TrimSpace(c) == "" {
			return RelationSchema{}, ErrInvalidSchema("schema column name must not be empty")
		}
		if seen[c] {
			return RelationSchema{}, ErrInvalidSchema("duplicate column %q in schema", c)
		}
		seen[c] = true
	}
	cols := slices.Clone(columns)
	sorted := slices.Clone(columns)
	sort.Strings(sorted)
	return RelationSchema{columns: cols, key: strings.Join(sorted, "\x1f")}, nil
}

// MustSchema is NewSchema for literals known to be valid.
func MustSchema(columns ...string) RelationSchema {
	s, err := NewSchema(columns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Columns returns the columns in construction order.
func (s RelationSchema) Columns() []string { return slices.Clone(s.columns) }

// Sorted returns the columns in ascending order.
func (s RelationSchema) Sorted() []string {
	out := slices.Clone(s.columns)
	sort.Strings(out)
	return out
}

// Len returns the number of columns.
func (s RelationSchema) Len() int { return len(s.columns) }

// Key is the order-independent identity of the schema.
func (s RelationSchema) Key() string { return s.key }

// Equal compares schemas as sets.
func (s RelationSchema) Equal(o RelationSchema) bool { return s.key == o.key }

// Contains reports whether the schema includes col.
func (s RelationSchema) Contains(col string) bool { return slices.Contains(s.columns, col) }

// IsSubsetOf reports whether every column of s is in o.
func (s RelationSchema) IsSubsetOf(o RelationSchema) bool {
	for _, c := range s.columns {
		if !o.Contains(c) {
			return false
		}
	}
	return true
}

// IsStrictSubsetOf reports s ⊂ o.
func (s RelationSchema) IsStrictSubsetOf(o RelationSchema) bool {
	return s.IsSubsetOf(o) && len(s.columns) < len(o.columns)
}

// Minus returns the columns of s not in o, in s order.
func (s RelationSchema) Minus(o RelationSchema) RelationSchema {
	var out []string
	for _, c := range s.columns {
		if !o.Contains(c) {
			out = append(out, c)
		}
	}
	return MustSchema(out...)
}

// Union returns s followed by the columns of o not already in s.
func (s RelationSchema) Union(o RelationSchema) RelationSchema {
	out := slices.Clone(s.columns)
	for _, c := range o.columns {
		if !s.Contains(c) {
			out = append(out, c)
		}
	}
	return MustSchema(out...)
}

// Intersect returns the columns of s that are also in o, in s order.
func (s RelationSchema) Intersect(o RelationSchema) RelationSchema {
	var out []string
	for _, c := range s.columns {
		if o.Contains(c) {
			out = append(out, c)
		}
	}
	return MustSchema(out...)
}

func (s RelationSchema) String() string {
	return "{" + strings.Join(s.columns, ", ") + "}"
}
