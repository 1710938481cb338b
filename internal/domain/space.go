package domain

import (
	"strings"
)

// RelationSpace maps dimensional schemas to relations derived from one base table.
// Iteration follows insertion order. A space is never mutated after Build.
type RelationSpace struct {
	dimensions RelationSchema
	order      []RelationSchema
	relations  map[string]Relation
}

// Dimensions returns the schema of every grouping column the space was built over.
// It is empty for spaces assembled without declared dimensions.
func (s *RelationSpace) Dimensions() RelationSchema { return s.dimensions }

// Len returns the number of relations.
func (s *RelationSpace) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Schemas returns the keys in insertion order.
func (s *RelationSpace) Schemas() []RelationSchema {
	if s == nil {
		return nil
	}
	out := make([]RelationSchema, len(s.order))
	copy(out, s.order)
	return out
}

// Get looks up the relation keyed by schema.
func (s *RelationSpace) Get(schema RelationSchema) (Relation, bool) {
	if s == nil {
		return Relation{}, false
	}
	r, ok := s.relations[schema.Key()]
	return r, ok
}

// MustGet looks up the relation keyed by schema or returns MissingRelation.
func (s *RelationSpace) MustGet(schema RelationSchema) (Relation, error) {
	r, ok := s.Get(schema)
	if !ok {
		return Relation{}, ErrMissingRelation("no relation keyed by %s in space", schema)
	}
	return r, nil
}

// Has reports whether schema is a key.
func (s *RelationSpace) Has(schema RelationSchema) bool {
	_, ok := s.Get(schema)
	return ok
}

// Each calls fn for every (schema, relation) in insertion order until fn returns false.
func (s *RelationSpace) Each(fn func(RelationSchema, Relation) bool) {
	if s == nil {
		return
	}
	for _, sc := range s.order {
		if !fn(sc, s.relations[sc.Key()]) {
			return
		}
	}
}

func (s *RelationSpace) String() string {
	var b strings.Builder
	b.WriteString("RelationSpace[")
	for i, sc := range s.order {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(sc.String())
	}
	b.WriteString("]")
	return b.String()
}

// SpaceBuilder accumulates relations for a RelationSpace, validating each one.
type SpaceBuilder struct {
	space *RelationSpace
	err   error
}

// NewSpaceBuilder starts a space over the given dimension columns.
func NewSpaceBuilder(dimensions ...string) *SpaceBuilder {
	b := &SpaceBuilder{space: &RelationSpace{relations: make(map[string]Relation)}}
	dims, err := NewSchema(dimensions...)
	if err != nil {
		b.err = err
		return b
	}
	b.space.dimensions = dims
	return b
}

// Add registers rel under schema. The relation must carry every schema column, and
// when the space declares dimensions, the relation's dimension columns must be exactly
// the schema. The first failure is kept and returned by Build.
func (b *SpaceBuilder) Add(schema RelationSchema, rel Relation) *SpaceBuilder {
	if b.err != nil {
		return b
	}
	if b.space.Has(schema) {
		b.err = ErrInvalidSchema("relation keyed by %s already present", schema)
		return b
	}
	for _, c := range schema.Columns() {
		if !rel.HasColumn(c) {
			b.err = ErrInvalidSchema("relation %v does not carry key column %q of %s", rel.columns, c, schema)
			return b
		}
	}
	if b.space.dimensions.Len() > 0 {
		got := rel.Schema().Intersect(b.space.dimensions)
		if !got.Equal(schema) {
			b.err = ErrInvalidSchema("relation dimensions %s do not match key %s", got, schema)
			return b
		}
	}
	b.space.order = append(b.space.order, schema)
	b.space.relations[schema.Key()] = rel
	return b
}

// Err returns the first validation failure, if any.
func (b *SpaceBuilder) Err() error { return b.err }

// Build returns the space. The builder must not be reused afterwards.
func (b *SpaceBuilder) Build() (*RelationSpace, error) {
	if b.err != nil {
		return nil, b.err
	}
	s := b.space
	b.space = nil
	return s, nil
}
