package domain

import (
	"slices"
	"strings"
)

// Features is an insertion-ordered mapping from feature name to relation. With and
// Without return new values; a Features is never modified once shared.
type Features struct {
	names     []string
	relations map[string]Relation
}

// NewFeatures builds features from name/relation pairs in the given order.
func NewFeatures(names []string, rels []Relation) (Features, error) {
	if len(names) != len(rels) {
		return Features{}, ErrInvalidSchema("got %d feature names for %d relations", len(names), len(rels))
	}
	f := Features{relations: make(map[string]Relation, len(names))}
	for i, n := range names {
		if strings.TrimSpace(n) == "" {
			return Features{}, ErrInvalidSchema("feature name must not be empty")
		}
		if _, dup := f.relations[n]; dup {
			return Features{}, ErrDuplicateFeature("feature %q declared twice", n)
		}
		f.names = append(f.names, n)
		f.relations[n] = rels[i]
	}
	return f, nil
}

// Len returns the number of features.
func (f Features) Len() int { return len(f.names) }

// Names returns the feature names in order.
func (f Features) Names() []string { return slices.Clone(f.names) }

// Get returns the named feature.
func (f Features) Get(name string) (Relation, bool) {
	r, ok := f.relations[name]
	return r, ok
}

// Has reports whether the named feature exists.
func (f Features) Has(name string) bool {
	_, ok := f.relations[name]
	return ok
}

// With returns a copy holding rel under name. An existing feature keeps its position.
func (f Features) With(name string, rel Relation) Features {
	out := Features{names: slices.Clone(f.names), relations: make(map[string]Relation, len(f.relations)+1)}
	for k, v := range f.relations {
		out.relations[k] = v
	}
	if _, ok := out.relations[name]; !ok {
		out.names = append(out.names, name)
	}
	out.relations[name] = rel
	return out
}

// Without returns a copy lacking name.
func (f Features) Without(name string) Features {
	if !f.Has(name) {
		return f
	}
	out := Features{relations: make(map[string]Relation, len(f.relations))}
	for _, n := range f.names {
		if n == name {
			continue
		}
		out.names = append(out.names, n)
		out.relations[n] = f.relations[n]
	}
	return out
}

// Each calls fn for every feature in order until fn returns false.
func (f Features) Each(fn func(name string, rel Relation) bool) {
	for _, n := range f.names {
		if !fn(n, f.relations[n]) {
			return
		}
	}
}

// SliceTuple pairs a region with the feature relations scoped to it.
type SliceTuple struct {
	Region   RelationTuple
	Features Features
}

// SliceRelation is an ordered sequence of slice tuples keyed by region.
type SliceRelation struct {
	tuples []SliceTuple
	index  map[string]int
}

// NewSliceRelation builds a slice relation, rejecting duplicate regions.
func NewSliceRelation(tuples []SliceTuple) (*SliceRelation, error) {
	s := &SliceRelation{tuples: make([]SliceTuple, 0, len(tuples)), index: make(map[string]int, len(tuples))}
	for _, t := range tuples {
		if _, dup := s.index[t.Region.Key()]; dup {
			return nil, ErrInvalidSchema("duplicate region %s in slice relation", t.Region)
		}
		s.index[t.Region.Key()] = len(s.tuples)
		s.tuples = append(s.tuples, t)
	}
	return s, nil
}

// Len returns the number of slice tuples.
func (s *SliceRelation) Len() int {
	if s == nil {
		return 0
	}
	return len(s.tuples)
}

// Tuples returns the slice tuples in order.
func (s *SliceRelation) Tuples() []SliceTuple {
	if s == nil {
		return nil
	}
	return slices.Clone(s.tuples)
}

// At returns the i-th tuple.
func (s *SliceRelation) At(i int) SliceTuple { return s.tuples[i] }

// Lookup finds the tuple for region.
func (s *SliceRelation) Lookup(region RelationTuple) (SliceTuple, bool) {
	if s == nil {
		return SliceTuple{}, false
	}
	i, ok := s.index[region.Key()]
	if !ok {
		return SliceTuple{}, false
	}
	return s.tuples[i], true
}

// RegionSchemas returns the distinct region schemas in first-appearance order.
func (s *SliceRelation) RegionSchemas() []RelationSchema {
	var out []RelationSchema
	seen := map[string]bool{}
	for _, t := range s.Tuples() {
		sc := t.Region.Schema()
		if !seen[sc.Key()] {
			seen[sc.Key()] = true
			out = append(out, sc)
		}
	}
	return out
}

// FeatureNames returns every feature name across all tuples in first-appearance order.
func (s *SliceRelation) FeatureNames() []string {
	var out []string
	seen := map[string]bool{}
	for _, t := range s.Tuples() {
		for _, n := range t.Features.names {
			if !seen[n] {
				seen[n] = true
				out = append(out, n)
			}
		}
	}
	return out
}
