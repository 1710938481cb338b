package domain

import (
	"context"
	"strings"
)

// AggFunc names an aggregation function understood by every TabularEngine.
type AggFunc string

const (
	AggSum           AggFunc = "sum"
	AggCount         AggFunc = "count"
	AggMean          AggFunc = "mean"
	AggMin           AggFunc = "min"
	AggMax           AggFunc = "max"
	AggCountDistinct AggFunc = "count_distinct"
)

// ParseAggFunc resolves a function name, accepting "avg" as an alias of mean.
func ParseAggFunc(name string) (AggFunc, error) {
	switch f := AggFunc(strings.ToLower(strings.TrimSpace(name))); f {
	case AggSum, AggCount, AggMean, AggMin, AggMax, AggCountDistinct:
		return f, nil
	case "avg":
		return AggMean, nil
	default:
		return "", ErrInvalidSchema("unknown aggregation function %q", name)
	}
}

// Aggregation aggregates Column with Func into the output column As (Column when empty).
type Aggregation struct {
	Column string
	Func   AggFunc
	As     string
}

// Output returns the name of the aggregated column.
func (a Aggregation) Output() string {
	if a.As != "" {
		return a.As
	}
	return a.Column
}

// AggregationSpec lists aggregations in output column order.
type AggregationSpec []Aggregation

// Outputs returns the output column names.
func (s AggregationSpec) Outputs() []string {
	out := make([]string, len(s))
	for i, a := range s {
		out[i] = a.Output()
	}
	return out
}

// Validate checks that every aggregation references a column of base, uses a known
// function, and that output names are unique and distinct from keys.
func (s AggregationSpec) Validate(base Relation, keys []string) error {
	if len(s) == 0 {
		return ErrInvalidSchema("aggregation spec must not be empty")
	}
	taken := make(map[string]bool, len(keys)+len(s))
	for _, k := range keys {
		taken[k] = true
	}
	for _, a := range s {
		if !base.HasColumn(a.Column) {
			return ErrInvalidSchema("aggregation references unknown column %q", a.Column)
		}
		if _, err := ParseAggFunc(string(a.Func)); err != nil {
			return err
		}
		if taken[a.Output()] {
			return ErrInvalidSchema("aggregation output %q collides with another column", a.Output())
		}
		taken[a.Output()] = true
	}
	return nil
}

// GroupingSet is one aggregation level of a cube.
type GroupingSet struct {
	Schema   RelationSchema
	Relation Relation
}

// RowGroup is one partition of a relation by a set of columns.
type RowGroup struct {
	Key      RelationTuple
	Relation Relation
}

// TabularEngine supplies the relational primitives the algebra is built on.
// Implemented by engine.Memory and engine.DuckDB.
type TabularEngine interface {
	// GroupByCube aggregates base over every subset of keys. Grouping sets are
	// returned from the widest (all keys) to the narrowest (no keys), and each
	// relation holds the subset's columns in keys order followed by the outputs.
	GroupByCube(ctx context.Context, base Relation, keys []string, spec AggregationSpec) ([]GroupingSet, error)
	Select(ctx context.Context, rel Relation, keep func(Row) bool) (Relation, error)
	Project(ctx context.Context, rel Relation, columns []string) (Relation, error)
	Concat(ctx context.Context, rels []Relation) (Relation, error)
	// GroupRows partitions rel by columns in first-appearance order.
	GroupRows(ctx context.Context, rel Relation, columns []string) ([]RowGroup, error)
	// Join full-outer-joins right onto left on the columns in on. Right
	// contributes only the columns left lacks; rows without a partner on the
	// other side are kept with nil in the missing columns.
	Join(ctx context.Context, left, right Relation, on []string) (Relation, error)
}

// TransformMode declares whether a transformation overwrites or adds features.
type TransformMode int

const (
	ModeAdd TransformMode = iota
	ModeMutate
)

func (m TransformMode) String() string {
	if m == ModeMutate {
		return "mutate"
	}
	return "add"
}

// ParseTransformMode resolves "add" or "mutate"; empty means add.
func ParseTransformMode(s string) (TransformMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "add":
		return ModeAdd, nil
	case "mutate":
		return ModeMutate, nil
	default:
		return ModeAdd, ErrInvalidSchema("unknown transform mode %q", s)
	}
}

// Output is what a transformation produces for one region: either a single
// relation stored under the transformation's target, or named relations.
type Output struct {
	Single Relation
	Many   map[string]Relation
	// Order fixes the insertion order of Many; names missing from it follow sorted.
	Order []string
}

// Single wraps one relation as an Output.
func Single(rel Relation) Output { return Output{Single: rel} }

// Many wraps named relations as an Output, inserted in the order given.
func Many(names []string, rels []Relation) Output {
	m := make(map[string]Relation, len(names))
	for i, n := range names {
		m[n] = rels[i]
	}
	return Output{Many: m, Order: names}
}

// IsMany reports whether the output carries named relations.
func (o Output) IsMany() bool { return o.Many != nil }

// Transformation is a slice-local computation applied by SliceTransform.
type Transformation interface {
	// Source names the feature the transformation reads.
	Source() string
	// Target names the feature written for single outputs.
	Target() string
	Mode() TransformMode
	Apply(region RelationTuple, rel Relation) (Output, error)
}

// Predicate decides whether a slice tuple survives SliceSelect.
type Predicate interface {
	Evaluate(region RelationTuple, features Features) (bool, error)
}
