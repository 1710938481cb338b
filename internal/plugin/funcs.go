// Package plugin provides ready-made transformations and predicates for
// SliceTransform and SliceSelect, including Starlark-scripted ones.
package plugin

import (
	"mra/internal/domain"
)

// Compile-time checks.
var (
	_ domain.Transformation = (*FuncTransformation)(nil)
	_ domain.Predicate      = PredicateFunc(nil)
)

// FuncTransformation adapts a Go function to domain.Transformation.
type FuncTransformation struct {
	source string
	target string
	mode   domain.TransformMode
	fn     func(region domain.RelationTuple, rel domain.Relation) (domain.Output, error)
}

// Func wraps fn as a transformation reading source and writing target.
func Func(source, target string, mode domain.TransformMode, fn func(domain.RelationTuple, domain.Relation) (domain.Relation, error)) *FuncTransformation {
	return &FuncTransformation{
		source: source,
		target: target,
		mode:   mode,
		fn: func(region domain.RelationTuple, rel domain.Relation) (domain.Output, error) {
			out, err := fn(region, rel)
			if err != nil {
				return domain.Output{}, err
			}
			return domain.Single(out), nil
		},
	}
}

// FuncOutput wraps fn, which may return several named relations.
func FuncOutput(source string, mode domain.TransformMode, fn func(domain.RelationTuple, domain.Relation) (domain.Output, error)) *FuncTransformation {
	return &FuncTransformation{source: source, mode: mode, fn: fn}
}

func (f *FuncTransformation) Source() string            { return f.source }
func (f *FuncTransformation) Target() string            { return f.target }
func (f *FuncTransformation) Mode() domain.TransformMode { return f.mode }

// Apply implements domain.Transformation.
func (f *FuncTransformation) Apply(region domain.RelationTuple, rel domain.Relation) (domain.Output, error) {
	return f.fn(region, rel)
}

// PredicateFunc adapts a function to domain.Predicate.
type PredicateFunc func(region domain.RelationTuple, features domain.Features) (bool, error)

// Evaluate calls f.
func (f PredicateFunc) Evaluate(region domain.RelationTuple, features domain.Features) (bool, error) {
	return f(region, features)
}

// Not negates p.
func Not(p domain.Predicate) domain.Predicate {
	return PredicateFunc(func(region domain.RelationTuple, features domain.Features) (bool, error) {
		ok, err := p.Evaluate(region, features)
		return !ok, err
	})
}

// All accepts a slice tuple when every predicate does. Evaluation stops at the
// first rejection or error.
func All(ps ...domain.Predicate) domain.Predicate {
	return PredicateFunc(func(region domain.RelationTuple, features domain.Features) (bool, error) {
		for _, p := range ps {
			ok, err := p.Evaluate(region, features)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	})
}

// Any accepts a slice tuple when at least one predicate does.
func Any(ps ...domain.Predicate) domain.Predicate {
	return PredicateFunc(func(region domain.RelationTuple, features domain.Features) (bool, error) {
		for _, p := range ps {
			ok, err := p.Evaluate(region, features)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	})
}
