package algebra

import (
	"context"

	"mra/internal/domain"
)

// SelectOperator keeps the slice tuples a predicate accepts.
type SelectOperator struct {
	predicate domain.Predicate
	s         settings
}

// SliceSelect evaluates predicate once per slice tuple, in order, and keeps the
// tuples it accepts. A nil predicate keeps every tuple.
func SliceSelect(predicate domain.Predicate, opts ...Option) *SelectOperator {
	return &SelectOperator{predicate: predicate, s: newSettings(opts)}
}

func (o *SelectOperator) Name() string     { return StageSliceSelect }
func (o *SelectOperator) In() domain.Kind  { return domain.KindSlices }
func (o *SelectOperator) Out() domain.Kind { return domain.KindSlices }

// Apply implements Operator.
func (o *SelectOperator) Apply(_ context.Context, in domain.Value) (domain.Value, error) {
	sr, err := asSlices(in, StageSliceSelect)
	if err != nil {
		return nil, err
	}
	out, err := o.Select(sr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Select filters in. A predicate error aborts with PredicateFailure.
func (o *SelectOperator) Select(in *domain.SliceRelation) (*domain.SliceRelation, error) {
	if o.predicate == nil {
		return in, nil
	}
	var kept []domain.SliceTuple
	for _, st := range in.Tuples() {
		ok, err := o.predicate.Evaluate(st.Region, st.Features)
		if err != nil {
			return nil, domain.ErrPredicateFailure(err, "evaluate region %s", st.Region)
		}
		if ok {
			kept = append(kept, st)
		}
	}
	o.s.logger.Debug("slices selected", "in", in.Len(), "kept", len(kept))
	return domain.NewSliceRelation(kept)
}

// ProjectOperator keeps the slice tuples whose region has one of the given schemas.
type ProjectOperator struct {
	schemas []domain.RelationSchema
	s       settings
}

// SliceProject keeps tuples whose region schema is listed, preserving order.
func SliceProject(schemas []domain.RelationSchema, opts ...Option) *ProjectOperator {
	cp := make([]domain.RelationSchema, len(schemas))
	copy(cp, schemas)
	return &ProjectOperator{schemas: cp, s: newSettings(opts)}
}

func (o *ProjectOperator) Name() string     { return StageSliceProject }
func (o *ProjectOperator) In() domain.Kind  { return domain.KindSlices }
func (o *ProjectOperator) Out() domain.Kind { return domain.KindSlices }

// Apply implements Operator.
func (o *ProjectOperator) Apply(_ context.Context, in domain.Value) (domain.Value, error) {
	sr, err := asSlices(in, StageSliceProject)
	if err != nil {
		return nil, err
	}
	if len(o.schemas) == 0 {
		return nil, domain.ErrInvalidSchema("slice project needs at least one region schema")
	}
	want := map[string]bool{}
	for _, s := range o.schemas {
		want[s.Key()] = true
	}
	var kept []domain.SliceTuple
	for _, st := range sr.Tuples() {
		if want[st.Region.Schema().Key()] {
			kept = append(kept, st)
		}
	}
	o.s.logger.Debug("slices projected", "in", sr.Len(), "kept", len(kept))
	out, err := domain.NewSliceRelation(kept)
	if err != nil {
		return nil, err
	}
	return out, nil
}
