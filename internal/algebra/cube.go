package algebra

import (
	"context"
	"slices"

	"mra/internal/domain"
)

// CubeOperator builds a relation space holding every aggregation level of a base
// relation. Grouping columns outside a level are omitted from its relation.
type CubeOperator struct {
	keys []string
	spec domain.AggregationSpec
	s    settings
}

// CreateRelationSpaceByCube aggregates the base relation with spec over every
// subset of keys. The result has 2^len(keys) relations.
func CreateRelationSpaceByCube(keys []string, spec domain.AggregationSpec, opts ...Option) *CubeOperator {
	return &CubeOperator{keys: slices.Clone(keys), spec: slices.Clone(spec), s: newSettings(opts)}
}

func (o *CubeOperator) Name() string     { return StageCube }
func (o *CubeOperator) In() domain.Kind  { return domain.KindRelation }
func (o *CubeOperator) Out() domain.Kind { return domain.KindSpace }

// Apply implements Operator.
func (o *CubeOperator) Apply(ctx context.Context, in domain.Value) (domain.Value, error) {
	base, err := asRelation(in, StageCube)
	if err != nil {
		return nil, err
	}
	out, err := o.Build(ctx, base)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Build computes the cube of base.
func (o *CubeOperator) Build(ctx context.Context, base domain.Relation) (*domain.RelationSpace, error) {
	if base.IsEmpty() {
		return nil, domain.ErrInvalidSchema("base relation is empty")
	}
	if len(o.keys) > o.s.maxCubeKeys {
		return nil, domain.ErrInvalidSchema("%d grouping keys exceed the limit of %d", len(o.keys), o.s.maxCubeKeys)
	}
	if _, err := domain.NewSchema(o.keys...); err != nil {
		return nil, err
	}
	for _, k := range o.keys {
		if !base.HasColumn(k) {
			return nil, domain.ErrInvalidSchema("grouping key %q not found in base relation %v", k, base.Columns())
		}
	}
	if err := o.spec.Validate(base, o.keys); err != nil {
		return nil, err
	}

	sets, err := o.s.engine.GroupByCube(ctx, base, o.keys, o.spec)
	if err != nil {
		return nil, engineError(err, "group by cube")
	}
	b := domain.NewSpaceBuilder(o.keys...)
	for _, gs := range sets {
		b.Add(gs.Schema, gs.Relation)
	}
	space, err := b.Build()
	if err != nil {
		return nil, err
	}
	if space.Len() != 1<<len(o.keys) {
		return nil, domain.ErrEngineFailure(nil, "engine returned %d grouping sets, want %d", space.Len(), 1<<len(o.keys))
	}
	o.s.logger.Debug("cube built", "keys", o.keys, "relations", space.Len(), "base_rows", base.Len())
	return space, nil
}
