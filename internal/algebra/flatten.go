package algebra

import (
	"context"

	"mra/internal/domain"
)

// FlattenOperator rebuilds a relation space from a slice relation.
type FlattenOperator struct {
	dimensions []string
	s          settings
}

// Flatten concatenates every feature across regions, with the region's columns
// prepended. The relation of feature f under region schema R is keyed by
// (R ∪ columns(f)) ∩ dimensions, or by all its columns when no dimensions are given.
func Flatten(dimensions []string, opts ...Option) *FlattenOperator {
	return &FlattenOperator{dimensions: append([]string(nil), dimensions...), s: newSettings(opts)}
}

func (o *FlattenOperator) Name() string     { return StageFlatten }
func (o *FlattenOperator) In() domain.Kind  { return domain.KindSlices }
func (o *FlattenOperator) Out() domain.Kind { return domain.KindSpace }

// Apply implements Operator.
func (o *FlattenOperator) Apply(ctx context.Context, in domain.Value) (domain.Value, error) {
	sr, err := asSlices(in, StageFlatten)
	if err != nil {
		return nil, err
	}
	out, err := o.Build(ctx, sr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type flattenGroup struct {
	name  string
	parts []domain.Relation
}

type keyedRelation struct {
	key domain.RelationSchema
	rel domain.Relation
}

// Build flattens in. Region columns a feature already carries must agree with the
// region. When two features land on the same key, relations with the same columns
// are unioned and otherwise they are full-outer-joined on the key columns: the
// later one contributes only the columns the earlier one lacks, and rows present
// on one side only are kept with nil in the other side's columns.
func (o *FlattenOperator) Build(ctx context.Context, in *domain.SliceRelation) (*domain.RelationSpace, error) {
	dims, err := domain.NewSchema(o.dimensions...)
	if err != nil {
		return nil, err
	}

	featureCols := map[string]domain.RelationSchema{}
	groups := map[string]*flattenGroup{}
	var order []*flattenGroup
	for _, st := range in.Tuples() {
		var ferr error
		st.Features.Each(func(name string, rel domain.Relation) bool {
			cols := rel.Schema()
			if prev, ok := featureCols[name]; ok && !prev.Equal(cols) {
				ferr = domain.ErrSchemaMismatch("feature %q has columns %s in region %s but %s elsewhere", name, cols, st.Region, prev)
				return false
			}
			featureCols[name] = cols
			tagged, err := rel.Prepend(st.Region)
			if err != nil {
				ferr = err
				return false
			}
			gk := name + "\x1f" + st.Region.Schema().Key()
			g, ok := groups[gk]
			if !ok {
				g = &flattenGroup{name: name}
				groups[gk] = g
				order = append(order, g)
			}
			g.parts = append(g.parts, tagged)
			return true
		})
		if ferr != nil {
			return nil, ferr
		}
	}

	byKey := map[string]*keyedRelation{}
	var keys []*keyedRelation
	for _, g := range order {
		rel, err := o.s.engine.Concat(ctx, g.parts)
		if err != nil {
			return nil, engineError(err, "concat feature "+g.name)
		}
		key := rel.Schema()
		if dims.Len() > 0 {
			key = key.Intersect(dims)
		}
		kr, ok := byKey[key.Key()]
		if !ok {
			kr = &keyedRelation{key: key, rel: rel}
			byKey[key.Key()] = kr
			keys = append(keys, kr)
			continue
		}
		if kr.rel.Schema().Equal(rel.Schema()) {
			if kr.rel, err = domain.Union(kr.rel, rel); err != nil {
				return nil, err
			}
			continue
		}
		if kr.rel, err = o.s.engine.Join(ctx, kr.rel, rel, key.Columns()); err != nil {
			return nil, engineError(err, "merge feature "+g.name)
		}
	}

	b := domain.NewSpaceBuilder(o.dimensions...)
	for _, kr := range keys {
		b.Add(kr.key, kr.rel)
	}
	space, err := b.Build()
	if err != nil {
		return nil, err
	}
	o.s.logger.Debug("slices flattened", "tuples", in.Len(), "features", len(order), "relations", space.Len())
	return space, nil
}
