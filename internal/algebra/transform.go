package algebra

import (
	"context"
	"slices"
	"sort"

	"mra/internal/domain"
)

// TransformOperator applies slice-local transformations to every slice tuple.
type TransformOperator struct {
	transforms []domain.Transformation
	s          settings
}

// SliceTransform applies transforms, in order, to the features of each slice
// tuple. A tuple lacking a transformation's source feature is left untouched by it.
func SliceTransform(transforms []domain.Transformation, opts ...Option) *TransformOperator {
	return &TransformOperator{transforms: slices.Clone(transforms), s: newSettings(opts)}
}

func (o *TransformOperator) Name() string     { return StageSliceTransform }
func (o *TransformOperator) In() domain.Kind  { return domain.KindSlices }
func (o *TransformOperator) Out() domain.Kind { return domain.KindSlices }

// Apply implements Operator.
func (o *TransformOperator) Apply(_ context.Context, in domain.Value) (domain.Value, error) {
	sr, err := asSlices(in, StageSliceTransform)
	if err != nil {
		return nil, err
	}
	out, err := o.Transform(sr)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transform runs the transformations. The first failure aborts the whole operation.
func (o *TransformOperator) Transform(in *domain.SliceRelation) (*domain.SliceRelation, error) {
	for i, t := range o.transforms {
		if t == nil {
			return nil, domain.ErrInvalidSchema("transformation %d is nil", i)
		}
	}
	parents := map[string]bool{}
	for _, p := range o.s.drillDown {
		parents[p.Key()] = true
	}

	out := make([]domain.SliceTuple, 0, in.Len())
	dropped := 0
	for _, st := range in.Tuples() {
		if o.s.hasDrill && !drillsDown(st.Region, parents) {
			dropped++
			continue
		}
		features := st.Features
		for _, t := range o.transforms {
			var err error
			features, err = applyTransformation(t, st.Region, features)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, domain.SliceTuple{Region: st.Region, Features: features})
	}
	o.s.logger.Debug("slices transformed", "tuples", len(out), "drilled_out", dropped, "transformations", len(o.transforms))
	return domain.NewSliceRelation(out)
}

// drillsDown reports whether every parent of region is in parents.
func drillsDown(region domain.RelationTuple, parents map[string]bool) bool {
	if region.Len() <= 1 {
		return true
	}
	for _, c := range region.Columns() {
		if !parents[region.Without(c).Key()] {
			return false
		}
	}
	return true
}

func applyTransformation(t domain.Transformation, region domain.RelationTuple, features domain.Features) (domain.Features, error) {
	src, ok := features.Get(t.Source())
	if !ok {
		return features, nil
	}
	res, err := t.Apply(region, src)
	if err != nil {
		return domain.Features{}, domain.ErrTransformFailure(err, "transform %q -> %q on region %s", t.Source(), t.Target(), region)
	}

	var names []string
	var rels []domain.Relation
	if res.IsMany() {
		names = outputOrder(res)
		for _, n := range names {
			rels = append(rels, res.Many[n])
		}
	} else {
		target := t.Target()
		if target == "" {
			target = t.Source()
		}
		names, rels = []string{target}, []domain.Relation{res.Single}
	}

	for i, name := range names {
		switch t.Mode() {
		case domain.ModeAdd:
			if features.Has(name) {
				return domain.Features{}, domain.ErrDuplicateFeature("feature %q already exists in region %s", name, region)
			}
		case domain.ModeMutate:
			if !features.Has(name) {
				return domain.Features{}, domain.ErrMissingRelation("cannot mutate missing feature %q in region %s", name, region)
			}
		}
		features = features.With(name, rels[i])
	}
	return features, nil
}

// outputOrder lists named outputs: Order first, then the rest sorted.
func outputOrder(o domain.Output) []string {
	seen := map[string]bool{}
	var names []string
	for _, n := range o.Order {
		if _, ok := o.Many[n]; ok && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	var rest []string
	for n := range o.Many {
		if !seen[n] {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	return append(names, rest...)
}
