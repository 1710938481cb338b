package algebra

import (
	"context"
	"strings"

	"mra/internal/domain"
)

// SelfFeature names the feature holding a region's own measures.
const SelfFeature = "self"

// Feature declares an explicit feature: Name is built from Columns of the
// narrowest relation in the space that carries the region and Columns.
type Feature struct {
	Name    string
	Columns []string
}

// FeatureName is the name the default rule gives the relation keyed by schema
// when it is a feature of region: "by_" plus the extra columns, sorted and joined by "_".
func FeatureName(region, schema domain.RelationSchema) string {
	if schema.Equal(region) {
		return SelfFeature
	}
	return "by_" + strings.Join(schema.Minus(region).Sorted(), "_")
}

// RepresentOperator turns a relation space into one slice tuple per region.
type RepresentOperator struct {
	regions []domain.RelationSchema
	s       settings
}

// Represent slices space around the distinct rows of each region schema's relation.
// By default every relation keyed by a strict superset S of a region schema R
// becomes feature FeatureName(R, S), projected to its columns outside R, and R's
// own relation becomes feature "self" holding its measures.
func Represent(regions []domain.RelationSchema, opts ...Option) *RepresentOperator {
	rs := make([]domain.RelationSchema, len(regions))
	copy(rs, regions)
	return &RepresentOperator{regions: rs, s: newSettings(opts)}
}

func (o *RepresentOperator) Name() string     { return StageRepresent }
func (o *RepresentOperator) In() domain.Kind  { return domain.KindSpace }
func (o *RepresentOperator) Out() domain.Kind { return domain.KindSlices }

// Apply implements Operator.
func (o *RepresentOperator) Apply(ctx context.Context, in domain.Value) (domain.Value, error) {
	space, err := asSpace(in, StageRepresent)
	if err != nil {
		return nil, err
	}
	out, err := o.Build(ctx, space)
	if err != nil {
		return nil, err
	}
	return out, nil
}

type featurePlan struct {
	name    string
	source  domain.Relation
	columns []string
}

// Build represents space.
func (o *RepresentOperator) Build(ctx context.Context, space *domain.RelationSpace) (*domain.SliceRelation, error) {
	if err := o.validate(); err != nil {
		return nil, err
	}
	var tuples []domain.SliceTuple
	for _, region := range o.regions {
		regionRel, err := space.MustGet(region)
		if err != nil {
			return nil, err
		}
		regions, err := o.s.engine.GroupRows(ctx, regionRel, region.Columns())
		if err != nil {
			return nil, engineError(err, "extract regions")
		}
		plans, err := o.plan(space, region)
		if err != nil {
			return nil, err
		}

		names := make([]string, len(plans))
		parts := make([]map[string]domain.Relation, len(plans))
		for i, p := range plans {
			names[i] = p.name
			parts[i], err = o.partition(ctx, p, region)
			if err != nil {
				return nil, err
			}
		}

		for _, g := range regions {
			rels := make([]domain.Relation, len(plans))
			for i, p := range plans {
				rel, ok := parts[i][g.Key.Key()]
				if !ok {
					if rel, err = domain.EmptyRelation(p.columns...); err != nil {
						return nil, err
					}
				}
				rels[i] = rel
			}
			features, err := domain.NewFeatures(names, rels)
			if err != nil {
				return nil, err
			}
			tuples = append(tuples, domain.SliceTuple{Region: g.Key, Features: features})
		}
		o.s.logger.Debug("represented region schema", "region", region.String(), "regions", len(regions), "features", names)
	}
	return domain.NewSliceRelation(tuples)
}

func (o *RepresentOperator) validate() error {
	if len(o.regions) == 0 {
		return domain.ErrInvalidSchema("represent needs at least one region schema")
	}
	seen := map[string]bool{}
	for _, r := range o.regions {
		if seen[r.Key()] {
			return domain.ErrInvalidSchema("region schema %s listed twice", r)
		}
		seen[r.Key()] = true
	}
	names := map[string]bool{}
	for _, f := range o.s.features {
		if strings.TrimSpace(f.Name) == "" {
			return domain.ErrInvalidSchema("feature name must not be empty")
		}
		if names[f.Name] {
			return domain.ErrDuplicateFeature("feature %q declared twice", f.Name)
		}
		names[f.Name] = true
		if len(f.Columns) == 0 {
			return domain.ErrInvalidSchema("feature %q has no columns", f.Name)
		}
		if _, err := domain.NewSchema(f.Columns...); err != nil {
			return err
		}
	}
	return nil
}

// plan lists the features of region, in space order for the default rule and
// declaration order for explicit features.
func (o *RepresentOperator) plan(space *domain.RelationSpace, region domain.RelationSchema) ([]featurePlan, error) {
	if len(o.s.features) > 0 {
		return o.planExplicit(space, region)
	}
	var plans []featurePlan
	space.Each(func(s domain.RelationSchema, rel domain.Relation) bool {
		if !s.Equal(region) && !region.IsStrictSubsetOf(s) {
			return true
		}
		var cols []string
		for _, c := range rel.Columns() {
			if !region.Contains(c) {
				cols = append(cols, c)
			}
		}
		if len(cols) == 0 {
			return true
		}
		plans = append(plans, featurePlan{name: FeatureName(region, s), source: rel, columns: cols})
		return true
	})
	return plans, nil
}

func (o *RepresentOperator) planExplicit(space *domain.RelationSpace, region domain.RelationSchema) ([]featurePlan, error) {
	plans := make([]featurePlan, 0, len(o.s.features))
	for _, f := range o.s.features {
		cols := domain.MustSchema(f.Columns...)
		if overlap := cols.Intersect(region); overlap.Len() > 0 {
			return nil, domain.ErrInvalidSchema("feature %q repeats region columns %s", f.Name, overlap)
		}
		needed := region.Union(cols).Columns()
		var best domain.Relation
		found := false
		space.Each(func(_ domain.RelationSchema, rel domain.Relation) bool {
			if rel.HasColumns(needed...) && (!found || len(rel.Columns()) < len(best.Columns())) {
				best, found = rel, true
			}
			return true
		})
		if !found {
			return nil, domain.ErrMissingRelation("no relation carries %v for feature %q of region %s", needed, f.Name, region)
		}
		plans = append(plans, featurePlan{name: f.Name, source: best, columns: cols.Columns()})
	}
	return plans, nil
}

// partition splits a feature's source relation by region and projects the
// feature columns.
func (o *RepresentOperator) partition(ctx context.Context, p featurePlan, region domain.RelationSchema) (map[string]domain.Relation, error) {
	groups, err := o.s.engine.GroupRows(ctx, p.source, region.Columns())
	if err != nil {
		return nil, engineError(err, "partition feature "+p.name)
	}
	out := make(map[string]domain.Relation, len(groups))
	for _, g := range groups {
		rel, err := o.s.engine.Project(ctx, g.Relation, p.columns)
		if err != nil {
			return nil, engineError(err, "project feature "+p.name)
		}
		out[g.Key.Key()] = rel
	}
	return out, nil
}
