package declarative

import (
	"errors"
	"fmt"
	"log/slog"

	"mra/internal/algebra"
	"mra/internal/domain"
	"mra/internal/plugin"
)

// BuildOptions supplies the runtime the built operators use.
type BuildOptions struct {
	Engine      domain.TabularEngine
	Logger      *slog.Logger
	Limits      plugin.Limits
	MaxCubeKeys int
}

func (o BuildOptions) operatorOptions() []algebra.Option {
	return []algebra.Option{
		algebra.WithEngine(o.Engine),
		algebra.WithLogger(o.Logger),
		algebra.WithMaxCubeKeys(o.MaxCubeKeys),
	}
}

// Build validates doc and turns it into a pipeline. Validation problems are
// joined into a single InvalidSchema error.
func Build(doc *PipelineDoc, opts BuildOptions) (*algebra.Pipeline, error) {
	if verrs := Validate(doc); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return nil, &domain.Error{
			Kind:    domain.KindInvalidSchema,
			Message: fmt.Sprintf("pipeline %q has %d problem(s)", docName(doc), len(verrs)),
			Err:     errors.Join(errs...),
		}
	}

	ops := make([]algebra.Operator, 0, len(doc.Spec.Stages))
	for i, st := range doc.Spec.Stages {
		op, err := buildStage(doc, st, i, opts)
		if err != nil {
			return nil, fmt.Errorf("spec.stages[%d]: %w", i, err)
		}
		ops = append(ops, op)
	}
	p, err := algebra.Compose(ops...)
	if err != nil {
		return nil, err
	}
	return p.WithLogger(opts.Logger), nil
}

func docName(doc *PipelineDoc) string {
	if doc == nil {
		return ""
	}
	return doc.Metadata.Name
}

func buildStage(doc *PipelineDoc, st StageSpec, idx int, opts BuildOptions) (algebra.Operator, error) {
	base := opts.operatorOptions()
	switch {
	case st.Cube != nil:
		spec := make(domain.AggregationSpec, len(st.Cube.Aggregations))
		for i, a := range st.Cube.Aggregations {
			f, err := domain.ParseAggFunc(a.Func)
			if err != nil {
				return nil, err
			}
			spec[i] = domain.Aggregation{Column: a.Column, Func: f, As: a.As}
		}
		return algebra.CreateRelationSpaceByCube(st.Cube.Keys, spec, base...), nil

	case st.Represent != nil:
		regions, err := buildRegions(st.Represent.Regions)
		if err != nil {
			return nil, err
		}
		return algebra.Represent(regions, append(base, featureOption(st.Represent.Features)...)...), nil

	case st.Transform != nil:
		ts, err := buildTransformations(doc, idx, st.Transform.Transformations, opts.Limits)
		if err != nil {
			return nil, err
		}
		drill, err := drillDownOption(st.Transform.DrillDown)
		if err != nil {
			return nil, err
		}
		return algebra.SliceTransform(ts, append(base, drill...)...), nil

	case st.Select != nil:
		pred, err := buildPredicate(doc, idx, st.Select, opts.Limits)
		if err != nil {
			return nil, err
		}
		return algebra.SliceSelect(pred, base...), nil

	case st.Project != nil:
		regions, err := buildRegions(st.Project.Regions)
		if err != nil {
			return nil, err
		}
		return algebra.SliceProject(regions, base...), nil

	case st.Flatten != nil:
		return algebra.Flatten(dimensionsOr(st.Flatten.Dimensions, doc.Spec.Dimensions), base...), nil

	case st.Crawl != nil:
		c := st.Crawl
		regions, err := buildRegions(c.Regions)
		if err != nil {
			return nil, err
		}
		ts, err := buildTransformations(doc, idx, c.Transformations, opts.Limits)
		if err != nil {
			return nil, err
		}
		var pred domain.Predicate
		if c.Predicate != nil {
			if pred, err = buildPredicate(doc, idx, c.Predicate, opts.Limits); err != nil {
				return nil, err
			}
		}
		drill, err := drillDownOption(c.DrillDown)
		if err != nil {
			return nil, err
		}
		copts := append(base, featureOption(c.Features)...)
		copts = append(copts, drill...)
		return algebra.Crawl(regions, ts, pred, dimensionsOr(c.Dimensions, doc.Spec.Dimensions), copts...), nil
	}
	return nil, domain.ErrInvalidSchema("stage has no operator")
}

func buildRegions(regions [][]string) ([]domain.RelationSchema, error) {
	out := make([]domain.RelationSchema, len(regions))
	for i, cols := range regions {
		s, err := domain.NewSchema(cols...)
		if err != nil {
			return nil, err
		}
		out[i] = s
	}
	return out, nil
}

func featureOption(features []FeatureDoc) []algebra.Option {
	if len(features) == 0 {
		return nil
	}
	fs := make([]algebra.Feature, len(features))
	for i, f := range features {
		fs[i] = algebra.Feature{Name: f.Name, Columns: f.Columns}
	}
	return []algebra.Option{algebra.WithFeatures(fs...)}
}

// drillDownOption returns no option when parents is nil, so a missing
// drillDown keeps every region while an empty list keeps only top-level ones.
func drillDownOption(parents []map[string]any) ([]algebra.Option, error) {
	if parents == nil {
		return nil, nil
	}
	tuples := make([]domain.RelationTuple, len(parents))
	for i, p := range parents {
		t, err := domain.NewTuple(p)
		if err != nil {
			return nil, fmt.Errorf("drillDown[%d]: %w", i, err)
		}
		tuples[i] = t
	}
	return []algebra.Option{algebra.WithDrillDown(tuples...)}, nil
}

func dimensionsOr(dims, fallback []string) []string {
	if len(dims) > 0 {
		return dims
	}
	return fallback
}

func scriptName(doc *PipelineDoc, idx int, kind string, n int) string {
	return fmt.Sprintf("%s/stage%d/%s%d", docName(doc), idx, kind, n)
}

func buildTransformations(doc *PipelineDoc, idx int, docs []TransformationDoc, limits plugin.Limits) ([]domain.Transformation, error) {
	out := make([]domain.Transformation, 0, len(docs))
	for i, t := range docs {
		mode, err := domain.ParseTransformMode(t.Mode)
		if err != nil {
			return nil, err
		}
		switch t.Type {
		case TransformRatio:
			out = append(out, plugin.Ratio(t.Source, t.Target, t.Numerator, t.Denominator, t.Output, mode))
		case TransformShare:
			out = append(out, plugin.Share(t.Source, t.Target, t.Column, t.Output, mode))
		case TransformStarlark:
			st, err := plugin.NewStarlarkTransformation(t.Source, t.Target, mode, scriptName(doc, idx, "transform", i), t.Script, limits)
			if err != nil {
				return nil, fmt.Errorf("transformations[%d]: %w", i, err)
			}
			out = append(out, st)
		default:
			return nil, domain.ErrInvalidSchema("unknown transformation type %q", t.Type)
		}
	}
	return out, nil
}

func buildPredicate(doc *PipelineDoc, idx int, p *PredicateSpec, limits plugin.Limits) (domain.Predicate, error) {
	name := scriptName(doc, idx, "predicate", 0)
	if p.Expr != "" {
		return plugin.NewStarlarkPredicateExpr(name, p.Expr, limits)
	}
	return plugin.NewStarlarkPredicate(name, p.Script, limits)
}
