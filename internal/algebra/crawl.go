package algebra

import (
	"context"

	"mra/internal/domain"
)

// CrawlOperator is Represent | SliceTransform | SliceSelect | Flatten as one operator.
type CrawlOperator struct {
	pipeline *Pipeline
}

// Crawl represents the space around regions, applies transforms, keeps the
// slices predicate accepts (all of them when predicate is nil) and flattens the
// result over dimensions. Options are passed to every sub-operator. Errors carry
// the stage "crawl/<sub-stage>".
func Crawl(regions []domain.RelationSchema, transforms []domain.Transformation, predicate domain.Predicate, dimensions []string, opts ...Option) *CrawlOperator {
	s := newSettings(opts)
	p := MustCompose(
		Represent(regions, opts...),
		SliceTransform(transforms, opts...),
		SliceSelect(predicate, opts...),
		Flatten(dimensions, opts...),
	)
	return &CrawlOperator{pipeline: p.WithLogger(s.logger)}
}

func (o *CrawlOperator) Name() string     { return StageCrawl }
func (o *CrawlOperator) In() domain.Kind  { return domain.KindSpace }
func (o *CrawlOperator) Out() domain.Kind { return domain.KindSpace }

// Stages returns the composed sub-operators.
func (o *CrawlOperator) Stages() []Operator { return o.pipeline.Stages() }

// Apply implements Operator.
func (o *CrawlOperator) Apply(ctx context.Context, in domain.Value) (domain.Value, error) {
	out, err := o.pipeline.Run(ctx, in)
	if err != nil {
		return nil, domain.WithStage(err, StageCrawl)
	}
	return out, nil
}
