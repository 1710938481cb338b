// Package algebra implements the operators of the multi-granular relational
// algebra and their composition into pipelines.
package algebra

import (
	"context"
	"log/slog"

	"mra/internal/domain"
	"mra/internal/engine"
)

// Stage names used to tag errors and log lines.
const (
	StageCube           = "cube"
	StageRepresent      = "represent"
	StageSliceTransform = "slice_transform"
	StageSliceSelect    = "slice_select"
	StageSliceProject   = "slice_project"
	StageFlatten        = "flatten"
	StageCrawl          = "crawl"
)

// DefaultMaxCubeKeys bounds the number of grouping keys of a cube (2^k relations).
const DefaultMaxCubeKeys = 12

// Operator maps one algebra value to another. In and Out declare the value kinds
// so pipelines can be checked when they are composed.
type Operator interface {
	Name() string
	In() domain.Kind
	Out() domain.Kind
	Apply(ctx context.Context, in domain.Value) (domain.Value, error)
}

type settings struct {
	engine      domain.TabularEngine
	logger      *slog.Logger
	maxCubeKeys int
	features    []Feature
	drillDown   []domain.RelationTuple
	hasDrill    bool
}

// Option configures an operator. Options that do not concern an operator are ignored.
type Option func(*settings)

// WithEngine sets the tabular engine. The default is the in-memory engine.
func WithEngine(e domain.TabularEngine) Option {
	return func(s *settings) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithLogger sets the logger. Nil keeps the discard logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMaxCubeKeys bounds the number of grouping keys CreateRelationSpaceByCube accepts.
func WithMaxCubeKeys(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxCubeKeys = n
		}
	}
}

// WithFeatures makes Represent build the listed features instead of deriving
// them from the space's schemas.
func WithFeatures(features ...Feature) Option {
	return func(s *settings) { s.features = append(s.features, features...) }
}

// WithDrillDown makes SliceTransform keep only regions whose every parent (the
// region minus one column) is among parents. The empty region is always a valid parent.
func WithDrillDown(parents ...domain.RelationTuple) Option {
	return func(s *settings) {
		s.drillDown = append(s.drillDown, parents...)
		s.hasDrill = true
	}
}

func newSettings(opts []Option) settings {
	s := settings{
		engine:      engine.NewMemory(),
		logger:      slog.New(slog.DiscardHandler),
		maxCubeKeys: DefaultMaxCubeKeys,
	}
	for _, o := range opts {
		o(&s)
	}
	return s
}

func asRelation(in domain.Value, stage string) (domain.Relation, error) {
	r, ok := in.(domain.Relation)
	if !ok {
		return domain.Relation{}, domain.ErrTypeMismatch("%s expects a relation, got %s", stage, domain.KindOfValue(in))
	}
	return r, nil
}

func asSpace(in domain.Value, stage string) (*domain.RelationSpace, error) {
	s, ok := in.(*domain.RelationSpace)
	if !ok || s == nil {
		return nil, domain.ErrTypeMismatch("%s expects a relation space, got %s", stage, domain.KindOfValue(in))
	}
	return s, nil
}

func asSlices(in domain.Value, stage string) (*domain.SliceRelation, error) {
	s, ok := in.(*domain.SliceRelation)
	if !ok || s == nil {
		return nil, domain.ErrTypeMismatch("%s expects a slice relation, got %s", stage, domain.KindOfValue(in))
	}
	return s, nil
}

// engineError keeps typed errors from the engine and wraps anything else.
func engineError(err error, op string) error {
	if domain.KindOf(err) != domain.KindUnknown {
		return err
	}
	return domain.ErrEngineFailure(err, "%s", op)
}
