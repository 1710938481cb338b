package algebra

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"mra/internal/domain"
)

// Pipeline is a sequence of operators whose kinds line up. It is itself an Operator.
type Pipeline struct {
	stages []Operator
	logger *slog.Logger
}

// Compose chains ops left to right. Nested pipelines are flattened. Composition
// fails with TypeMismatch when an operator's output kind is not the next one's input.
func Compose(ops ...Operator) (*Pipeline, error) {
	var stages []Operator
	for i, op := range ops {
		if op == nil {
			return nil, domain.ErrTypeMismatch("operator %d is nil", i)
		}
		if p, ok := op.(*Pipeline); ok {
			stages = append(stages, p.stages...)
			continue
		}
		stages = append(stages, op)
	}
	if len(stages) == 0 {
		return nil, domain.ErrTypeMismatch("a pipeline needs at least one operator")
	}
	for i := 1; i < len(stages); i++ {
		prev, next := stages[i-1], stages[i]
		if prev.Out() != next.In() {
			return nil, domain.ErrTypeMismatch("%s produces %s but %s expects %s",
				prev.Name(), prev.Out(), next.Name(), next.In())
		}
	}
	return &Pipeline{stages: stages, logger: slog.New(slog.DiscardHandler)}, nil
}

// MustCompose is Compose for pipelines known to be well typed.
func MustCompose(ops ...Operator) *Pipeline {
	p, err := Compose(ops...)
	if err != nil {
		panic(err)
	}
	return p
}

// Then appends op, returning a new pipeline.
func (p *Pipeline) Then(op Operator) (*Pipeline, error) {
	next, err := Compose(p, op)
	if err != nil {
		return nil, err
	}
	next.logger = p.logger
	return next, nil
}

// WithLogger returns a copy of p that logs every stage to l.
func (p *Pipeline) WithLogger(l *slog.Logger) *Pipeline {
	cp := *p
	if l != nil {
		cp.logger = l
	}
	return &cp
}

// Stages returns the flattened operators.
func (p *Pipeline) Stages() []Operator {
	out := make([]Operator, len(p.stages))
	copy(out, p.stages)
	return out
}

// Name lists the stage names joined by "|".
func (p *Pipeline) Name() string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return strings.Join(names, "|")
}

// In is the input kind of the first stage.
func (p *Pipeline) In() domain.Kind { return p.stages[0].In() }

// Out is the output kind of the last stage.
func (p *Pipeline) Out() domain.Kind { return p.stages[len(p.stages)-1].Out() }

// Apply implements Operator.
func (p *Pipeline) Apply(ctx context.Context, in domain.Value) (domain.Value, error) {
	return p.Run(ctx, in)
}

// Run threads in through every stage. The first failure or a cancelled ctx aborts the run; the error
// carries the failing stage's name unless a nested operator already recorded one.
func (p *Pipeline) Run(ctx context.Context, in domain.Value) (domain.Value, error) {
	if got := domain.KindOfValue(in); got != p.In() {
		return nil, domain.ErrTypeMismatch("pipeline expects %s input, got %s", p.In(), got)
	}
	cur := in
	for _, op := range p.stages {
		if err := ctx.Err(); err != nil {
			return nil, domain.WithStage(err, op.Name())
		}
		start := time.Now()
		out, err := op.Apply(ctx, cur)
		if err != nil {
			if domain.StageOf(err) == "" {
				err = domain.WithStage(err, op.Name())
			}
			p.logger.Debug("stage failed", "stage", op.Name(), "kind", domain.KindOf(err).String(), "error", err)
			return nil, err
		}
		if got := domain.KindOfValue(out); got != op.Out() {
			return nil, domain.WithStage(domain.ErrTypeMismatch("declared %s output, produced %s", op.Out(), got), op.Name())
		}
		p.logger.Debug("stage finished",
			"stage", op.Name(),
			"in_kind", op.In().String(),
			"out_kind", op.Out().String(),
			"duration", time.Since(start),
		)
		cur = out
	}
	return cur, nil
}

// RunSpace runs p and returns its relation space output.
func (p *Pipeline) RunSpace(ctx context.Context, in domain.Value) (*domain.RelationSpace, error) {
	out, err := p.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	return asSpace(out, "RunSpace")
}

// RunSlices runs p and returns its slice relation output.
func (p *Pipeline) RunSlices(ctx context.Context, in domain.Value) (*domain.SliceRelation, error) {
	out, err := p.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	return asSlices(out, "RunSlices")
}
