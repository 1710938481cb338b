// Package analysis runs algebra pipelines as named jobs: one at a time, as an
// independent batch, or as a dependency graph where a job consumes the output
// of the job it depends on.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"mra/internal/algebra"
	"mra/internal/config"
	"mra/internal/declarative"
	"mra/internal/domain"
	"mra/internal/plugin"
)

// Job is a pipeline to run on an input. A job whose Input is nil takes the
// output of its single dependency when run by RunGraph.
type Job struct {
	Name      string
	Pipeline  *algebra.Pipeline
	Input     domain.Value
	DependsOn []string
}

// RunResult is the outcome of a successful job.
type RunResult struct {
	RunID    string
	Name     string
	Output   domain.Value
	Duration time.Duration
}

// Service runs pipelines against one tabular engine.
type Service struct {
	engine domain.TabularEngine
	cfg    *config.Config
	logger *slog.Logger
}

// NewService creates a Service. A nil cfg uses config.Default and a nil
// logger discards output.
func NewService(engine domain.TabularEngine, cfg *config.Config, logger *slog.Logger) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{engine: engine, cfg: cfg, logger: logger}
}

// BuildOptions returns the options pipelines built for this service use.
func (s *Service) BuildOptions() declarative.BuildOptions {
	return declarative.BuildOptions{
		Engine: s.engine,
		Logger: s.logger,
		Limits: plugin.Limits{
			MaxSteps: s.cfg.StarlarkMaxSteps,
			Timeout:  s.cfg.StarlarkTimeout,
		},
		MaxCubeKeys: s.cfg.MaxCubeKeys,
	}
}

// Compile builds a pipeline document for this service's engine.
func (s *Service) Compile(doc *declarative.PipelineDoc) (*algebra.Pipeline, error) {
	return declarative.Build(doc, s.BuildOptions())
}

// LoadJobs compiles every pipeline document in dir into a job without input.
func (s *Service) LoadJobs(dir string) ([]Job, error) {
	docs, err := declarative.LoadDirectory(dir, declarative.LoadOptions{AllowUnknownFields: s.cfg.AllowUnknownFields})
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(docs))
	for _, doc := range docs {
		p, err := s.Compile(doc)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", doc.Path, err)
		}
		jobs = append(jobs, Job{Name: doc.Metadata.Name, Pipeline: p})
	}
	return jobs, nil
}

// Run executes one job. Every log line of the run, including the pipeline's
// per-stage lines, carries the run_id.
func (s *Service) Run(ctx context.Context, job Job) (res *RunResult, err error) {
	if job.Pipeline == nil {
		return nil, domain.ErrInvalidSchema("job %q has no pipeline", job.Name)
	}
	if job.Input == nil {
		return nil, domain.ErrTypeMismatch("job %q has no input", job.Name)
	}

	runID := domain.NewID()
	logger := s.logger.With("run_id", runID, "job", job.Name)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("pipeline run panicked", "error", r)
			res, err = nil, fmt.Errorf("job %q panicked: %v", job.Name, r)
		}
	}()

	logger.Info("pipeline run started", "pipeline", job.Pipeline.Name(), "input", domain.KindOfValue(job.Input).String())
	start := time.Now()
	out, err := job.Pipeline.WithLogger(logger).Run(ctx, job.Input)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("pipeline run failed",
			"stage", domain.StageOf(err),
			"kind", domain.KindOf(err).String(),
			"error", err,
			"duration", elapsed,
		)
		return nil, fmt.Errorf("job %q: %w", job.Name, err)
	}
	logger.Info("pipeline run finished", "output", out.Kind().String(), "duration", elapsed)
	return &RunResult{RunID: runID, Name: job.Name, Output: out, Duration: elapsed}, nil
}

// RunBatch runs independent jobs concurrently, at most cfg.BatchParallelism at
// a time. Results are in job order. The first failure cancels the jobs that
// have not finished and is returned.
func (s *Service) RunBatch(ctx context.Context, jobs []Job) ([]*RunResult, error) {
	results := make([]*RunResult, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism())
	for i, job := range jobs {
		g.Go(func() error {
			res, err := s.Run(gctx, job)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunGraph runs jobs level by level in dependency order; jobs of one level run
// concurrently. A job without Input receives the output of its single
// dependency. When a job fails the remaining levels are skipped and the
// results gathered so far are returned with the error.
func (s *Service) RunGraph(ctx context.Context, jobs []Job) (map[string]*RunResult, error) {
	levels, err := ResolveExecutionOrder(jobs)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Job, len(jobs))
	for _, j := range jobs {
		if j.Input == nil && len(j.DependsOn) != 1 {
			return nil, domain.ErrInvalidSchema("job %q has no input and %d dependencies, want exactly one", j.Name, len(j.DependsOn))
		}
		byName[j.Name] = j
	}

	results := make(map[string]*RunResult, len(jobs))
	var mu sync.Mutex
	for li, level := range levels {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.parallelism())
		for _, name := range level {
			job := byName[name]
			if job.Input == nil {
				job.Input = results[job.DependsOn[0]].Output
			}
			g.Go(func() error {
				res, err := s.Run(gctx, job)
				if err != nil {
					return err
				}
				mu.Lock()
				results[name] = res
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			skipped := 0
			for _, rest := range levels[li+1:] {
				skipped += len(rest)
			}
			s.logger.Warn("job graph stopped", "level", li, "skipped_jobs", skipped, "error", err)
			return results, err
		}
	}
	return results, nil
}

func (s *Service) parallelism() int {
	if s.cfg.BatchParallelism < 1 {
		return 1
	}
	return s.cfg.BatchParallelism
}
