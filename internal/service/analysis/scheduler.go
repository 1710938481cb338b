package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"mra/internal/domain"
)

// Scheduler runs jobs on cron schedules through a Service.
type Scheduler struct {
	cron     *cron.Cron
	svc      *Service
	logger   *slog.Logger
	onResult func(*RunResult, error)

	mu      sync.Mutex
	entries map[string]cron.EntryID // job name → cron entry
	jobs    map[string]func()
}

// NewScheduler creates a scheduler. onResult, if not nil, receives the outcome
// of every scheduled run.
func NewScheduler(svc *Service, logger *slog.Logger, onResult func(*RunResult, error)) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		cron:     cron.New(),
		svc:      svc,
		logger:   logger,
		onResult: onResult,
		entries:  make(map[string]cron.EntryID),
		jobs:     make(map[string]func()),
	}
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("job scheduler started", "jobs", len(s.Names()))
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("job scheduler stopped")
}

// Schedule registers job under a standard five-field cron expression or a
// descriptor such as "@every 1h". A job with the same name is replaced.
func (s *Scheduler) Schedule(schedule string, job Job) error {
	if job.Name == "" {
		return domain.ErrInvalidSchema("job name must not be empty")
	}
	if job.Pipeline == nil || job.Input == nil {
		return domain.ErrInvalidSchema("scheduled job %q needs a pipeline and an input", job.Name)
	}

	run := func() {
		res, err := s.svc.Run(context.Background(), job)
		if err != nil {
			s.logger.Warn("scheduled run failed", "job", job.Name, "error", err)
		}
		if s.onResult != nil {
			s.onResult(res, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entryID, err := s.cron.AddFunc(schedule, run)
	if err != nil {
		return fmt.Errorf("invalid cron schedule %q for job %q: %w", schedule, job.Name, err)
	}
	if old, ok := s.entries[job.Name]; ok {
		s.cron.Remove(old)
	}
	s.entries[job.Name] = entryID
	s.jobs[job.Name] = run
	s.logger.Info("scheduled job", "job", job.Name, "schedule", schedule)
	return nil
}

// Unschedule removes a job. It reports whether the job was scheduled.
func (s *Scheduler) Unschedule(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entries[name]
	if !ok {
		return false
	}
	s.cron.Remove(id)
	delete(s.entries, name)
	delete(s.jobs, name)
	return true
}

// Trigger runs a scheduled job now, outside its schedule, and waits for it.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	run, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return domain.ErrMissingRelation("job %q is not scheduled", name)
	}
	run()
	return nil
}

// Names returns the scheduled job names, sorted.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
