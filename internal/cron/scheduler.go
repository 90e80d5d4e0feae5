package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs registered jobs on their cron schedules. A job never runs
// concurrently with itself: a tick arriving while the previous run is still
// busy is skipped.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries []*entry
	byName  map[string]*entry
	logger  *slog.Logger
	cancel  context.CancelFunc
	startup sync.WaitGroup
}

type entry struct {
	job  Job
	busy sync.Mutex

	mu   sync.Mutex
	last RunResult
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		byName: make(map[string]*entry),
		logger: logger,
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if a job with the same name is already registered.
func (s *Scheduler) RegisterJob(j Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.byName[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	e := &entry{job: j}
	s.byName[name] = e
	s.entries = append(s.entries, e)
	return nil
}

// NewParser returns the expression parser used by the scheduler: standard
// 5-field expressions plus descriptors like "@hourly" and "@every 30s".
func NewParser() cron.Parser {
	return cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// Jobs returns the names of the registered jobs in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.job.Name())
	}
	return names
}

// RunResult describes the last completed run of a job.
type RunResult struct {
	At  time.Time
	Err error
}

// LastRun reports the last completed run of the named job. ok is false
// until the job has run once. It does not wait for a run in progress.
func (s *Scheduler) LastRun(name string) (RunResult, bool) {
	s.mu.Lock()
	e, found := s.byName[name]
	s.mu.Unlock()
	if !found {
		return RunResult{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, !e.last.At.IsZero()
}

// Start validates every schedule, starts ticking and kicks off the jobs
// that implement Immediate.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.cron = cron.New(cron.WithParser(NewParser()))

	for _, e := range s.entries {
		if _, err := s.cron.AddFunc(e.job.Schedule(), func() { s.run(ctx, e) }); err != nil {
			cancel()
			return fmt.Errorf("cron: invalid schedule for job %q: %w", e.job.Name(), err)
		}
	}

	s.cron.Start()
	for _, e := range s.entries {
		if im, ok := e.job.(Immediate); ok && im.RunOnStart() {
			s.startup.Add(1)
			go func() {
				defer s.startup.Done()
				s.run(ctx, e)
			}()
		}
	}
	s.logger.Info("cron: scheduler started", "jobs", len(s.entries))
	return nil
}

func (s *Scheduler) run(ctx context.Context, e *entry) {
	name := e.job.Name()
	if !e.busy.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", name)
		return
	}
	defer e.busy.Unlock()

	s.logger.Debug("cron: job started", "job", name)
	err := e.job.Run(ctx)
	e.mu.Lock()
	e.last = RunResult{At: time.Now(), Err: err}
	e.mu.Unlock()
	if err != nil {
		s.logger.Error("cron: job failed", "job", name, "error", err)
		return
	}
	s.logger.Debug("cron: job completed", "job", name)
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
		s.startup.Wait()
		s.logger.Info("cron: scheduler stopped")
	}
	return nil
}
