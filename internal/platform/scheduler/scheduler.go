// Package scheduler runs named periodic jobs on independent tickers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrUnknownJob is returned by RunNow for a name that was never registered.
var ErrUnknownJob = errors.New("job not registered")

// Job is one unit of periodic work. A returned error is logged; the job
// keeps its schedule.
type Job func(ctx context.Context) error

type entry struct {
	name       string
	interval   time.Duration
	timeout    time.Duration
	runOnStart bool
	job        Job
}

// JobOption configures a single job.
type JobOption func(*entry)

// WithRunOnStart runs the job once immediately when the scheduler starts.
func WithRunOnStart() JobOption {
	return func(e *entry) { e.runOnStart = true }
}

// WithJobTimeout bounds each run of the job. Overrides the scheduler default.
func WithJobTimeout(d time.Duration) JobOption {
	return func(e *entry) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// Scheduler owns a set of periodic jobs.
type Scheduler struct {
	logger         *slog.Logger
	metrics        *Metrics
	defaultTimeout time.Duration

	mu      sync.Mutex
	jobs    []*entry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// Option configures the Scheduler.
type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRegistry exports job metrics on reg.
func WithRegistry(reg prometheus.Registerer) Option {
	return func(s *Scheduler) {
		if reg != nil {
			s.metrics = NewMetrics(reg)
		}
	}
}

// WithDefaultTimeout bounds runs of jobs that set no timeout of their own.
func WithDefaultTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.defaultTimeout = d
		}
	}
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		logger:         slog.Default(),
		defaultTimeout: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Every registers job to run each interval. Jobs must be registered before Start.
func (s *Scheduler) Every(name string, interval time.Duration, job Job, opts ...JobOption) error {
	if name == "" || job == nil {
		return errors.New("job name and function are required")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("job %s: scheduler already started", name)
	}
	for _, e := range s.jobs {
		if e.name == name {
			return fmt.Errorf("job %s already registered", name)
		}
	}

	e := &entry{name: name, interval: interval, job: job}
	for _, opt := range opts {
		opt(e)
	}
	if e.timeout == 0 {
		e.timeout = s.defaultTimeout
	}
	s.jobs = append(s.jobs, e)
	return nil
}

// Start launches one goroutine per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
	s.logger.InfoContext(ctx, "scheduler started", "jobs", len(s.jobs))
}

// Stop cancels every job and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// Run starts the scheduler and blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
	return nil
}

// RunNow executes the named job once, synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	var target *entry
	for _, e := range s.jobs {
		if e.name == name {
			target = e
		}
	}
	s.mu.Unlock()
	if target == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.runOnce(ctx, target)
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()

	if e.runOnStart {
		s.runAndLog(ctx, e)
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runAndLog(ctx, e)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) runAndLog(ctx context.Context, e *entry) {
	if err := s.runOnce(ctx, e); err != nil {
		s.logger.ErrorContext(ctx, "scheduled job failed", "job", e.name, "error", err)
	}
}

func (s *Scheduler) runOnce(ctx context.Context, e *entry) (err error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", e.name, r)
			s.logger.ErrorContext(ctx, "scheduled job panic", "job", e.name, "stack", string(debug.Stack()))
		}
		s.metrics.observe(e.name, time.Since(start), err)
	}()

	return e.job(runCtx)
}
