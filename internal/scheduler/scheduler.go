// Package scheduler runs deferred and periodic jobs with retry. It is
// deliberately generic: the sync engine is just one job it drives.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mbarrios/gastosync/internal/events"
	"github.com/mbarrios/gastosync/internal/models"
)

// Job is a unit of deferred work. Any failure except a server
// rejection reschedules the job with backoff; a rejection (or nil)
// completes it.
type Job func(ctx context.Context) error

// Scheduler executes one job serially: periodic ticks and explicit
// Enqueue requests both feed the same worker, so runs never overlap.
type Scheduler struct {
	job      Job
	interval time.Duration
	logger   *events.Logger

	// Retry policy for transient failures.
	maxAttempts int
	retryDelay  time.Duration

	requests chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Config sets the scheduling policy.
type Config struct {
	// Interval between periodic runs. Zero disables the ticker; only
	// Enqueue triggers runs.
	Interval time.Duration

	// MaxAttempts bounds retries of a transiently failing run.
	MaxAttempts int

	// RetryDelay is the initial backoff, doubled per attempt.
	RetryDelay time.Duration
}

// New creates a scheduler for a job.
func New(job Job, cfg Config, logger *events.Logger) *Scheduler {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	return &Scheduler{
		job:         job,
		interval:    cfg.Interval,
		maxAttempts: cfg.MaxAttempts,
		retryDelay:  cfg.RetryDelay,
		logger:      logger.WithField("component", "scheduler"),
		requests:    make(chan struct{}, 1),
	}
}

// Start launches the worker. Safe to call once.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.loop(ctx)
}

// Stop cancels the worker and waits for it to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Enqueue requests one run as soon as the worker is free. Requests
// coalesce: enqueueing while one is already pending is a no-op.
func (s *Scheduler) Enqueue() {
	select {
	case s.requests <- struct{}{}:
	default:
	}
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.run(ctx)
		case <-s.requests:
			s.run(ctx)
		}
	}
}

// run executes the job, retrying failures with exponential backoff.
// Connectivity loss and unexpected faults (a jammed local database,
// say) both qualify; a run rebuilds its state from storage, so
// rerunning after either is safe. Only a server rejection ends the
// job early, since repeating it would earn the same refusal.
func (s *Scheduler) run(ctx context.Context) {
	delay := s.retryDelay

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.job(ctx)
		if err == nil {
			return
		}
		if errors.Is(err, models.ErrSyncInProgress) {
			// Another trigger won the race; nothing to redo.
			return
		}
		if models.IsRejected(err) {
			s.logger.WithError(err).Error("Job rejected, not retrying")
			return
		}

		s.logger.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt,
			"delay":   delay,
		}).Warn("Job failed, will retry")

		if attempt == s.maxAttempts {
			return
		}

		select {
		case <-time.After(delay):
			delay *= 2
		case <-ctx.Done():
			return
		}
	}
}
