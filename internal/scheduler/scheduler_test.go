package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbarrios/gastosync/internal/events"
	"github.com/mbarrios/gastosync/internal/models"
	"github.com/mbarrios/gastosync/internal/scheduler"
)

func testLogger() *events.Logger {
	return events.NewTestLogger(events.ErrorLevel, "text", io.Discard)
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestEnqueueRunsJob(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New(
		func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
		scheduler.Config{MaxAttempts: 1, RetryDelay: time.Millisecond},
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	s.Enqueue()
	waitFor(t, func() bool { return runs.Load() == 1 }, "job never ran")
}

func TestPeriodicRuns(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New(
		func(ctx context.Context) error {
			runs.Add(1)
			return nil
		},
		scheduler.Config{Interval: 20 * time.Millisecond, MaxAttempts: 1},
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	waitFor(t, func() bool { return runs.Load() >= 2 }, "ticker never fired twice")
}

func TestTransientErrorRetriesWithBackoff(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New(
		func(ctx context.Context) error {
			if runs.Add(1) < 3 {
				return fmt.Errorf("%w: flaky", models.ErrUnreachable)
			}
			return nil
		},
		scheduler.Config{MaxAttempts: 5, RetryDelay: time.Millisecond},
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	s.Enqueue()
	waitFor(t, func() bool { return runs.Load() == 3 }, "job did not retry to success")

	// No further attempts after success.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), runs.Load())
}

func TestRejectionIsNotRetried(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New(
		func(ctx context.Context) error {
			runs.Add(1)
			return &models.APIError{Code: "invalid", StatusCode: 422}
		},
		scheduler.Config{MaxAttempts: 5, RetryDelay: time.Millisecond},
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	s.Enqueue()
	waitFor(t, func() bool { return runs.Load() == 1 }, "job never ran")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), runs.Load())
}

func TestStorageFaultRetriesWithBackoff(t *testing.T) {
	// An unexpected local failure is as retryable as a network one:
	// the run rebuilds its state, so rerunning is safe.
	var runs atomic.Int32
	s := scheduler.New(
		func(ctx context.Context) error {
			if runs.Add(1) < 3 {
				return errors.New("record sync time: database is locked")
			}
			return nil
		},
		scheduler.Config{MaxAttempts: 5, RetryDelay: time.Millisecond},
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	s.Enqueue()
	waitFor(t, func() bool { return runs.Load() == 3 }, "job did not retry to success")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), runs.Load())
}

func TestRetriesStopAtMaxAttempts(t *testing.T) {
	var runs atomic.Int32
	s := scheduler.New(
		func(ctx context.Context) error {
			runs.Add(1)
			return fmt.Errorf("%w: still down", models.ErrUnreachable)
		},
		scheduler.Config{MaxAttempts: 3, RetryDelay: time.Millisecond},
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	s.Enqueue()
	waitFor(t, func() bool { return runs.Load() == 3 }, "retries did not reach the cap")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), runs.Load())
}

func TestEnqueueCoalesces(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var runs atomic.Int32

	s := scheduler.New(
		func(ctx context.Context) error {
			if runs.Add(1) == 1 {
				close(started)
				<-release
			}
			return nil
		},
		scheduler.Config{MaxAttempts: 1},
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	s.Enqueue()
	<-started

	// Burst while the worker is busy collapses into one pending run.
	for i := 0; i < 5; i++ {
		s.Enqueue()
	}
	close(release)

	waitFor(t, func() bool { return runs.Load() == 2 }, "pending run never executed")
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(2), runs.Load())
}

func TestStopWaitsForWorker(t *testing.T) {
	s := scheduler.New(
		func(ctx context.Context) error { return nil },
		scheduler.Config{MaxAttempts: 1},
		testLogger(),
	)

	ctx := context.Background()
	s.Start(ctx)

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	require.NotPanics(t, func() { s.Enqueue() })
}
