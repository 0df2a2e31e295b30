package netmon_test

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/mbarrios/gastosync/internal/events"
	"github.com/mbarrios/gastosync/internal/netmon"
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

func TestMonitorReportsInitialState(t *testing.T) {
	var online atomic.Bool
	online.Store(true)

	m := netmon.NewMonitorWithProbe(
		func(ctx context.Context) bool { return online.Load() },
		5*time.Millisecond,
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, m.IsOnline, "monitor never reported online")
}

func TestReconnectDeliversExactlyOneNotification(t *testing.T) {
	var online atomic.Bool
	online.Store(true)

	m := netmon.NewMonitorWithProbe(
		func(ctx context.Context) bool { return online.Load() },
		5*time.Millisecond,
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	waitFor(t, m.IsOnline, "monitor never came online")

	// Going online initially is not a reconnect.
	select {
	case <-m.Reconnects():
		t.Fatal("initial online state must not count as a reconnect")
	default:
	}

	// Drop and restore.
	online.Store(false)
	waitFor(t, func() bool { return !m.IsOnline() }, "monitor never went offline")

	online.Store(true)
	waitFor(t, m.IsOnline, "monitor never recovered")

	select {
	case <-m.Reconnects():
	case <-time.After(time.Second):
		t.Fatal("reconnect notification never arrived")
	}

	// Stable connectivity produces no further notifications.
	time.Sleep(30 * time.Millisecond)
	select {
	case <-m.Reconnects():
		t.Fatal("unexpected extra reconnect notification")
	default:
	}
}

func TestOnlineSignalPublishesTransitions(t *testing.T) {
	var online atomic.Bool

	m := netmon.NewMonitorWithProbe(
		func(ctx context.Context) bool { return online.Load() },
		5*time.Millisecond,
		testLogger(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	sub := m.Online().Subscribe(8)
	defer sub.Cancel()

	// First observed state is offline.
	assert.False(t, <-sub.C)

	online.Store(true)
	assert.True(t, <-sub.C)

	online.Store(false)
	assert.False(t, <-sub.C)
}

func TestStopHaltsProbing(t *testing.T) {
	var probes atomic.Int32

	m := netmon.NewMonitorWithProbe(
		func(ctx context.Context) bool {
			probes.Add(1)
			return true
		},
		5*time.Millisecond,
		testLogger(),
	)

	m.Start(context.Background())
	waitFor(t, func() bool { return probes.Load() >= 2 }, "probe never ran")

	m.Stop()
	after := probes.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, probes.Load())
}
