// Package netmon tracks whether the device has validated internet
// access. Reachability is probed, not assumed: a link that resolves
// DNS but cannot complete an HTTP round trip counts as offline.
package netmon

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/mbarrios/gastosync/internal/config"
	"github.com/mbarrios/gastosync/internal/events"
)

// ProbeFunc reports whether the network currently validates. Injectable
// for tests.
type ProbeFunc func(ctx context.Context) bool

// Monitor polls connectivity and publishes transitions. Each
// offline-to-online transition delivers exactly one notification on
// Reconnects, so a flapping link cannot queue a burst of sync runs.
type Monitor struct {
	probe    ProbeFunc
	interval time.Duration
	logger   *events.Logger

	online     *events.Signal[bool]
	reconnects chan struct{}

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewMonitor creates a monitor with an HTTP HEAD probe against the
// configured URL.
func NewMonitor(cfg *config.NetworkConfig, logger *events.Logger) *Monitor {
	client := &http.Client{Timeout: cfg.ProbeTimeout}
	probeURL := cfg.ProbeURL

	probe := func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, probeURL, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode < 500
	}

	return NewMonitorWithProbe(probe, cfg.ProbeInterval, logger)
}

// NewMonitorWithProbe creates a monitor with a custom probe.
func NewMonitorWithProbe(probe ProbeFunc, interval time.Duration, logger *events.Logger) *Monitor {
	return &Monitor{
		probe:      probe,
		interval:   interval,
		logger:     logger.WithField("component", "netmon"),
		online:     events.NewSignal[bool](),
		reconnects: make(chan struct{}, 1),
	}
}

// Start begins probing. Safe to call once; subsequent calls are no-ops.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.started = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go m.loop(ctx)
}

// Stop halts probing and waits for the loop to exit.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Online exposes the connectivity state. Subscribers see the current
// state immediately, then every transition.
func (m *Monitor) Online() *events.Signal[bool] {
	return m.online
}

// IsOnline reports the last probed state. False before the first probe
// completes.
func (m *Monitor) IsOnline() bool {
	v, ok := m.online.Get()
	return ok && v
}

// Reconnects delivers one notification per offline-to-online
// transition. The channel has capacity one; a pending notification
// absorbs later transitions until consumed.
func (m *Monitor) Reconnects() <-chan struct{} {
	return m.reconnects
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.check(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *Monitor) check(ctx context.Context) {
	now := m.probe(ctx)
	prev, had := m.online.Get()

	if had && prev == now {
		return
	}

	m.online.Set(now)

	if now {
		m.logger.Info("Network validated")
		if had && !prev {
			select {
			case m.reconnects <- struct{}{}:
			default:
			}
		}
	} else {
		m.logger.Warn("Network lost")
	}
}
