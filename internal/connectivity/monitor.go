// Package connectivity observes network reachability for the sync agent.
package connectivity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/fieldsync-io/fieldsync/internal/logging"
)

// Probe reports whether the remote system of record is currently reachable.
type Probe func(ctx context.Context) bool

// Listener receives connectivity transitions. Listeners must tolerate
// duplicate notifications of the same state.
type Listener func(online bool)

// Monitor tracks connectivity as a single boolean and notifies listeners on
// every observed transition. One synchronous probe runs at construction so
// Online is seeded before any listener fires.
type Monitor struct {
	probe    Probe
	interval time.Duration

	mu        sync.RWMutex
	online    bool
	listeners []Listener

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a Monitor and performs the initial synchronous probe.
func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	m := &Monitor{
		probe:    probe,
		interval: interval,
		stopCh:   make(chan struct{}),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	m.online = probe(ctx)

	return m
}

// HTTPProbe returns a Probe that issues a HEAD request against healthURL.
// Any response at all counts as reachable; only transport errors count as
// offline.
func HTTPProbe(healthURL string, timeout time.Duration) Probe {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, healthURL, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}
}

// Online returns the current connectivity state.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// Subscribe registers a listener for connectivity transitions.
func (m *Monitor) Subscribe(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// SetOnline records an externally observed connectivity state, notifying
// listeners on transition. Transports that see a request fail before the
// next probe tick use this to flip the state early.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	listeners := make([]Listener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.Unlock()

	if !changed {
		return
	}

	logging.Info("Connectivity changed", logging.Fields{"online": online})
	for _, l := range listeners {
		l(online)
	}
}

// Start runs the periodic probe loop until Stop is called or ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.probeLoop(ctx)
}

// Stop halts the probe loop and waits for it to finish.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
}

func (m *Monitor) probeLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			probeCtx, cancel := context.WithTimeout(ctx, m.interval)
			online := m.probe(probeCtx)
			cancel()
			m.SetOnline(online)
		}
	}
}
