// Package scheduler decides when drains run: on connectivity restoration
// and on a periodic tick while online.
package scheduler

import (
	"context"
	syncpkg "sync"
	"time"

	"github.com/fieldsync-io/fieldsync/internal/connectivity"
	"github.com/fieldsync-io/fieldsync/internal/logging"
	"github.com/fieldsync-io/fieldsync/internal/sync"
)

// Drainer runs one queue drain. The engine's own single-flight guard makes
// overlapping triggers safe.
type Drainer interface {
	Drain(ctx context.Context) (sync.Result, error)
}

// ConnectivitySource is the slice of the connectivity monitor the
// scheduler uses.
type ConnectivitySource interface {
	Subscribe(l connectivity.Listener)
	Online() bool
}

// Config holds scheduler configuration.
type Config struct {
	// DrainInterval is how often to drain while online. Default 15 minutes.
	DrainInterval time.Duration
}

// DefaultConfig returns default scheduler configuration.
func DefaultConfig() Config {
	return Config{DrainInterval: 15 * time.Minute}
}

// Scheduler triggers drains on offline-to-online transitions and on a
// periodic ticker. Going offline is purely informational; nothing already
// queued is cancelled.
type Scheduler struct {
	engine   Drainer
	source   ConnectivitySource
	interval time.Duration

	mu      syncpkg.Mutex
	running bool
	ctx     context.Context
	stopCh  chan struct{}
	wg      syncpkg.WaitGroup
}

// New creates a Scheduler.
func New(engine Drainer, source ConnectivitySource, cfg Config) *Scheduler {
	interval := cfg.DrainInterval
	if interval <= 0 {
		interval = DefaultConfig().DrainInterval
	}
	return &Scheduler{
		engine:   engine,
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start subscribes to connectivity transitions and begins the periodic
// loop. ctx bounds every drain the scheduler runs, including manual
// triggers; it must outlive the scheduler, not any single request.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	s.source.Subscribe(func(online bool) {
		if !online {
			return
		}
		// Connectivity restored: drain whatever queued up while offline.
		s.Trigger()
	})

	s.wg.Add(1)
	go s.loop(ctx)

	logging.Info("Sync scheduler started", logging.Fields{
		"drain_interval": s.interval.String(),
	})
}

// Stop halts the periodic loop and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// Trigger starts a drain in the background, bounded by the context given
// to Start. A no-op before Start or after Stop, so a late connectivity
// listener cannot race the WaitGroup during shutdown. Overlap with a
// running drain is dropped by the engine's single-flight guard (and
// re-run once after).
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	ctx := s.ctx
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		if _, err := s.engine.Drain(ctx); err != nil {
			logging.Error("Drain failed", err, nil)
		}
	}()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.source.Online() {
				continue
			}
			if _, err := s.engine.Drain(ctx); err != nil {
				logging.Error("Periodic drain failed", err, nil)
			}
		}
	}
}
