package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsync-io/fieldsync/internal/connectivity"
	syncengine "github.com/fieldsync-io/fieldsync/internal/sync"
)

type countingDrainer struct {
	drains atomic.Int64
}

func (d *countingDrainer) Drain(ctx context.Context) (syncengine.Result, error) {
	d.drains.Add(1)
	return syncengine.Result{}, nil
}

// ctxRecordingDrainer reports the context state it observed at drain time.
type ctxRecordingDrainer struct {
	errs chan error
}

func (d *ctxRecordingDrainer) Drain(ctx context.Context) (syncengine.Result, error) {
	d.errs <- ctx.Err()
	return syncengine.Result{}, nil
}

func newMonitor(online bool) *connectivity.Monitor {
	return connectivity.NewMonitor(func(ctx context.Context) bool { return online }, time.Hour)
}

func TestTriggerRunsDrain(t *testing.T) {
	drainer := &countingDrainer{}
	s := New(drainer, newMonitor(true), DefaultConfig())

	s.Start(context.Background())
	defer s.Stop()

	s.Trigger()

	require.Eventually(t, func() bool {
		return drainer.drains.Load() == 1
	}, time.Second, time.Millisecond)
}

func TestTriggerBeforeStartIsNoOp(t *testing.T) {
	drainer := &countingDrainer{}
	s := New(drainer, newMonitor(true), DefaultConfig())

	s.Trigger()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), drainer.drains.Load())
}

func TestTriggerAfterStopIsNoOp(t *testing.T) {
	drainer := &countingDrainer{}
	s := New(drainer, newMonitor(true), DefaultConfig())

	s.Start(context.Background())
	s.Stop()

	s.Trigger()

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), drainer.drains.Load())
}

func TestTriggeredDrainUsesSchedulerContext(t *testing.T) {
	drainer := &ctxRecordingDrainer{errs: make(chan error, 1)}
	s := New(drainer, newMonitor(true), DefaultConfig())

	s.Start(context.Background())
	defer s.Stop()

	s.Trigger()

	select {
	case err := <-drainer.errs:
		assert.NoError(t, err, "triggered drain ran under a canceled context")
	case <-time.After(time.Second):
		t.Fatal("drain never ran")
	}
}

func TestConnectivityRestoredTriggersDrain(t *testing.T) {
	drainer := &countingDrainer{}
	monitor := newMonitor(false)
	s := New(drainer, monitor, DefaultConfig())

	s.Start(context.Background())
	defer s.Stop()

	monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		return drainer.drains.Load() == 1
	}, time.Second, time.Millisecond)
}

func TestGoingOfflineDoesNotTriggerDrain(t *testing.T) {
	drainer := &countingDrainer{}
	monitor := newMonitor(true)
	s := New(drainer, monitor, DefaultConfig())

	s.Start(context.Background())
	defer s.Stop()

	monitor.SetOnline(false)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(0), drainer.drains.Load())
}

func TestPeriodicDrainWhileOnline(t *testing.T) {
	drainer := &countingDrainer{}
	s := New(drainer, newMonitor(true), Config{DrainInterval: 10 * time.Millisecond})

	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool {
		return drainer.drains.Load() >= 2
	}, time.Second, time.Millisecond)
}

func TestPeriodicDrainSkippedWhileOffline(t *testing.T) {
	drainer := &countingDrainer{}
	s := New(drainer, newMonitor(false), Config{DrainInterval: 10 * time.Millisecond})

	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int64(0), drainer.drains.Load())
}

func TestStartIsIdempotent(t *testing.T) {
	drainer := &countingDrainer{}
	s := New(drainer, newMonitor(true), DefaultConfig())

	s.Start(context.Background())
	s.Start(context.Background())
	s.Stop()
}
