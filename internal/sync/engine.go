// Package sync provides the synchronization driver that drains the offline
// mutation queue to the remote system of record.
package sync

import (
	"context"
	syncpkg "sync"
	"time"

	apperrors "github.com/fieldsync-io/fieldsync/internal/errors"
	"github.com/fieldsync-io/fieldsync/internal/logging"
	"github.com/fieldsync-io/fieldsync/internal/models"
	"github.com/fieldsync-io/fieldsync/internal/queue"
	"github.com/fieldsync-io/fieldsync/internal/remote"
)

// Result reports the outcome of one drain pass.
type Result struct {
	Processed int `json:"processed"`
	Remaining int `json:"remaining"`
}

// Connectivity is the slice of the connectivity monitor the engine reads.
type Connectivity interface {
	Online() bool
}

// Reconciler flips an offline record to synced once its create was
// accepted. Implemented by the capture adapter.
type Reconciler interface {
	MarkSynced(entityType models.EntityType, localID, serverID string) error
}

// Notifier receives engine events for the device UI. Implementations must
// not block.
type Notifier interface {
	SyncStarted(total int)
	SyncProgress(percent, processed, total int)
	SyncFailed(item models.SyncQueueItem, cause error)
	SyncCompleted(result Result, duration time.Duration)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) SyncStarted(int)                        {}
func (NopNotifier) SyncProgress(int, int, int)             {}
func (NopNotifier) SyncFailed(models.SyncQueueItem, error) {}
func (NopNotifier) SyncCompleted(Result, time.Duration)    {}

// Deps are the injected collaborators of the engine. Clock and Notifier
// are optional.
type Deps struct {
	Queue        *queue.Manager
	Sessions     remote.SessionSource
	Handlers     *Registry
	Connectivity Connectivity
	Records      Reconciler
	Notifier     Notifier
	Clock        func() time.Time
}

// Engine orchestrates queue draining: when to run, single-flight
// execution, sequential dispatch, and batched acknowledgement. All state
// lives on the instance so engines can be tested in isolation.
type Engine struct {
	queue        *queue.Manager
	sessions     remote.SessionSource
	handlers     *Registry
	connectivity Connectivity
	records      Reconciler
	notifier     Notifier
	clock        func() time.Time

	mu       syncpkg.Mutex
	syncing  bool
	rerun    bool
	progress int
	lastSync *time.Time
}

// NewEngine creates an engine from its dependencies.
func NewEngine(deps Deps) *Engine {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		queue:        deps.Queue,
		sessions:     deps.Sessions,
		handlers:     deps.Handlers,
		connectivity: deps.Connectivity,
		records:      deps.Records,
		notifier:     notifier,
		clock:        clock,
	}
}

// Syncing reports whether a drain is in flight.
func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

// Progress returns the 0-100 progress of the current or last drain pass.
// Reset to 0 at the start of each drain; not persisted across restarts.
func (e *Engine) Progress() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

// LastSync returns the completion time of the last drain pass, nil before
// the first one.
func (e *Engine) LastSync() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// Online reports connectivity as seen by the engine.
func (e *Engine) Online() bool {
	return e.connectivity.Online()
}

// QueueLength returns the number of queued mutations.
func (e *Engine) QueueLength() int {
	return e.queue.Len()
}

// FailedCount returns the number of permanently failed mutations.
func (e *Engine) FailedCount() int {
	return e.queue.FailedCount()
}

// Drain runs one pass over the queued mutations. It is a no-op when
// offline, when no session is available, or when a drain is already in
// flight; in the last case the request is remembered and one extra pass
// runs after the current drain completes, so items enqueued mid-drain are
// not stranded until the next external trigger.
func (e *Engine) Drain(ctx context.Context) (Result, error) {
	if !e.connectivity.Online() {
		logging.Debug("Drain skipped", logging.Fields{"reason": string(apperrors.ErrSyncOffline)})
		return Result{Remaining: e.queue.Len()}, nil
	}
	session, ok := e.sessions.Session()
	if !ok {
		logging.Debug("Drain skipped", logging.Fields{"reason": string(apperrors.ErrSyncNoSession)})
		return Result{Remaining: e.queue.Len()}, nil
	}

	e.mu.Lock()
	if e.syncing {
		e.rerun = true
		e.mu.Unlock()
		logging.Debug("Drain skipped", logging.Fields{"reason": string(apperrors.ErrSyncInProgress)})
		return Result{Remaining: e.queue.Len()}, nil
	}
	e.syncing = true
	e.progress = 0
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	result, err := e.drainPass(ctx, session)

	// Re-run once if a drain was requested while this one ran and there
	// is still connectivity and eligible work.
	for err == nil && e.takeRerun() && e.connectivity.Online() && e.queue.Len() > 0 {
		var more Result
		more, err = e.drainPass(ctx, session)
		result.Processed += more.Processed
		result.Remaining = more.Remaining
	}

	return result, err
}

func (e *Engine) takeRerun() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	r := e.rerun
	e.rerun = false
	return r
}

// drainPass processes the sorted queue strictly sequentially, one remote
// call at a time. A single item's failure never aborts the pass; failed
// items stay queued with their retry bookkeeping bumped. All successes are
// acknowledged in one persisted write at the end.
func (e *Engine) drainPass(ctx context.Context, session remote.Session) (Result, error) {
	start := e.clock()

	items := e.queue.Snapshot()
	if len(items) == 0 {
		return Result{}, nil
	}

	sorted := queue.Order(items)
	nowMillis := start.UnixMilli()

	total := 0
	for i := range sorted {
		if sorted[i].Ready(nowMillis) {
			total++
		}
	}
	if total == 0 {
		result := Result{Remaining: len(items)}
		e.recordCompletion(start, result)
		return result, nil
	}

	e.notifier.SyncStarted(total)
	logging.Info("Drain started", logging.Fields{"eligible": total, "queued": len(items)})

	acked := make(map[string]struct{})
	processed := 0

	for _, item := range sorted {
		if ctx.Err() != nil {
			break
		}
		if !item.Ready(nowMillis) {
			continue
		}

		handler, ok := e.handlers.Handler(item.EntityType)
		if !ok {
			e.failItem(item, apperrors.New(apperrors.ErrSyncUnsupported, "no handler registered"))
			continue
		}

		serverID, err := handler.Apply(ctx, session, item)
		if err != nil {
			e.failItem(item, err)
			continue
		}

		acked[item.ID] = struct{}{}
		processed++
		e.setProgress(processed * 100 / total)
		e.notifier.SyncProgress(processed*100/total, processed, total)

		if item.Action == models.ActionCreate && serverID != "" && e.records != nil {
			if err := e.records.MarkSynced(item.EntityType, item.LocalID, serverID); err != nil {
				logging.Error("Failed to reconcile offline record", err, logging.Fields{
					"local_id": item.LocalID,
				})
			}
		}
	}

	// Single batched removal to minimize storage churn. A persist failure
	// here must surface: acknowledged work would otherwise replay forever.
	if err := e.queue.RemoveAcknowledged(acked); err != nil {
		logging.Error("Failed to persist acknowledged items", err, nil)
		return Result{Processed: processed, Remaining: e.queue.Len()}, err
	}

	result := Result{Processed: processed, Remaining: e.queue.Len()}
	e.recordCompletion(start, result)

	logging.Info("Drain completed", logging.Fields{
		"processed": result.Processed,
		"remaining": result.Remaining,
	})
	return result, nil
}

func (e *Engine) failItem(item models.SyncQueueItem, cause error) {
	logging.ErrorWithCode("Dispatch failed", string(apperrors.ErrSyncDispatch), cause, logging.Fields{
		"id":          item.ID,
		"entity_type": item.EntityType,
		"action":      item.Action,
		"attempts":    item.Attempts + 1,
	})
	if err := e.queue.MarkFailed(item.ID, cause); err != nil {
		logging.Error("Failed to record dispatch failure", err, logging.Fields{"id": item.ID})
	}
	e.notifier.SyncFailed(item, cause)
}

func (e *Engine) setProgress(p int) {
	e.mu.Lock()
	e.progress = p
	e.mu.Unlock()
}

// recordCompletion stamps lastSync regardless of per-item failures.
func (e *Engine) recordCompletion(start time.Time, result Result) {
	end := e.clock()
	e.mu.Lock()
	e.lastSync = &end
	e.mu.Unlock()
	e.notifier.SyncCompleted(result, end.Sub(start))
}
