// Package queue provides the durable offline mutation queue.
package queue

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	apperrors "github.com/fieldsync-io/fieldsync/internal/errors"
	"github.com/fieldsync-io/fieldsync/internal/logging"
	"github.com/fieldsync-io/fieldsync/internal/models"
)

// StorageKey is the key the serialized queue lives under in the local store.
const StorageKey = "sync:queue"

// KV is the slice of the local persistent store the queue needs.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// ItemInput is the caller-supplied part of a queue item. ID, CreatedAt and
// retry bookkeeping are assigned by Enqueue.
type ItemInput struct {
	EntityType models.EntityType
	LocalID    string
	EntityID   string
	Action     models.Action
	Data       json.RawMessage
	Priority   int
}

// Manager owns the durable mutation queue: enqueue, persist, order and
// acknowledge. All mutation of the persisted queue goes through this type.
// The in-memory queue and the persisted queue never diverge: when a persist
// fails the in-memory mutation is rolled back and the error propagated.
type Manager struct {
	kv  KV
	now func() time.Time

	mu    sync.RWMutex
	items []models.SyncQueueItem
}

// NewManager creates a queue manager on top of the given store.
func NewManager(kv KV) *Manager {
	return &Manager{kv: kv, now: time.Now}
}

// SetClock overrides the clock, for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.now = now
}

// Load rehydrates the queue from the local store. Must be called before any
// drain so previously queued work is not lost across restarts.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, ok, err := m.kv.Get(StorageKey)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueueLoad, "failed to read queue", err)
	}
	if !ok || raw == "" {
		m.items = nil
		return nil
	}

	var items []models.SyncQueueItem
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return apperrors.Wrap(apperrors.ErrQueueLoad, "failed to decode queue", err)
	}
	m.items = items

	logging.Info("Sync queue loaded", logging.Fields{"items": len(items)})
	return nil
}

// Enqueue assigns id and createdAt, appends the item, persists the full
// queue and returns the stored item. It only touches local storage, so it
// succeeds while fully offline; a persist failure is the single error path.
func (m *Manager) Enqueue(input ItemInput) (models.SyncQueueItem, error) {
	if !input.EntityType.Valid() {
		return models.SyncQueueItem{}, apperrors.New(apperrors.ErrInvalid, "unknown entity type")
	}
	if !input.Action.Valid() {
		return models.SyncQueueItem{}, apperrors.New(apperrors.ErrInvalid, "unknown action")
	}

	priority := input.Priority
	if priority < models.PriorityHigh || priority > models.PriorityLow {
		priority = input.EntityType.Priority()
	}

	now := m.now().UnixMilli()
	item := models.SyncQueueItem{
		ID:            models.NewID(),
		EntityType:    input.EntityType,
		LocalID:       input.LocalID,
		EntityID:      input.EntityID,
		Action:        input.Action,
		Data:          input.Data,
		Priority:      priority,
		CreatedAt:     now,
		MaxAttempts:   models.DefaultMaxAttempts,
		NextAttemptAt: now,
		Status:        models.QueueStatusPending,
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.items = append(m.items, item)
	if err := m.persistLocked(); err != nil {
		m.items = m.items[:len(m.items)-1]
		return models.SyncQueueItem{}, err
	}

	logging.Debug("Enqueued mutation", logging.Fields{
		"id":          item.ID,
		"entity_type": item.EntityType,
		"action":      item.Action,
		"priority":    item.Priority,
	})
	return item, nil
}

// RemoveAcknowledged persists a new queue with the given ids removed. Used
// after a drain pass, with all acknowledged ids in one batched write.
func (m *Manager) RemoveAcknowledged(ids map[string]struct{}) error {
	if len(ids) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.items
	kept := make([]models.SyncQueueItem, 0, len(m.items))
	for _, item := range m.items {
		if _, ok := ids[item.ID]; !ok {
			kept = append(kept, item)
		}
	}

	m.items = kept
	if err := m.persistLocked(); err != nil {
		m.items = previous
		return err
	}

	logging.Debug("Removed acknowledged items", logging.Fields{
		"removed":   len(previous) - len(kept),
		"remaining": len(kept),
	})
	return nil
}

// MarkFailed records a dispatch failure for the item: bumps the attempt
// counter, schedules the next attempt with exponential backoff, and parks
// the item as failed once the retry budget is spent. The item stays in the
// queue either way.
func (m *Manager) MarkFailed(id string, cause error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := -1
	for i := range m.items {
		if m.items[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return apperrors.New(apperrors.ErrNotFound, "queue item not found")
	}

	previous := m.items[idx]
	item := &m.items[idx]
	item.Attempts++
	if cause != nil {
		item.LastError = cause.Error()
	}

	now := m.now()
	if item.Attempts >= item.MaxAttempts {
		item.Status = models.QueueStatusFailed
		logging.Warn("Queue item failed permanently", logging.Fields{
			"id":       item.ID,
			"attempts": item.Attempts,
		})
	} else {
		item.NextAttemptAt = now.Add(backoff(item.Attempts)).UnixMilli()
	}

	if err := m.persistLocked(); err != nil {
		m.items[idx] = previous
		return err
	}
	return nil
}

// RetryFailed resets permanently failed items to pending, clearing their
// retry bookkeeping. Returns the number of items reset.
func (m *Manager) RetryFailed() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := make([]models.SyncQueueItem, len(m.items))
	copy(previous, m.items)

	now := m.now().UnixMilli()
	count := 0
	for i := range m.items {
		if m.items[i].Status == models.QueueStatusFailed {
			m.items[i].Status = models.QueueStatusPending
			m.items[i].Attempts = 0
			m.items[i].NextAttemptAt = now
			m.items[i].LastError = ""
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}

	if err := m.persistLocked(); err != nil {
		m.items = previous
		return 0, err
	}

	logging.Info("Reset failed items for retry", logging.Fields{"count": count})
	return count, nil
}

// Snapshot returns a copy of the queue for drains and progress reporting.
func (m *Manager) Snapshot() []models.SyncQueueItem {
	m.mu.RLock()
	defer m.mu.RUnlock()

	items := make([]models.SyncQueueItem, len(m.items))
	copy(items, m.items)
	return items
}

// Len returns the number of items in the queue.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// FailedCount returns the number of permanently failed items.
func (m *Manager) FailedCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for i := range m.items {
		if m.items[i].Status == models.QueueStatusFailed {
			count++
		}
	}
	return count
}

// Clear drops every queued item. Destructive; used by the offline-data
// reset only.
func (m *Manager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous := m.items
	m.items = nil
	if err := m.persistLocked(); err != nil {
		m.items = previous
		return err
	}
	return nil
}

// persistLocked writes the full queue to the local store. Callers hold the
// mutex.
func (m *Manager) persistLocked() error {
	items := m.items
	if items == nil {
		items = []models.SyncQueueItem{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, "failed to encode queue", err)
	}
	if err := m.kv.Set(StorageKey, string(raw)); err != nil {
		return apperrors.Wrap(apperrors.ErrQueuePersist, "failed to write queue", err)
	}
	return nil
}

// Order sorts items for a drain: priority ascending, then createdAt
// ascending. The sort is stable, so causally dependent mutations against
// the same entity replay in capture order within a priority.
func Order(items []models.SyncQueueItem) []models.SyncQueueItem {
	sorted := make([]models.SyncQueueItem, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Priority != sorted[j].Priority {
			return sorted[i].Priority < sorted[j].Priority
		}
		return sorted[i].CreatedAt < sorted[j].CreatedAt
	})
	return sorted
}

// backoff computes the retry delay after the given attempt count.
// 30s * 2^(attempts-1), capped at one hour.
func backoff(attempts int) time.Duration {
	d := 30 * time.Second << uint(attempts-1)
	if d > time.Hour {
		d = time.Hour
	}
	return d
}
