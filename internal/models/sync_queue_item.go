package models

import "encoding/json"

// QueueStatus represents the lifecycle state of a queued mutation.
type QueueStatus string

const (
	// QueueStatusPending items are eligible for the next drain once their
	// backoff window has passed.
	QueueStatusPending QueueStatus = "pending"
	// QueueStatusFailed items exhausted their retry budget and wait for an
	// operator-driven retry.
	QueueStatusFailed QueueStatus = "failed"
)

// DefaultMaxAttempts is the retry budget before a queue item is parked as
// failed.
const DefaultMaxAttempts = 5

// SyncQueueItem is a single durable, ordered mutation intent targeting the
// remote system of record. Items are created once by the queue manager,
// persisted immediately, and removed only after the remote accepted the
// mutation. Data is a snapshot taken at enqueue time and is never refreshed.
type SyncQueueItem struct {
	ID         string     `json:"id"`
	EntityType EntityType `json:"entity_type"`
	// LocalID joins back to the OfflineRecord this mutation represents.
	LocalID string `json:"local_id"`
	// EntityID is the server id, set when the mutation targets an
	// already-synced record (update/delete).
	EntityID  string          `json:"entity_id,omitempty"`
	Action    Action          `json:"action"`
	Data      json.RawMessage `json:"data"`
	Priority  int             `json:"priority"`
	CreatedAt int64           `json:"created_at"` // unix milliseconds, FIFO tie-breaker

	// Retry bookkeeping.
	Attempts      int         `json:"attempts"`
	MaxAttempts   int         `json:"max_attempts"`
	NextAttemptAt int64       `json:"next_attempt_at"` // unix milliseconds
	Status        QueueStatus `json:"status"`
	LastError     string      `json:"last_error,omitempty"`
}

// Ready reports whether the item is eligible for dispatch at the given time
// (unix milliseconds): pending and past its backoff window.
func (i *SyncQueueItem) Ready(nowMillis int64) bool {
	return i.Status == QueueStatusPending && i.NextAttemptAt <= nowMillis
}
