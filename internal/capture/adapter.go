package capture

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	apperrors "github.com/fieldsync-io/fieldsync/internal/errors"
	"github.com/fieldsync-io/fieldsync/internal/logging"
	"github.com/fieldsync-io/fieldsync/internal/models"
	"github.com/fieldsync-io/fieldsync/internal/queue"
	"github.com/fieldsync-io/fieldsync/internal/remote"
)

// collectionKey is the KV key prefix for per-entity offline record
// collections.
const collectionKey = "offline:records:"

// directTimeout bounds the synchronous remote attempt so the caller never
// blocks on network I/O beyond it.
const directTimeout = 10 * time.Second

// KV is the slice of the local persistent store the adapter needs.
type KV interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Inserter is the direct-path slice of the remote client. Captures are
// always creates.
type Inserter interface {
	Insert(ctx context.Context, session remote.Session, table string, payload json.RawMessage) (string, error)
}

// Connectivity is the slice of the connectivity monitor the adapter reads.
type Connectivity interface {
	Online() bool
}

// Adapter captures entities: direct remote call when online, durable
// offline record plus queued mutation otherwise. Both paths return the
// OfflineRecord immediately.
type Adapter struct {
	kv           KV
	queue        *queue.Manager
	inserter     Inserter
	sessions     remote.SessionSource
	connectivity Connectivity
	device       DeviceContext
	now          func() time.Time

	mu sync.Mutex // guards collection read-modify-write
}

// NewAdapter creates a capture adapter.
func NewAdapter(kv KV, q *queue.Manager, inserter Inserter, sessions remote.SessionSource, connectivity Connectivity, device DeviceContext) *Adapter {
	return &Adapter{
		kv:           kv,
		queue:        q,
		inserter:     inserter,
		sessions:     sessions,
		connectivity: connectivity,
		device:       device,
		now:          time.Now,
	}
}

// SetClock overrides the clock, for tests.
func (a *Adapter) SetClock(now func() time.Time) {
	a.now = now
}

// StoreWorkOrder captures a work order.
func (a *Adapter) StoreWorkOrder(ctx context.Context, wo models.WorkOrder) (models.OfflineRecord, error) {
	return a.capture(ctx, models.EntityWorkOrder, wo)
}

// StoreTimeEntry captures a time entry.
func (a *Adapter) StoreTimeEntry(ctx context.Context, te models.TimeEntry) (models.OfflineRecord, error) {
	return a.capture(ctx, models.EntityTimeEntry, te)
}

// StorePhoto captures a photo reference.
func (a *Adapter) StorePhoto(ctx context.Context, p models.Photo) (models.OfflineRecord, error) {
	return a.capture(ctx, models.EntityPhoto, p)
}

// capture builds the OfflineRecord, attempts the bounded direct path when
// online, and falls back to the offline queue.
func (a *Adapter) capture(ctx context.Context, entityType models.EntityType, payload interface{}) (models.OfflineRecord, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return models.OfflineRecord{}, apperrors.Wrap(apperrors.ErrCaptureInvalid, "failed to encode payload", err)
	}

	location, err := a.device.Location(ctx)
	if err != nil {
		return models.OfflineRecord{}, apperrors.Wrap(apperrors.ErrCaptureDevice, "location unavailable", err)
	}

	record := models.OfflineRecord{
		LocalID:    models.NewID(),
		EntityType: entityType,
		Payload:    data,
		SyncStatus: models.SyncStatusPending,
		CapturedAt: a.now().UnixMilli(),
		DeviceID:   a.device.DeviceID(),
		Location:   location,
	}

	if a.connectivity.Online() {
		if session, ok := a.sessions.Session(); ok {
			directCtx, cancel := context.WithTimeout(ctx, directTimeout)
			serverID, err := a.inserter.Insert(directCtx, session, entityType.Table(), data)
			cancel()
			if err == nil {
				record.MarkSynced(serverID)
				if err := a.appendRecord(record); err != nil {
					return models.OfflineRecord{}, err
				}
				return record, nil
			}
			logging.Warn("Direct capture failed, queuing offline", logging.Fields{
				"entity_type": entityType,
				"error":       err.Error(),
			})
		}
	}

	if err := a.appendRecord(record); err != nil {
		return models.OfflineRecord{}, err
	}

	if _, err := a.queue.Enqueue(queue.ItemInput{
		EntityType: entityType,
		LocalID:    record.LocalID,
		Action:     models.ActionCreate,
		Data:       data,
		Priority:   entityType.Priority(),
	}); err != nil {
		return models.OfflineRecord{}, err
	}

	return record, nil
}

// MarkSynced reconciles a record after its queued create was accepted:
// server id set, status flipped to synced, collection persisted.
func (a *Adapter) MarkSynced(entityType models.EntityType, localID, serverID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	records, err := a.loadCollection(entityType)
	if err != nil {
		return err
	}

	for i := range records {
		if records[i].LocalID == localID {
			records[i].MarkSynced(serverID)
			return a.saveCollection(entityType, records)
		}
	}
	return apperrors.New(apperrors.ErrNotFound, "offline record not found")
}

// Records returns the offline records of one entity type.
func (a *Adapter) Records(entityType models.EntityType) ([]models.OfflineRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.loadCollection(entityType)
}

// PendingCount returns the number of records still awaiting sync across
// all entity types.
func (a *Adapter) PendingCount() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	count := 0
	for _, t := range []models.EntityType{models.EntityWorkOrder, models.EntityTimeEntry, models.EntityPhoto} {
		records, err := a.loadCollection(t)
		if err != nil {
			return 0, err
		}
		for i := range records {
			if records[i].Pending() {
				count++
			}
		}
	}
	return count, nil
}

// ClearOfflineData destructively resets the offline collections and the
// mutation queue. Intended for use after a confirmed full sync only.
func (a *Adapter) ClearOfflineData() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, t := range []models.EntityType{models.EntityWorkOrder, models.EntityTimeEntry, models.EntityPhoto} {
		if err := a.saveCollection(t, nil); err != nil {
			return err
		}
	}
	return a.queue.Clear()
}

func (a *Adapter) appendRecord(record models.OfflineRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	records, err := a.loadCollection(record.EntityType)
	if err != nil {
		return err
	}
	records = append(records, record)
	return a.saveCollection(record.EntityType, records)
}

func (a *Adapter) loadCollection(entityType models.EntityType) ([]models.OfflineRecord, error) {
	raw, ok, err := a.kv.Get(collectionKey + string(entityType))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStore, "failed to read collection", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}

	var records []models.OfflineRecord
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreCorrupt, "failed to decode collection", err)
	}
	return records, nil
}

func (a *Adapter) saveCollection(entityType models.EntityType, records []models.OfflineRecord) error {
	if records == nil {
		records = []models.OfflineRecord{}
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode collection", err)
	}
	return a.kv.Set(collectionKey+string(entityType), string(raw))
}
