package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	apperrors "github.com/fieldsync-io/fieldsync/internal/errors"
	"github.com/fieldsync-io/fieldsync/internal/models"
	"github.com/fieldsync-io/fieldsync/internal/remote"
)

// Dispatcher is the slice of the remote client the sync handlers need.
type Dispatcher interface {
	Insert(ctx context.Context, session remote.Session, table string, payload json.RawMessage) (string, error)
	Update(ctx context.Context, session remote.Session, table, id string, payload json.RawMessage) error
	Delete(ctx context.Context, session remote.Session, table, id string) error
}

// ObjectUploader uploads a local file to the object store under a key.
type ObjectUploader interface {
	UploadFile(ctx context.Context, key, path, contentType string) error
}

// EntitySyncHandler applies one queued mutation for a single entity type.
// Returns the server-assigned id for creates; empty otherwise.
type EntitySyncHandler interface {
	Apply(ctx context.Context, session remote.Session, item models.SyncQueueItem) (string, error)
}

// Registry maps entity types to their sync handlers. New syncable entity
// types register here without touching the drain loop.
type Registry struct {
	handlers map[models.EntityType]EntitySyncHandler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[models.EntityType]EntitySyncHandler)}
}

// DefaultRegistry wires the built-in handlers for work orders, time entries
// and photos.
func DefaultRegistry(dispatcher Dispatcher, objects ObjectUploader) *Registry {
	r := NewRegistry()
	r.Register(models.EntityWorkOrder, &TableHandler{Dispatcher: dispatcher, Table: models.EntityWorkOrder.Table()})
	r.Register(models.EntityTimeEntry, &TableHandler{Dispatcher: dispatcher, Table: models.EntityTimeEntry.Table()})
	r.Register(models.EntityPhoto, &PhotoHandler{Dispatcher: dispatcher, Objects: objects})
	return r
}

// Register adds or replaces the handler for an entity type.
func (r *Registry) Register(t models.EntityType, h EntitySyncHandler) {
	r.handlers[t] = h
}

// Handler looks up the handler for an entity type.
func (r *Registry) Handler(t models.EntityType) (EntitySyncHandler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// TableHandler syncs an entity type that maps one-to-one onto a remote
// table with no side channels.
type TableHandler struct {
	Dispatcher Dispatcher
	Table      string
}

// Apply dispatches the queued mutation against the handler's table.
func (h *TableHandler) Apply(ctx context.Context, session remote.Session, item models.SyncQueueItem) (string, error) {
	switch item.Action {
	case models.ActionCreate:
		return h.Dispatcher.Insert(ctx, session, h.Table, item.Data)
	case models.ActionUpdate:
		return "", h.Dispatcher.Update(ctx, session, h.Table, item.EntityID, item.Data)
	case models.ActionDelete:
		return "", h.Dispatcher.Delete(ctx, session, h.Table, item.EntityID)
	}
	return "", apperrors.New(apperrors.ErrSyncUnsupported, fmt.Sprintf("unsupported action %q", item.Action))
}

// PhotoHandler syncs photos: the binary is uploaded to the object store
// first, then the row referencing the object key goes to the data service.
type PhotoHandler struct {
	Dispatcher Dispatcher
	Objects    ObjectUploader
}

// Apply uploads the photo file (creates only) and dispatches the row.
func (h *PhotoHandler) Apply(ctx context.Context, session remote.Session, item models.SyncQueueItem) (string, error) {
	if item.Action != models.ActionCreate {
		table := &TableHandler{Dispatcher: h.Dispatcher, Table: models.EntityPhoto.Table()}
		return table.Apply(ctx, session, item)
	}

	var photo models.Photo
	if err := json.Unmarshal(item.Data, &photo); err != nil {
		return "", apperrors.Wrap(apperrors.ErrInvalid, "failed to decode photo payload", err)
	}

	data := item.Data
	if photo.FilePath != "" && h.Objects != nil {
		key := fmt.Sprintf("photos/%s/%s%s", session.TenantID, item.LocalID, filepath.Ext(photo.FilePath))
		if err := h.Objects.UploadFile(ctx, key, photo.FilePath, photo.ContentType); err != nil {
			return "", err
		}
		photo.ObjectKey = key

		tagged, err := json.Marshal(photo)
		if err != nil {
			return "", apperrors.Wrap(apperrors.ErrInternal, "failed to encode photo payload", err)
		}
		data = tagged
	}

	return h.Dispatcher.Insert(ctx, session, models.EntityPhoto.Table(), data)
}
