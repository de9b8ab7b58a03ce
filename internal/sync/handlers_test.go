package sync

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fieldsync-io/fieldsync/internal/errors"
	"github.com/fieldsync-io/fieldsync/internal/models"
	"github.com/fieldsync-io/fieldsync/internal/remote"
)

type fakeUploader struct {
	keys    []string
	paths   []string
	failure error
}

func (u *fakeUploader) UploadFile(ctx context.Context, key, path, contentType string) error {
	if u.failure != nil {
		return u.failure
	}
	u.keys = append(u.keys, key)
	u.paths = append(u.paths, path)
	return nil
}

var testSession = remote.Session{TenantID: "tenant-1", Token: "tok"}

func TestDefaultRegistryCoversAllEntityTypes(t *testing.T) {
	r := DefaultRegistry(&fakeDispatcher{}, nil)

	for _, entityType := range []models.EntityType{models.EntityWorkOrder, models.EntityTimeEntry, models.EntityPhoto} {
		_, ok := r.Handler(entityType)
		assert.True(t, ok, "missing handler for %s", entityType)
	}

	_, ok := r.Handler(models.EntityType("invoice"))
	assert.False(t, ok)
}

func TestTableHandlerActions(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := &TableHandler{Dispatcher: dispatcher, Table: "work_orders"}

	serverID, err := h.Apply(context.Background(), testSession, models.SyncQueueItem{
		Action: models.ActionCreate,
		Data:   json.RawMessage(`{"title":"a"}`),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, serverID)

	_, err = h.Apply(context.Background(), testSession, models.SyncQueueItem{
		Action:   models.ActionUpdate,
		EntityID: "srv-9",
		Data:     json.RawMessage(`{"status":"completed"}`),
	})
	require.NoError(t, err)

	_, err = h.Apply(context.Background(), testSession, models.SyncQueueItem{
		Action:   models.ActionDelete,
		EntityID: "srv-9",
	})
	require.NoError(t, err)

	require.Len(t, dispatcher.calls, 3)
	assert.Contains(t, dispatcher.calls[0], "insert:work_orders")
	assert.Equal(t, "update:work_orders:srv-9", dispatcher.calls[1])
	assert.Equal(t, "delete:work_orders:srv-9", dispatcher.calls[2])
}

func TestTableHandlerRejectsUnknownAction(t *testing.T) {
	h := &TableHandler{Dispatcher: &fakeDispatcher{}, Table: "work_orders"}

	_, err := h.Apply(context.Background(), testSession, models.SyncQueueItem{Action: models.Action("upsert")})
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrSyncUnsupported))
}

func TestPhotoHandlerUploadsBinaryBeforeInsert(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	uploader := &fakeUploader{}
	h := &PhotoHandler{Dispatcher: dispatcher, Objects: uploader}

	_, err := h.Apply(context.Background(), testSession, models.SyncQueueItem{
		LocalID: "local-1",
		Action:  models.ActionCreate,
		Data:    json.RawMessage(`{"work_order_ref":"w1","file_path":"/tmp/site.jpg","content_type":"image/jpeg"}`),
	})
	require.NoError(t, err)

	require.Len(t, uploader.keys, 1)
	assert.Equal(t, "photos/tenant-1/local-1.jpg", uploader.keys[0])
	assert.Equal(t, []string{"/tmp/site.jpg"}, uploader.paths)

	// The inserted row references the uploaded object.
	require.Len(t, dispatcher.calls, 1)
	assert.Contains(t, dispatcher.calls[0], `"object_key":"photos/tenant-1/local-1.jpg"`)
}

func TestPhotoHandlerUploadFailureBlocksInsert(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	uploader := &fakeUploader{failure: errors.New("bucket unreachable")}
	h := &PhotoHandler{Dispatcher: dispatcher, Objects: uploader}

	_, err := h.Apply(context.Background(), testSession, models.SyncQueueItem{
		LocalID: "local-1",
		Action:  models.ActionCreate,
		Data:    json.RawMessage(`{"file_path":"/tmp/site.jpg"}`),
	})
	require.Error(t, err)
	assert.Empty(t, dispatcher.calls)
}

func TestPhotoHandlerSkipsUploadWithoutFile(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	uploader := &fakeUploader{}
	h := &PhotoHandler{Dispatcher: dispatcher, Objects: uploader}

	_, err := h.Apply(context.Background(), testSession, models.SyncQueueItem{
		LocalID: "local-1",
		Action:  models.ActionCreate,
		Data:    json.RawMessage(`{"work_order_ref":"w1"}`),
	})
	require.NoError(t, err)
	assert.Empty(t, uploader.keys)
	require.Len(t, dispatcher.calls, 1)
}

func TestPhotoHandlerUpdateGoesStraightToTable(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	h := &PhotoHandler{Dispatcher: dispatcher, Objects: &fakeUploader{}}

	_, err := h.Apply(context.Background(), testSession, models.SyncQueueItem{
		Action:   models.ActionDelete,
		EntityID: "srv-3",
	})
	require.NoError(t, err)
	require.Len(t, dispatcher.calls, 1)
	assert.Equal(t, "delete:photos:srv-3", dispatcher.calls[0])
}
