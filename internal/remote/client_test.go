package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/fieldsync-io/fieldsync/internal/errors"
)

type recordedRequest struct {
	method string
	path   string
	tenant string
	auth   string
	body   map[string]interface{}
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			tenant: r.Header.Get("X-Tenant-ID"),
			auth:   r.Header.Get("Authorization"),
		}
		if raw, _ := io.ReadAll(r.Body); len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		requests = append(requests, rec)
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestInsertTagsPayloadAndReturnsServerID(t *testing.T) {
	server, requests := newTestServer(t, http.StatusCreated, `{"id":"srv-123"}`)
	client := NewClient(Config{BaseURL: server.URL})
	session := Session{TenantID: "tenant-1", Token: "tok"}

	id, err := client.Insert(context.Background(), session, "work_orders", json.RawMessage(`{"title":"fix pump"}`))
	require.NoError(t, err)
	assert.Equal(t, "srv-123", id)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodPost, req.method)
	assert.Equal(t, "/api/tables/work_orders/records", req.path)
	assert.Equal(t, "tenant-1", req.tenant)
	assert.Equal(t, "Bearer tok", req.auth)
	assert.Equal(t, "fix pump", req.body["title"])
	assert.Equal(t, "tenant-1", req.body["tenant_id"])
	assert.Equal(t, true, req.body["synced"])
}

func TestInsertMissingIDInResponse(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `{}`)
	client := NewClient(Config{BaseURL: server.URL})

	_, err := client.Insert(context.Background(), Session{TenantID: "t"}, "photos", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteRequest))
}

func TestUpdateTargetsRecordByID(t *testing.T) {
	server, requests := newTestServer(t, http.StatusOK, `{}`)
	client := NewClient(Config{BaseURL: server.URL})

	err := client.Update(context.Background(), Session{TenantID: "t"}, "time_entries", "srv-5", json.RawMessage(`{"notes":"done"}`))
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodPatch, req.method)
	assert.Equal(t, "/api/tables/time_entries/records/srv-5", req.path)
}

func TestDeleteTargetsRecordByID(t *testing.T) {
	server, requests := newTestServer(t, http.StatusNoContent, ``)
	client := NewClient(Config{BaseURL: server.URL})

	err := client.Delete(context.Background(), Session{TenantID: "t"}, "photos", "srv-7")
	require.NoError(t, err)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, http.MethodDelete, req.method)
	assert.Equal(t, "/api/tables/photos/records/srv-7", req.path)
}

func TestNonSuccessStatusIsOpaqueFailure(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		server, _ := newTestServer(t, status, `{"error":"nope"}`)
		client := NewClient(Config{BaseURL: server.URL})

		_, err := client.Insert(context.Background(), Session{TenantID: "t"}, "work_orders", json.RawMessage(`{}`))
		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrRemoteStatus))
	}
}

func TestTransportErrorIsOpaqueFailure(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1"})

	_, err := client.Insert(context.Background(), Session{TenantID: "t"}, "work_orders", json.RawMessage(`{}`))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrRemoteRequest))
}

func TestInsertRejectsNonObjectPayload(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://localhost"})

	_, err := client.Insert(context.Background(), Session{TenantID: "t"}, "work_orders", json.RawMessage(`[1,2]`))
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalid))
}

func TestSessionValidity(t *testing.T) {
	assert.False(t, Session{}.Valid())
	assert.True(t, Session{TenantID: "t"}.Valid())

	_, ok := StaticSession{}.Session()
	assert.False(t, ok)
	sess, ok := StaticSession{TenantID: "t", Token: "x"}.Session()
	assert.True(t, ok)
	assert.Equal(t, "t", sess.TenantID)
}
