// Package remote provides the HTTP client for the tenant-scoped remote
// system of record.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/fieldsync-io/fieldsync/internal/errors"
)

// Session carries the tenant scope and credentials for remote calls. A
// drain is a no-op without one.
type Session struct {
	TenantID string
	Token    string
}

// Valid reports whether the session can scope a remote call.
func (s Session) Valid() bool {
	return s.TenantID != ""
}

// SessionSource yields the active session, if any.
type SessionSource interface {
	Session() (Session, bool)
}

// StaticSession is a SessionSource returning a fixed session.
type StaticSession Session

// Session implements SessionSource.
func (s StaticSession) Session() (Session, bool) {
	sess := Session(s)
	return sess, sess.Valid()
}

// Config holds remote client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client issues per-table insert/update/delete operations against the
// remote data service. It does not inspect error codes: any transport
// error or non-2xx response is a single opaque dispatch failure, retried
// on a later drain.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a remote client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// insertResponse is the shape of a successful insert reply.
type insertResponse struct {
	ID string `json:"id"`
}

// Insert creates a record in table and returns the server-assigned id.
func (c *Client) Insert(ctx context.Context, session Session, table string, payload json.RawMessage) (string, error) {
	body, err := tagPayload(payload, session.TenantID)
	if err != nil {
		return "", err
	}

	resp, err := c.do(ctx, session, http.MethodPost, c.tableURL(table, ""), body)
	if err != nil {
		return "", err
	}

	var parsed insertResponse
	if err := json.Unmarshal(resp, &parsed); err != nil {
		return "", apperrors.Wrap(apperrors.ErrRemoteRequest, "failed to decode insert response", err)
	}
	if parsed.ID == "" {
		return "", apperrors.New(apperrors.ErrRemoteRequest, "insert response missing id")
	}
	return parsed.ID, nil
}

// Update modifies an existing record by server id.
func (c *Client) Update(ctx context.Context, session Session, table, id string, payload json.RawMessage) error {
	body, err := tagPayload(payload, session.TenantID)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, session, http.MethodPatch, c.tableURL(table, id), body)
	return err
}

// Delete removes an existing record by server id.
func (c *Client) Delete(ctx context.Context, session Session, table, id string) error {
	_, err := c.do(ctx, session, http.MethodDelete, c.tableURL(table, id), nil)
	return err
}

func (c *Client) tableURL(table, id string) string {
	if id == "" {
		return fmt.Sprintf("%s/api/tables/%s/records", c.baseURL, table)
	}
	return fmt.Sprintf("%s/api/tables/%s/records/%s", c.baseURL, table, id)
}

func (c *Client) do(ctx context.Context, session Session, method, url string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteRequest, "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", session.TenantID)
	if session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+session.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteRequest, "request failed", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.New(apperrors.ErrRemoteStatus,
			fmt.Sprintf("%s %s returned status %d", method, url, resp.StatusCode))
	}
	return data, nil
}

// tagPayload stamps the outgoing payload with the tenant scope and the
// server-side synced marker.
func tagPayload(payload json.RawMessage, tenantID string) ([]byte, error) {
	fields := map[string]interface{}{}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &fields); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInvalid, "payload is not a JSON object", err)
		}
	}
	fields["tenant_id"] = tenantID
	fields["synced"] = true

	tagged, err := json.Marshal(fields)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to encode payload", err)
	}
	return tagged, nil
}
