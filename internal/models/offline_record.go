package models

import "encoding/json"

// SyncStatus represents the synchronization state of an offline record.
type SyncStatus string

const (
	SyncStatusPending  SyncStatus = "pending_sync"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusConflict SyncStatus = "conflict"
)

// GeoPoint is a device location captured alongside a record.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// OfflineRecord is the client-local envelope for any captured entity
// awaiting or having completed synchronization.
//
// Invariant: SyncStatus == synced implies ServerID != "", and
// SyncStatus == pending_sync implies ServerID == "".
type OfflineRecord struct {
	LocalID    string          `json:"local_id"`
	ServerID   string          `json:"server_id,omitempty"`
	EntityType EntityType      `json:"entity_type"`
	Payload    json.RawMessage `json:"payload"`
	SyncStatus SyncStatus      `json:"sync_status"`
	CapturedAt int64           `json:"captured_at"`
	DeviceID   string          `json:"device_id,omitempty"`
	Location   *GeoPoint       `json:"location,omitempty"`
}

// MarkSynced transitions the record to synced with the server-assigned id.
func (r *OfflineRecord) MarkSynced(serverID string) {
	r.ServerID = serverID
	r.SyncStatus = SyncStatusSynced
}

// Pending reports whether the record still awaits synchronization.
func (r *OfflineRecord) Pending() bool {
	return r.SyncStatus == SyncStatusPending
}
