package models

// Entity payloads captured by the field technician. These are opaque to the
// queue; they are typed here for the capture adapters and the local API.

// WorkOrder is a job assigned to a technician.
type WorkOrder struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	CustomerID  string `json:"customer_id,omitempty"`
	Status      string `json:"status,omitempty"`
	ScheduledAt int64  `json:"scheduled_at,omitempty"`
}

// TimeEntry records time worked against a work order. WorkOrderRef holds
// the local id of the work order while offline; the server resolves it once
// the parent has synced.
type TimeEntry struct {
	WorkOrderRef    string `json:"work_order_ref"`
	StartedAt       int64  `json:"started_at"`
	EndedAt         int64  `json:"ended_at,omitempty"`
	DurationMinutes int    `json:"duration_minutes,omitempty"`
	Notes           string `json:"notes,omitempty"`
}

// Photo references a captured image on device disk. ObjectKey is filled by
// the sync handler after the binary is uploaded to the object store.
type Photo struct {
	WorkOrderRef string `json:"work_order_ref"`
	FilePath     string `json:"file_path"`
	ContentType  string `json:"content_type,omitempty"`
	Caption      string `json:"caption,omitempty"`
	TakenAt      int64  `json:"taken_at,omitempty"`
	ObjectKey    string `json:"object_key,omitempty"`
}
