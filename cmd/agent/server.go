// Localhost REST surface consumed by the device UI.
package main

import (
	"encoding/json"
	"net/http"

	"github.com/fieldsync-io/fieldsync/internal/capture"
	apperrors "github.com/fieldsync-io/fieldsync/internal/errors"
	"github.com/fieldsync-io/fieldsync/internal/logging"
	"github.com/fieldsync-io/fieldsync/internal/models"
	"github.com/fieldsync-io/fieldsync/internal/queue"
	"github.com/fieldsync-io/fieldsync/internal/scheduler"
	syncengine "github.com/fieldsync-io/fieldsync/internal/sync"
)

// Server wires the engine state and capture adapters into HTTP handlers.
type Server struct {
	engine    *syncengine.Engine
	adapter   *capture.Adapter
	queue     *queue.Manager
	scheduler *scheduler.Scheduler
	hub       *WSHub
}

// NewServer creates the localhost API server.
func NewServer(engine *syncengine.Engine, adapter *capture.Adapter, q *queue.Manager, sched *scheduler.Scheduler, hub *WSHub) *Server {
	return &Server{
		engine:    engine,
		adapter:   adapter,
		queue:     q,
		scheduler: sched,
		hub:       hub,
	}
}

// Routes registers all handlers on a new mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/sync/status", s.handleSyncStatus)
	mux.HandleFunc("/api/sync/trigger", s.handleSyncTrigger)
	mux.HandleFunc("/api/sync/retry-failed", s.handleRetryFailed)
	mux.HandleFunc("/api/capture/work-orders", s.handleCaptureWorkOrder)
	mux.HandleFunc("/api/capture/time-entries", s.handleCaptureTimeEntry)
	mux.HandleFunc("/api/capture/photos", s.handleCapturePhoto)
	mux.HandleFunc("/api/offline-data", s.handleOfflineData)
	mux.HandleFunc("/ws", HandleWebSocket(s.hub))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "fieldsync-agent",
	})
}

// handleSyncStatus reports the read-only engine state the UI polls.
func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	pending, err := s.adapter.PendingCount()
	if err != nil {
		writeError(w, err)
		return
	}

	status := map[string]interface{}{
		"is_online":       s.engine.Online(),
		"is_syncing":      s.engine.Syncing(),
		"sync_progress":   s.engine.Progress(),
		"queue_length":    s.engine.QueueLength(),
		"failed_count":    s.engine.FailedCount(),
		"pending_records": pending,
	}
	if last := s.engine.LastSync(); last != nil {
		status["last_sync"] = last.UnixMilli()
	}
	writeJSON(w, http.StatusOK, status)
}

// handleSyncTrigger starts a manual drain in the background. The drain
// runs on the scheduler's own context: the request context is canceled as
// soon as the 202 goes out and must not bound the drain.
func (s *Server) handleSyncTrigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.scheduler.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"triggered": true})
}

// handleRetryFailed resets permanently failed queue items.
func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	count, err := s.queue.RetryFailed()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"reset": count})
}

func (s *Server) handleCaptureWorkOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var wo models.WorkOrder
	if err := json.NewDecoder(r.Body).Decode(&wo); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if wo.Title == "" {
		http.Error(w, "title is required", http.StatusBadRequest)
		return
	}

	record, err := s.adapter.StoreWorkOrder(r.Context(), wo)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleCaptureTimeEntry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var te models.TimeEntry
	if err := json.NewDecoder(r.Body).Decode(&te); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if te.WorkOrderRef == "" || te.StartedAt == 0 {
		http.Error(w, "work_order_ref and started_at are required", http.StatusBadRequest)
		return
	}

	record, err := s.adapter.StoreTimeEntry(r.Context(), te)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleCapturePhoto(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var p models.Photo
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if p.FilePath == "" {
		http.Error(w, "file_path is required", http.StatusBadRequest)
		return
	}

	record, err := s.adapter.StorePhoto(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// handleOfflineData implements the destructive reset, used only after a
// confirmed full sync.
func (s *Server) handleOfflineData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.adapter.ClearOfflineData(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": true})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error("Failed to encode response", err, nil)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperrors.ErrInvalid, apperrors.ErrValidation, apperrors.ErrCaptureInvalid:
		status = http.StatusBadRequest
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
	}

	logging.ErrorWithCode("Request failed", string(code), err, nil)
	writeJSON(w, status, map[string]interface{}{
		"error": err.Error(),
		"code":  code,
	})
}
