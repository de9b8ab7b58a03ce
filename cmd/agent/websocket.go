// WebSocket status surface for the device UI (localhost only).
package main

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fieldsync-io/fieldsync/internal/logging"
	"github.com/fieldsync-io/fieldsync/internal/models"
	syncengine "github.com/fieldsync-io/fieldsync/internal/sync"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The agent serves the on-device UI only.
		return strings.HasPrefix(r.Host, "localhost") || strings.HasPrefix(r.Host, "127.0.0.1")
	},
}

// Event types pushed to the UI.
const (
	EventSyncStarted         = "sync.started"
	EventSyncProgress        = "sync.progress"
	EventSyncFailed          = "sync.failed"
	EventSyncCompleted       = "sync.completed"
	EventConnectivityChanged = "connectivity.changed"
)

// WSEnvelope wraps all WebSocket messages.
type WSEnvelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

// WSClient represents one connected UI client.
type WSClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *WSHub
}

// WSHub maintains active client connections and broadcasts engine events.
// It implements the engine's Notifier interface.
type WSHub struct {
	clients    map[string]*WSClient
	broadcast  chan []byte
	register   chan *WSClient
	unregister chan *WSClient
	mu         sync.RWMutex
}

// NewWSHub creates a hub and starts its dispatch loop.
func NewWSHub() *WSHub {
	hub := &WSHub{
		clients:    make(map[string]*WSClient),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *WSClient),
		unregister: make(chan *WSClient),
	}
	go hub.run()
	return hub
}

func (h *WSHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.id] = client
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Send buffer full; drop the client.
					close(client.send)
					delete(h.clients, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an event envelope to every connected client.
func (h *WSHub) Broadcast(eventType string, data map[string]interface{}) {
	envelope := WSEnvelope{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		logging.Error("Failed to marshal event", err, logging.Fields{"type": eventType})
		return
	}
	h.broadcast <- raw
}

// SyncStarted implements sync.Notifier.
func (h *WSHub) SyncStarted(total int) {
	h.Broadcast(EventSyncStarted, map[string]interface{}{"total": total})
}

// SyncProgress implements sync.Notifier.
func (h *WSHub) SyncProgress(percent, processed, total int) {
	h.Broadcast(EventSyncProgress, map[string]interface{}{
		"percent":   percent,
		"processed": processed,
		"total":     total,
	})
}

// SyncFailed implements sync.Notifier.
func (h *WSHub) SyncFailed(item models.SyncQueueItem, cause error) {
	h.Broadcast(EventSyncFailed, map[string]interface{}{
		"id":          item.ID,
		"entity_type": item.EntityType,
		"action":      item.Action,
		"attempts":    item.Attempts + 1,
		"error":       cause.Error(),
	})
}

// SyncCompleted implements sync.Notifier.
func (h *WSHub) SyncCompleted(result syncengine.Result, duration time.Duration) {
	h.Broadcast(EventSyncCompleted, map[string]interface{}{
		"processed":   result.Processed,
		"remaining":   result.Remaining,
		"duration_ms": duration.Milliseconds(),
	})
}

// ConnectivityChanged pushes connectivity transitions to the UI.
func (h *WSHub) ConnectivityChanged(online bool) {
	h.Broadcast(EventConnectivityChanged, map[string]interface{}{"online": online})
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("WebSocket read error", logging.Fields{"error": err.Error()})
			}
			return
		}
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HandleWebSocket upgrades a connection and registers it with the hub.
func HandleWebSocket(hub *WSHub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Error("WebSocket upgrade failed", err, nil)
			return
		}

		client := &WSClient{
			id:   time.Now().Format("20060102150405.000000000") + "-" + r.RemoteAddr,
			conn: conn,
			send: make(chan []byte, 256),
			hub:  hub,
		}
		hub.register <- client

		go client.writePump()
		go client.readPump()
	}
}
