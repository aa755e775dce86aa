// Package gateway fans sync lifecycle events out to WebSocket clients so
// dashboards can show live sync progress without polling the status API.
package gateway

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one sync lifecycle notification pushed to clients.
type Event struct {
	Type         string    `json:"type"` // always "sync_status"
	Broker       string    `json:"broker"`
	Status       string    `json:"status"`
	TotalSymbols int       `json:"total_symbols"`
	ErrorMessage string    `json:"error_message,omitempty"`
	TS           time.Time `json:"ts"`
}

// Hub manages WebSocket clients and sync-event fan-out. It implements
// model.EventSink; a slow client loses events rather than blocking the
// sync pipeline.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string][]byte // broker → last envelope, replayed to new clients

	upgrader websocket.Upgrader
}

// NewHub creates a hub with no connected clients.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*Client]bool),
		latest:  make(map[string][]byte),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// PublishSyncEvent broadcasts one lifecycle transition to every client
// and records it as the broker's latest state for late joiners.
func (h *Hub) PublishSyncEvent(broker, status string, totalSymbols int, errMsg string) {
	envelope, err := json.Marshal(Event{
		Type:         "sync_status",
		Broker:       broker,
		Status:       status,
		TotalSymbols: totalSymbols,
		ErrorMessage: errMsg,
		TS:           time.Now().UTC(),
	})
	if err != nil {
		return
	}

	h.mu.Lock()
	h.latest[broker] = envelope
	for client := range h.clients {
		select {
		case client.send <- envelope:
		default:
			// Client buffer full; it will catch up from the status API.
		}
	}
	h.mu.Unlock()
}

// ServeWS upgrades an HTTP connection and registers the client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)

	client.sendInitialState()
	go client.writePump()
	go client.readPump()
}

// RemoveClient drops a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
