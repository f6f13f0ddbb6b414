// Package ws implements the real-time broadcast channel: a fan-out hub
// pushing price and market-status events to connected websocket clients.
// Delivery is best-effort and at-most-once; a slow client loses messages
// rather than blocking writers.
package ws

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// sendBuffer bounds each client's outbound queue. When it fills, further
// events for that client are dropped.
const sendBuffer = 64

type client struct {
	id     uuid.UUID
	userID int // 0 for unauthenticated connections
	conn   *websocket.Conn
	send   chan []byte
}

// Hub tracks connected clients and fans events out to them.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[uuid.UUID]*client
	byUser  map[int]map[uuid.UUID]*client
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[uuid.UUID]*client),
		byUser:  make(map[int]map[uuid.UUID]*client),
	}
}

// Serve registers the connection, pushes initial events, and blocks until
// the peer disconnects. userID may be 0 for anonymous observers.
func (h *Hub) Serve(conn *websocket.Conn, userID int, initial ...Event) {
	c := &client{
		id:     uuid.New(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.clients[c.id] = c
	if userID != 0 {
		conns, ok := h.byUser[userID]
		if !ok {
			conns = make(map[uuid.UUID]*client)
			h.byUser[userID] = conns
		}
		conns[c.id] = c
	}
	h.mu.Unlock()

	for _, ev := range initial {
		if data, err := json.Marshal(ev); err == nil {
			h.enqueue(c, ev.Type, data)
		}
	}

	go c.writePump()

	// Read loop exists only to notice the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(c)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		if conns, ok := h.byUser[c.userID]; ok {
			delete(conns, c.id)
			if len(conns) == 0 {
				delete(h.byUser, c.userID)
			}
		}
		close(c.send)
	}
	h.mu.Unlock()
	c.conn.Close()
}

func (c *client) writePump() {
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// Broadcast pushes an event to every connected client. Events enqueued for
// one client keep the order Broadcast was called in; callers that need
// commit-order delivery must call Broadcast in commit order.
func (h *Hub) Broadcast(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("failed to marshal event", "type", ev.Type, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		h.enqueue(c, ev.Type, data)
	}
}

func (h *Hub) enqueue(c *client, eventType string, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("dropping event for slow client", "client", c.id, "type", eventType)
	}
}

// Lookup returns the connection ids currently registered for a user.
func (h *Hub) Lookup(userID int) []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.byUser[userID]
	if !ok {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(conns))
	for id := range conns {
		ids = append(ids, id)
	}
	return ids
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
