package realtime

import (
	"encoding/json"
	"sync"

	"ttl-cache-store/internal/cache"

	"go.uber.org/zap"
)

// Client represents a single subscriber connection.
// The actual network conn is managed in the ws handler.
type Client interface {
	// Send queues message for delivery and reports false when the client
	// cannot keep up. It must not block.
	Send(message []byte) bool
	Close()
}

// Hub fans cache events out to every subscribed client.
type Hub struct {
	mu      sync.RWMutex
	clients map[Client]string
	log     *zap.Logger
}

// NewHub returns an empty hub.
func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		clients: make(map[Client]string),
		log:     log,
	}
}

// Register adds a client subscribed by the given user.
func (h *Hub) Register(username string, client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = username
}

// Unregister removes a client. Unknown clients are ignored.
func (h *Hub) Unregister(client Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client)
}

// Len returns the number of subscribed clients.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends message to all clients and returns how many accepted it.
// Clients whose queue is full are dropped and closed.
func (h *Hub) Broadcast(message []byte) int {
	var slow []Client
	sent := 0

	h.mu.RLock()
	for c := range h.clients {
		if c.Send(message) {
			sent++
			continue
		}
		slow = append(slow, c)
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.mu.Lock()
		username := h.clients[c]
		delete(h.clients, c)
		h.mu.Unlock()
		c.Close()
		h.log.Warn("dropped slow event subscriber", zap.String("username", username))
	}
	return sent
}

// Notify implements cache.Notifier by broadcasting the event as JSON.
func (h *Hub) Notify(event cache.Event) {
	if h.Len() == 0 {
		return
	}
	message, err := json.Marshal(event)
	if err != nil {
		h.log.Error("encode cache event", zap.Error(err))
		return
	}
	h.Broadcast(message)
}

var _ cache.Notifier = (*Hub)(nil)
