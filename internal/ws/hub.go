// Package ws pushes newly logged deliveries to the owner's open websockets.
package ws

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"cryptopulse/internal/models"
)

const sendBuffer = 64

// Client represents a single WebSocket connection with user context.
type Client struct {
	UserID uint
	Send   chan []byte
	hub    *Hub
	mu     sync.Mutex
	closed bool
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	if c.hub != nil {
		c.hub.unregister(c)
	}
	close(c.Send)
}

// Event is the envelope written to the socket.
type Event struct {
	Type  string              `json:"type"`
	Entry *models.DeliveryLog `json:"entry,omitempty"`
}

const EventDeliveryLogged = "delivery_logged"

// Hub tracks clients by user; one user can have several connections.
type Hub struct {
	mu     sync.RWMutex
	byUser map[uint]map[*Client]struct{}
	log    zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		byUser: make(map[uint]map[*Client]struct{}),
		log:    log.With().Str("component", "ws_hub").Logger(),
	}
}

// Register creates and tracks a client for userID.
func (h *Hub) Register(userID uint) *Client {
	c := &Client{UserID: userID, Send: make(chan []byte, sendBuffer), hub: h}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.byUser[userID] == nil {
		h.byUser[userID] = make(map[*Client]struct{})
	}
	h.byUser[userID][c] = struct{}{}
	return c
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byUser[c.UserID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byUser, c.UserID)
		}
	}
}

// PublishDelivery sends entry to every socket of its owner. Slow clients drop
// events rather than block the dispatcher.
func (h *Hub) PublishDelivery(entry *models.DeliveryLog) {
	if entry == nil {
		return
	}
	data, err := json.Marshal(Event{Type: EventDeliveryLogged, Entry: entry})
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", entry.UserID).Msg("encode delivery event")
		return
	}
	h.BroadcastToUser(entry.UserID, data)
}

func (h *Hub) BroadcastToUser(userID uint, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byUser[userID] {
		select {
		case c.Send <- data:
		default:
			h.log.Warn().Uint("user_id", userID).Msg("ws client buffer full, event dropped")
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.byUser {
		n += len(m)
	}
	return n
}
