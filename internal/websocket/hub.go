package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message types exchanged with panel clients.
const (
	TypeShow        = "show"
	TypeBuzz        = "buzz"
	TypeButton      = "button"
	TypeFingerprint = "fingerprint"
)

// Message is one panel event. Outbound messages drive the display and the
// buzzer; inbound messages carry button presses and fingerprint scores.
type Message struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Centered bool   `json:"centered,omitempty"`
	On       bool   `json:"on,omitempty"`
	Button   string `json:"button,omitempty"`
	Score    int    `json:"score,omitempty"`
}

// ShowMessage creates a display update.
func ShowMessage(text string, centered bool) Message {
	return Message{Type: TypeShow, Text: text, Centered: centered}
}

// BuzzMessage creates a buzzer update.
func BuzzMessage(on bool) Message {
	return Message{Type: TypeBuzz, On: on}
}

// InboundHandler receives every message a client sends.
type InboundHandler func(Message)

// Hub maintains the set of active WebSocket clients and broadcasts messages.
// The latest display message is replayed to clients that connect later.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	screen  []byte
	inbound InboundHandler
	logger  *slog.Logger
}

// NewHub creates a new Hub. inbound may be nil.
func NewHub(logger *slog.Logger, inbound InboundHandler) *Hub {
	return &Hub{
		clients: make(map[*Client]struct{}),
		inbound: inbound,
		logger:  logger,
	}
}

// Register adds a client to the hub and sends it the current screen.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.screen != nil {
		select {
		case c.send <- h.screen:
		default:
		}
	}
	h.mu.Unlock()
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// Broadcast sends a message to all connected clients.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if msg.Type == TypeShow {
		h.screen = data
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			// Client buffer full, drop message to avoid blocking
		}
	}
}

// Receive decodes one inbound frame and hands it to the inbound handler.
func (h *Hub) Receive(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("decode panel message", "error", err)
		return
	}
	if h.inbound != nil {
		h.inbound(msg)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
