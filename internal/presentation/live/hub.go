// Package live serves dashboards over WebSockets. Every connection is an
// independent filter session: the client sends criteria and receives the
// recomputed dashboard.
package live

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Message types sent to clients.
const (
	TypeDashboard = "dashboard"
	TypeOptions   = "options"
	TypeError     = "error"
	TypeClosing   = "closing"
)

// ServerMessage is an outbound message.
type ServerMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Session is one connected client. Its criteria belong to it alone.
type Session struct {
	ID   string
	Send chan []byte
	conn Conn
}

// NewSession creates a session with a buffered outbound queue.
func NewSession(id string, conn Conn) *Session {
	return &Session{ID: id, Send: make(chan []byte, 16), conn: conn}
}

// Hub tracks connected sessions. All operations are thread-safe via
// sync.RWMutex.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	logger   zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		sessions: make(map[*Session]struct{}),
		logger:   logger,
	}
}

// Register adds a session to the hub.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
}

// Unregister removes a session and closes its Send channel. Unregistering
// twice is a no-op.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	close(s.Send)
}

// SessionCount returns the number of connected sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Deliver queues data for s. A full queue drops the message rather than
// block the reader.
func (h *Hub) Deliver(s *Session, data []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.sessions[s]; !ok {
		return false
	}
	select {
	case s.Send <- data:
		return true
	default:
		h.logger.Warn().Str("session_id", s.ID).Msg("live session queue full, dropping message")
		return false
	}
}

// CloseAll tells every session the server is going away and unregisters it.
func (h *Hub) CloseAll() {
	data, err := json.Marshal(ServerMessage{Type: TypeClosing, Timestamp: time.Now().UTC()})
	if err != nil {
		h.logger.Error().Err(err).Msg("live: failed to marshal closing message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.sessions {
		select {
		case s.Send <- data:
		default:
		}
		delete(h.sessions, s)
		close(s.Send)
	}
}
