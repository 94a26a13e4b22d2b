package live

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/readmission/dashboard/internal/domain/readmission"
	"github.com/readmission/dashboard/pkg/pagination"
)

// ClientMessage is an inbound message.
//
//	{"action":"filter","criteria":{"age":"[40-50)","stay":{"min":1,"max":5}},"page":1}
//	{"action":"options"}
type ClientMessage struct {
	Action   string                     `json:"action"`
	Criteria readmission.FilterCriteria `json:"criteria"`
	Columns  []readmission.Column       `json:"columns,omitempty"`
	Page     int                        `json:"page,omitempty"`
}

// DashboardPage is a dashboard whose listing holds a single page of rows.
type DashboardPage struct {
	*readmission.Dashboard
	Page  int `json:"page"`
	Pages int `json:"pages"`
}

var upgrader = gorillawebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades HTTP connections and runs filter sessions.
type Handler struct {
	hub      *Hub
	svc      *readmission.Service
	pageSize int
	logger   zerolog.Logger
}

func NewHandler(hub *Hub, svc *readmission.Service, pageSize int, logger zerolog.Logger) *Handler {
	return &Handler{hub: hub, svc: svc, pageSize: pageSize, logger: logger}
}

// RegisterRoutes registers the WebSocket endpoint on the provided Echo group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", h.HandleConnect)
}

// HandleConnect upgrades the connection, registers a session and starts its
// read and write pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	s := NewSession(uuid.New().String(), ws)
	h.hub.Register(s)
	h.logger.Debug().Str("session_id", s.ID).Int("sessions", h.hub.SessionCount()).Msg("live session opened")

	go h.writePump(s)
	go h.readPump(s)
	return nil
}

// Process handles one inbound frame and returns the reply.
func (h *Handler) Process(s *Session, raw []byte) ServerMessage {
	reply := ServerMessage{SessionID: s.ID, Timestamp: time.Now().UTC()}

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		reply.Type = TypeError
		reply.Error = fmt.Sprintf("malformed message: %v", err)
		return reply
	}

	switch msg.Action {
	case "filter":
		page, err := h.dashboard(msg)
		if err != nil {
			reply.Type = TypeError
			reply.Error = err.Error()
			return reply
		}
		reply.Type = TypeDashboard
		reply.Data = page
	case "options":
		reply.Type = TypeOptions
		reply.Data = h.svc.Options()
	default:
		reply.Type = TypeError
		reply.Error = fmt.Sprintf("unknown action %q", msg.Action)
	}
	return reply
}

func (h *Handler) dashboard(msg ClientMessage) (DashboardPage, error) {
	cols := msg.Columns
	if len(cols) == 0 {
		cols = readmission.DefaultColumns
	}
	d, err := h.svc.DashboardWithColumns(msg.Criteria, cols)
	if err != nil {
		return DashboardPage{}, err
	}

	p := pagination.ForPage(msg.Page, h.pageSize)
	total := len(d.Listing.Rows)
	d.Listing.Rows = pagination.Slice(d.Listing.Rows, p)
	return DashboardPage{Dashboard: d, Page: p.Page(), Pages: p.Pages(total)}, nil
}

func (h *Handler) readPump(s *Session) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error().Interface("panic", r).Str("session_id", s.ID).Msg("live: panic while handling message")
		}
		h.hub.Unregister(s)
		s.conn.Close()
		h.logger.Debug().Str("session_id", s.ID).Msg("live session closed")
	}()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		data, err := json.Marshal(h.Process(s, raw))
		if err != nil {
			h.logger.Error().Err(err).Str("session_id", s.ID).Msg("live: failed to marshal reply")
			continue
		}
		h.hub.Deliver(s, data)
	}
}

func (h *Handler) writePump(s *Session) {
	defer s.conn.Close()

	for message := range s.Send {
		if err := s.conn.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			return
		}
	}
}
