package live

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/readmission/dashboard/internal/domain/readmission"
)

const testCSV = `encounter_id,age,gender,admission_type_id,insulin,race,time_in_hospital,num_medications,number_diagnoses,readmitted
1,[40-50),Female,1,No,Caucasian,3,12,5,NO
2,[40-50),Male,2,Up,Asian,2,8,5,<30
3,[60-70),Female,1,Steady,Caucasian,6,20,9,>30
4,[60-70),Male,10,No,Caucasian,4,15,9,NO
`

func newTestHandler(t *testing.T) (*Handler, *Hub) {
	t.Helper()
	ds, err := readmission.Load(strings.NewReader(testCSV), readmission.DefaultSchema())
	require.NoError(t, err)
	hub := NewHub(zerolog.Nop())
	return NewHandler(hub, readmission.NewService(ds, zerolog.Nop()), 2, zerolog.Nop()), hub
}

// fakeConn feeds queued frames to ReadMessage and records writes.
type fakeConn struct {
	mu      sync.Mutex
	inbound chan []byte
	written [][]byte
	closed  bool
}

func newFakeConn(frames ...string) *fakeConn {
	c := &fakeConn{inbound: make(chan []byte, len(frames))}
	for _, f := range frames {
		c.inbound <- []byte(f)
	}
	close(c.inbound)
	return c
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	msg, ok := <-c.inbound
	if !ok {
		return 0, nil, errors.New("closed")
	}
	return gorillawebsocket.TextMessage, msg, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	s := NewSession("s-1", newFakeConn())

	hub.Register(s)
	assert.Equal(t, 1, hub.SessionCount())

	hub.Unregister(s)
	hub.Unregister(s)
	assert.Equal(t, 0, hub.SessionCount())

	_, open := <-s.Send
	assert.False(t, open)
	assert.False(t, hub.Deliver(s, []byte("x")))
}

func TestHub_DeliverDropsWhenFull(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	s := NewSession("s-1", newFakeConn())
	hub.Register(s)

	for i := 0; i < cap(s.Send); i++ {
		require.True(t, hub.Deliver(s, []byte("x")))
	}
	assert.False(t, hub.Deliver(s, []byte("overflow")))
}

func TestHub_CloseAll(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a := NewSession("a", newFakeConn())
	b := NewSession("b", newFakeConn())
	hub.Register(a)
	hub.Register(b)

	hub.CloseAll()
	assert.Equal(t, 0, hub.SessionCount())

	for _, s := range []*Session{a, b} {
		msg, ok := <-s.Send
		require.True(t, ok)
		var m ServerMessage
		require.NoError(t, json.Unmarshal(msg, &m))
		assert.Equal(t, TypeClosing, m.Type)

		_, ok = <-s.Send
		assert.False(t, ok)
	}
}

func TestHandler_Process(t *testing.T) {
	h, _ := newTestHandler(t)
	s := NewSession("s-1", newFakeConn())

	t.Run("filter returns the recomputed dashboard", func(t *testing.T) {
		reply := h.Process(s, []byte(`{"action":"filter","criteria":{"gender":"Male"}}`))
		require.Equal(t, TypeDashboard, reply.Type)

		page := reply.Data.(DashboardPage)
		assert.Equal(t, 2, page.Matched)
		assert.Equal(t, 50.0, page.KPIs.ReadmissionRate.Value)
		assert.Equal(t, "s-1", reply.SessionID)
	})

	t.Run("listing is paged", func(t *testing.T) {
		reply := h.Process(s, []byte(`{"action":"filter","criteria":{},"page":2}`))
		page := reply.Data.(DashboardPage)
		assert.Equal(t, 2, page.Page)
		assert.Equal(t, 2, page.Pages)
		require.Len(t, page.Listing.Rows, 2)
		assert.Equal(t, "3", page.Listing.Rows[0]["encounter_id"])
	})

	t.Run("stay range in criteria", func(t *testing.T) {
		reply := h.Process(s, []byte(`{"action":"filter","criteria":{"stay":{"min":4,"max":3}}}`))
		page := reply.Data.(DashboardPage)
		assert.Equal(t, 2, page.Matched)
	})

	t.Run("huge page yields an empty last page", func(t *testing.T) {
		var reply ServerMessage
		require.NotPanics(t, func() {
			reply = h.Process(s, []byte(`{"action":"filter","criteria":{},"page":9223372036854775807}`))
		})
		require.Equal(t, TypeDashboard, reply.Type)
		page := reply.Data.(DashboardPage)
		assert.Empty(t, page.Listing.Rows)
		assert.Equal(t, 4, page.Matched)
		assert.Equal(t, 2, page.Pages)
	})

	t.Run("options", func(t *testing.T) {
		reply := h.Process(s, []byte(`{"action":"options"}`))
		require.Equal(t, TypeOptions, reply.Type)
		assert.Equal(t, 4, reply.Data.(readmission.FilterOptions).Records)
	})

	t.Run("malformed and unknown messages give errors", func(t *testing.T) {
		assert.Equal(t, TypeError, h.Process(s, []byte(`{not json`)).Type)
		assert.Equal(t, TypeError, h.Process(s, []byte(`{"action":"dance"}`)).Type)

		reply := h.Process(s, []byte(`{"action":"filter","columns":["ssn"]}`))
		assert.Equal(t, TypeError, reply.Type)
		assert.Contains(t, reply.Error, "unknown column")
	})
}

func TestHandler_Pumps(t *testing.T) {
	h, hub := newTestHandler(t)
	conn := newFakeConn(`{"action":"filter","criteria":{"age":"[60-70)"}}`, `garbage`)
	s := NewSession("pump", conn)
	hub.Register(s)

	done := make(chan struct{})
	go func() {
		h.writePump(s)
		close(done)
	}()
	h.readPump(s)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not stop after the session closed")
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.written, 2)
	assert.Contains(t, string(conn.written[0]), `"type":"dashboard"`)
	assert.Contains(t, string(conn.written[1]), `"type":"error"`)
	assert.True(t, conn.closed)
	assert.Equal(t, 0, hub.SessionCount())
}

func TestHandler_PumpsSurviveHugePage(t *testing.T) {
	h, hub := newTestHandler(t)
	conn := newFakeConn(`{"action":"filter","page":9223372036854775807}`, `{"action":"options"}`)
	s := NewSession("huge-page", conn)
	hub.Register(s)

	done := make(chan struct{})
	go func() {
		h.writePump(s)
		close(done)
	}()
	require.NotPanics(t, func() { h.readPump(s) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not stop after the session closed")
	}

	conn.mu.Lock()
	defer conn.mu.Unlock()
	require.Len(t, conn.written, 2)
	assert.Contains(t, string(conn.written[0]), `"type":"dashboard"`)
	assert.Contains(t, string(conn.written[1]), `"type":"options"`)
}

func TestHandler_WebSocketRoundTrip(t *testing.T) {
	h, hub := newTestHandler(t)
	e := echo.New()
	h.RegisterRoutes(e.Group(""))

	srv := httptest.NewServer(e)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := gorillawebsocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(gorillawebsocket.TextMessage,
		[]byte(`{"action":"filter","criteria":{"admission_type":"1"}}`)))

	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := ws.ReadMessage()
	require.NoError(t, err)

	var reply struct {
		Type string `json:"type"`
		Data struct {
			Matched int `json:"matched"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &reply))
	assert.Equal(t, TypeDashboard, reply.Type)
	assert.Equal(t, 2, reply.Data.Matched)
	assert.Equal(t, 1, hub.SessionCount())
}
