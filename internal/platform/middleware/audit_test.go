package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// mockRecorder collects audit entries for assertions.
type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error // if set, RecordAccess returns this error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) last() AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[len(m.entries)-1]
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func newTestContext(method, target string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestAudit_EncounterListing(t *testing.T) {
	recorder := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/api/v1/encounters?gender=Female&limit=8")
	c.Set(RequestIDKey, "req-123")
	c.Request().Header.Set("User-Agent", "test-agent")
	c.Request().Header.Set(echo.HeaderXRealIP, "10.1.2.3")

	if err := Audit(zerolog.Nop(), recorder)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if recorder.count() != 1 {
		t.Fatalf("expected 1 entry, got %d", recorder.count())
	}
	entry := recorder.last()
	if entry.Resource != "encounters" || entry.Action != "view" {
		t.Errorf("unexpected resource/action %s/%s", entry.Resource, entry.Action)
	}
	if entry.Filters != "gender=Female&limit=8" {
		t.Errorf("unexpected filters %q", entry.Filters)
	}
	if entry.RequestID != "req-123" {
		t.Errorf("expected req-123, got %q", entry.RequestID)
	}
	if entry.IPAddress != "10.1.2.3" || entry.UserAgent != "test-agent" {
		t.Errorf("unexpected client %s / %s", entry.IPAddress, entry.UserAgent)
	}
	if entry.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", entry.StatusCode)
	}
	if entry.Timestamp.IsZero() {
		t.Error("expected timestamp")
	}
}

func TestAudit_Actions(t *testing.T) {
	tests := []struct {
		path     string
		resource string
		action   string
	}{
		{"/api/v1/dashboard", "dashboard", "view"},
		{"/api/v1/encounters/export", "export", "export"},
		{"/ws", "ws", "subscribe"},
	}
	for _, tt := range tests {
		recorder := &mockRecorder{}
		c, _ := newTestContext(http.MethodGet, tt.path)
		_ = Audit(zerolog.Nop(), recorder)(okHandler)(c)

		if recorder.count() != 1 {
			t.Fatalf("%s: expected 1 entry, got %d", tt.path, recorder.count())
		}
		if e := recorder.last(); e.Resource != tt.resource || e.Action != tt.action {
			t.Errorf("%s: got %s/%s, want %s/%s", tt.path, e.Resource, e.Action, tt.resource, tt.action)
		}
	}
}

func TestAudit_SkipsAggregateRoutes(t *testing.T) {
	for _, path := range []string{"/health", "/api/v1/filters", "/api/v1/figures", "/"} {
		recorder := &mockRecorder{}
		c, _ := newTestContext(http.MethodGet, path)
		_ = Audit(zerolog.Nop(), recorder)(okHandler)(c)
		if recorder.count() != 0 {
			t.Errorf("%s: expected no audit entry", path)
		}
	}
}

func TestAudit_RecordsHTTPErrorStatus(t *testing.T) {
	recorder := &mockRecorder{}
	c, _ := newTestContext(http.MethodGet, "/api/v1/dashboard?stay_min=x")

	err := Audit(zerolog.Nop(), recorder)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid stay_min")
	})(c)
	if err == nil {
		t.Fatal("expected handler error to propagate")
	}
	if recorder.last().StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 recorded, got %d", recorder.last().StatusCode)
	}
}

func TestAudit_RecorderError_DoesNotBreakRequest(t *testing.T) {
	recorder := &mockRecorder{err: errors.New("disk full")}
	c, rec := newTestContext(http.MethodGet, "/api/v1/encounters")

	if err := Audit(zerolog.Nop(), recorder)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAudit_NoRecorder_LogOnly(t *testing.T) {
	c, rec := newTestContext(http.MethodGet, "/api/v1/encounters")
	if err := Audit(zerolog.Nop())(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuditRecorderFunc(t *testing.T) {
	var got AuditEntry
	fn := AuditRecorderFunc(func(e AuditEntry) error {
		got = e
		return nil
	})
	if err := fn.RecordAccess(AuditEntry{Resource: "export"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Resource != "export" {
		t.Errorf("expected export, got %q", got.Resource)
	}
}
