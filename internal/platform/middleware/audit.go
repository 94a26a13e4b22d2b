package middleware

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// AuditEntry records one access to encounter-level data.
type AuditEntry struct {
	RequestID  string
	Resource   string // dashboard, encounters, export, ws
	Action     string // view, export, subscribe
	Filters    string // raw query string
	IPAddress  string
	UserAgent  string
	Path       string
	Method     string
	StatusCode int
	Timestamp  time.Time
}

// AuditRecorder persists audit entries. Tests provide their own.
type AuditRecorder interface {
	RecordAccess(entry AuditEntry) error
}

// AuditRecorderFunc is a function adapter for AuditRecorder.
type AuditRecorderFunc func(entry AuditEntry) error

func (f AuditRecorderFunc) RecordAccess(entry AuditEntry) error {
	return f(entry)
}

// auditedResources are the routes that return per-encounter rows.
var auditedResources = map[string]string{
	"/api/v1/dashboard":         "dashboard",
	"/api/v1/encounters":        "encounters",
	"/api/v1/encounters/export": "export",
	"/ws":                       "ws",
}

// Audit logs every request that returns patient-level rows, with the filters
// that selected them. Without a recorder it only emits the structured log.
func Audit(logger zerolog.Logger, recorders ...AuditRecorder) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			resource, ok := auditedResources[strings.TrimSuffix(req.URL.Path, "/")]
			if !ok {
				return next(c)
			}

			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			entry := AuditEntry{
				RequestID:  requestID(c),
				Resource:   resource,
				Action:     auditAction(resource),
				Filters:    req.URL.RawQuery,
				IPAddress:  c.RealIP(),
				UserAgent:  req.UserAgent(),
				Path:       req.URL.Path,
				Method:     req.Method,
				StatusCode: status,
				Timestamp:  time.Now().UTC(),
			}

			for _, r := range recorders {
				if r == nil {
					continue
				}
				if recErr := r.RecordAccess(entry); recErr != nil {
					logger.Error().Err(recErr).
						Str("request_id", entry.RequestID).
						Msg("failed to record audit entry")
				}
			}

			logger.Info().
				Str("type", "data_access").
				Str("request_id", entry.RequestID).
				Str("resource", entry.Resource).
				Str("action", entry.Action).
				Str("filters", entry.Filters).
				Str("method", entry.Method).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("encounter_access")

			return err
		}
	}
}

func auditAction(resource string) string {
	switch resource {
	case "export":
		return "export"
	case "ws":
		return "subscribe"
	default:
		return "view"
	}
}

