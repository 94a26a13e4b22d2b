package middleware

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// ---------------------------------------------------------------------------
// CacheConfig
// ---------------------------------------------------------------------------

// CacheConfig holds HTTP cache and ETag configuration. Dashboard responses
// depend only on the query string and the dataset, which never changes while
// the process runs, so identical requests may be served from cache.
type CacheConfig struct {
	MaxAge          int      // Cache max-age in seconds
	Private         bool     // Cache-Control: private instead of public
	VaryHeaders     []string // Headers to include in Vary
	ExcludePrefixes []string // Path prefixes to skip (exports, websocket)
}

// DefaultCacheConfig returns the cache settings used by the dashboard API.
// Listings carry patient-level rows, so responses are private.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxAge:          60,
		Private:         true,
		VaryHeaders:     []string{"Accept"},
		ExcludePrefixes: []string{"/ws", "/api/v1/encounters/export"},
	}
}

// ---------------------------------------------------------------------------
// CacheStore
// ---------------------------------------------------------------------------

// CachedResponse is a stored response body with its content type.
type CachedResponse struct {
	ContentType string
	Body        []byte
}

// CacheStore defines the interface for a response cache backend.
type CacheStore interface {
	Get(key string) (CachedResponse, bool)
	Set(key string, value CachedResponse, ttl time.Duration)
	Len() int
	Clear()
}

type cacheEntry struct {
	value     CachedResponse
	expiresAt time.Time
}

// InMemoryCacheStore is a thread-safe in-memory CacheStore with lazy expiration.
type InMemoryCacheStore struct {
	entries map[string]*cacheEntry
	mu      sync.RWMutex
}

func NewInMemoryCacheStore() *InMemoryCacheStore {
	return &InMemoryCacheStore{
		entries: make(map[string]*cacheEntry),
	}
}

// Get retrieves a value. An expired entry is deleted and reported as a miss.
func (s *InMemoryCacheStore) Get(key string) (CachedResponse, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return CachedResponse{}, false
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return CachedResponse{}, false
	}
	return entry.value, true
}

func (s *InMemoryCacheStore) Set(key string, value CachedResponse, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
}

func (s *InMemoryCacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *InMemoryCacheStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*cacheEntry)
}

// StartCleanup periodically removes expired entries until ctx is cancelled.
func (s *InMemoryCacheStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				now := time.Now()
				for k, v := range s.entries {
					if now.After(v.expiresAt) {
						delete(s.entries, k)
					}
				}
				s.mu.Unlock()
			}
		}
	}()
}

// ---------------------------------------------------------------------------
// Buffered response writer
// ---------------------------------------------------------------------------

// bufferedResponseWriter captures the response so the body can be hashed or
// stored before it is sent.
type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	buf        *bytes.Buffer
	statusCode int
}

func newBufferedResponseWriter(w http.ResponseWriter) *bufferedResponseWriter {
	return &bufferedResponseWriter{
		writer:     w,
		buf:        &bytes.Buffer{},
		statusCode: http.StatusOK,
	}
}

func (w *bufferedResponseWriter) Header() http.Header {
	return w.writer.Header()
}

func (w *bufferedResponseWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

func (w *bufferedResponseWriter) WriteHeader(code int) {
	w.statusCode = code
}

func (w *bufferedResponseWriter) Flush() {}

func (w *bufferedResponseWriter) flushTo() error {
	w.writer.WriteHeader(w.statusCode)
	if w.buf.Len() > 0 {
		_, err := w.writer.Write(w.buf.Bytes())
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// ETag
// ---------------------------------------------------------------------------

// ETag returns middleware that sets ETag, Cache-Control and Vary on
// successful GET/HEAD responses and answers a matching If-None-Match with
// 304 Not Modified.
func ETag(config CacheConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet && req.Method != http.MethodHead {
				return next(c)
			}
			if hasPrefix(req.URL.Path, config.ExcludePrefixes) {
				return next(c)
			}

			res := c.Response()
			origWriter := res.Writer
			buf := newBufferedResponseWriter(origWriter)
			res.Writer = buf

			if err := next(c); err != nil {
				res.Writer = origWriter
				return err
			}
			res.Writer = origWriter

			if buf.statusCode >= 400 {
				return buf.flushTo()
			}

			res.Header().Set("Cache-Control", buildCacheControl(config))
			if len(config.VaryHeaders) > 0 {
				res.Header().Set("Vary", strings.Join(config.VaryHeaders, ", "))
			}

			etag := computeETag(buf.buf.Bytes())
			res.Header().Set("ETag", etag)
			if inm := req.Header.Get("If-None-Match"); inm != "" && etagMatch(inm, etag) {
				origWriter.WriteHeader(http.StatusNotModified)
				return nil
			}

			return buf.flushTo()
		}
	}
}

// ---------------------------------------------------------------------------
// ResponseCache
// ---------------------------------------------------------------------------

// ResponseCache returns middleware that serves repeated GET requests for the
// same path and query from store. Only successful responses are stored.
func ResponseCache(store CacheStore, ttl time.Duration, excludePrefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet || hasPrefix(req.URL.Path, excludePrefixes) {
				return next(c)
			}

			key := cacheKey(req.URL.Path, req.URL.Query().Encode(), req.Header.Get("Accept"))
			res := c.Response()

			if cached, ok := store.Get(key); ok {
				res.Header().Set("X-Cache", "HIT")
				if cached.ContentType != "" {
					res.Header().Set(echo.HeaderContentType, cached.ContentType)
				}
				res.WriteHeader(http.StatusOK)
				_, err := res.Write(cached.Body)
				return err
			}

			origWriter := res.Writer
			buf := newBufferedResponseWriter(origWriter)
			res.Writer = buf

			if err := next(c); err != nil {
				res.Writer = origWriter
				return err
			}
			res.Writer = origWriter

			if buf.statusCode < 400 {
				body := append([]byte(nil), buf.buf.Bytes()...)
				store.Set(key, CachedResponse{
					ContentType: res.Header().Get(echo.HeaderContentType),
					Body:        body,
				}, ttl)
			}

			res.Header().Set("X-Cache", "MISS")
			return buf.flushTo()
		}
	}
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// computeETag returns a weak ETag based on the MD5 hash of the body.
func computeETag(body []byte) string {
	hash := md5.Sum(body)
	return fmt.Sprintf(`W/"%x"`, hash)
}

// cacheKey uses the normalised query so parameter order does not matter.
func cacheKey(path, query, accept string) string {
	return path + "?" + query + "|" + accept
}

func hasPrefix(path string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func buildCacheControl(config CacheConfig) string {
	scope := "public"
	if config.Private {
		scope = "private"
	}
	return fmt.Sprintf("%s, max-age=%d", scope, config.MaxAge)
}

// etagMatch reports whether an If-None-Match value matches etag. It accepts
// comma-separated lists, the "*" wildcard, and weak comparison.
func etagMatch(headerVal, etag string) bool {
	headerVal = strings.TrimSpace(headerVal)
	if headerVal == "*" {
		return true
	}
	for _, candidate := range strings.Split(headerVal, ",") {
		if stripWeakPrefix(strings.TrimSpace(candidate)) == stripWeakPrefix(etag) {
			return true
		}
	}
	return false
}

func stripWeakPrefix(etag string) string {
	return strings.TrimPrefix(etag, `W/`)
}
