package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds rate limiting configuration. Limits apply per client IP.
type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
	ExemptPaths       []string           // exact paths that are never limited
	RouteCosts        map[string]float64 // tokens per request by route pattern, default 1
	IdleTTL           time.Duration      // buckets unused this long are evicted
}

// DefaultRateLimitConfig returns default rate limiting settings. An export
// serialises every matching encounter, so it costs more than a dashboard.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		BurstSize:         200,
		ExemptPaths:       []string{"/health"},
		RouteCosts: map[string]float64{
			"/api/v1/encounters/export": 10,
		},
		IdleTTL: 10 * time.Minute,
	}
}

func (cfg RateLimitConfig) cost(route string) float64 {
	if c, ok := cfg.RouteCosts[route]; ok && c > 0 {
		return c
	}
	return 1
}

// clientBucket is a token bucket for one client.
type clientBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	rate       float64 // tokens per second
	lastRefill time.Time
}

func newClientBucket(rate float64, burst int, now time.Time) *clientBucket {
	return &clientBucket{
		tokens:     float64(burst),
		capacity:   float64(burst),
		rate:       rate,
		lastRefill: now,
	}
}

func (b *clientBucket) refill(now time.Time) {
	b.tokens = math.Min(b.capacity, b.tokens+now.Sub(b.lastRefill).Seconds()*b.rate)
	b.lastRefill = now
}

// take spends cost tokens if available. It returns whether the request is
// allowed, the whole tokens left, and the seconds until cost tokens would be
// available when it is not.
func (b *clientBucket) take(cost float64, now time.Time) (bool, int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	if b.tokens >= cost {
		b.tokens -= cost
		return true, int(b.tokens), 0
	}
	if b.rate <= 0 {
		return false, int(b.tokens), 1
	}
	return false, int(b.tokens), int(math.Ceil((cost - b.tokens) / b.rate))
}

func (b *clientBucket) idleSince() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastRefill
}

// RateLimiter tracks one token bucket per client IP.
type RateLimiter struct {
	cfg     RateLimitConfig
	exempt  map[string]struct{}
	limit   string
	mu      sync.RWMutex
	buckets map[string]*clientBucket
	now     func() time.Time
}

// NewRateLimiter creates a limiter. Call StartCleanup to evict idle clients.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	exempt := make(map[string]struct{}, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		exempt[p] = struct{}{}
	}
	return &RateLimiter{
		cfg:     cfg,
		exempt:  exempt,
		limit:   strconv.FormatFloat(cfg.RequestsPerSecond, 'f', 0, 64),
		buckets: make(map[string]*clientBucket),
		now:     time.Now,
	}
}

func (l *RateLimiter) bucket(ip string) *clientBucket {
	l.mu.RLock()
	b, ok := l.buckets[ip]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[ip]; !ok {
		b = newClientBucket(l.cfg.RequestsPerSecond, l.cfg.BurstSize, l.now())
		l.buckets[ip] = b
	}
	return b
}

// Clients returns the number of tracked clients.
func (l *RateLimiter) Clients() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}

// Sweep evicts clients idle for longer than IdleTTL.
func (l *RateLimiter) Sweep() {
	if l.cfg.IdleTTL <= 0 {
		return
	}
	cutoff := l.now().Add(-l.cfg.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, b := range l.buckets {
		if b.idleSince().Before(cutoff) {
			delete(l.buckets, ip)
		}
	}
}

// StartCleanup sweeps idle clients every interval until ctx is cancelled.
func (l *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.Sweep()
			}
		}
	}()
}

// Middleware rejects requests with 429 once a client's bucket is empty.
func (l *RateLimiter) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := l.exempt[c.Request().URL.Path]; ok {
				return next(c)
			}

			allowed, remaining, retry := l.bucket(c.RealIP()).take(l.cfg.cost(c.Path()), l.now())
			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", l.limit)
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !allowed {
				h.Set("Retry-After", strconv.Itoa(retry))
				return echo.NewHTTPError(http.StatusTooManyRequests, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

// RateLimit returns per-client-IP rate limiting middleware without idle
// eviction.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	return NewRateLimiter(cfg).Middleware()
}
