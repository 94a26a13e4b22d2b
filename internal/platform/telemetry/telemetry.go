// Package telemetry collects request and recompute metrics and exposes them
// in the Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// Config holds telemetry configuration.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	MetricsEnabled *bool // nil = use default (true)
}

func (c *Config) metricsOn() bool {
	if c.MetricsEnabled == nil {
		return true
	}
	return *c.MetricsEnabled
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "readmission-dashboard"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// BoolPtr is a helper to create a *bool for Config fields.
func BoolPtr(b bool) *bool {
	return &b
}

// ---------------------------------------------------------------------------
// Histogram
// ---------------------------------------------------------------------------

// histogram stores non-cumulative bucket counts; cumulative counts are
// computed at export time.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits, updated with CAS
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

// Observe records a single value.
func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	var running int64
	for i, c := range raw {
		running += c
		raw[i] = running
	}
	return raw
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64frombits(old) + delta
		if atomic.CompareAndSwapUint64(addr, old, math.Float64bits(next)) {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Counter and gauge stores
// ---------------------------------------------------------------------------

// int64Store is a map of atomically updated values, used for both counters
// and gauges.
type int64Store struct {
	mu    sync.RWMutex
	items map[string]*int64
}

func newInt64Store() *int64Store {
	return &int64Store{items: make(map[string]*int64)}
}

func (s *int64Store) ptr(key string) *int64 {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if ok {
		return p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok = s.items[key]; !ok {
		p = new(int64)
		s.items[key] = p
	}
	return p
}

func (s *int64Store) add(key string, delta int64) { atomic.AddInt64(s.ptr(key), delta) }
func (s *int64Store) set(key string, val int64)   { atomic.StoreInt64(s.ptr(key), val) }

func (s *int64Store) get(key string) int64 {
	s.mu.RLock()
	p, ok := s.items[key]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return atomic.LoadInt64(p)
}

// ---------------------------------------------------------------------------
// Provider
// ---------------------------------------------------------------------------

// Metric names.
const (
	MetricRequestDuration   = "http_server_request_duration_seconds"
	MetricActiveRequests    = "http_server_active_requests"
	MetricRecomputeDuration = "dashboard_recompute_duration_seconds"
	MetricRecomputeTotal    = "dashboard_recompute_total"
	MetricEmptyViewTotal    = "dashboard_empty_view_total"
	MetricDatasetRecords    = "dataset_records"
)

// requestDurationBuckets are in seconds.
var requestDurationBuckets = []float64{
	0.005, 0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5,
}

// recomputeDurationBuckets are in seconds; a full pass over a large export
// takes tens of milliseconds.
var recomputeDurationBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.010, 0.025, 0.050, 0.100, 0.250,
}

// Provider manages all metric state. It is safe for concurrent use.
type Provider struct {
	cfg Config

	requests  map[string]*histogram // keyed by LabelsKey
	reqMu     sync.RWMutex
	recompute *histogram

	counters *int64Store
	gauges   *int64Store
}

// NewProvider creates a metrics provider.
func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	return &Provider{
		cfg:       cfg,
		requests:  make(map[string]*histogram),
		recompute: newHistogram(recomputeDurationBuckets),
		counters:  newInt64Store(),
		gauges:    newInt64Store(),
	}
}

// Resource returns the service identity attached to every scrape.
func (p *Provider) Resource() map[string]string {
	return map[string]string{
		"service_name":    p.cfg.ServiceName,
		"service_version": p.cfg.ServiceVersion,
		"environment":     p.cfg.Environment,
	}
}

// LabelsKey builds the key of a labelled request histogram.
func LabelsKey(method, route, statusCode string) string {
	return method + "|" + route + "|" + statusCode
}

func (p *Provider) requestHistogram(key string) *histogram {
	p.reqMu.RLock()
	h, ok := p.requests[key]
	p.reqMu.RUnlock()
	if ok {
		return h
	}
	p.reqMu.Lock()
	defer p.reqMu.Unlock()
	if h, ok = p.requests[key]; !ok {
		h = newHistogram(requestDurationBuckets)
		p.requests[key] = h
	}
	return h
}

// RequestCount returns the number of requests recorded under key.
func (p *Provider) RequestCount(key string) int64 {
	p.reqMu.RLock()
	defer p.reqMu.RUnlock()
	if h, ok := p.requests[key]; ok {
		return h.Count()
	}
	return 0
}

// ObserveRecompute records one dashboard recompute.
func (p *Provider) ObserveRecompute(elapsed time.Duration, matched, total int) {
	if !p.cfg.metricsOn() {
		return
	}
	p.recompute.Observe(elapsed.Seconds())
	p.counters.add(MetricRecomputeTotal, 1)
	if matched == 0 {
		p.counters.add(MetricEmptyViewTotal, 1)
	}
	p.gauges.set(MetricDatasetRecords, int64(total))
}

// SetDatasetRecords records the size of the loaded dataset.
func (p *Provider) SetDatasetRecords(n int) {
	p.gauges.set(MetricDatasetRecords, int64(n))
}

// Counter returns the current value of a counter.
func (p *Provider) Counter(name string) int64 {
	return p.counters.get(name)
}

// Gauge returns the current value of a gauge.
func (p *Provider) Gauge(name string) int64 {
	return p.gauges.get(name)
}

// ---------------------------------------------------------------------------
// Middleware and exposition
// ---------------------------------------------------------------------------

// MetricsMiddleware records request durations labelled by method, route
// pattern and status code, and tracks in-flight requests.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !p.cfg.metricsOn() {
				return next(c)
			}

			p.gauges.add(MetricActiveRequests, 1)
			start := time.Now()

			err := next(c)

			p.gauges.add(MetricActiveRequests, -1)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = c.Request().URL.Path
			}
			key := LabelsKey(c.Request().Method, route, fmt.Sprintf("%d", status))
			p.requestHistogram(key).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// PrometheusHandler serves every metric in text exposition format.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		fmt.Fprintf(&b, "# HELP service_info Service identity.\n# TYPE service_info gauge\n")
		fmt.Fprintf(&b, "service_info{service_name=%q,service_version=%q,environment=%q} 1\n\n",
			p.cfg.ServiceName, p.cfg.ServiceVersion, p.cfg.Environment)

		writeHeader(&b, MetricRequestDuration, "Duration of HTTP requests in seconds.", "histogram")
		p.reqMu.RLock()
		keys := make([]string, 0, len(p.requests))
		for k := range p.requests {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts := strings.SplitN(k, "|", 3)
			if len(parts) != 3 {
				continue
			}
			labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
			writeHistogram(&b, MetricRequestDuration, labels, p.requests[k])
		}
		p.reqMu.RUnlock()
		b.WriteByte('\n')

		writeHeader(&b, MetricRecomputeDuration, "Duration of dashboard recomputes in seconds.", "histogram")
		writeHistogram(&b, MetricRecomputeDuration, "", p.recompute)
		b.WriteByte('\n')

		writeScalar(&b, MetricRecomputeTotal, "Dashboard recomputes.", "counter", p.counters.get(MetricRecomputeTotal))
		writeScalar(&b, MetricEmptyViewTotal, "Recomputes whose filters matched no encounters.", "counter", p.counters.get(MetricEmptyViewTotal))
		writeScalar(&b, MetricActiveRequests, "Number of active HTTP requests.", "gauge", p.gauges.get(MetricActiveRequests))
		writeScalar(&b, MetricDatasetRecords, "Encounters in the loaded dataset.", "gauge", p.gauges.get(MetricDatasetRecords))

		return c.String(http.StatusOK, b.String())
	}
}

func writeHeader(b *strings.Builder, name, help, typ string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
}

func writeScalar(b *strings.Builder, name, help, typ string, v int64) {
	writeHeader(b, name, help, typ)
	fmt.Fprintf(b, "%s %d\n\n", name, v)
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	total := h.Count()

	prefix, suffix := "", ""
	if labels != "" {
		prefix = labels + ","
		suffix = "{" + labels + "}"
	}
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, total)
	fmt.Fprintf(b, "%s_sum%s %g\n", name, suffix, h.Sum())
	fmt.Fprintf(b, "%s_count%s %d\n", name, suffix, total)
}
