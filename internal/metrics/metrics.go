// Package metrics exposes Prometheus metrics for the login gate, the
// document cache and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"mom-admin-api/internal/cache"
	"mom-admin-api/internal/gate"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "mom_admin"

// Login outcomes recorded by RecordLogin.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeLocked   = "locked"
	OutcomeInactive = "inactive"
	OutcomeError    = "error"
)

// Metrics holds all Prometheus metrics of the server.
type Metrics struct {
	registry *prometheus.Registry

	LoginAttempts       *prometheus.CounterVec
	GateEvents          *prometheus.CounterVec
	GateLocked          prometheus.Gauge
	GateRemaining       prometheus.Gauge
	HTTPRequestDuration *prometheus.HistogramVec
}

// New registers the metrics on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		LoginAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		GateEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_gate_events_total",
			Help:      "Login gate state changes by event",
		}, []string{"event"}),
		GateLocked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "login_gate_locked",
			Help:      "1 while the login gate is locked",
		}),
		GateRemaining: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "login_gate_remaining_attempts",
			Help:      "Failed logins left before the gate locks",
		}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
	}
}

// ObserveGate matches gate.Options.OnChange.
func (m *Metrics) ObserveGate(event string, s gate.State) {
	m.GateEvents.WithLabelValues(event).Inc()
	m.SetGateState(s)
}

// SetGateState copies a gate snapshot into the gauges.
func (m *Metrics) SetGateState(s gate.State) {
	locked := 0.0
	if s.Locked {
		locked = 1
	}
	m.GateLocked.Set(locked)
	m.GateRemaining.Set(float64(s.Remaining()))
}

// RecordLogin counts one login attempt.
func (m *Metrics) RecordLogin(outcome string) {
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// RegisterCache exports the statistics of a cache under the given name.
// Values are read at scrape time.
func (m *Metrics) RegisterCache(name string, stats func() cache.Stats) {
	labels := prometheus.Labels{"cache": name}
	gauge := func(metric, help string, value func(cache.Stats) float64) {
		promauto.With(m.registry).NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return value(stats()) })
	}
	counter := func(metric, help string, value func(cache.Stats) uint64) {
		promauto.With(m.registry).NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(value(stats())) })
	}

	gauge("cache_entries", "Entries currently held", func(s cache.Stats) float64 { return float64(s.Size) })
	gauge("cache_capacity", "Maximum number of entries", func(s cache.Stats) float64 { return float64(s.MaxSize) })
	counter("cache_hits_total", "Cache hits", func(s cache.Stats) uint64 { return s.Hits })
	counter("cache_misses_total", "Cache misses", func(s cache.Stats) uint64 { return s.Misses })
	counter("cache_evictions_total", "Entries evicted for capacity or memory pressure", func(s cache.Stats) uint64 { return s.Evictions })
	counter("cache_expirations_total", "Entries removed after their TTL", func(s cache.Stats) uint64 { return s.Expirations })
}

// Middleware records request duration by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}

// Handler serves the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
