package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service. Each
// instance owns its registry so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	ActiveProviders  prometheus.Gauge
	ProviderStarts   *prometheus.CounterVec
	ToolCalls        *prometheus.CounterVec
	ToolCallLatency  *prometheus.HistogramVec
	MemoryOps        *prometheus.CounterVec
	MemoryOpLatency  *prometheus.HistogramVec
	HTTPRequests     *prometheus.CounterVec
	FetchCacheEvents *prometheus.CounterVec
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActiveProviders: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_providers",
			Help:      "Number of running provider instances.",
		}),
		ProviderStarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_starts_total",
			Help:      "Provider construction attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		ToolCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Provider operation calls by provider, tool and result code.",
		}, []string{"provider", "tool", "code"}),
		ToolCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_ms",
			Help:      "Provider operation latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		}, []string{"provider", "tool"}),
		MemoryOps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_operations_total",
			Help:      "Memory engine operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		MemoryOpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "memory_operation_duration_ms",
			Help:      "Memory engine operation latency in milliseconds.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"op"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		FetchCacheEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_cache_events_total",
			Help:      "Fetch provider cache hits and misses.",
		}, []string{"event"}),
	}
}

// ObserveMemoryOp records one memory engine operation
func (m *Metrics) ObserveMemoryOp(op, outcome string, elapsed time.Duration) {
	m.MemoryOps.WithLabelValues(op, outcome).Inc()
	m.MemoryOpLatency.WithLabelValues(op).Observe(milliseconds(elapsed))
}

// ObserveToolCall records one provider operation call. An empty code
// means success.
func (m *Metrics) ObserveToolCall(provider, tool, code string, elapsed time.Duration) {
	if code == "" {
		code = "OK"
	}
	m.ToolCalls.WithLabelValues(provider, tool, code).Inc()
	m.ToolCallLatency.WithLabelValues(provider, tool).Observe(milliseconds(elapsed))
}

// ObserveProviderStart records a provider construction attempt
func (m *Metrics) ObserveProviderStart(provider string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ProviderStarts.WithLabelValues(provider, outcome).Inc()
}

// ObserveCache records a fetch cache lookup
func (m *Metrics) ObserveCache(hit bool) {
	event := "miss"
	if hit {
		event = "hit"
	}
	m.FetchCacheEvents.WithLabelValues(event).Inc()
}

// ObserveHTTPRequest records one served HTTP request
func (m *Metrics) ObserveHTTPRequest(method, route string, status int) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves this instance's metrics in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
