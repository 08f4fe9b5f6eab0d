// Package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the gateway.
type Metrics struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Query metrics
	QueriesTotal   *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	QueryErrors    *prometheus.CounterVec

	// Auth metrics
	AuthAttempts *prometheus.CounterVec
	AuthFailures *prometheus.CounterVec

	// Agent tool metrics
	ToolCalls *prometheus.CounterVec

	// Model metrics
	TablesTotal     prometheus.Gauge
	NamespacesTotal prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a Metrics instance with all collectors registered on a
// private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgcrud_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	m.RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgcrud_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.RequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgcrud_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	m.QueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgcrud_queries_total",
			Help: "Total number of executed database statements",
		},
		[]string{"operation", "pool"},
	)

	m.QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgcrud_query_duration_seconds",
			Help:    "Database statement latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "pool"},
	)

	m.QueryErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgcrud_query_errors_total",
			Help: "Total number of failed database statements",
		},
		[]string{"operation", "kind"},
	)

	m.AuthAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgcrud_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"surface"},
	)

	m.AuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgcrud_auth_failures_total",
			Help: "Total number of authentication failures",
		},
		[]string{"surface", "reason"},
	)

	m.ToolCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgcrud_tool_calls_total",
			Help: "Total number of agent tool invocations",
		},
		[]string{"tool", "status"},
	)

	m.TablesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgcrud_tables_total",
			Help: "Number of tables in the introspected model",
		},
	)

	m.NamespacesTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "pgcrud_namespaces_total",
			Help: "Number of namespaces in the introspected model",
		},
	)

	m.registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.RequestsInFlight,
		m.QueriesTotal,
		m.QueryDuration,
		m.QueryErrors,
		m.AuthAttempts,
		m.AuthFailures,
		m.ToolCalls,
		m.TablesTotal,
		m.NamespacesTotal,
	)

	m.registry.MustRegister(prometheus.NewGoCollector())
	m.registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Middleware records request count, latency and in-flight gauge.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush lets streaming handlers behind the middleware push data out.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
