// Package metrics provides Prometheus metrics for the venueboard service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns the service's metrics and the registry they live in.
type Manager struct {
	namespace        string
	histogramBuckets []float64
	registry         *prometheus.Registry
	runtime          bool

	// Catalog client
	catalogCalls   *prometheus.CounterVec
	catalogLatency *prometheus.HistogramVec
	tokenExchanges *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Live views
	subscriptions *prometheus.GaugeVec
}

// Option applies a configuration option to the Manager.
type Option func(*Manager)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithHistogramBuckets sets custom histogram buckets for latency metrics.
func WithHistogramBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.histogramBuckets = buckets
		}
	}
}

// WithRegistry registers metrics on r instead of a fresh registry.
func WithRegistry(r *prometheus.Registry) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithRuntimeMetrics adds the Go runtime and process collectors.
func WithRuntimeMetrics() Option {
	return func(m *Manager) { m.runtime = true }
}

// NewManager creates a metrics manager on its own registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "venueboard",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	if m.runtime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	m.catalogCalls = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "calls_total",
		Help:      "Catalog API calls by endpoint and outcome",
	}, []string{"endpoint", "outcome"})

	m.catalogLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "call_duration_seconds",
		Help:      "Catalog API call latency",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint"})

	m.tokenExchanges = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "catalog",
		Name:      "token_exchanges_total",
		Help:      "Client-credentials token exchanges by outcome",
	}, []string{"outcome"})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency by method and route",
		Buckets:   m.histogramBuckets,
	}, []string{"method", "route"})

	m.subscriptions = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "board",
		Name:      "subscriptions_open",
		Help:      "Open live subscriptions by kind",
	}, []string{"kind"})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveCatalogCall records one catalog API call.
func (m *Manager) ObserveCatalogCall(endpoint string, err error, d time.Duration) {
	m.catalogCalls.WithLabelValues(endpoint, outcome(err)).Inc()
	m.catalogLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveTokenExchange records one client-credentials exchange.
func (m *Manager) ObserveTokenExchange(err error) {
	m.tokenExchanges.WithLabelValues(outcome(err)).Inc()
}

// ObserveHTTPRequest records one served HTTP request. route is the mux
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Manager) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// SubscriptionOpened increments the open subscription gauge.
func (m *Manager) SubscriptionOpened(kind string) {
	m.subscriptions.WithLabelValues(kind).Inc()
}

// SubscriptionClosed decrements the open subscription gauge.
func (m *Manager) SubscriptionClosed(kind string) {
	m.subscriptions.WithLabelValues(kind).Dec()
}

// Registry exposes the underlying registry.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
