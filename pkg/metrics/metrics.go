// Package metrics wraps a Prometheus registry with get-or-create accessors and
// the instrument set shared by the store adapters.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultBuckets are the latency buckets (in seconds) for store round trips.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Registry holds named metric vectors under one namespace.
type Registry struct {
	namespace string
	reg       *prometheus.Registry

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// New creates a Registry with Go runtime and process collectors registered.
func New(namespace string) *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{
		namespace:  namespace,
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Counter returns (or creates) a counter vector.
func (r *Registry) Counter(name, help string, labels ...string) *prometheus.CounterVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
	}, labels)
	r.reg.MustRegister(c)
	r.counters[name] = c
	return c
}

// Gauge returns (or creates) a gauge vector.
func (r *Registry) Gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
	}, labels)
	r.reg.MustRegister(g)
	r.gauges[name] = g
	return g
}

// Histogram returns (or creates) a histogram vector. Nil buckets use DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
	r.reg.MustRegister(h)
	r.histograms[name] = h
	return h
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// DAL is the instrument set of the data-access layer. A nil *DAL records nothing.
type DAL struct {
	queries     *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	validation  *prometheus.CounterVec
	idRetries   *prometheus.CounterVec
	txOutcomes  *prometheus.CounterVec
	breakerOpen *prometheus.GaugeVec
}

// NewDAL registers the data-access instruments on r.
func NewDAL(r *Registry) *DAL {
	return &DAL{
		queries:     r.Counter("store_requests_total", "Store round trips by store, operation and status.", "store", "op", "status"),
		latency:     r.Histogram("store_request_duration_seconds", "Store round-trip latency.", nil, "store", "op"),
		validation:  r.Counter("validation_errors_total", "Validation errors by kind.", "kind"),
		idRetries:   r.Counter("identifier_retries_total", "Identifier generation retries after a collision.", "concept"),
		txOutcomes:  r.Counter("graph_transactions_total", "Graph transactions by outcome.", "outcome"),
		breakerOpen: r.Gauge("circuit_open", "1 while the store circuit breaker rejects calls.", "store"),
	}
}

// ObserveRequest records one store round trip.
func (m *DAL) ObserveRequest(store, op string, start time.Time, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.queries.WithLabelValues(store, op, status).Inc()
	m.latency.WithLabelValues(store, op).Observe(time.Since(start).Seconds())
}

// ValidationError counts one collected validation error.
func (m *DAL) ValidationError(kind string) {
	if m == nil {
		return
	}
	m.validation.WithLabelValues(kind).Inc()
}

// IdentifierRetry counts one collision-driven retry.
func (m *DAL) IdentifierRetry(concept string) {
	if m == nil {
		return
	}
	m.idRetries.WithLabelValues(concept).Inc()
}

// Transaction counts a commit or rollback.
func (m *DAL) Transaction(outcome string) {
	if m == nil {
		return
	}
	m.txOutcomes.WithLabelValues(outcome).Inc()
}

// BreakerOpen sets the breaker gauge for store.
func (m *DAL) BreakerOpen(store string, open bool) {
	if m == nil {
		return
	}
	v := 0.0
	if open {
		v = 1
	}
	m.breakerOpen.WithLabelValues(store).Set(v)
}
