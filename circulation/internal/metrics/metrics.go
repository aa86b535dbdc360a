package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics wraps a private Prometheus registry. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	booksCreated    prometheus.Counter
	issued          prometheus.Counter
	returned        prometheus.Counter
	finesCollected  prometheus.Counter
	conflicts       *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		booksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "circulation_books_created_total",
			Help: "Books added to the catalog",
		}),
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "circulation_issues_total",
			Help: "Books issued to students",
		}),
		returned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "circulation_returns_total",
			Help: "Books returned",
		}),
		finesCollected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "circulation_fines_collected_total",
			Help: "Sum of fines fixed at return",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "circulation_conflicts_total",
			Help: "Operations rejected by a uniqueness or state conflict",
		}, []string{"op"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestDuration, m.booksCreated, m.issued, m.returned, m.finesCollected, m.conflicts,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func (m *Metrics) BookCreated() {
	if m == nil {
		return
	}
	m.booksCreated.Inc()
}

func (m *Metrics) BookIssued() {
	if m == nil {
		return
	}
	m.issued.Inc()
}

func (m *Metrics) BookReturned(fine float64) {
	if m == nil {
		return
	}
	m.returned.Inc()
	if fine > 0 {
		m.finesCollected.Add(fine)
	}
}

func (m *Metrics) Conflict(op string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(op).Inc()
}
