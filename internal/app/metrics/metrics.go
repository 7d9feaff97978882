// Package metrics exposes Prometheus instrumentation for the review service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's collectors on a private registry so tests can
// construct instances independently.
type Metrics struct {
	registry *prometheus.Registry

	HTTPInFlight prometheus.Gauge
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	ApplicationsSubmitted prometheus.Counter
	AssignmentsTotal      prometheus.Counter
	ReviewsSubmitted      *prometheus.CounterVec
	PrimarySelections     prometheus.Counter
	StatusTransitions     *prometheus.CounterVec
}

// New builds a Metrics instance with all collectors registered.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: registry,
		HTTPInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "review_service_http_requests_in_flight",
			Help: "Number of HTTP requests currently being served.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_service_http_requests_total",
			Help: "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "review_service_http_request_duration_seconds",
			Help:    "HTTP request latency by method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		ApplicationsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "review_service_applications_submitted_total",
			Help: "Loan applications filed.",
		}),
		AssignmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "review_service_assignments_total",
			Help: "Reviewer panel assignments, including reassignments.",
		}),
		ReviewsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_service_reviews_submitted_total",
			Help: "Reviewer verdicts recorded, by verdict.",
		}, []string{"verdict"}),
		PrimarySelections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "review_service_primary_selections_total",
			Help: "Primary reviewer selections by applicants.",
		}),
		StatusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "review_service_status_transitions_total",
			Help: "Application status transitions, by target status.",
		}, []string{"to"}),
	}

	registry.MustRegister(
		m.HTTPInFlight,
		m.HTTPRequests,
		m.HTTPDuration,
		m.ApplicationsSubmitted,
		m.AssignmentsTotal,
		m.ReviewsSubmitted,
		m.PrimarySelections,
		m.StatusTransitions,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments the wrapped handler with request count, latency, and
// in-flight gauges.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPInFlight.Inc()
		defer m.HTTPInFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.HTTPRequests.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		m.HTTPDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
	})
}
