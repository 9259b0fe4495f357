package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"admission/internal/models"
)

// MetricsServer serves Prometheus metrics on a separate port.
type MetricsServer struct {
	server *http.Server
}

// NewMetricsServer creates a metrics HTTP server serving the Prometheus
// handler at the given path on the given port.
func NewMetricsServer(port int, path string) *MetricsServer {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())

	return &MetricsServer{
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}
}

// Start begins serving metrics in a blocking call.
// Returns http.ErrServerClosed on graceful shutdown.
func (ms *MetricsServer) Start() error {
	slog.Info("Starting metrics server", "addr", ms.server.Addr)
	return ms.server.ListenAndServe()
}

// Shutdown gracefully stops the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}

// AdmissionMetrics exposes the admission pipeline's Prometheus counters. It
// satisfies the middleware's Metrics interface and the recorder's drop
// callback.
type AdmissionMetrics struct {
	requestsTotal     *prometheus.CounterVec
	deniedTotal       *prometheus.CounterVec
	counterFailures   prometheus.Counter
	violationsDropped prometheus.Counter
}

// NewAdmissionMetrics registers the admission counters with the default
// Prometheus registry.
func NewAdmissionMetrics() *AdmissionMetrics {
	m := &AdmissionMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_requests_total",
			Help: "Requests evaluated by the admission middleware, by verdict.",
		}, []string{"verdict"}),
		deniedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admission_denied_total",
			Help: "Denied requests by violated tier.",
		}, []string{"tier"}),
		counterFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "admission_counter_failures_total",
			Help: "Counter backend failures that triggered fail-open.",
		}),
		violationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "admission_violations_dropped_total",
			Help: "Violation records dropped because the audit queue was full.",
		}),
	}

	prometheus.MustRegister(m.requestsTotal, m.deniedTotal, m.counterFailures, m.violationsDropped)
	return m
}

// ObserveDecision counts one evaluated request.
func (m *AdmissionMetrics) ObserveDecision(allowed, degraded bool) {
	verdict := "allowed"
	if !allowed {
		verdict = "denied"
	}
	m.requestsTotal.WithLabelValues(verdict).Inc()
	if degraded {
		m.counterFailures.Inc()
	}
}

// ObserveDenial counts one denial for the violated tier.
func (m *AdmissionMetrics) ObserveDenial(tier models.Tier) {
	m.deniedTotal.WithLabelValues(string(tier)).Inc()
}

// ViolationDropped counts one dropped audit record.
func (m *AdmissionMetrics) ViolationDropped() {
	m.violationsDropped.Inc()
}
