// Package metrics exposes Prometheus collectors for the radar service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ingestItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_ingest_items_total",
			Help: "Observations processed by the ingestion pipeline, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	signalsDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_signals_detected_total",
			Help: "Signals emitted by the detectors, labeled by type.",
		},
		[]string{"type"},
	)

	candidateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_candidate_transitions_total",
			Help: "Candidate state transitions, labeled by target status.",
		},
		[]string{"status"},
	)

	cycleDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "radar_candidate_cycle_duration_seconds",
			Help:    "Duration of candidate manager cycles.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		},
	)

	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_tasks_total",
			Help: "Deep-crawl task outcomes, labeled by platform and result.",
		},
		[]string{"platform", "result"},
	)

	inflightTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "radar_inflight_tasks",
			Help: "Number of deep-crawl tasks currently executing.",
		},
	)

	circuitOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "radar_platform_circuit_open",
			Help: "1 while a platform's circuit breaker is open.",
		},
		[]string{"platform"},
	)

	alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "radar_alerts_total",
			Help: "Operator alerts, labeled by kind and result (sent, suppressed, failed).",
		},
		[]string{"kind", "result"},
	)

	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, labeled by method and code.",
		},
		[]string{"method", "code"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, labeled by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"method", "route"},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveIngest adds n observations with the given outcome.
func ObserveIngest(source, outcome string, n int) {
	if n <= 0 {
		return
	}
	ingestItemsTotal.WithLabelValues(source, outcome).Add(float64(n))
}

// ObserveSignals adds n detected signals of a type.
func ObserveSignals(signalType string, n int) {
	if n <= 0 {
		return
	}
	signalsDetectedTotal.WithLabelValues(signalType).Add(float64(n))
}

// ObserveTransition counts a candidate transition into status.
func ObserveTransition(status string) {
	candidateTransitionsTotal.WithLabelValues(status).Inc()
}

// ObserveCycle records the duration of a candidate cycle.
func ObserveCycle(d time.Duration) {
	cycleDurationSeconds.Observe(d.Seconds())
}

// ObserveTask counts a task outcome for a platform.
func ObserveTask(platform, result string) {
	tasksTotal.WithLabelValues(platform, result).Inc()
}

// IncInflight increments the in-flight tasks gauge.
func IncInflight() {
	inflightTasks.Inc()
}

// DecInflight decrements the in-flight tasks gauge.
func DecInflight() {
	inflightTasks.Dec()
}

// SetCircuitOpen flips the circuit gauge for a platform.
func SetCircuitOpen(platform string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	circuitOpen.WithLabelValues(platform).Set(v)
}

// ObserveAlert counts an alert attempt.
func ObserveAlert(kind, result string) {
	alertsTotal.WithLabelValues(kind, result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}
		ObserveHTTPRequest(r.Method, routePattern, ww.statusCode, time.Since(start))
	})
}

// statusRecorder wraps http.ResponseWriter to capture the status code.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.statusCode = code
	rec.ResponseWriter.WriteHeader(code)
}
