package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	// Forecast metrics
	forecastRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecast_requests_total",
			Help: "Total number of forecast requests by outcome",
		},
		[]string{"type", "outcome"},
	)

	forecastSubprocessDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forecast_subprocess_duration_seconds",
			Help:    "External forecaster subprocess duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	forecastCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forecast_cache_lookups_total",
			Help: "Forecast cache lookups by result",
		},
		[]string{"result"},
	)

	// Aggregator metrics
	aggregateOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregate_operations_total",
			Help: "Aggregate maintenance operations by kind and outcome",
		},
		[]string{"operation", "outcome"},
	)

	aggregateRebuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregate_rebuild_duration_seconds",
			Help:    "Full aggregate rebuild duration in seconds",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
		},
	)

	// Simulation metrics
	simulationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seir_simulations_total",
			Help: "SEIR simulations by disease and outcome",
		},
		[]string{"disease", "outcome"},
	)

	// Ledger metrics
	forecastRunsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forecast_runs_persisted_total",
			Help: "Total number of forecast runs written to the ledger",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware creates HTTP metrics middleware
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)

		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// normalizePath normalizes URL paths for metrics to avoid cardinality explosion
func normalizePath(path string) string {
	if len(path) > 100 {
		return "/api/..."
	}
	return path
}

// --- Business metric helpers ---

// RecordForecastRequest records a forecast request outcome
// (hit, dedup, computed, no_data, subprocess_error).
func RecordForecastRequest(forecastType, outcome string) {
	forecastRequestsTotal.WithLabelValues(forecastType, outcome).Inc()
}

// RecordSubprocessDuration records an external forecaster run
func RecordSubprocessDuration(d time.Duration) {
	forecastSubprocessDuration.Observe(d.Seconds())
}

// RecordCacheLookup records a cache lookup result (hit, miss, stale)
func RecordCacheLookup(result string) {
	forecastCacheLookups.WithLabelValues(result).Inc()
}

// RecordAggregateOp records an aggregate maintenance operation
func RecordAggregateOp(operation string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	aggregateOpsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordRebuildDuration records a full aggregate rebuild
func RecordRebuildDuration(d time.Duration) {
	aggregateRebuildDuration.Observe(d.Seconds())
}

// RecordSimulation records a SEIR simulation outcome
func RecordSimulation(disease string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	simulationsTotal.WithLabelValues(disease, outcome).Inc()
}

// RecordForecastRunPersisted records a ledger append
func RecordForecastRunPersisted() {
	forecastRunsPersisted.Inc()
}
