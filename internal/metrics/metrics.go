// Package metrics exposes Prometheus collectors for the logo service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	logoAcquisitionsTotal      *prometheus.CounterVec
	logoArtifactsTotal         *prometheus.CounterVec
	logoFetchDurationSeconds   *prometheus.HistogramVec
	externalAPICallsTotal      *prometheus.CounterVec
	batchJobsTotal             *prometheus.CounterVec
	activeWorkers              prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		logoAcquisitionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logo_acquisitions_total",
				Help: "Total number of logo acquisitions, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		logoArtifactsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "logo_artifacts_total",
				Help: "Total number of stored artifacts, labeled by format.",
			},
			[]string{"format"},
		)

		logoFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "logo_fetch_duration_seconds",
				Help:    "Histogram of source fetch latencies, labeled by source.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 15, 20, 30},
			},
			[]string{"source"},
		)

		externalAPICallsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "external_api_calls_total",
				Help: "Total number of paid API calls, labeled by api and outcome.",
			},
			[]string{"api", "outcome"},
		)

		batchJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "batch_jobs_total",
				Help: "Total number of batch jobs processed, labeled by status.",
			},
			[]string{"status"},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "logo_active_workers",
				Help: "Number of workers currently processing a ticker.",
			},
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
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveAcquisition increments the acquisition counter.
func ObserveAcquisition(source, outcome string) {
	logoAcquisitionsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveArtifact counts one stored artifact.
func ObserveArtifact(format string) {
	logoArtifactsTotal.WithLabelValues(format).Inc()
}

// ObserveFetchDuration records how long one source fetch took.
func ObserveFetchDuration(source string, duration time.Duration) {
	logoFetchDurationSeconds.WithLabelValues(source).Observe(duration.Seconds())
}

// ObserveExternalAPICall counts one paid API call attempt.
func ObserveExternalAPICall(api, outcome string) {
	externalAPICallsTotal.WithLabelValues(api, outcome).Inc()
}

// ObserveBatchJob increments the job counter for the given status.
func ObserveBatchJob(status string) {
	batchJobsTotal.WithLabelValues(status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
