// Package metrics exposes Prometheus collectors for the verifier service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	verifierItemsTotal         *prometheus.CounterVec
	verifierBatchesTotal       *prometheus.CounterVec
	verifierWatchdogResets     prometheus.Counter
	verifierSessionRestarts    prometheus.Counter
	verifierActiveWorkers      prometheus.Gauge
	verifierItemSeconds        prometheus.Histogram
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		verifierItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_items_total",
				Help: "Total number of items verified, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		verifierBatchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "verifier_batches_total",
				Help: "Total number of batches reaching a terminal status, labeled by status.",
			},
			[]string{"status"},
		)

		verifierWatchdogResets = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "verifier_watchdog_resets_total",
				Help: "Total number of stalled batches torn down by the watchdog.",
			},
		)

		verifierSessionRestarts = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "verifier_session_restarts_total",
				Help: "Total number of portal sessions restarted after the access limit signal.",
			},
		)

		verifierActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "verifier_active_workers",
				Help: "Number of workers currently processing a batch.",
			},
		)

		verifierItemSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "verifier_item_duration_seconds",
				Help:    "Histogram of single item verification latencies.",
				Buckets: []float64{1, 2, 5, 10, 20, 45, 90, 180},
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

// ObserveItem records one verified item and its duration.
func ObserveItem(outcome string, duration time.Duration) {
	verifierItemsTotal.WithLabelValues(outcome).Inc()
	verifierItemSeconds.Observe(duration.Seconds())
}

// ObserveBatch increments the batch counter for the given terminal status.
func ObserveBatch(status string) {
	verifierBatchesTotal.WithLabelValues(status).Inc()
}

// ObserveWatchdogReset increments the watchdog teardown counter.
func ObserveWatchdogReset() {
	verifierWatchdogResets.Inc()
}

// ObserveSessionRestart increments the session restart counter.
func ObserveSessionRestart() {
	verifierSessionRestarts.Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	verifierActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	verifierActiveWorkers.Dec()
}
