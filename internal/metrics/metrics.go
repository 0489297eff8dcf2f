package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// APIRequestsTotal counts every send to the greenhouse backend, retries included.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenhouse_api_requests_total",
			Help: "Total number of greenhouse API requests sent (by endpoint, method, and status).",
		},
		[]string{"endpoint", "method", "status"},
	)

	// APIRequestDuration measures the latency of each send.
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "greenhouse_api_request_duration_seconds",
			Help:    "Duration of greenhouse API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms → ~10s
		},
		[]string{"endpoint", "method"},
	)

	// SessionRefreshTotal counts settled refresh exchanges by outcome.
	SessionRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "greenhouse_session_refresh_total",
			Help: "Number of credential refresh attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// SnapshotFailures counts dashboard snapshot polls that failed.
	SnapshotFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "greenhouse_snapshot_failures_total",
			Help: "Number of failed dashboard snapshot polls.",
		},
	)
)

// IncAPIRequest increments the request counter. status is "error" when no
// response was obtained.
func IncAPIRequest(endpoint, method, status string) {
	APIRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncRefresh records one settled refresh exchange.
func IncRefresh(outcome string) {
	SessionRefreshTotal.WithLabelValues(outcome).Inc()
}

// IncSnapshotFailure records one failed snapshot poll.
func IncSnapshotFailure() {
	SnapshotFailures.Inc()
}

// ObserveDuration records elapsed time since start into a HistogramVec or SummaryVec.
func ObserveDuration(v any, start time.Time, labels ...string) {
	duration := time.Since(start).Seconds()
	switch metric := v.(type) {
	case *prometheus.HistogramVec:
		metric.WithLabelValues(labels...).Observe(duration)
	case *prometheus.SummaryVec:
		metric.WithLabelValues(labels...).Observe(duration)
	}
}
