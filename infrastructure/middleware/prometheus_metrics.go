// Package middleware provides cross-cutting concerns for the leaderboard
// service.
package middleware

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ahrav/go-leaderboard/internal/ports"
)

const metricsNamespace = "leaderboard"

// PrometheusMetrics implements the MetricsCollector interface using Prometheus.
// Known metric names map onto dedicated collectors; anything else lands in
// the generic events counter or state gauge so that no measurement is lost.
type PrometheusMetrics struct {
	submissions      *prometheus.CounterVec
	storeRetries     *prometheus.CounterVec
	outboxFlushed    prometheus.Counter
	operationLatency *prometheus.HistogramVec
	rmse             *prometheus.HistogramVec
	entries          prometheus.Gauge
	outboxPending    prometheus.Gauge
	events           *prometheus.CounterVec
	state            *prometheus.GaugeVec
}

// NewPrometheusMetrics creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler,
// or a fresh registry in tests.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	factory := promauto.With(reg)
	return &PrometheusMetrics{
		submissions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "submissions_total",
				Help:      "Submissions processed, by outcome.",
			},
			[]string{"outcome"},
		),
		storeRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "store_retries_total",
				Help:      "Retries of leaderboard store operations after a transient failure.",
			},
			[]string{"operation"},
		),
		outboxFlushed: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "outbox_flushed_total",
				Help:      "Deferred entries written by the outbox.",
			},
		),
		operationLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of submissions and leaderboard reads.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation", "outcome"},
		),
		rmse: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "submission_rmse",
				Help:      "RMSE of scored submissions, by horizon.",
				Buckets:   []float64{0.25, 0.5, 1, 1.5, 2, 3, 4, 6, 8, 12},
			},
			[]string{"horizon"},
		),
		entries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "entries",
				Help:      "Entries on the leaderboard at the last read.",
			},
		),
		outboxPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "outbox_pending",
				Help:      "Entries waiting in the outbox.",
			},
		),
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "events_total",
				Help:      "Other counted events, by name.",
			},
			[]string{"event"},
		),
		state: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "state",
				Help:      "Other reported state values, by name.",
			},
			[]string{"metric"},
		),
	}
}

// RecordLatency implements the MetricsCollector interface by recording
// execution latency in a Prometheus histogram.
func (pm *PrometheusMetrics) RecordLatency(
	operation string,
	duration time.Duration,
	labels map[string]string,
) {
	pm.operationLatency.WithLabelValues(operation, labelOr(labels, "outcome", "none")).Observe(duration.Seconds())
}

// RecordCounter implements the MetricsCollector interface by incrementing
// Prometheus counters.
func (pm *PrometheusMetrics) RecordCounter(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "submissions_total":
		pm.submissions.WithLabelValues(labelOr(labels, "outcome", "unknown")).Add(value)
	case "store_retries_total":
		pm.storeRetries.WithLabelValues(labelOr(labels, "operation", "unknown")).Add(value)
	case "outbox_flushed_total":
		pm.outboxFlushed.Add(value)
	default:
		pm.events.WithLabelValues(metric).Add(value)
	}
}

// RecordGauge implements the MetricsCollector interface by setting
// Prometheus gauge values.
func (pm *PrometheusMetrics) RecordGauge(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "leaderboard_entries":
		pm.entries.Set(value)
	case "outbox_pending":
		pm.outboxPending.Set(value)
	default:
		pm.state.WithLabelValues(metric).Set(value)
	}
}

// RecordHistogram implements the MetricsCollector interface by recording
// values in a Prometheus histogram. Unknown histograms are recorded as
// latencies in seconds.
func (pm *PrometheusMetrics) RecordHistogram(
	metric string, value float64, labels map[string]string,
) {
	switch metric {
	case "submission_rmse":
		pm.rmse.WithLabelValues(labelOr(labels, "horizon", "unknown")).Observe(value)
	default:
		pm.operationLatency.WithLabelValues(metric, labelOr(labels, "outcome", "none")).Observe(value)
	}
}

func labelOr(labels map[string]string, key, fallback string) string {
	if v := labels[key]; v != "" {
		return v
	}
	return fallback
}

// Compile-time verification that PrometheusMetrics implements MetricsCollector.
var _ ports.MetricsCollector = (*PrometheusMetrics)(nil)
