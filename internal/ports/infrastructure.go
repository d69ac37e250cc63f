// Package ports defines the interfaces between the scoring core and the
// infrastructure that backs it.
package ports

import (
	"context"
	"time"

	"github.com/ahrav/go-leaderboard/internal/domain"
)

// GroundTruthSource provides the evaluation window that submissions are
// scored against.
type GroundTruthSource interface {
	// Load returns the evaluation window. Implementations must fail with an
	// error wrapping domain.ErrDataUnavailable rather than return an empty
	// series. The returned series may be shared and must not be mutated.
	Load(ctx context.Context) (domain.GroundTruthSeries, error)
}

// BlobStore is a durable document store with versioned conditional writes.
// It is the backing medium of BlobLeaderboard and mirrors object stores that
// expose ETags.
type BlobStore interface {
	// Get returns the document stored under key and its version.
	// It returns ErrBlobNotFound when the key does not exist.
	Get(ctx context.Context, key string) (data []byte, version string, err error)

	// Put writes data under key if the stored version still equals
	// ifVersion. An empty ifVersion requires that the key does not exist.
	// It returns ErrVersionConflict when the precondition fails.
	Put(ctx context.Context, key string, data []byte, ifVersion string) (version string, err error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// MetricsCollector defines the interface for collecting operational metrics.
// Implementations should integrate with observability platforms like
// Prometheus.
type MetricsCollector interface {
	// RecordLatency records the execution time of an operation.
	// The labels map provides additional context for the metric.
	RecordLatency(operation string, duration time.Duration, labels map[string]string)

	// RecordCounter increments a counter metric.
	// This is useful for tracking events like submission outcomes and
	// store retries.
	RecordCounter(metric string, value float64, labels map[string]string)

	// RecordGauge sets the current value of a gauge metric such as the
	// number of leaderboard entries.
	RecordGauge(metric string, value float64, labels map[string]string)

	// RecordHistogram records a value in a histogram.
	// This is useful for tracking distributions such as submitted scores.
	RecordHistogram(metric string, value float64, labels map[string]string)
}

// NoopMetrics discards every measurement. It is the default collector when
// none is configured.
type NoopMetrics struct{}

// RecordLatency implements MetricsCollector.
func (NoopMetrics) RecordLatency(string, time.Duration, map[string]string) {}

// RecordCounter implements MetricsCollector.
func (NoopMetrics) RecordCounter(string, float64, map[string]string) {}

// RecordGauge implements MetricsCollector.
func (NoopMetrics) RecordGauge(string, float64, map[string]string) {}

// RecordHistogram implements MetricsCollector.
func (NoopMetrics) RecordHistogram(string, float64, map[string]string) {}

var _ MetricsCollector = NoopMetrics{}
