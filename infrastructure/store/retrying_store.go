package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/ahrav/go-leaderboard/internal/domain"
	"github.com/ahrav/go-leaderboard/internal/ports"
)

// Default retry configuration constants.
const (
	// DefaultMaxRetries is the default number of retries after the first
	// attempt.
	DefaultMaxRetries = 3
	// DefaultBaseDelay is the default initial delay before the first retry.
	DefaultBaseDelay = 100 * time.Millisecond
	// DefaultMaxDelay is the default maximum delay between retry attempts.
	DefaultMaxDelay = 2 * time.Second
	// DefaultJitterPercent is the default jitter percentage.
	DefaultJitterPercent = 0.1
)

// RetryConfig defines the configuration for retry behavior. These settings
// control the exponential backoff and jitter logic used by RetryingStore.
type RetryConfig struct {
	// MaxRetries specifies the maximum number of times to retry a failed
	// operation. A value of 0 means no retries will be attempted.
	MaxRetries int

	// BaseDelay sets the initial delay for the first retry attempt.
	// Subsequent delays are calculated using exponential backoff.
	BaseDelay time.Duration

	// MaxDelay caps the maximum delay between retry attempts.
	MaxDelay time.Duration

	// JitterPercent adds a random percentage of the current delay.
	// It should be between 0.0 and 1.0.
	JitterPercent float64
}

// DefaultRetryConfig returns a RetryConfig with the package defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    DefaultMaxRetries,
		BaseDelay:     DefaultBaseDelay,
		MaxDelay:      DefaultMaxDelay,
		JitterPercent: DefaultJitterPercent,
	}
}

var _ ports.LeaderboardStore = (*RetryingStore)(nil)

// RetryingStore wraps a LeaderboardStore and retries operations that fail
// with a transient error (see ports.IsRetryable). It is safe for concurrent
// use when the wrapped store is.
type RetryingStore struct {
	next    ports.LeaderboardStore
	config  RetryConfig
	metrics ports.MetricsCollector
	logger  *slog.Logger
}

// NewRetryingStore creates a RetryingStore around next. A nil metrics
// collector or logger falls back to a no-op collector and slog.Default().
func NewRetryingStore(next ports.LeaderboardStore, config RetryConfig, metrics ports.MetricsCollector, logger *slog.Logger) *RetryingStore {
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RetryingStore{next: next, config: config, metrics: metrics, logger: logger}
}

// LoadAll implements ports.LeaderboardStore with retries.
func (r *RetryingStore) LoadAll(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	var out []domain.LeaderboardEntry
	err := r.do(ctx, "load", func() error {
		entries, err := r.next.LoadAll(ctx)
		out = entries
		return err
	})
	return out, err
}

// GetSorted implements ports.LeaderboardStore with retries.
func (r *RetryingStore) GetSorted(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	var out []domain.LeaderboardEntry
	err := r.do(ctx, "load", func() error {
		entries, err := r.next.GetSorted(ctx)
		out = entries
		return err
	})
	return out, err
}

// Upsert implements ports.LeaderboardStore with retries. Retrying is safe
// because replace-by-team is idempotent.
func (r *RetryingStore) Upsert(ctx context.Context, entry domain.LeaderboardEntry) error {
	return r.do(ctx, "upsert", func() error { return r.next.Upsert(ctx, entry) })
}

// Reset implements ports.LeaderboardStore with retries.
func (r *RetryingStore) Reset(ctx context.Context) error {
	return r.do(ctx, "reset", func() error { return r.next.Reset(ctx) })
}

func (r *RetryingStore) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	attempts := 0
	for attempt := 0; attempt <= r.config.MaxRetries; attempt++ {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err
		if attempt == r.config.MaxRetries || !ports.IsRetryable(err) {
			break
		}

		r.metrics.RecordCounter("store_retries_total", 1, map[string]string{"operation": op})
		r.logger.Warn("store operation failed, retrying", "operation", op, "attempt", attempts, "err", err)

		select {
		case <-ctx.Done():
			return &ports.StoreError{
				Operation: op,
				Attempts:  attempts,
				Err:       fmt.Errorf("context cancelled during retry: %w", ctx.Err()),
			}
		case <-time.After(r.calculateRetryDelay(attempt)):
		}
	}

	if attempts == 1 {
		return lastErr
	}
	var storeErr *ports.StoreError
	if errors.As(lastErr, &storeErr) {
		return &ports.StoreError{Operation: op, Attempts: attempts, Err: storeErr.Err}
	}
	return &ports.StoreError{Operation: op, Attempts: attempts, Err: lastErr}
}

// calculateRetryDelay computes the delay for a given retry attempt using
// exponential backoff with jitter.
func (r *RetryingStore) calculateRetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	// #nosec G115 - attempt is bounded between 0 and 30
	delay := r.config.BaseDelay * time.Duration(1<<uint(attempt))
	if r.config.MaxDelay > 0 && delay > r.config.MaxDelay {
		delay = r.config.MaxDelay
	}

	if r.config.JitterPercent > 0 {
		// #nosec G404 - Using weak RNG is acceptable for jitter calculation
		jitter := time.Duration(rand.Float64() * r.config.JitterPercent * float64(delay))
		delay += jitter
	}
	return delay
}
