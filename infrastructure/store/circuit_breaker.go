package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ahrav/go-leaderboard/internal/domain"
	"github.com/ahrav/go-leaderboard/internal/ports"
)

// ErrCircuitOpen is returned without touching the backend while the breaker
// is open. It wraps ports.ErrStoreUnavailable.
var ErrCircuitOpen = fmt.Errorf("circuit breaker is open: %w", ports.ErrStoreUnavailable)

// BreakerState is the position of a CircuitBreakerStore.
type BreakerState int

const (
	// BreakerClosed passes every call through.
	BreakerClosed BreakerState = iota
	// BreakerOpen rejects calls until the cooldown expires.
	BreakerOpen
	// BreakerHalfOpen lets a single probe through to test recovery.
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerStore stops calling an unavailable backend after
// maxFailures consecutive transient failures and probes it again once the
// cooldown has passed. Non-transient errors do not count as failures.
type CircuitBreakerStore struct {
	next        ports.LeaderboardStore
	maxFailures int
	cooldown    time.Duration
	metrics     ports.MetricsCollector
	logger      *slog.Logger
	now         func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	probeActive bool
}

// NewCircuitBreakerStore wraps next. maxFailures below one is treated as one.
func NewCircuitBreakerStore(next ports.LeaderboardStore, maxFailures int, cooldown time.Duration, metrics ports.MetricsCollector, logger *slog.Logger) *CircuitBreakerStore {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CircuitBreakerStore{
		next:        next,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		metrics:     metrics,
		logger:      logger.With("component", "circuit_breaker"),
		now:         time.Now,
	}
}

// State returns the current breaker state.
func (b *CircuitBreakerStore) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// LoadAll implements ports.LeaderboardStore.
func (b *CircuitBreakerStore) LoadAll(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	var out []domain.LeaderboardEntry
	err := b.call("load", func() (err error) {
		out, err = b.next.LoadAll(ctx)
		return err
	})
	return out, err
}

// GetSorted implements ports.LeaderboardStore.
func (b *CircuitBreakerStore) GetSorted(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	var out []domain.LeaderboardEntry
	err := b.call("load", func() (err error) {
		out, err = b.next.GetSorted(ctx)
		return err
	})
	return out, err
}

// Upsert implements ports.LeaderboardStore.
func (b *CircuitBreakerStore) Upsert(ctx context.Context, entry domain.LeaderboardEntry) error {
	return b.call("upsert", func() error { return b.next.Upsert(ctx, entry) })
}

// Reset implements ports.LeaderboardStore.
func (b *CircuitBreakerStore) Reset(ctx context.Context) error {
	return b.call("reset", func() error { return b.next.Reset(ctx) })
}

func (b *CircuitBreakerStore) call(op string, fn func() error) error {
	probe, err := b.admit(op)
	if err != nil {
		return err
	}
	err = fn()
	b.record(op, probe, err)
	return err
}

// admit decides whether a call may reach the backend. The lock is not held
// while the backend runs.
func (b *CircuitBreakerStore) admit(op string) (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.metrics.RecordCounter("store_circuit_rejected_total", 1, map[string]string{"operation": op})
			return false, ports.NewStoreError(op, ErrCircuitOpen)
		}
		b.setState(BreakerHalfOpen)
		fallthrough
	case BreakerHalfOpen:
		if b.probeActive {
			b.metrics.RecordCounter("store_circuit_rejected_total", 1, map[string]string{"operation": op})
			return false, ports.NewStoreError(op, ErrCircuitOpen)
		}
		b.probeActive = true
		return true, nil
	default:
		return false, nil
	}
}

func (b *CircuitBreakerStore) record(op string, probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probeActive = false
	}
	if err == nil || !ports.IsRetryable(err) {
		if b.state != BreakerClosed {
			b.logger.Info("store recovered, closing circuit", "operation", op)
		}
		b.failures = 0
		b.setState(BreakerClosed)
		return
	}

	b.failures++
	if probe || b.failures >= b.maxFailures {
		if b.state != BreakerOpen {
			b.logger.Warn("opening circuit", "operation", op, "failures", b.failures, "cooldown", b.cooldown, "err", err)
			b.metrics.RecordCounter("store_circuit_trips_total", 1, nil)
		}
		b.openedAt = b.now()
		b.setState(BreakerOpen)
	}
}

func (b *CircuitBreakerStore) setState(s BreakerState) {
	b.state = s
	b.metrics.RecordGauge("store_circuit_state", float64(s), nil)
}

var _ ports.LeaderboardStore = (*CircuitBreakerStore)(nil)
