package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ahrav/go-leaderboard/internal/domain"
	"github.com/ahrav/go-leaderboard/internal/ports"
)

// Outbox defaults.
const (
	DefaultOutboxSchedule = "@every 30s"
	DefaultOutboxCapacity = 1000
	defaultFlushTimeout   = 20 * time.Second
)

var _ ports.DeferredWriter = (*Outbox)(nil)

// Outbox holds entries whose upsert failed and writes them to the store on
// a cron schedule. Only the newest entry per team is kept; replays of older
// entries are harmless because stores ignore stale writes.
type Outbox struct {
	store    ports.LeaderboardStore
	capacity int
	logger   *slog.Logger
	metrics  ports.MetricsCollector

	mu      sync.Mutex
	pending map[string]domain.LeaderboardEntry

	cron *cron.Cron
}

// OutboxConfig configures an Outbox.
type OutboxConfig struct {
	// Schedule is a cron spec or descriptor such as "@every 30s".
	Schedule string
	// Capacity bounds the number of teams waiting for a write.
	Capacity int
}

// NewOutbox creates an outbox that flushes into store. It does not start the
// schedule; call Start.
func NewOutbox(store ports.LeaderboardStore, cfg OutboxConfig, metrics ports.MetricsCollector, logger *slog.Logger) (*Outbox, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultOutboxSchedule
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultOutboxCapacity
	}
	if metrics == nil {
		metrics = ports.NoopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	o := &Outbox{
		store:    store,
		capacity: cfg.Capacity,
		logger:   logger.With("component", "outbox"),
		metrics:  metrics,
		pending:  make(map[string]domain.LeaderboardEntry),
		cron:     cron.New(),
	}
	if _, err := o.cron.AddFunc(cfg.Schedule, o.scheduledFlush); err != nil {
		return nil, fmt.Errorf("invalid outbox schedule %q: %w", cfg.Schedule, err)
	}
	return o, nil
}

// Defer queues entry. It reports false when the outbox is full and entry
// belongs to a team that is not already queued.
func (o *Outbox) Defer(entry domain.LeaderboardEntry) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if current, ok := o.pending[entry.TeamName]; ok {
		if !current.Timestamp.After(entry.Timestamp) {
			o.pending[entry.TeamName] = entry
		}
		return true
	}
	if len(o.pending) >= o.capacity {
		o.logger.Error("outbox full, dropping deferred entry", "team", entry.TeamName)
		return false
	}
	o.pending[entry.TeamName] = entry
	o.metrics.RecordGauge("outbox_pending", float64(len(o.pending)), nil)
	return true
}

// Pending returns the number of queued teams.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}

// Flush writes every queued entry. Entries written successfully are removed
// unless a newer entry for the same team arrived meanwhile. Failures stay
// queued and are returned joined.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	batch := make([]domain.LeaderboardEntry, 0, len(o.pending))
	for _, e := range o.pending {
		batch = append(batch, e)
	}
	o.mu.Unlock()

	var errs []error
	for _, entry := range batch {
		if err := o.store.Upsert(ctx, entry); err != nil {
			errs = append(errs, fmt.Errorf("team %s: %w", entry.TeamName, err))
			continue
		}

		o.mu.Lock()
		if current, ok := o.pending[entry.TeamName]; ok && current.Timestamp.Equal(entry.Timestamp) {
			delete(o.pending, entry.TeamName)
		}
		o.mu.Unlock()
		o.metrics.RecordCounter("outbox_flushed_total", 1, nil)
	}

	o.metrics.RecordGauge("outbox_pending", float64(o.Pending()), nil)
	return errors.Join(errs...)
}

// Start begins flushing on the configured schedule.
func (o *Outbox) Start() { o.cron.Start() }

// Stop halts the schedule and returns a context that is done once a running
// flush has finished.
func (o *Outbox) Stop() context.Context { return o.cron.Stop() }

func (o *Outbox) scheduledFlush() {
	if o.Pending() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), defaultFlushTimeout)
	defer cancel()

	if err := o.Flush(ctx); err != nil {
		o.logger.Warn("outbox flush incomplete", "pending", o.Pending(), "err", err)
		return
	}
	o.logger.Info("outbox flushed")
}
