package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ahrav/go-leaderboard/internal/domain"
	"github.com/ahrav/go-leaderboard/internal/ports"
)

const (
	// DefaultLeaderboardKey is the blob key of the leaderboard document.
	DefaultLeaderboardKey = "leaderboard.json"

	// DefaultMaxConflictAttempts bounds the optimistic write loop.
	DefaultMaxConflictAttempts = 5
)

var _ ports.LeaderboardStore = (*BlobLeaderboard)(nil)

// BlobLeaderboard stores the whole leaderboard as one JSON document in a
// BlobStore.
//
// Writers in this process are serialized by a mutex. Writers in other
// processes sharing the blob are handled with optimistic concurrency: each
// write is conditional on the version that was read and is retried on
// conflict, up to maxAttempts times. Reads take no lock.
type BlobLeaderboard struct {
	blobs       ports.BlobStore
	key         string
	maxAttempts int
	logger      *slog.Logger

	writeMu sync.Mutex
}

// BlobOption configures a BlobLeaderboard.
type BlobOption func(*BlobLeaderboard)

// WithKey sets the blob key of the document.
func WithKey(key string) BlobOption {
	return func(b *BlobLeaderboard) { b.key = key }
}

// WithMaxConflictAttempts bounds the number of conditional write attempts.
func WithMaxConflictAttempts(n int) BlobOption {
	return func(b *BlobLeaderboard) {
		if n > 0 {
			b.maxAttempts = n
		}
	}
}

// WithLogger sets the logger used for conflict diagnostics.
func WithLogger(l *slog.Logger) BlobOption {
	return func(b *BlobLeaderboard) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBlobLeaderboard creates a leaderboard persisted in blobs.
func NewBlobLeaderboard(blobs ports.BlobStore, opts ...BlobOption) *BlobLeaderboard {
	b := &BlobLeaderboard{
		blobs:       blobs,
		key:         DefaultLeaderboardKey,
		maxAttempts: DefaultMaxConflictAttempts,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "leaderboard", "key", b.key)
	return b
}

// LoadAll returns the stored entries in write order.
func (b *BlobLeaderboard) LoadAll(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	entries, _, err := b.read(ctx)
	if err != nil {
		return nil, ports.NewStoreError("load", err)
	}
	return entries, nil
}

// GetSorted returns the stored entries ascending by RMSE60.
func (b *BlobLeaderboard) GetSorted(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	entries, err := b.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	domain.SortEntries(entries)
	return entries, nil
}

// Upsert replaces the entry for entry.TeamName and writes the document back
// conditionally on the version that was read.
func (b *BlobLeaderboard) Upsert(ctx context.Context, entry domain.LeaderboardEntry) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &ports.StoreError{Operation: "upsert", Attempts: attempt, Err: err}
		}

		entries, version, err := b.read(ctx)
		if err != nil {
			return &ports.StoreError{Operation: "upsert", Attempts: attempt, Err: err}
		}

		updated, applied := domain.ReplaceEntry(entries, entry)
		if !applied {
			b.logger.Info("ignoring stale entry", "team", entry.TeamName, "timestamp", entry.Timestamp)
			return nil
		}

		data, err := EncodeEntries(updated)
		if err != nil {
			return &ports.StoreError{Operation: "upsert", Attempts: attempt, Err: err}
		}

		_, err = b.blobs.Put(ctx, b.key, data, version)
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, ports.ErrVersionConflict) {
			return &ports.StoreError{Operation: "upsert", Attempts: attempt, Err: err}
		}
		b.logger.Debug("leaderboard write conflict, retrying", "team", entry.TeamName, "attempt", attempt)
	}

	return &ports.StoreError{Operation: "upsert", Attempts: b.maxAttempts, Err: lastErr}
}

// Reset deletes the leaderboard document.
func (b *BlobLeaderboard) Reset(ctx context.Context) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	if err := b.blobs.Delete(ctx, b.key); err != nil {
		return ports.NewStoreError("reset", err)
	}
	return nil
}

// read loads and decodes the document. A missing document is an empty
// leaderboard with the empty version.
func (b *BlobLeaderboard) read(ctx context.Context) ([]domain.LeaderboardEntry, string, error) {
	data, version, err := b.blobs.Get(ctx, b.key)
	if errors.Is(err, ports.ErrBlobNotFound) {
		return []domain.LeaderboardEntry{}, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	entries, err := DecodeEntries(data)
	if err != nil {
		return nil, "", fmt.Errorf("%s: %w", b.key, err)
	}
	return entries, version, nil
}
