package ports

import (
	"context"

	"github.com/ahrav/go-leaderboard/internal/domain"
)

// LeaderboardStore owns the durable leaderboard. Every method must be safe
// for concurrent use by multiple request handlers.
type LeaderboardStore interface {
	// LoadAll returns every stored entry in write order. It returns an
	// empty slice when nothing has been persisted yet and fails only on
	// I/O errors.
	LoadAll(ctx context.Context) ([]domain.LeaderboardEntry, error)

	// Upsert atomically replaces any entry with the same team name and
	// persists the full set. Concurrent upserts for different teams must
	// never lose an update. An entry older than the stored one for the same
	// team is ignored.
	Upsert(ctx context.Context, entry domain.LeaderboardEntry) error

	// GetSorted returns all entries ascending by RMSE60, ties in write
	// order. It may observe a slightly stale snapshot.
	GetSorted(ctx context.Context) ([]domain.LeaderboardEntry, error)

	// Reset removes all entries. Resetting an empty store is not an error.
	Reset(ctx context.Context) error
}

// DeferredWriter accepts entries whose persistence failed so they can be
// written later.
type DeferredWriter interface {
	// Defer queues entry for a later write. It reports false when the entry
	// could not be queued.
	Defer(entry domain.LeaderboardEntry) bool
}
