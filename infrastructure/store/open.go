package store

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/ahrav/go-leaderboard/internal/ports"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// BackendConfig selects and configures a leaderboard backend.
type BackendConfig struct {
	Backend string
	// Path is the blob directory for BackendFile and the database file for
	// BackendSQLite.
	Path                string
	Key                 string
	MaxConflictAttempts int
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Open builds the configured backend. The returned closer releases its
// resources and is never nil.
func Open(cfg BackendConfig, logger *slog.Logger) (ports.LeaderboardStore, io.Closer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	key := cfg.Key
	if key == "" {
		key = DefaultLeaderboardKey
	}
	opts := []BlobOption{
		WithKey(key),
		WithMaxConflictAttempts(cfg.MaxConflictAttempts),
		WithLogger(logger),
	}

	switch cfg.Backend {
	case BackendFile:
		blobs, err := NewFileBlobStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using file leaderboard", "path", filepath.Join(cfg.Path, key))
		return NewBlobLeaderboard(blobs, opts...), nopCloser{}, nil
	case BackendSQLite:
		s, err := NewSQLiteLeaderboard(cfg.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case BackendMemory:
		logger.Warn("using in-memory leaderboard; entries are lost on exit")
		return NewBlobLeaderboard(NewMemoryBlobStore(), opts...), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
