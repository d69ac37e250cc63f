package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ahrav/go-leaderboard/internal/domain"
	"github.com/ahrav/go-leaderboard/internal/ports"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS leaderboard (
	team_name    TEXT PRIMARY KEY,
	rmse_10      REAL NOT NULL,
	rmse_30      REAL NOT NULL,
	rmse_60      REAL NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	write_seq    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leaderboard_rank ON leaderboard(rmse_60, write_seq);`

// The conflict clause makes replace-by-team a single atomic statement; the
// WHERE guard drops writes older than the stored entry.
const sqliteUpsert = `
INSERT INTO leaderboard(team_name, rmse_10, rmse_30, rmse_60, timestamp_ms, write_seq)
VALUES(?, ?, ?, ?, ?, (SELECT COALESCE(MAX(write_seq), 0) + 1 FROM leaderboard))
ON CONFLICT(team_name) DO UPDATE SET
	rmse_10=excluded.rmse_10,
	rmse_30=excluded.rmse_30,
	rmse_60=excluded.rmse_60,
	timestamp_ms=excluded.timestamp_ms,
	write_seq=excluded.write_seq
WHERE excluded.timestamp_ms >= leaderboard.timestamp_ms`

var _ ports.LeaderboardStore = (*SQLiteLeaderboard)(nil)

// SQLiteLeaderboard keeps one row per team in a SQLite database.
type SQLiteLeaderboard struct {
	db     *sql.DB
	DBPath string
	logger *slog.Logger
}

// NewSQLiteLeaderboard opens (or creates) the database at dbPath and ensures
// the schema exists. ":memory:" opens a private in-memory database.
func NewSQLiteLeaderboard(dbPath string, logger *slog.Logger) (*SQLiteLeaderboard, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	logger.Info("opening leaderboard database", "path", dbPath)
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers and keeps ":memory:" a single
	// database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &SQLiteLeaderboard{
		db:     db,
		DBPath: dbPath,
		logger: logger.With("component", "leaderboard", "backend", "sqlite"),
	}, nil
}

// Close closes the database connection.
func (s *SQLiteLeaderboard) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// LoadAll returns every entry in write order.
func (s *SQLiteLeaderboard) LoadAll(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	entries, err := s.query(ctx, "ORDER BY write_seq")
	if err != nil {
		return nil, ports.NewStoreError("load", err)
	}
	return entries, nil
}

// GetSorted returns every entry ascending by RMSE60, ties in write order.
func (s *SQLiteLeaderboard) GetSorted(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	entries, err := s.query(ctx, "ORDER BY rmse_60, write_seq")
	if err != nil {
		return nil, ports.NewStoreError("load", err)
	}
	return entries, nil
}

// Upsert inserts or replaces the entry for entry.TeamName.
func (s *SQLiteLeaderboard) Upsert(ctx context.Context, entry domain.LeaderboardEntry) error {
	res, err := s.db.ExecContext(ctx, sqliteUpsert,
		entry.TeamName,
		entry.RMSE10,
		entry.RMSE30,
		entry.RMSE60,
		entry.Timestamp.UnixMilli(),
	)
	if err != nil {
		return ports.NewStoreError("upsert", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.logger.Info("ignoring stale entry", "team", entry.TeamName, "timestamp", entry.Timestamp)
	}
	return nil
}

// Reset deletes every row.
func (s *SQLiteLeaderboard) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM leaderboard"); err != nil {
		return ports.NewStoreError("reset", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err))
	}
	return nil
}

func (s *SQLiteLeaderboard) query(ctx context.Context, orderBy string) ([]domain.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT team_name, rmse_10, rmse_30, rmse_60, timestamp_ms FROM leaderboard "+orderBy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	entries := []domain.LeaderboardEntry{}
	for rows.Next() {
		var (
			e  domain.LeaderboardEntry
			ms int64
		)
		if err := rows.Scan(&e.TeamName, &e.RMSE10, &e.RMSE30, &e.RMSE60, &ms); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		e.Timestamp = time.UnixMilli(ms).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err)
	}
	return entries, nil
}
