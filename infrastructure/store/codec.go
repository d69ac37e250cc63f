// Package store provides durable LeaderboardStore implementations and the
// blob backends they persist to.
package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ahrav/go-leaderboard/internal/domain"
)

// record is the persisted form of a leaderboard entry. Field names and the
// millisecond timestamp match the document format already in use.
type record struct {
	TeamName  string  `json:"teamName"`
	RMSE10    float64 `json:"rmse_10"`
	RMSE30    float64 `json:"rmse_30"`
	RMSE60    float64 `json:"rmse_60"`
	Timestamp int64   `json:"timestamp"`
}

func toRecord(e domain.LeaderboardEntry) record {
	return record{
		TeamName:  e.TeamName,
		RMSE10:    e.RMSE10,
		RMSE30:    e.RMSE30,
		RMSE60:    e.RMSE60,
		Timestamp: e.Timestamp.UnixMilli(),
	}
}

func (r record) toEntry() domain.LeaderboardEntry {
	return domain.LeaderboardEntry{
		TeamName:  r.TeamName,
		RMSE10:    r.RMSE10,
		RMSE30:    r.RMSE30,
		RMSE60:    r.RMSE60,
		Timestamp: time.UnixMilli(r.Timestamp).UTC(),
	}
}

// EncodeEntries serializes entries, in the given order, as an indented JSON
// array.
func EncodeEntries(entries []domain.LeaderboardEntry) ([]byte, error) {
	records := make([]record, len(entries))
	for i, e := range entries {
		records[i] = toRecord(e)
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode leaderboard: %w", err)
	}
	return data, nil
}

// DecodeEntries parses a document produced by EncodeEntries. An empty
// document decodes to an empty leaderboard. A document holding several
// rows for one team collapses to the newest of them, taking the position of
// the last such row.
func DecodeEntries(data []byte) ([]domain.LeaderboardEntry, error) {
	if len(data) == 0 {
		return []domain.LeaderboardEntry{}, nil
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode leaderboard: %w", err)
	}
	entries := make([]domain.LeaderboardEntry, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		e := r.toEntry()
		if _, dup := seen[e.TeamName]; !dup {
			seen[e.TeamName] = struct{}{}
			entries = append(entries, e)
			continue
		}
		entries = collapseDuplicate(entries, e)
	}
	return entries, nil
}

// collapseDuplicate merges a repeated row for a team already in entries.
// The newer entry wins; on equal timestamps the later row does.
func collapseDuplicate(entries []domain.LeaderboardEntry, e domain.LeaderboardEntry) []domain.LeaderboardEntry {
	replaced, applied := domain.ReplaceEntry(entries, e)
	if !applied {
		return entries
	}
	return replaced
}
