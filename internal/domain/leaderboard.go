package domain

import (
	"slices"
	"time"
)

// LeaderboardEntry is the best-known score of one team. TeamName is the
// unique key of the leaderboard.
type LeaderboardEntry struct {
	TeamName  string
	RMSE10    float64
	RMSE30    float64
	RMSE60    float64
	Timestamp time.Time
}

// NewLeaderboardEntry builds an entry from a score. The timestamp is
// truncated to millisecond precision, the resolution of the persisted form.
func NewLeaderboardEntry(teamName string, score ScoreResult, at time.Time) LeaderboardEntry {
	return LeaderboardEntry{
		TeamName:  teamName,
		RMSE10:    score.RMSE10,
		RMSE30:    score.RMSE30,
		RMSE60:    score.RMSE60,
		Timestamp: at.UTC().Truncate(time.Millisecond),
	}
}

// SortEntries orders entries ascending by RMSE60 in place. The sort is
// stable: entries with equal RMSE60 keep their relative order, which for a
// persisted leaderboard is write order.
func SortEntries(entries []LeaderboardEntry) {
	slices.SortStableFunc(entries, func(a, b LeaderboardEntry) int {
		switch {
		case a.RMSE60 < b.RMSE60:
			return -1
		case a.RMSE60 > b.RMSE60:
			return 1
		default:
			return 0
		}
	})
}

// ReplaceEntry returns entries with any entry for entry.TeamName removed and
// entry appended, so the replaced team counts as most recently written.
//
// If the stored entry for the team is strictly newer than entry, entries is
// returned unchanged and applied is false. This keeps replays of deferred
// writes from overwriting a later submission.
func ReplaceEntry(entries []LeaderboardEntry, entry LeaderboardEntry) (out []LeaderboardEntry, applied bool) {
	out = make([]LeaderboardEntry, 0, len(entries)+1)
	for _, e := range entries {
		if e.TeamName != entry.TeamName {
			out = append(out, e)
			continue
		}
		if e.Timestamp.After(entry.Timestamp) {
			return entries, false
		}
	}
	return append(out, entry), true
}
