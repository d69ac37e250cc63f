// Package httpapi exposes submissions and the leaderboard over HTTP.
package httpapi

import (
	"github.com/ahrav/go-leaderboard/internal/application"
	"github.com/ahrav/go-leaderboard/internal/domain"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a stable machine-readable code and a human message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeValidation       = "VALIDATION_ERROR"
	CodeInsufficientData = "INSUFFICIENT_DATA"
	CodeDataUnavailable  = "DATA_UNAVAILABLE"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// SubmitResponse is returned for a scored submission.
type SubmitResponse struct {
	ID                 string  `json:"id"`
	TeamName           string  `json:"teamName"`
	RMSE10             float64 `json:"rmse_10"`
	RMSE30             float64 `json:"rmse_30"`
	RMSE60             float64 `json:"rmse_60"`
	IgnoredPredictions int     `json:"ignored_predictions"`
	// Horizons reports how many points each RMSE was computed over.
	Horizons []HorizonResponse `json:"horizons"`
	// Warning is set when the score could not be recorded.
	Warning string `json:"warning,omitempty"`
	// Deferred reports that the entry is queued for a later write.
	Deferred bool `json:"deferred,omitempty"`
}

// HorizonResponse is the RMSE of one horizon. Truncated is set when Count
// fell short of Hours because the aligned data ended early.
type HorizonResponse struct {
	Hours     int     `json:"hours"`
	Count     int     `json:"count"`
	RMSE      float64 `json:"rmse"`
	Truncated bool    `json:"truncated"`
}

// EntryResponse is one leaderboard row. Timestamp is in Unix milliseconds.
type EntryResponse struct {
	TeamName  string  `json:"teamName"`
	RMSE10    float64 `json:"rmse_10"`
	RMSE30    float64 `json:"rmse_30"`
	RMSE60    float64 `json:"rmse_60"`
	Timestamp int64   `json:"timestamp"`
}

func newSubmitResponse(res *application.SubmissionResult) SubmitResponse {
	return SubmitResponse{
		ID:                 res.ID.String(),
		TeamName:           res.TeamName,
		RMSE10:             res.Score.RMSE10,
		RMSE30:             res.Score.RMSE30,
		RMSE60:             res.Score.RMSE60,
		IgnoredPredictions: res.Score.IgnoredPredictions,
		Horizons:           newHorizonResponses(res.Score.Horizons),
		Deferred:           res.Deferred,
	}
}

func newHorizonResponses(horizons []domain.HorizonScore) []HorizonResponse {
	out := make([]HorizonResponse, len(horizons))
	for i, h := range horizons {
		out[i] = HorizonResponse{Hours: h.Hours, Count: h.Count, RMSE: h.RMSE, Truncated: h.Truncated()}
	}
	return out
}

func newEntryResponses(entries []domain.LeaderboardEntry) []EntryResponse {
	out := make([]EntryResponse, len(entries))
	for i, e := range entries {
		out[i] = EntryResponse{
			TeamName:  e.TeamName,
			RMSE10:    e.RMSE10,
			RMSE30:    e.RMSE30,
			RMSE60:    e.RMSE60,
			Timestamp: e.Timestamp.UnixMilli(),
		}
	}
	return out
}
