package domain

import "math"

// Horizon lengths in hourly points.
const (
	// Horizon10Days covers the first 10 days of the evaluation window.
	Horizon10Days = 240
	// Horizon30Days covers the first 30 days of the evaluation window.
	Horizon30Days = 720
	// Horizon60Days covers the full 60-day evaluation window and is the
	// ranking key of the leaderboard.
	Horizon60Days = 1440

	// MinScorablePoints is the shortest aligned length that can be scored.
	MinScorablePoints = Horizon10Days
)

// Horizons lists the reported horizons in ascending order.
var Horizons = []int{Horizon10Days, Horizon30Days, Horizon60Days}

// HorizonScore is the RMSE for one horizon together with the number of
// points it was actually computed over. Count is lower than Hours when the
// aligned data was shorter than the nominal horizon.
type HorizonScore struct {
	Hours int     `json:"hours"`
	Count int     `json:"count"`
	RMSE  float64 `json:"rmse"`
}

// Truncated reports whether the horizon was computed over fewer points than
// its nominal length.
func (h HorizonScore) Truncated() bool { return h.Count < h.Hours }

// ScoreResult holds the multi-horizon error of one prediction set.
type ScoreResult struct {
	RMSE10 float64 `json:"rmse_10"`
	RMSE30 float64 `json:"rmse_30"`
	RMSE60 float64 `json:"rmse_60"`

	// Horizons carries per-horizon point counts in the order of Horizons.
	Horizons []HorizonScore `json:"horizons"`

	// IgnoredPredictions is the number of trailing predictions that had no
	// ground truth to compare against.
	IgnoredPredictions int `json:"ignored_predictions"`
}

// Score computes horizon-bucketed RMSE of predictions against groundTruth.
// Predictions beyond the length of the ground truth are ignored rather than
// rejected. Score is pure and safe for concurrent use.
//
// Score returns an *InsufficientDataError when fewer than
// MinScorablePoints points can be aligned.
func Score(predictions PredictionSet, groundTruth GroundTruthSeries) (ScoreResult, error) {
	limit := min(len(predictions), groundTruth.Len())
	if limit < MinScorablePoints {
		return ScoreResult{}, &InsufficientDataError{Got: limit, Required: MinScorablePoints}
	}

	result := ScoreResult{
		Horizons:           make([]HorizonScore, 0, len(Horizons)),
		IgnoredPredictions: max(len(predictions)-groundTruth.Len(), 0),
	}

	// Accumulate squared error once and read the running sum at each horizon
	// boundary; horizons are ascending so a single pass suffices.
	var sumSq float64
	i := 0
	for _, h := range Horizons {
		count := min(h, limit)
		for ; i < count; i++ {
			diff := predictions[i] - groundTruth.Points[i].Temperature
			sumSq += diff * diff
		}
		result.Horizons = append(result.Horizons, HorizonScore{
			Hours: h,
			Count: count,
			RMSE:  math.Sqrt(sumSq / float64(count)),
		})
	}

	result.RMSE10 = result.Horizons[0].RMSE
	result.RMSE30 = result.Horizons[1].RMSE
	result.RMSE60 = result.Horizons[2].RMSE
	return result, nil
}
