// Package domain contains pure, dependency-free domain models and types
// for the forecast scoring engine.
package domain

// Point is a single hourly ground-truth observation.
type Point struct {
	// Index is the ordinal of the observation among the valid rows of the
	// source, so consecutive points in a window have consecutive indexes.
	Index int
	// Temperature is the observed value the forecasts are scored against.
	Temperature float64
}

// GroundTruthSeries is the evaluation window of hourly observations that
// predictions are aligned against. A series returned by a GroundTruthSource
// may be shared between requests and MUST NOT be mutated.
type GroundTruthSeries struct {
	Points []Point
}

// NewGroundTruthSeries builds a series from raw temperatures, numbering the
// points from startIndex.
func NewGroundTruthSeries(startIndex int, temperatures []float64) GroundTruthSeries {
	points := make([]Point, len(temperatures))
	for i, t := range temperatures {
		points[i] = Point{Index: startIndex + i, Temperature: t}
	}
	return GroundTruthSeries{Points: points}
}

// Len returns the number of points in the window.
func (s GroundTruthSeries) Len() int { return len(s.Points) }

// Temperatures returns a copy of the temperature values in window order.
func (s GroundTruthSeries) Temperatures() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Temperature
	}
	return out
}

// PredictionSet is one forecast value per hour, index 0 aligned with the
// first hour of the evaluation window.
type PredictionSet []float64
