package domain

import (
	"errors"
	"fmt"
)

// AnchorPolicy selects how the evaluation window is cut from the full
// ground-truth record.
type AnchorPolicy string

// Supported anchor policies.
const (
	// AnchorFixedStart opens the window at the first row whose day is at
	// least Anchor.StartDay; every later valid row belongs to the window.
	AnchorFixedStart AnchorPolicy = "fixed_start"

	// AnchorTail takes the last Anchor.Window valid points of the record.
	AnchorTail AnchorPolicy = "tail"
)

// DefaultStartDay is the first day of the forecast period in the reference
// dataset.
const DefaultStartDay = 1828

// ErrAnchorNotFound indicates that a fixed-start anchor day never occurs in
// the record. It always travels together with ErrDataUnavailable.
var ErrAnchorNotFound = errors.New("anchor day not found")

// Anchor configures the evaluation window.
type Anchor struct {
	Policy AnchorPolicy
	// StartDay is used by AnchorFixedStart.
	StartDay int
	// Window is the number of points kept by AnchorTail. Zero means
	// Horizon60Days.
	Window int
}

// Observation is one parsed row of the ground-truth record. Rows whose
// fields failed to parse are kept with the matching Has flag unset so that
// anchoring sees the same rows as the source file.
type Observation struct {
	Day            int
	HasDay         bool
	Temperature    float64
	HasTemperature bool
}

// SelectWindow applies anchor to observations, which must be in
// chronological order. Observations without a temperature are dropped and
// never zero-filled. It fails with an error wrapping ErrDataUnavailable when
// the window would be empty.
func SelectWindow(observations []Observation, anchor Anchor) (GroundTruthSeries, error) {
	switch anchor.Policy {
	case AnchorFixedStart:
		return selectFixedStart(observations, anchor.StartDay)
	case AnchorTail:
		window := anchor.Window
		if window <= 0 {
			window = Horizon60Days
		}
		return selectTail(observations, window)
	default:
		return GroundTruthSeries{}, fmt.Errorf("%w: unknown anchor policy %q", ErrDataUnavailable, anchor.Policy)
	}
}

func selectFixedStart(observations []Observation, startDay int) (GroundTruthSeries, error) {
	var (
		temps      []float64
		startIndex int
		started    bool
		valid      int
	)
	for _, o := range observations {
		if !started && o.HasDay && o.Day >= startDay {
			started = true
			startIndex = valid
		}
		if !o.HasTemperature {
			continue
		}
		if started {
			temps = append(temps, o.Temperature)
		}
		valid++
	}

	if !started {
		return GroundTruthSeries{}, fmt.Errorf("%w: %w: day %d", ErrDataUnavailable, ErrAnchorNotFound, startDay)
	}
	if len(temps) == 0 {
		return GroundTruthSeries{}, fmt.Errorf("%w: no valid temperatures from day %d", ErrDataUnavailable, startDay)
	}
	return NewGroundTruthSeries(startIndex, temps), nil
}

func selectTail(observations []Observation, window int) (GroundTruthSeries, error) {
	temps := make([]float64, 0, len(observations))
	for _, o := range observations {
		if o.HasTemperature {
			temps = append(temps, o.Temperature)
		}
	}
	if len(temps) == 0 {
		return GroundTruthSeries{}, fmt.Errorf("%w: no valid temperatures", ErrDataUnavailable)
	}

	start := max(len(temps)-window, 0)
	return NewGroundTruthSeries(start, temps[start:]), nil
}
