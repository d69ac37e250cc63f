// Package testutils generates synthetic ground-truth records and forecast
// files for tests and local development.
package testutils

import (
	"encoding/csv"
	"io"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/ahrav/go-leaderboard/internal/domain"
)

// HoursPerDay is the number of observations generated for each day.
const HoursPerDay = 24

// RecordOptions shapes a synthetic hourly temperature record.
type RecordOptions struct {
	// FirstDay is the day number of the first row.
	FirstDay int
	// Days is the number of days generated.
	Days int
	// Mean is the average temperature.
	Mean float64
	// DailyAmplitude is the half-range of the daily cycle.
	DailyAmplitude float64
	// Noise is the standard deviation of the added Gaussian noise.
	Noise float64
	// Seed makes the record reproducible.
	Seed uint64
}

// DefaultRecordOptions returns a record that covers the default evaluation
// window with a month of history before it.
func DefaultRecordOptions() RecordOptions {
	return RecordOptions{
		FirstDay:       domain.DefaultStartDay - 30,
		Days:           30 + domain.Horizon60Days/HoursPerDay,
		Mean:           15,
		DailyAmplitude: 6,
		Noise:          0.5,
		Seed:           1,
	}
}

// GenerateRecord builds the observations described by opts in
// chronological order.
func GenerateRecord(opts RecordOptions) []domain.Observation {
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))
	out := make([]domain.Observation, 0, opts.Days*HoursPerDay)
	for d := 0; d < opts.Days; d++ {
		for h := 0; h < HoursPerDay; h++ {
			cycle := math.Sin(2 * math.Pi * float64(h-9) / HoursPerDay)
			temp := opts.Mean + opts.DailyAmplitude*cycle + opts.Noise*rng.NormFloat64()
			out = append(out, domain.Observation{
				Day:            opts.FirstDay + d,
				HasDay:         true,
				Temperature:    round(temp),
				HasTemperature: true,
			})
		}
	}
	return out
}

// WriteRecordCSV writes observations as a headed CSV with the given column
// names. Observations without a day or temperature get an empty field.
func WriteRecordCSV(w io.Writer, observations []domain.Observation, dayColumn, temperatureColumn string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{dayColumn, temperatureColumn}); err != nil {
		return err
	}
	for _, o := range observations {
		var day, temp string
		if o.HasDay {
			day = strconv.Itoa(o.Day)
		}
		if o.HasTemperature {
			temp = strconv.FormatFloat(o.Temperature, 'f', -1, 64)
		}
		if err := cw.Write([]string{day, temp}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Forecast perturbs the ground truth with a constant bias plus Gaussian
// noise, giving a prediction set whose RMSE is roughly
// sqrt(bias^2 + noise^2).
func Forecast(series domain.GroundTruthSeries, bias, noise float64, seed uint64) domain.PredictionSet {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make(domain.PredictionSet, series.Len())
	for i, p := range series.Points {
		out[i] = round(p.Temperature + bias + noise*rng.NormFloat64())
	}
	return out
}

// WritePredictionsCSV writes predictions in the upload format: a header
// then one "hour,value" row per prediction.
func WritePredictionsCSV(w io.Writer, predictions domain.PredictionSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"hour", "temperature"}); err != nil {
		return err
	}
	for i, v := range predictions {
		if err := cw.Write([]string{strconv.Itoa(i), strconv.FormatFloat(v, 'f', -1, 64)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
