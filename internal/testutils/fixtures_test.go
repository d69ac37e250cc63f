package testutils_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-leaderboard/infrastructure/groundtruth"
	"github.com/ahrav/go-leaderboard/infrastructure/upload"
	"github.com/ahrav/go-leaderboard/internal/domain"
	"github.com/ahrav/go-leaderboard/internal/testutils"
)

func TestGenerateRecord_Deterministic(t *testing.T) {
	opts := testutils.DefaultRecordOptions()
	a := testutils.GenerateRecord(opts)
	b := testutils.GenerateRecord(opts)
	assert.Equal(t, a, b)
	assert.Len(t, a, opts.Days*testutils.HoursPerDay)

	opts.Seed = 2
	assert.NotEqual(t, a, testutils.GenerateRecord(opts))
}

func TestRecordRoundTripsThroughCSVSource(t *testing.T) {
	record := testutils.GenerateRecord(testutils.DefaultRecordOptions())

	var buf bytes.Buffer
	require.NoError(t, testutils.WriteRecordCSV(&buf, record, "day", "temperature"))

	parsed, err := groundtruth.ReadObservations(&buf, "day", "temperature")
	require.NoError(t, err)
	assert.Equal(t, record, parsed)

	series, err := domain.SelectWindow(parsed, domain.Anchor{
		Policy:   domain.AnchorFixedStart,
		StartDay: domain.DefaultStartDay,
		Window:   domain.Horizon60Days,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Horizon60Days, series.Len())
}

func TestForecastScoresNearBias(t *testing.T) {
	record := testutils.GenerateRecord(testutils.DefaultRecordOptions())
	series, err := domain.SelectWindow(record, domain.Anchor{Policy: domain.AnchorTail, Window: domain.Horizon60Days})
	require.NoError(t, err)

	preds := testutils.Forecast(series, 1, 0, 7)

	var buf bytes.Buffer
	require.NoError(t, testutils.WritePredictionsCSV(&buf, preds))
	uploaded, err := upload.ParsePredictions(&buf)
	require.NoError(t, err)
	assert.Equal(t, preds, uploaded, "header row is skipped")

	score, err := domain.Score(uploaded, series)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, score.RMSE10, 1e-6)
	assert.InDelta(t, 1.0, score.RMSE60, 1e-6)
	assert.Zero(t, score.IgnoredPredictions)
}
