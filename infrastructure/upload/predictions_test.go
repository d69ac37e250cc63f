package upload

import (
	"errors"
	"math"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-leaderboard/internal/domain"
)

func TestParsePredictions(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  domain.PredictionSet
	}{
		{
			name:  "bare column",
			input: "1.5\n2.5\n3\n",
			want:  domain.PredictionSet{1.5, 2.5, 3},
		},
		{
			name:  "header and two columns",
			input: "timestamp,temperature\n2024-01-01T00:00,20.1\n2024-01-01T01:00,19.8\n",
			want:  domain.PredictionSet{20.1, 19.8},
		},
		{
			name:  "windows line endings and quotes",
			input: "\"a\",\"10\"\r\n'b','-2.25'\r\n",
			want:  domain.PredictionSet{10, -2.25},
		},
		{
			name:  "blank and padded lines",
			input: "\n   \n  4 \n\n5\n",
			want:  domain.PredictionSet{4, 5},
		},
		{
			name:  "unparseable and nan rows skipped",
			input: "1\nn/a\nNaN\n2\nx,\n",
			want:  domain.PredictionSet{1, 2},
		},
		{
			name:  "no trailing newline",
			input: "7",
			want:  domain.PredictionSet{7},
		},
		{
			name:  "exponent notation",
			input: "1e2\n-3.5E-1\n",
			want:  domain.PredictionSet{100, -0.35},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePredictions(strings.NewReader(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePredictions_InfinityKept(t *testing.T) {
	got, err := ParsePredictions(strings.NewReader("1\n+Inf\n"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, math.IsInf(got[1], 1))
}

func TestParsePredictions_NothingParsed(t *testing.T) {
	for _, input := range []string{"", "\n\n", "header\nfoo\nbar\n", "NaN\n"} {
		_, err := ParsePredictions(strings.NewReader(input))
		require.Error(t, err, "%q", input)
		assert.True(t, errors.Is(err, domain.ErrValidation))
		assert.Contains(t, err.Error(), "could not parse predictions")
	}
}

func TestParsePredictions_LineTooLong(t *testing.T) {
	input := "1\n" + strings.Repeat("9", MaxLineBytes+1) + "\n"

	_, err := ParsePredictions(strings.NewReader(input))
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Contains(t, err.Error(), "line longer than")
}

func TestParsePredictions_ReadError(t *testing.T) {
	_, err := ParsePredictions(iotest.ErrReader(errors.New("connection reset")))
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrValidation))
	assert.Contains(t, err.Error(), "connection reset")
}
