// Package upload turns uploaded prediction files into prediction sets.
package upload

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/ahrav/go-leaderboard/internal/domain"
)

// MaxLineBytes bounds a single line of a predictions file.
const MaxLineBytes = 1 << 20

// ParsePredictions reads one prediction per line from r. Quotes and
// carriage returns are stripped, blank lines are skipped and the value is
// taken from the last comma-separated column, so both a bare column of
// numbers and a "timestamp,value" export are accepted. Lines whose value
// does not parse, such as a header, are skipped. NaN values are skipped;
// infinities are kept and rejected later by submission validation.
//
// ParsePredictions returns a *domain.ValidationError when no line yields a
// number.
func ParsePredictions(r io.Reader) (domain.PredictionSet, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)

	predictions := domain.PredictionSet{}
	for scanner.Scan() {
		value, ok := parseLine(scanner.Text())
		if ok {
			predictions = append(predictions, value)
		}
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			verr := domain.NewValidationError("predictions file")
			verr.AddError(fmt.Sprintf("line longer than %d bytes", MaxLineBytes))
			return nil, verr
		}
		return nil, fmt.Errorf("read predictions: %w", err)
	}

	if len(predictions) == 0 {
		verr := domain.NewValidationError("predictions file")
		verr.AddError("could not parse predictions from file")
		return nil, verr
	}
	return predictions, nil
}

var lineCleaner = strings.NewReplacer(`"`, "", `'`, "", "\r", "")

func parseLine(line string) (float64, bool) {
	clean := strings.TrimSpace(lineCleaner.Replace(line))
	if clean == "" {
		return 0, false
	}
	if i := strings.LastIndexByte(clean, ','); i >= 0 {
		clean = clean[i+1:]
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(clean), 64)
	if err != nil || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}
