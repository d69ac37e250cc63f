// Package groundtruth loads the reference temperature record that forecasts
// are scored against.
package groundtruth

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-leaderboard/internal/domain"
	"github.com/ahrav/go-leaderboard/internal/ports"
)

// Default header names of the reference dataset
// (day,time,humidity,pressure,temperature,...).
const (
	DefaultDayColumn         = "day"
	DefaultTemperatureColumn = "temperature"
)

// Options configures a CSVSource.
type Options struct {
	// Path is the CSV file holding the ground-truth record.
	Path string
	// DayColumn and TemperatureColumn are header names; empty means the
	// package defaults.
	DayColumn         string
	TemperatureColumn string
	// Anchor selects the evaluation window.
	Anchor domain.Anchor
	// Logger receives warnings about the source; nil means slog.Default().
	Logger *slog.Logger
}

var _ ports.GroundTruthSource = (*CSVSource)(nil)

// CSVSource reads the ground-truth CSV on every Load and caches the parsed
// window under the SHA-256 of the file contents, so an edited file is
// picked up on the next request while unchanged content is parsed once.
type CSVSource struct {
	opts   Options
	logger *slog.Logger

	// cache maps content hash to the anchored window. Cached series are
	// shared between callers and MUST NOT be mutated.
	cache   map[string]domain.GroundTruthSeries
	cacheMu sync.RWMutex
	// sf collapses concurrent parses of identical content.
	sf singleflight.Group
}

// NewCSVSource creates a source for the given options.
func NewCSVSource(opts Options) *CSVSource {
	if opts.DayColumn == "" {
		opts.DayColumn = DefaultDayColumn
	}
	if opts.TemperatureColumn == "" {
		opts.TemperatureColumn = DefaultTemperatureColumn
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSource{
		opts:   opts,
		logger: logger.With("component", "groundtruth", "path", opts.Path),
		cache:  make(map[string]domain.GroundTruthSeries),
	}
}

// Load reads the source file and returns its evaluation window.
// Every failure wraps domain.ErrDataUnavailable.
func (s *CSVSource) Load(ctx context.Context) (domain.GroundTruthSeries, error) {
	if err := ctx.Err(); err != nil {
		return domain.GroundTruthSeries{}, fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
	}

	data, err := os.ReadFile(filepath.Clean(s.opts.Path))
	if err != nil {
		return domain.GroundTruthSeries{}, fmt.Errorf("%w: read %s: %w", domain.ErrDataUnavailable, s.opts.Path, err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	v, err, _ := s.sf.Do(hash, func() (any, error) {
		if series, ok := s.cached(hash); ok {
			return series, nil
		}

		series, err := s.parse(data)
		if err != nil {
			return nil, err
		}

		s.cacheMu.Lock()
		s.cache = map[string]domain.GroundTruthSeries{hash: series}
		s.cacheMu.Unlock()

		s.logger.Info("ground truth loaded",
			"points", series.Len(),
			"policy", string(s.opts.Anchor.Policy),
			"sha256", hash[:12],
		)
		return series, nil
	})
	if err != nil {
		return domain.GroundTruthSeries{}, err
	}
	return v.(domain.GroundTruthSeries), nil
}

// ClearCache drops the parsed window so the next Load re-parses the file.
func (s *CSVSource) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()

	s.cache = make(map[string]domain.GroundTruthSeries)
}

func (s *CSVSource) cached(hash string) (domain.GroundTruthSeries, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()

	series, ok := s.cache[hash]
	return series, ok
}

func (s *CSVSource) parse(data []byte) (domain.GroundTruthSeries, error) {
	observations, err := ReadObservations(bytes.NewReader(data), s.opts.DayColumn, s.opts.TemperatureColumn)
	if err != nil {
		return domain.GroundTruthSeries{}, fmt.Errorf("%w: %s: %w", domain.ErrDataUnavailable, s.opts.Path, err)
	}

	series, err := domain.SelectWindow(observations, s.opts.Anchor)
	if err != nil {
		if errors.Is(err, domain.ErrAnchorNotFound) {
			s.logger.Warn("anchor day not found in ground truth, scoring impossible",
				"start_day", s.opts.Anchor.StartDay,
				"rows", len(observations),
			)
		}
		return domain.GroundTruthSeries{}, err
	}
	return series, nil
}

// ReadObservations parses a headed CSV record into observations, locating
// the day and temperature columns by header name. A missing day column
// only leaves HasDay unset; a missing temperature column is an error. Rows
// whose fields do not parse are kept with the corresponding flag unset;
// rows are never reordered.
func ReadObservations(r io.Reader, dayColumn, temperatureColumn string) ([]domain.Observation, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	dayIdx, tempIdx := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")) {
		case dayColumn:
			dayIdx = i
		case temperatureColumn:
			tempIdx = i
		}
	}
	if tempIdx < 0 {
		return nil, fmt.Errorf("header has no %q column", temperatureColumn)
	}

	var observations []domain.Observation
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(observations)+2, err)
		}

		var o domain.Observation
		if dayIdx >= 0 && dayIdx < len(record) {
			o.Day, o.HasDay = parseDay(record[dayIdx])
		}
		if tempIdx < len(record) {
			if temp, err := strconv.ParseFloat(strings.TrimSpace(record[tempIdx]), 64); err == nil &&
				!math.IsNaN(temp) && !math.IsInf(temp, 0) {
				o.Temperature, o.HasTemperature = temp, true
			}
		}
		observations = append(observations, o)
	}
	return observations, nil
}

// parseDay accepts integral day values, including ones written as floats
// such as "1828.0".
func parseDay(field string) (int, bool) {
	field = strings.TrimSpace(field)
	if day, err := strconv.Atoi(field); err == nil {
		return day, true
	}
	f, err := strconv.ParseFloat(field, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int(math.Trunc(f)), true
}
