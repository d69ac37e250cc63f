package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"

	"github.com/ahrav/go-leaderboard/internal/domain"
	"github.com/ahrav/go-leaderboard/internal/ports"
)

// MaxTeamNameLength is the longest accepted team name in runes, measured
// after normalization.
const MaxTeamNameLength = 100

// ErrScoreNotRecorded indicates that a submission was scored but the entry
// could not be written to the leaderboard. The score is still returned.
var ErrScoreNotRecorded = errors.New("score computed but not recorded")

// Stage is the furthest point a submission reached.
type Stage string

// Submission stages in the order they are reached.
const (
	StageReceived  Stage = "received"
	StageValidated Stage = "validated"
	StageScored    Stage = "scored"
	StagePersisted Stage = "persisted"
	StageDone      Stage = "done"
)

// Submission outcomes used as metric labels.
const (
	outcomeAccepted        = "accepted"
	outcomeInvalid         = "invalid"
	outcomeUnavailable     = "data_unavailable"
	outcomeInsufficient    = "insufficient_data"
	outcomeNotRecorded     = "not_recorded"
	outcomeDeferred        = "deferred"
	submissionLatencyLabel = "submission"
)

// SubmissionResult describes how far a submission got. Score and Entry are
// set once the submission reaches StageScored.
type SubmissionResult struct {
	ID       uuid.UUID
	TeamName string
	Score    domain.ScoreResult
	Entry    domain.LeaderboardEntry
	Stage    Stage
	// Persisted reports whether Entry was written to the leaderboard.
	Persisted bool
	// Deferred reports whether Entry was queued for a later write after
	// the store failed.
	Deferred bool
}

// submission is the validated shape of a request.
type submission struct {
	TeamName    string               `validate:"required,max=100"`
	Predictions domain.PredictionSet `validate:"required,min=1,finite"`
}

// SubmissionCoordinator runs a submission through validation, scoring and
// persistence. It holds no per-request state and is safe for concurrent
// use.
type SubmissionCoordinator struct {
	source   ports.GroundTruthSource
	store    ports.LeaderboardStore
	deferred ports.DeferredWriter
	metrics  ports.MetricsCollector
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
	validate *validator.Validate
}

// CoordinatorOption configures a SubmissionCoordinator.
type CoordinatorOption func(*SubmissionCoordinator)

// WithDeferredWriter queues entries whose upsert failed.
func WithDeferredWriter(w ports.DeferredWriter) CoordinatorOption {
	return func(c *SubmissionCoordinator) { c.deferred = w }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m ports.MetricsCollector) CoordinatorOption {
	return func(c *SubmissionCoordinator) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *SubmissionCoordinator) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the source of entry timestamps.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *SubmissionCoordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithTracer sets the tracer used for submission spans. The default is the
// global otel tracer provider.
func WithTracer(t trace.Tracer) CoordinatorOption {
	return func(c *SubmissionCoordinator) {
		if t != nil {
			c.tracer = t
		}
	}
}

// NewSubmissionCoordinator wires a coordinator to its ground truth and
// leaderboard.
func NewSubmissionCoordinator(source ports.GroundTruthSource, store ports.LeaderboardStore, opts ...CoordinatorOption) (*SubmissionCoordinator, error) {
	if source == nil {
		return nil, errors.New("ground truth source is required")
	}
	if store == nil {
		return nil, errors.New("leaderboard store is required")
	}

	v := validator.New()
	if err := v.RegisterValidation("finite", validateFinite); err != nil {
		return nil, fmt.Errorf("failed to register finite validator: %w", err)
	}

	c := &SubmissionCoordinator{
		source:   source,
		store:    store,
		metrics:  ports.NoopMetrics{},
		logger:   slog.Default(),
		tracer:   otel.Tracer("submission-coordinator"),
		now:      time.Now,
		validate: v,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "coordinator")
	return c, nil
}

// Submit validates, scores and records one submission. The returned result
// is never nil and its Stage tells how far the submission got.
//
// Errors match domain.ErrValidation, domain.ErrDataUnavailable or
// domain.ErrInsufficientData through errors.Is. When the score was computed
// but the upsert failed, the error wraps both ErrScoreNotRecorded and the
// store error, and the result carries the score.
func (c *SubmissionCoordinator) Submit(ctx context.Context, teamName string, predictions domain.PredictionSet) (*SubmissionResult, error) {
	id := uuid.New()
	start := time.Now()

	ctx, span := c.tracer.Start(ctx, "SubmissionCoordinator.Submit",
		trace.WithAttributes(
			attribute.String("submission.id", id.String()),
			attribute.Int("submission.predictions", len(predictions)),
		),
	)
	defer span.End()

	result := &SubmissionResult{ID: id, Stage: StageReceived}
	log := c.logger.With("submission_id", id.String())

	finish := func(outcome string, err error) (*SubmissionResult, error) {
		span.SetAttributes(
			attribute.String("submission.stage", string(result.Stage)),
			attribute.String("submission.outcome", outcome),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "submission recorded")
		}
		labels := map[string]string{"outcome": outcome}
		c.metrics.RecordCounter("submissions_total", 1, labels)
		c.metrics.RecordLatency(submissionLatencyLabel, time.Since(start), labels)
		return result, err
	}

	team, err := c.validateSubmission(teamName, predictions)
	if err != nil {
		log.Info("rejected submission", "err", err)
		return finish(outcomeInvalid, err)
	}
	result.TeamName = team
	result.Stage = StageValidated
	span.SetAttributes(attribute.String("submission.team", team))
	log = log.With("team", team)

	groundTruth, err := c.source.Load(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrDataUnavailable) {
			err = fmt.Errorf("%w: %w", domain.ErrDataUnavailable, err)
		}
		log.Error("ground truth unavailable", "err", err)
		return finish(outcomeUnavailable, err)
	}

	score, err := domain.Score(predictions, groundTruth)
	if err != nil {
		log.Info("submission could not be scored", "err", err)
		return finish(outcomeInsufficient, err)
	}
	result.Score = score
	result.Entry = domain.NewLeaderboardEntry(team, score, c.now())
	result.Stage = StageScored
	c.recordScore(score)
	span.AddEvent("submission.scored", trace.WithAttributes(
		attribute.Float64("rmse_10", score.RMSE10),
		attribute.Float64("rmse_30", score.RMSE30),
		attribute.Float64("rmse_60", score.RMSE60),
		attribute.Int("ignored_predictions", score.IgnoredPredictions),
	))

	if err := c.store.Upsert(ctx, result.Entry); err != nil {
		outcome := outcomeNotRecorded
		if c.deferred != nil && c.deferred.Defer(result.Entry) {
			result.Deferred = true
			outcome = outcomeDeferred
		}
		log.Error("failed to record score", "deferred", result.Deferred, "err", err)
		return finish(outcome, fmt.Errorf("%w: %w", ErrScoreNotRecorded, err))
	}
	result.Persisted = true
	result.Stage = StagePersisted

	log.Info("submission recorded",
		"rmse_10", score.RMSE10,
		"rmse_30", score.RMSE30,
		"rmse_60", score.RMSE60,
		"ignored_predictions", score.IgnoredPredictions,
	)
	result.Stage = StageDone
	return finish(outcomeAccepted, nil)
}

// GetLeaderboard returns every entry ascending by RMSE60.
func (c *SubmissionCoordinator) GetLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	start := time.Now()
	entries, err := c.store.GetSorted(ctx)
	c.metrics.RecordLatency("leaderboard_read", time.Since(start), nil)
	if err != nil {
		return nil, err
	}
	c.metrics.RecordGauge("leaderboard_entries", float64(len(entries)), nil)
	return entries, nil
}

// ResetLeaderboard removes every entry and reports how many there were.
func (c *SubmissionCoordinator) ResetLeaderboard(ctx context.Context) (int, error) {
	entries, err := c.store.LoadAll(ctx)
	if err != nil {
		return 0, err
	}
	if err := c.store.Reset(ctx); err != nil {
		return 0, err
	}
	c.metrics.RecordGauge("leaderboard_entries", 0, nil)
	c.logger.Warn("leaderboard reset", "removed", len(entries))
	return len(entries), nil
}

// validateSubmission normalizes the team name and checks the request
// before any I/O happens.
func (c *SubmissionCoordinator) validateSubmission(teamName string, predictions domain.PredictionSet) (string, error) {
	req := submission{
		TeamName:    NormalizeTeamName(teamName),
		Predictions: predictions,
	}

	err := c.validate.Struct(req)
	if err == nil {
		return req.TeamName, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return "", fmt.Errorf("validate submission: %w", err)
	}

	verr := domain.NewValidationError("submission")
	for _, fe := range fieldErrs {
		verr.AddError(describeFieldError(fe, predictions))
	}
	return "", verr
}

func describeFieldError(fe validator.FieldError, predictions domain.PredictionSet) string {
	switch fe.Field() {
	case "TeamName":
		if fe.Tag() == "max" {
			return fmt.Sprintf("team name must be at most %d characters", MaxTeamNameLength)
		}
		return "team name is required"
	case "Predictions":
		if fe.Tag() == "finite" {
			for i, p := range predictions {
				if math.IsNaN(p) || math.IsInf(p, 0) {
					return fmt.Sprintf("prediction %d is not a finite number", i)
				}
			}
		}
		return "no predictions provided"
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

func (c *SubmissionCoordinator) recordScore(score domain.ScoreResult) {
	for _, h := range score.Horizons {
		c.metrics.RecordHistogram("submission_rmse", h.RMSE, map[string]string{
			"horizon": fmt.Sprintf("%dd", h.Hours/24),
		})
	}
}

// NormalizeTeamName trims surrounding whitespace and applies Unicode NFC so
// that visually identical names share one leaderboard entry.
func NormalizeTeamName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// validateFinite rejects float slices holding NaN or an infinity.
func validateFinite(fl validator.FieldLevel) bool {
	predictions, ok := fl.Field().Interface().(domain.PredictionSet)
	if !ok {
		return false
	}
	for _, p := range predictions {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return false
		}
	}
	return true
}
