package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-leaderboard/internal/application"
	"github.com/ahrav/go-leaderboard/internal/domain"
	"github.com/ahrav/go-leaderboard/internal/ports"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// stubCoordinator records the last submission and answers with canned
// values.
type stubCoordinator struct {
	result    *application.SubmissionResult
	err       error
	entries   []domain.LeaderboardEntry
	boardErr  error
	gotTeam   string
	gotPreds  domain.PredictionSet
	submitted bool
}

func (s *stubCoordinator) Submit(_ context.Context, team string, preds domain.PredictionSet) (*application.SubmissionResult, error) {
	s.submitted = true
	s.gotTeam = team
	s.gotPreds = preds
	return s.result, s.err
}

func (s *stubCoordinator) GetLeaderboard(context.Context) ([]domain.LeaderboardEntry, error) {
	return s.entries, s.boardErr
}

func scoredResult() *application.SubmissionResult {
	return &application.SubmissionResult{
		ID:       uuid.MustParse("9b2f7a4e-1c3d-4e5f-8a9b-0c1d2e3f4a5b"),
		TeamName: "A",
		Score: domain.ScoreResult{
			RMSE10:             0.5,
			RMSE30:             0.75,
			RMSE60:             1.25,
			Horizons: []domain.HorizonScore{
				{Hours: domain.Horizon10Days, Count: domain.Horizon10Days, RMSE: 0.5},
				{Hours: domain.Horizon30Days, Count: domain.Horizon30Days, RMSE: 0.75},
				{Hours: domain.Horizon60Days, Count: 1000, RMSE: 1.25},
			},
			IgnoredPredictions: 2,
		},
		Stage:     application.StageDone,
		Persisted: true,
	}
}

func newTestServer(coord Coordinator) http.Handler {
	return NewRouter(NewHandler(coord, 1<<16, nopLogger()), RouterOptions{
		AllowedOrigins: []string{"https://forecast.example"},
		Gatherer:       prometheus.NewRegistry(),
		Logger:         nopLogger(),
	})
}

func multipartBody(t *testing.T, fields map[string]string, file string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != "" {
		fw, err := w.CreateFormFile("file", "predictions.csv")
		require.NoError(t, err)
		_, err = fw.Write([]byte(file))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func postSubmit(t *testing.T, srv http.Handler, fields map[string]string, file string) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartBody(t, fields, file)
	req := httptest.NewRequest(http.MethodPost, "/api/submit", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Error
}

func TestSubmit_Success(t *testing.T) {
	coord := &stubCoordinator{result: scoredResult()}
	srv := newTestServer(coord)

	rec := postSubmit(t, srv, map[string]string{"teamName": "A"}, "time,value\n0,1.5\n1,\"2.5\"\r\n")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "A", coord.gotTeam)
	assert.Equal(t, domain.PredictionSet{1.5, 2.5}, coord.gotPreds)

	var body SubmitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, SubmitResponse{
		ID:                 "9b2f7a4e-1c3d-4e5f-8a9b-0c1d2e3f4a5b",
		TeamName:           "A",
		RMSE10:             0.5,
		RMSE30:             0.75,
		RMSE60:             1.25,
		IgnoredPredictions: 2,
		Horizons: []HorizonResponse{
			{Hours: 240, Count: 240, RMSE: 0.5},
			{Hours: 720, Count: 720, RMSE: 0.75},
			{Hours: 1440, Count: 1000, RMSE: 1.25, Truncated: true},
		},
	}, body)
	assert.NotContains(t, rec.Body.String(), "warning")
	assert.Contains(t, rec.Body.String(), `{"hours":1440,"count":1000,"rmse":1.25,"truncated":true}`)
}

func TestSubmit_StatusMapping(t *testing.T) {
	notRecorded := scoredResult()
	notRecorded.Persisted = false
	notRecorded.Stage = application.StageScored

	deferred := scoredResult()
	deferred.Persisted = false
	deferred.Deferred = true

	verr := domain.NewValidationError("submission")
	verr.AddError("team name must be at most 100 characters")

	tests := []struct {
		name       string
		result     *application.SubmissionResult
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "validation",
			result:     &application.SubmissionResult{Stage: application.StageReceived},
			err:        verr,
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeValidation,
		},
		{
			name:       "insufficient data",
			result:     &application.SubmissionResult{Stage: application.StageValidated},
			err:        &domain.InsufficientDataError{Got: 10, Required: domain.MinScorablePoints},
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInsufficientData,
		},
		{
			name:       "ground truth unavailable",
			result:     &application.SubmissionResult{Stage: application.StageValidated},
			err:        fmt.Errorf("%w: open gt.csv: no such file", domain.ErrDataUnavailable),
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   CodeDataUnavailable,
		},
		{
			name:       "unexpected",
			result:     &application.SubmissionResult{},
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternal,
		},
		{
			name:       "scored but not recorded",
			result:     notRecorded,
			err:        fmt.Errorf("%w: %w", application.ErrScoreNotRecorded, ports.NewStoreError("upsert", ports.ErrStoreUnavailable)),
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "scored and deferred",
			result:     deferred,
			err:        fmt.Errorf("%w: %w", application.ErrScoreNotRecorded, ports.ErrStoreUnavailable),
			wantStatus: http.StatusAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(&stubCoordinator{result: tt.result, err: tt.err})

			rec := postSubmit(t, srv, map[string]string{"teamName": "A"}, "1\n2\n")
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
				return
			}

			var body SubmitResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, 1.25, body.RMSE60, "score is returned")
			assert.NotEmpty(t, body.Warning)
			assert.Equal(t, tt.result.Deferred, body.Deferred)
		})
	}
}

func TestSubmit_ValidationErrorMessagePassedThrough(t *testing.T) {
	verr := domain.NewValidationError("submission")
	verr.AddError("team name must be at most 100 characters")
	srv := newTestServer(&stubCoordinator{result: &application.SubmissionResult{}, err: verr})

	rec := postSubmit(t, srv, map[string]string{"teamName": "A"}, "1\n")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Message, "at most 100 characters")
}

func TestSubmit_BadRequests(t *testing.T) {
	tests := []struct {
		name     string
		fields   map[string]string
		file     string
		wantCode string
	}{
		{"missing file", map[string]string{"teamName": "A"}, "", CodeInvalidRequest},
		{"missing team", map[string]string{}, "1\n", CodeInvalidRequest},
		{"blank team", map[string]string{"teamName": "   "}, "1\n", CodeInvalidRequest},
		{"no numbers in file", map[string]string{"teamName": "A"}, "header\nfoo\n", CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			coord := &stubCoordinator{result: scoredResult()}
			rec := postSubmit(t, newTestServer(coord), tt.fields, tt.file)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, rec).Code)
			assert.False(t, coord.submitted, "coordinator must not be called")
		})
	}
}

func TestSubmit_NotMultipart(t *testing.T) {
	coord := &stubCoordinator{result: scoredResult()}
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(`{"teamName":"A"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	newTestServer(coord).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, coord.submitted)
}

func TestSubmit_UploadTooLarge(t *testing.T) {
	coord := &stubCoordinator{result: scoredResult()}
	large := strings.Repeat("1.0\n", 1<<15)

	rec := postSubmit(t, newTestServer(coord), map[string]string{"teamName": "A"}, large)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, coord.submitted)
}

func TestLeaderboard(t *testing.T) {
	ts := time.UnixMilli(1767225600123).UTC()
	coord := &stubCoordinator{entries: []domain.LeaderboardEntry{
		{TeamName: "Y", RMSE10: 0.4, RMSE30: 0.8, RMSE60: 1.2, Timestamp: ts},
		{TeamName: "X", RMSE10: 2, RMSE30: 4, RMSE60: 5, Timestamp: ts.Add(time.Second)},
	}}
	srv := newTestServer(coord)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"teamName":"Y","rmse_10":0.4,"rmse_30":0.8,"rmse_60":1.2,"timestamp":1767225600123},
		{"teamName":"X","rmse_10":2,"rmse_30":4,"rmse_60":5,"timestamp":1767225601123}
	]`, rec.Body.String())
}

func TestLeaderboard_Empty(t *testing.T) {
	srv := newTestServer(&stubCoordinator{entries: []domain.LeaderboardEntry{}})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestLeaderboard_StoreUnavailable(t *testing.T) {
	srv := newTestServer(&stubCoordinator{boardErr: ports.NewStoreError("load", ports.ErrStoreUnavailable)})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeStoreUnavailable, decodeError(t, rec).Code)
}

func TestHealthMetricsAndNotFound(t *testing.T) {
	srv := newTestServer(&stubCoordinator{})

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORS(t *testing.T) {
	srv := newTestServer(&stubCoordinator{entries: []domain.LeaderboardEntry{}})

	req := httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
	req.Header.Set("Origin", "https://forecast.example")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "https://forecast.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestErrorHandler_RecoversPanics(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandler(nopLogger()))
	router.GET("/panic", func(*gin.Context) { panic("kaboom") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, CodeInternal, decodeError(t, rec).Code)
}
