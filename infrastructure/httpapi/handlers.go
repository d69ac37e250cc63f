package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ahrav/go-leaderboard/infrastructure/upload"
	"github.com/ahrav/go-leaderboard/internal/application"
	"github.com/ahrav/go-leaderboard/internal/domain"
)

// DefaultMaxUploadBytes bounds a multipart submission when no limit is
// configured.
const DefaultMaxUploadBytes = 10 << 20

// Coordinator is the part of application.SubmissionCoordinator the API
// needs.
type Coordinator interface {
	Submit(ctx context.Context, teamName string, predictions domain.PredictionSet) (*application.SubmissionResult, error)
	GetLeaderboard(ctx context.Context) ([]domain.LeaderboardEntry, error)
}

// Handler serves the submission and leaderboard endpoints.
type Handler struct {
	coord          Coordinator
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewHandler creates a handler. A non-positive maxUploadBytes means
// DefaultMaxUploadBytes and a nil logger means slog.Default().
func NewHandler(coord Coordinator, maxUploadBytes int64, logger *slog.Logger) *Handler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{coord: coord, maxUploadBytes: maxUploadBytes, logger: logger.With("component", "httpapi")}
}

// Submit handles POST /api/submit. The body is multipart with a file field
// holding predictions and a teamName field.
func (h *Handler) Submit(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			abortWithError(c, http.StatusBadRequest, CodeFileTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes))
			return
		}
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "File and Team Name are required")
		return
	}
	teamName := c.PostForm("teamName")
	if strings.TrimSpace(teamName) == "" {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "File and Team Name are required")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "could not open uploaded file")
		return
	}
	defer file.Close()

	predictions, err := upload.ParsePredictions(file)
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			abortWithError(c, http.StatusBadRequest, CodeValidation, err.Error())
			return
		}
		h.logger.Error("failed to read upload", "err", err)
		abortWithError(c, http.StatusBadRequest, CodeInvalidRequest, "could not read uploaded file")
		return
	}

	res, err := h.coord.Submit(c.Request.Context(), teamName, predictions)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, newSubmitResponse(res))
	case errors.Is(err, application.ErrScoreNotRecorded):
		body := newSubmitResponse(res)
		body.Warning = "score computed but not recorded on the leaderboard"
		if res.Deferred {
			body.Warning = "score computed; leaderboard update is delayed"
		}
		c.JSON(http.StatusAccepted, body)
	case errors.Is(err, domain.ErrValidation):
		abortWithError(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, domain.ErrInsufficientData):
		abortWithError(c, http.StatusBadRequest, CodeInsufficientData, err.Error())
	case errors.Is(err, domain.ErrDataUnavailable):
		abortWithError(c, http.StatusServiceUnavailable, CodeDataUnavailable, "ground truth is temporarily unavailable")
	default:
		h.logger.Error("submission failed", "err", err)
		abortWithError(c, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred")
	}
}

// Leaderboard handles GET /api/leaderboard.
func (h *Handler) Leaderboard(c *gin.Context) {
	entries, err := h.coord.GetLeaderboard(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read leaderboard", "err", err)
		abortWithError(c, http.StatusServiceUnavailable, CodeStoreUnavailable, "leaderboard is temporarily unavailable")
		return
	}
	c.JSON(http.StatusOK, newEntryResponses(entries))
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}
