package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockcount/internal/domain/models"
	"github.com/mamadbah2/stockcount/internal/service/counting"
	"github.com/mamadbah2/stockcount/internal/service/engine"
)

// Sessions opens, finds and closes per-user engines.
type Sessions interface {
	Open(ctx context.Context, userID string) (*engine.Engine, error)
	Get(userID string) (*engine.Engine, error)
	Close(ctx context.Context, userID string) error
}

// Handler adapts HTTP requests to engine intents.
type Handler struct {
	sessions Sessions
	logger   *zap.Logger
}

// NewHandler constructs the HTTP handler adapter.
func NewHandler(sessions Sessions, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{sessions: sessions, logger: logger}
}

// engine resolves the running engine of the :user path parameter, answering the request
// itself when there is none.
func (h *Handler) engine(c *gin.Context) (*engine.Engine, bool) {
	e, err := h.sessions.Get(c.Param("user"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return e, true
}

// statusFor maps an error to its HTTP status through the sentinel it wraps.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, models.ErrConflictPending), errors.Is(err, models.ErrDefaultWarehouse):
		return http.StatusConflict
	case errors.Is(err, models.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	} else {
		h.logger.Debug("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	h.logger.Warn("invalid request body", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
}

// respond writes a counting result. Writes that did not reach the remote store, or wait
// for confirmation, answer 202.
func respond(c *gin.Context, res counting.Result) {
	switch res.Outcome {
	case counting.OutcomeProvisional, counting.OutcomeAwaitingConfirmation:
		c.JSON(http.StatusAccepted, res)
	default:
		c.JSON(http.StatusOK, res)
	}
}
