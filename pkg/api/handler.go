package api

import (
	"net/http"

	"github.com/labstack/echo"
	log "github.com/sirupsen/logrus"

	"github.com/countkeeper/countkeeper/pkg/coordinator"
	"github.com/countkeeper/countkeeper/pkg/storage"
)

// Handler contains all properties to serve the API
type Handler struct {
	coord *coordinator.Coordinator
}

// NewHandler create a new API handler
func NewHandler(coord *coordinator.Coordinator) *Handler {
	return &Handler{
		coord: coord,
	}
}

// RegisterRoutes attaches the handlers to the echo web server
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	log.Debug("Register API routes")
	api := e.Group("/api/v1")
	api.POST("/scans", h.handleSaveScan)
	api.POST("/sessions/complete", h.handleFinishSession)
	api.GET("/sessions/status", h.handleSessionStatus)
	api.GET("/sessions/count", h.handleScanCount)
}

type errorResource struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// jsonError maps the coordinator error taxonomy onto distinguishable result
// codes; callers never see a generic failure for a recoverable condition.
func jsonError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	reason := "internal"

	switch {
	case err == coordinator.ErrDuplicateItem:
		status, reason = http.StatusConflict, "duplicate_item"
	case err == coordinator.ErrLimitExceeded:
		status, reason = http.StatusUnprocessableEntity, "limit_exceeded"
	case err == coordinator.ErrSessionCompleted:
		status, reason = http.StatusConflict, "session_completed"
	case err == coordinator.ErrAlreadyCompleted:
		status, reason = http.StatusConflict, "already_completed"
	case err == coordinator.ErrNotFound:
		status, reason = http.StatusNotFound, "not_found"
	case err == coordinator.ErrStoreInconsistent:
		status, reason = http.StatusBadGateway, "store_inconsistent"
	case storage.IsQuotaError(err):
		status, reason = http.StatusTooManyRequests, "store_quota_exceeded"
	}

	return c.JSON(status, errorResource{Error: err.Error(), Reason: reason})
}
