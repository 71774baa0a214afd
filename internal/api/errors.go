package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trade-reconciliation/internal/domain"
	"trade-reconciliation/internal/workflow"
)

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type conflictDetails struct {
	CurrentVersion int64              `json:"current_version"`
	CurrentStatus  domain.BreakStatus `json:"current_status"`
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, apiError{Error: "bad_request", Message: msg})
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, where string, err error) {
	var (
		conflict   *domain.ConflictError
		transition *domain.TransitionError
		invalid    *domain.ValidationError
		cfgErr     *domain.ConfigurationError
		timeout    *domain.RunTimeoutError
	)
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, apiError{
			Error:   "conflict",
			Message: err.Error(),
			Details: conflictDetails{CurrentVersion: conflict.CurrentVersion, CurrentStatus: conflict.CurrentStatus},
		})
	case errors.Is(err, domain.ErrRunInProgress):
		c.JSON(http.StatusConflict, apiError{Error: "run_in_progress", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		c.JSON(http.StatusNotFound, apiError{Error: "not_found", Message: err.Error()})
	case errors.As(err, &transition),
		errors.Is(err, workflow.ErrAutoResolveDenied),
		errors.Is(err, workflow.ErrManualOnly):
		c.JSON(http.StatusUnprocessableEntity, apiError{Error: "invalid_transition", Message: err.Error()})
	case errors.As(err, &invalid),
		errors.Is(err, workflow.ErrAssigneeRequired),
		errors.Is(err, workflow.ErrResolutionRequired):
		s.badRequest(c, err.Error())
	case errors.As(err, &timeout):
		c.JSON(http.StatusGatewayTimeout, apiError{Error: "run_timeout", Message: err.Error(), Details: timeout.Statistics})
	case errors.As(err, &cfgErr):
		s.logger.Error("configuration_error", zap.String("where", where), zap.Error(err))
		c.JSON(http.StatusInternalServerError, apiError{Error: "configuration_error", Message: err.Error()})
	default:
		s.logger.Error("internal_error", zap.String("where", where), zap.Error(err))
		c.JSON(http.StatusInternalServerError, apiError{Error: "internal_server_error", Message: "internal server error"})
	}
}
