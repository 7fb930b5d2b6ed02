package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/storage"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// statusFor maps a core error onto an HTTP status. Order matters: a
// TransitionError for an already-applied status is still a transition error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrTriggerNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, storage.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, core.ErrStorage):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	code := statusFor(err)
	switch code {
	case http.StatusInternalServerError:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
		c.Error(err)
		c.JSON(code, ErrorResponse{Error: "internal error"})
	case http.StatusBadGateway:
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("document storage failed")
		c.JSON(code, ErrorResponse{Error: "document storage unavailable"})
	default:
		c.JSON(code, ErrorResponse{Error: http.StatusText(code), Message: err.Error()})
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: http.StatusText(http.StatusBadRequest), Message: message})
}
