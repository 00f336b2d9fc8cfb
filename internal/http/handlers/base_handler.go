// README: Base handler utilities (JSON helpers, caller extraction, error mapping).
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"foodline/internal/apperr"
	"foodline/internal/http/middleware"
	"foodline/internal/modules/order"
	"foodline/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts the uuid-style ids issued by the marketplace.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeAppError renders business errors with their context fields; anything
// else is logged and reported as a bare 500.
func writeAppError(c *gin.Context, log *slog.Logger, err error) {
	if !apperr.IsBusiness(err) {
		log.Error("request failed",
			slog.String("action", "http_error"),
			slog.String("request_id", middleware.GetRequestID(c)),
			slog.String("path", c.FullPath()),
			slog.Any("error", err),
		)
		writeError(c, http.StatusInternalServerError, "internal error")
		return
	}
	status := statusOf(err)
	body := gin.H{"error": err.Error()}
	for k, v := range apperr.ContextOf(err) {
		body[k] = v
	}
	writeJSON(c, status, body)
}

func actorFrom(c *gin.Context) order.Actor {
	return order.Actor{ID: middleware.CallerUID(c), Role: middleware.CallerRole(c)}
}

// pathID reads and checks the :id route parameter, writing a 400 when it is unusable.
func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid order id")
		return "", false
	}
	return types.ID(id), true
}
