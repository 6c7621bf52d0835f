package v1

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/leodock/ai/embedding"
	"github.com/hrygo/leodock/store"
)

// statusFromError maps service errors onto HTTP status codes.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrConversationNotFound), errors.Is(err, store.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, embedding.ErrEmbeddingUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, embedding.ErrMalformedEmbedding), errors.Is(err, store.ErrDimensionMismatch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	status := statusFromError(err)
	requestID := c.Response().Header().Get(echo.HeaderXRequestID)
	if status >= http.StatusInternalServerError {
		slog.Error("api request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"request_id", requestID,
			"status", status,
			"error", err,
		)
	}
	return c.JSON(status, ErrorResponse{Error: err.Error(), RequestID: requestID})
}

func badRequest(c echo.Context, message string) error {
	return writeError(c, errors.Wrap(store.ErrInvalidArgument, message))
}
