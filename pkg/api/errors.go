package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"

	"github.com/aion-systems/aion-core/pkg/apperr"
)

// errorBody is the HTTP error envelope every non-2xx response carries:
// {code, message, correlation_id}.
type errorBody struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id"`
}

var statusByKind = map[apperr.Kind]int{
	apperr.KindValidation:             http.StatusBadRequest,
	apperr.KindAuthMissing:            http.StatusUnauthorized,
	apperr.KindAuthInvalid:            http.StatusForbidden,
	apperr.KindNotFound:               http.StatusNotFound,
	apperr.KindInvalidStateTransition: http.StatusConflict,
	apperr.KindConflict:               http.StatusConflict,
	apperr.KindAlreadyExecuted:        http.StatusConflict,
	apperr.KindTokensExhausted:        http.StatusServiceUnavailable,
	apperr.KindResourcesExhausted:     http.StatusServiceUnavailable,
	apperr.KindRateLimited:            http.StatusTooManyRequests,
	apperr.KindTimeout:                http.StatusGatewayTimeout,
	apperr.KindStoreUnavailable:       http.StatusServiceUnavailable,
	apperr.KindScorerIndeterminate:    http.StatusInternalServerError,
	apperr.KindProviderTransport:      http.StatusBadGateway,
	apperr.KindInternal:               http.StatusInternalServerError,
}

// writeErr maps err onto the structured envelope spec §7 requires, logging
// every correlation id alongside the underlying cause so an operator can
// join a client-reported id back to the server log.
func writeErr(c *echo.Context, err error) error {
	correlationID := uuid.NewString()
	kind := apperr.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}

	var appErr *apperr.Error
	message := err.Error()
	if errors.As(err, &appErr) {
		message = appErr.Message
	}

	slog.Error("request failed", "kind", kind, "correlation_id", correlationID, "error", err)
	return c.JSON(status, errorBody{
		Code:          string(kind),
		Message:       message,
		CorrelationID: correlationID,
	})
}
