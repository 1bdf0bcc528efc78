package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agora-discourse/agora/pkg/services"
)

// Machine-readable error kinds carried in the response envelope.
const (
	KindValidationFailed = "ValidationFailed"
	KindUnauthorized     = "Unauthorized"
	KindForbidden        = "Forbidden"
	KindNotFound         = "NotFound"
	KindConflict         = "Conflict"
	KindRateLimited      = "RateLimited"
	KindDependencyFailed = "DependencyFailed"
	KindInternalError    = "InternalError"
)

// apiError pairs an HTTP status with an error kind and a safe message.
type apiError struct {
	Status  int
	Kind    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newAPIError(status int, kind, message string) *apiError {
	return &apiError{Status: status, Kind: kind, Message: message}
}

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) error {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return newAPIError(http.StatusBadRequest, KindValidationFailed, validErr.Error())
	}
	if errors.Is(err, services.ErrNotFound) {
		return newAPIError(http.StatusNotFound, KindNotFound, "resource not found")
	}
	if errors.Is(err, services.ErrUnauthorized) {
		return newAPIError(http.StatusUnauthorized, KindUnauthorized, "authentication required")
	}
	if errors.Is(err, services.ErrForbidden) {
		return newAPIError(http.StatusForbidden, KindForbidden, "operation not allowed")
	}
	if errors.Is(err, services.ErrAlreadyExists) {
		return newAPIError(http.StatusConflict, KindConflict, "resource already exists")
	}
	if errors.Is(err, services.ErrRateLimited) {
		return newAPIError(http.StatusTooManyRequests, KindRateLimited, "rate limit exceeded")
	}
	if errors.Is(err, services.ErrDependencyFailed) {
		return newAPIError(http.StatusBadGateway, KindDependencyFailed, "upstream dependency failed")
	}

	// Unexpected error: log details, leak nothing.
	slog.Error("Unexpected service error", "error", err)
	return newAPIError(http.StatusInternalServerError, KindInternalError, "internal server error")
}

// errorHandler renders every handler error as the standard envelope.
func errorHandler(c *echo.Context, err error) {
	if r, _ := echo.UnwrapResponse(c.Response()); r != nil && r.Committed {
		return
	}

	var apiErr *apiError
	if !errors.As(err, &apiErr) {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			apiErr = newAPIError(httpErr.Code, kindForStatus(httpErr.Code), fmt.Sprintf("%v", httpErr.Message))
		} else {
			slog.Error("Unhandled error", "error", err)
			apiErr = newAPIError(http.StatusInternalServerError, KindInternalError, "internal server error")
		}
	}

	if jsonErr := c.JSON(apiErr.Status, Envelope{
		Success: false,
		Error:   apiErr.Kind,
		Message: apiErr.Message,
	}); jsonErr != nil {
		slog.Error("Failed to write error response", "error", jsonErr)
	}
}

func kindForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return KindValidationFailed
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict:
		return KindConflict
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return KindDependencyFailed
	default:
		return KindInternalError
	}
}
