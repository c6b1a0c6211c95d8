package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"reeler/internal/records"
	"reeler/internal/services"
)

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		return httpErr.Code
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrConflict):
		return http.StatusForbidden
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, records.ErrLocked), errors.Is(err, records.ErrSchemaMismatch):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorFor maps a response status back to a sentinel-tagged error.
func errorFor(status int, message string) error {
	var marker error
	switch status {
	case http.StatusBadRequest:
		marker = services.ErrValidation
	case http.StatusForbidden, http.StatusConflict:
		marker = services.ErrConflict
	case http.StatusNotFound:
		marker = services.ErrNotFound
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		marker = services.ErrNetwork
	default:
		marker = services.ErrIO
	}
	return services.Wrap(marker, "api", "remote", message, nil)
}
