package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/livedash/internal/domain"
	"github.com/nfrund/livedash/internal/middleware"
)

// StatusResponse is the body of GET /api/auth/status. The identity fields
// sit at the top level next to loggedIn.
type StatusResponse struct {
	LoggedIn bool `json:"loggedIn"`
	*domain.Identity
	Notifications []domain.Notification `json:"notifications,omitempty"`
}

// OKResponse acknowledges a mutation.
type OKResponse struct {
	Success bool `json:"success"`
}

// jsonError writes the standard error body.
func jsonError(c echo.Context, code int, message string) error {
	return c.JSON(code, middleware.ErrorBody{Error: message})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotLoggedIn), errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidPayload), errors.Is(err, domain.ErrEmptyMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// domainError writes err with its mapped status.
func domainError(c echo.Context, err error) error {
	return jsonError(c, errorStatus(err), err.Error())
}

// bindValid binds the request body into v and validates it.
func bindValid(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return jsonError(c, http.StatusBadRequest, "malformed request body")
	}
	if err := c.Validate(v); err != nil {
		return jsonError(c, http.StatusBadRequest, err.Error())
	}
	return nil
}
