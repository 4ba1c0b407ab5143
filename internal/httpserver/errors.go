package httpserver

import (
	"errors"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/authsvc/internal/service"
	"github.com/Skotchmaster/authsvc/internal/transport"
)

type errorKind struct {
	target error
	status int
	code   string
}

var errorKinds = []errorKind{
	{service.ErrValidation, http.StatusBadRequest, "validation"},
	{service.ErrInvalidCredentials, http.StatusBadRequest, "invalid_credentials"},
	{service.ErrInvalidActivationLink, http.StatusBadRequest, "invalid_activation_link"},
	{service.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{service.ErrNotActivated, http.StatusForbidden, "not_activated"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{service.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{service.ErrDuplicateEmail, http.StatusConflict, "duplicate_email"},
	{service.ErrDuplicateLogin, http.StatusConflict, "duplicate_login"},
	{service.ErrSearchUnavailable, http.StatusServiceUnavailable, "search_unavailable"},
}

// httpError maps service and validation errors onto the JSON error body.
// Anything unrecognised, infrastructure failures included, becomes a bare 500.
func httpError(err error) *echo.HTTPError {
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		return echo.NewHTTPError(http.StatusBadRequest, transport.ErrorResponse{
			Error:   "validation",
			Message: "request is invalid",
			Details: verrs,
		})
	}

	for _, k := range errorKinds {
		if errors.Is(err, k.target) {
			return echo.NewHTTPError(k.status, transport.ErrorResponse{
				Error:   k.code,
				Message: k.target.Error(),
			}).SetInternal(err)
		}
	}

	return echo.NewHTTPError(http.StatusInternalServerError, transport.ErrorResponse{
		Error:   "internal",
		Message: "internal error",
	}).SetInternal(err)
}

func badBody(err error) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, transport.ErrorResponse{
		Error:   "invalid_body",
		Message: "invalid body",
	}).SetInternal(err)
}
