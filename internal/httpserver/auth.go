package httpserver

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/authsvc/internal/logging"
	"github.com/Skotchmaster/authsvc/internal/service"
	"github.com/Skotchmaster/authsvc/internal/transport"
)

type AuthHTTP struct {
	Svc          *service.AuthService
	ClientURL    string
	RefreshTTL   time.Duration
	CookieSecure bool
}

func (h *AuthHTTP) Registration(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_registration")

	var req transport.RegisterRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("registration_error", "status", 400, "error", err)
		return badBody(err)
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		l.Warn("registration_error", "status", 400, "error", err)
		return httpError(err)
	}

	res, err := h.Svc.Register(ctx, req.Input())
	if err != nil {
		return httpError(err)
	}

	h.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusOK, transport.NewAuthResponse(res))
}

func (h *AuthHTTP) Login(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_login")

	var req transport.LoginRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return badBody(err)
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		l.Warn("login_error", "status", 400, "error", err)
		return httpError(err)
	}

	res, err := h.Svc.Login(ctx, req.Input())
	if err != nil {
		return httpError(err)
	}

	h.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusOK, transport.NewAuthResponse(res))
}

// Logout always clears the cookie; a missing or unknown token removes nothing.
func (h *AuthHTTP) Logout(c echo.Context) error {
	ctx := c.Request().Context()

	var token string
	if ck, err := c.Cookie(RefreshCookie); err == nil {
		token = ck.Value
	}

	removed, err := h.Svc.Logout(ctx, token)
	c.SetCookie(DeleteCookie(RefreshCookie, "/", h.CookieSecure))
	if err != nil {
		return httpError(err)
	}

	return c.JSON(http.StatusOK, transport.LogoutResponse{Deleted: removed})
}

func (h *AuthHTTP) Refresh(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "auth_refresh")

	ck, err := c.Cookie(RefreshCookie)
	if err != nil || ck.Value == "" {
		l.Warn("refresh_error", "status", 401, "reason", "no refresh cookie")
		return httpError(service.ErrUnauthorized)
	}

	res, err := h.Svc.Refresh(ctx, ck.Value)
	if err != nil {
		c.SetCookie(DeleteCookie(RefreshCookie, "/", h.CookieSecure))
		return httpError(err)
	}

	h.setRefreshCookie(c, res.RefreshToken)
	return c.JSON(http.StatusOK, transport.NewAuthResponse(res))
}

func (h *AuthHTTP) Activate(c echo.Context) error {
	if err := h.Svc.Activate(c.Request().Context(), c.Param("link")); err != nil {
		return httpError(err)
	}
	return c.Redirect(http.StatusFound, h.ClientURL)
}

func (h *AuthHTTP) setRefreshCookie(c echo.Context, token string) {
	c.SetCookie(CreateCookie(RefreshCookie, token, "/", h.RefreshTTL, h.CookieSecure))
}
