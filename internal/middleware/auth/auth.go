package auth

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/authsvc/internal/tokens"
	"github.com/Skotchmaster/authsvc/internal/transport"
)

const (
	CtxUserID = "user_id"
	CtxRoles  = "roles"
	CtxClaims = "claims"
)

// Bearer authenticates requests carrying "Authorization: Bearer <access token>".
type Bearer struct {
	Codec *tokens.Codec
}

func NewBearer(codec *tokens.Codec) *Bearer {
	return &Bearer{Codec: codec}
}

func (m *Bearer) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
		if !ok {
			return unauthorized("unauthorized", "missing access token")
		}

		claims, err := m.Codec.VerifyAccess(raw)
		if err != nil {
			if errors.Is(err, tokens.ErrTokenExpired) {
				return unauthorized("token_expired", "access token expired")
			}
			return unauthorized("unauthorized", "invalid access token")
		}

		c.Set(CtxUserID, claims.Subject)
		c.Set(CtxRoles, claims.Roles)
		c.Set(CtxClaims, claims)

		return next(c)
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			roles, _ := c.Get(CtxRoles).([]string)
			if !slices.Contains(roles, role) {
				return echo.NewHTTPError(http.StatusForbidden, transport.ErrorResponse{
					Error:   "forbidden",
					Message: "you don't have enough rights",
				})
			}
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(kind, msg string) error {
	return echo.NewHTTPError(http.StatusUnauthorized, transport.ErrorResponse{Error: kind, Message: msg})
}
