package httpserver

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/authsvc/internal/logging"
	authmw "github.com/Skotchmaster/authsvc/internal/middleware/auth"
	"github.com/Skotchmaster/authsvc/internal/models"
	"github.com/Skotchmaster/authsvc/internal/service"
	"github.com/Skotchmaster/authsvc/internal/transport"
	"github.com/Skotchmaster/authsvc/internal/util"
)

type UsersHTTP struct {
	Svc *service.UserService
}

func (h *UsersHTTP) List(c echo.Context) error {
	users, err := h.Svc.ListUsers(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, users)
}

func (h *UsersHTTP) Search(c echo.Context) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_search")

	var (
		q                string
		page, from, size int
	)
	err := echo.QueryParamsBinder(c).
		String("q", &q).
		Int("page", &page).
		Int("from", &from).
		Int("size", &size).
		BindError()
	if err != nil {
		l.Warn("search_error", "status", 400, "error", err)
		return badBody(err)
	}
	from, size, err = util.Window(page, from, size)
	if err != nil {
		l.Warn("search_error", "status", 400, "error", err)
		return httpError(fmt.Errorf("%w: %w", service.ErrValidation, err))
	}

	total, users, err := h.Svc.SearchUsers(ctx, q, from, size)
	if err != nil {
		return httpError(err)
	}
	if users == nil {
		users = []models.UserView{}
	}
	return c.JSON(http.StatusOK, transport.SearchResponse{Total: total, Users: users})
}

func (h *UsersHTTP) GrantRole(c echo.Context) error {
	return h.changeRole(c, true)
}

func (h *UsersHTTP) RevokeRole(c echo.Context) error {
	return h.changeRole(c, false)
}

func (h *UsersHTTP) changeRole(c echo.Context, grant bool) error {
	ctx := c.Request().Context()
	l := logging.FromContext(ctx).With("handler", "users_role")

	var req transport.RoleRequest
	if err := c.Bind(&req); err != nil {
		l.Warn("role_error", "status", 400, "error", err)
		return badBody(err)
	}
	if err := req.Validate(); err != nil {
		return httpError(err)
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return httpError(service.ErrValidation)
	}

	// An admin cannot lock themselves out.
	if !grant && c.Get(authmw.CtxUserID) == id.String() && service.NormalizeRole(req.Role) == models.RoleAdmin {
		l.Warn("role_error", "status", 403, "reason", "self revoke of admin")
		return httpError(service.ErrForbidden)
	}

	var view *models.UserView
	if grant {
		view, err = h.Svc.GrantRole(ctx, id, req.Role)
	} else {
		view, err = h.Svc.RevokeRole(ctx, id, req.Role)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}
