package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/Skotchmaster/authsvc/internal/db"
	authmw "github.com/Skotchmaster/authsvc/internal/middleware/auth"
	"github.com/Skotchmaster/authsvc/internal/middleware/csrf"
	"github.com/Skotchmaster/authsvc/internal/models"
	"github.com/Skotchmaster/authsvc/internal/tokens"
)

type Deps struct {
	DB    *gorm.DB
	Codec *tokens.Codec
	Auth  *AuthHTTP
	Users *UsersHTTP

	// CSRF puts the double-submit check in front of every /api/user route
	// except activation links, and drops the GET form of /refresh.
	CSRF bool
}

func Register(e *echo.Echo, d *Deps) {
	e.GET("/health/live", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/health/ready", func(c echo.Context) error {
		if err := db.Ping(c.Request().Context(), d.DB); err != nil {
			return c.NoContent(http.StatusServiceUnavailable)
		}
		return c.NoContent(http.StatusOK)
	})

	api := e.Group("/api/user")
	if d.CSRF {
		cfg := csrf.DefaultConfig()
		cfg.Secure = d.Auth.CookieSecure
		cfg.SkipPaths = []string{"/api/user/activate/"}
		api.Use(csrf.Middleware(cfg))
		api.GET("/csrf", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })
	} else {
		api.GET("/refresh", d.Auth.Refresh)
	}

	api.POST("/registration", d.Auth.Registration)
	api.POST("/login", d.Auth.Login)
	api.POST("/logout", d.Auth.Logout)
	api.POST("/refresh", d.Auth.Refresh)
	api.GET("/activate/:link", d.Auth.Activate)

	bearer := authmw.NewBearer(d.Codec)
	private := api.Group("", bearer.RequireAuth)
	private.GET("", d.Users.List)
	private.GET("/", d.Users.List)

	admin := private.Group("", authmw.RequireRole(models.RoleAdmin))
	admin.GET("/search", d.Users.Search)
	admin.POST("/role", d.Users.GrantRole)
	admin.DELETE("/role", d.Users.RevokeRole)
}
