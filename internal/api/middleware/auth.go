package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/framez/framez-core/internal/api/handler"
	"github.com/framez/framez-core/internal/core/ports"
)

// RequireSession rejects requests unless the client is signed in, and
// injects the current identity into the context.
func RequireSession(sessions ports.SessionService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			snap := sessions.Current()
			if !snap.Authenticated() {
				return echo.NewHTTPError(http.StatusUnauthorized, "You are not signed in")
			}

			identity := *snap.Identity
			c.Set(handler.IdentityKey, &identity)

			return next(c)
		}
	}
}
