package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/framez/framez-core/internal/core/domain"
)

// IdentityKey is the echo context key under which the session middleware
// stores the signed-in *domain.Identity.
const IdentityKey = "identity"

// ctxIdentity returns the identity injected by the session middleware. Its
// absence means the route was mounted without the middleware.
func ctxIdentity(c echo.Context) (*domain.Identity, error) {
	id, _ := c.Get(IdentityKey).(*domain.Identity)
	if id == nil || id.ID == "" {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "You are not signed in")
	}
	return id, nil
}
