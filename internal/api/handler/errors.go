package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/framez/framez-core/internal/core/domain"
)

// toHTTPError maps service errors onto an *echo.HTTPError carrying a single
// user-facing message. Errors it does not recognise are returned unchanged
// and end up as a logged 500.
func toHTTPError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid email or password").SetInternal(err)
	case errors.Is(err, domain.ErrAccountExists):
		return echo.NewHTTPError(http.StatusConflict, "An account with this email already exists").SetInternal(err)
	case errors.Is(err, domain.ErrNotAuthenticated), errors.Is(err, domain.ErrSessionExpired):
		return echo.NewHTTPError(http.StatusUnauthorized, "You are not signed in").SetInternal(err)
	case errors.Is(err, domain.ErrEmptyPost):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Add a caption or an image").SetInternal(err)
	case errors.Is(err, domain.ErrCaptionTooLong):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "Caption is too long").SetInternal(err)
	case errors.Is(err, domain.ErrNotConfirmed):
		return echo.NewHTTPError(http.StatusBadRequest, "Deletion must be confirmed").SetInternal(err)
	case errors.Is(err, domain.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "You can only delete your own posts").SetInternal(err)
	case errors.Is(err, domain.ErrPostNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "Post not found").SetInternal(err)
	case errors.Is(err, domain.ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, "Session changed, try again").SetInternal(err)
	}

	var de *domain.Error
	if !errors.As(err, &de) {
		return err
	}
	switch de.Kind {
	case domain.KindAuth:
		return echo.NewHTTPError(http.StatusBadGateway, "Authentication failed, try again").SetInternal(err)
	case domain.KindFetch:
		return echo.NewHTTPError(http.StatusBadGateway, "Could not load posts").SetInternal(err)
	case domain.KindPostCreation:
		return echo.NewHTTPError(http.StatusBadGateway, "Could not create post").SetInternal(err)
	case domain.KindDeletion:
		return echo.NewHTTPError(http.StatusBadGateway, "Could not delete post").SetInternal(err)
	case domain.KindProfileReconcile:
		return echo.NewHTTPError(http.StatusBadGateway, "Could not set up your profile").SetInternal(err)
	}
	return err
}
