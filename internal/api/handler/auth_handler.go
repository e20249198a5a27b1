package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/framez/framez-core/internal/api/metrics"
	"github.com/framez/framez-core/internal/core/ports"
)

type AuthHandler struct {
	sessions ports.SessionService
}

func NewAuthHandler(sessions ports.SessionService) *AuthHandler {
	return &AuthHandler{sessions: sessions}
}

// Register creates a new account and signs it in when the backend allows.
//
// @Summary      Register a new account
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Account details"
// @Success      201   {object}  registerResponse
// @Failure      400   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Router       /v1/auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	identity, err := h.sessions.Register(c.Request().Context(), req.Email, req.Password, req.DisplayName)
	metrics.AuthOperationsTotal.WithLabelValues("register", metrics.Result(err)).Inc()
	if err != nil {
		return toHTTPError(err)
	}

	current := h.sessions.Current()
	awaiting := !current.Authenticated() || current.Identity.ID != identity.ID
	return c.JSON(http.StatusCreated, registerResponse{
		User:                 *toIdentityResponse(identity),
		AwaitingConfirmation: awaiting,
	})
}

// Login signs in with email and password.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  sessionResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /v1/auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	_, err := h.sessions.Login(c.Request().Context(), req.Email, req.Password)
	metrics.AuthOperationsTotal.WithLabelValues("login", metrics.Result(err)).Inc()
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(h.sessions.Current()))
}

// Logout ends the current session.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  errorResponse
// @Failure      502  {object}  errorResponse
// @Router       /v1/auth/logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	err := h.sessions.Logout(c.Request().Context())
	metrics.AuthOperationsTotal.WithLabelValues("logout", metrics.Result(err)).Inc()
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, toSessionResponse(h.sessions.Current()))
}

// Session returns the current session snapshot.
//
// @Summary      Current session
// @Tags         auth
// @Produce      json
// @Success      200  {object}  sessionResponse
// @Router       /v1/auth/session [get]
func (h *AuthHandler) Session(c echo.Context) error {
	return c.JSON(http.StatusOK, toSessionResponse(h.sessions.Current()))
}
