package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/framez/framez-core/internal/api/metrics"
)

const genericMessage = "Something went wrong"

type errorBody struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler renders every error as {"error": "<message>"}.
// Handlers return *echo.HTTPError with a user-facing message already set;
// anything else is treated as a bug and hidden behind a generic message.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, message := http.StatusInternalServerError, genericMessage
		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			status, message = he.Code, messageOf(he)
			if status >= http.StatusInternalServerError && he.Internal != nil {
				requestLog(log, c).Warn().Err(he.Internal).Int("status", status).Msg("backend call failed")
			}
		default:
			requestLog(log, c).Error().Err(err).Msg("unhandled error")
		}

		metrics.APIErrorsTotal.WithLabelValues(strconv.Itoa(status/100) + "xx").Inc()
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, errorBody{Error: message})
	}
}

func messageOf(he *echo.HTTPError) string {
	if s, ok := he.Message.(string); ok && s != "" {
		return s
	}
	if text := http.StatusText(he.Code); text != "" {
		return text
	}
	return genericMessage
}

func requestLog(log zerolog.Logger, c echo.Context) *zerolog.Logger {
	l := log.With().
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Str("request_id", c.Response().Header().Get(echo.HeaderXRequestID)).
		Logger()
	return &l
}
