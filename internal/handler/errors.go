package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/abdusco/linkpay/internal"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// suspendedMessage is deliberately vague; visitors of a banned owner's links
// must not learn why.
const suspendedMessage = "this link is unavailable"

// toHTTPError maps domain errors to responses. Anything unknown is passed
// through and ends up as a 500 in ErrorHandler.
func toHTTPError(err error) error {
	switch {
	case errors.Is(err, internal.ErrLinkNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "link not found")
	case errors.Is(err, internal.ErrLinkInactive):
		return echo.NewHTTPError(http.StatusGone, "this link has been disabled")
	case errors.Is(err, internal.ErrOwnerSuspended):
		return echo.NewHTTPError(http.StatusForbidden, suspendedMessage)
	case errors.Is(err, internal.ErrInvalidToken):
		return echo.NewHTTPError(http.StatusBadRequest, "invalid token")
	case errors.Is(err, internal.ErrInsufficientBalance):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "insufficient balance for payout")
	case errors.Is(err, internal.ErrPayoutNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "payout request not found")
	case errors.Is(err, internal.ErrPayoutProcessed):
		return echo.NewHTTPError(http.StatusConflict, "payout request already processed")
	case errors.Is(err, internal.ErrUserNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	}
	return err
}

func ErrorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	message := "internal server error"

	var httpErr *echo.HTTPError
	if errors.As(toHTTPError(err), &httpErr) {
		code = httpErr.Code
		if msg, ok := httpErr.Message.(string); ok {
			message = msg
		}
	}

	if c.Response().Committed {
		return
	}

	event := log.Warn()
	if code >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.
		Int("code", code).
		Str("method", c.Request().Method).
		Str("path", c.Request().URL.Path).
		Err(err).
		Msg("http error")

	if c.Request().Method == http.MethodHead {
		c.NoContent(code)
		return
	}

	if !strings.HasPrefix(c.Path(), "/api/") && code == http.StatusForbidden {
		c.String(code, message)
		return
	}

	c.JSON(code, map[string]any{
		"error": message,
	})
}
