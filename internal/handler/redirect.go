package handler

import (
	"context"
	"html/template"
	"net/http"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/redirect"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type Visitor interface {
	Visit(ctx context.Context, code string, visitor internal.Visitor) (*redirect.Outcome, error)
}

type RedirectHandler struct {
	visits Visitor
}

func NewRedirectHandler(visits Visitor) *RedirectHandler {
	return &RedirectHandler{visits: visits}
}

type interstitialPage struct {
	Destination  string
	AdMarkup     template.HTML
	Token        string
	DelaySeconds int
	VerifyURL    string
}

func (h *RedirectHandler) Redirect(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("code")

	visitor := internal.Visitor{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}

	out, err := h.visits.Visit(ctx, code, visitor)
	if err != nil {
		return toHTTPError(err)
	}

	if out.Kind == redirect.KindRedirect {
		log.Debug().Str("code", code).Str("ip", visitor.IP).Msg("redirecting link")
		return c.Redirect(http.StatusFound, out.Destination)
	}

	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	c.Response().Header().Set("Referrer-Policy", "no-referrer")

	return c.Render(http.StatusOK, "interstitial.html", interstitialPage{
		Destination: out.Destination,
		// Ad markup comes from the operator-managed ad_formats table and is
		// injected as-is.
		AdMarkup:     template.HTML(out.Link.AdFormat.Markup),
		Token:        out.Token,
		DelaySeconds: int(out.Delay.Seconds()),
		VerifyURL:    "/verify-view",
	})
}
