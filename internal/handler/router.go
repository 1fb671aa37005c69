package handler

import (
	"net/http"
	"time"

	"github.com/abdusco/linkpay/internal/auth"
	"github.com/abdusco/linkpay/web"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type RouterConfig struct {
	// TrustProxy takes the client IP from X-Forwarded-For. Enable only
	// behind a proxy that overwrites the header.
	TrustProxy          bool
	VerifyRatePerMinute int
}

type Handlers struct {
	Redirect  *RedirectHandler
	Verify    *VerifyHandler
	Payouts   *PayoutHandler
	Analytics *AnalyticsHandler
	Auth      *auth.Authenticator
}

func NewRouter(h Handlers, cfg RouterConfig) *echo.Echo {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler
	e.Renderer = web.NewRenderer()

	if cfg.TrustProxy {
		e.IPExtractor = echo.ExtractIPFromXFFHeader()
	} else {
		e.IPExtractor = echo.ExtractIPDirect()
	}

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			event := log.Info()
			if v.Error != nil {
				event = log.Warn().Err(v.Error)
			}
			event.
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	}))
	e.Use(middleware.Recover())

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	verifyLimiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(float64(cfg.VerifyRatePerMinute) / 60),
			Burst:     cfg.VerifyRatePerMinute,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return c.JSON(http.StatusTooManyRequests, VerifyViewResponse{Reason: "rate_limited"})
		},
	})
	e.POST("/verify-view", h.Verify.VerifyView, verifyLimiter)

	api := e.Group("/api")
	api.Use(auth.NewAuthMiddleware(h.Auth))

	api.GET("/wallet", h.Payouts.GetWallet)
	api.GET("/payouts/history", h.Payouts.History)
	api.POST("/payouts/request", h.Payouts.RequestPayout)
	api.GET("/links/:id/analytics", h.Analytics.LinkAnalytics)

	admin := api.Group("/admin", auth.RequireAdmin)
	admin.GET("/payouts", h.Payouts.ListAll)
	admin.PUT("/payouts/:id", h.Payouts.Process)

	// Parameterized route (must be last)
	e.GET("/:code", h.Redirect.Redirect)

	return e
}
