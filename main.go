package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abdusco/linkpay/internal/auth"
	"github.com/abdusco/linkpay/internal/config"
	"github.com/abdusco/linkpay/internal/db"
	"github.com/abdusco/linkpay/internal/fraud"
	"github.com/abdusco/linkpay/internal/gen"
	"github.com/abdusco/linkpay/internal/handler"
	"github.com/abdusco/linkpay/internal/ledger"
	"github.com/abdusco/linkpay/internal/logger"
	"github.com/abdusco/linkpay/internal/redirect"
	"github.com/abdusco/linkpay/internal/repo"
	"github.com/abdusco/linkpay/internal/settlement"
	"github.com/abdusco/linkpay/internal/token"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if err := logger.Setup(cfg.LogLevel, cfg.Debug); err != nil {
		log.Fatal().Err(err).Str("level", cfg.LogLevel).Msg("failed to parse log level")
	}

	if cfg.SessionSecret == "" || cfg.TokenSecret == "" {
		log.Fatal().Msg("SESSION_SECRET and TOKEN_SECRET must be set")
	}
	if cfg.SessionSecret == cfg.TokenSecret {
		log.Warn().Msg("SESSION_SECRET and TOKEN_SECRET are identical - use separate secrets in production")
	}

	log.Info().
		Str("host", cfg.Host).
		Str("port", cfg.Port).
		Int("ban_threshold", cfg.BanThreshold).
		Int("hourly_click_limit", cfg.HourlyClickLimit).
		Dur("impression_window", cfg.ImpressionWindow).
		Stringer("min_payout", cfg.MinPayout).
		Str("commission_rate", cfg.CommissionRate.String()).
		Msg("current configuration")

	ctx := context.Background()
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("application error")
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log.Info().
		Str("version", version).
		Str("build_time", buildTime).
		Msg("starting application")

	dbInstance, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbInstance.Close()

	ids, err := gen.NewSnowflakeNode(cfg.SnowflakeNode)
	if err != nil {
		return err
	}

	linksRepo := repo.NewLinksRepo(dbInstance)
	clicksRepo := repo.NewClicksRepo(dbInstance, ids)
	usersRepo := repo.NewUsersRepo(dbInstance)
	impressionsRepo := repo.NewImpressionsRepo(dbInstance)
	walletTxRepo := repo.NewWalletTxRepo(dbInstance)
	payoutsRepo := repo.NewPayoutsRepo(dbInstance)

	tokens := token.NewIssuer(cfg.TokenSecret, cfg.PayoutTokenTTL)
	evaluator := fraud.NewEvaluator(clicksRepo, usersRepo, fraud.Policy{
		BanThreshold:     cfg.BanThreshold,
		SelfClickPenalty: cfg.SelfClickPenalty,
		RateAbusePenalty: cfg.RateAbusePenalty,
		HourlyClickLimit: cfg.HourlyClickLimit,
	})
	visits := redirect.NewService(dbInstance, linksRepo, clicksRepo, evaluator, tokens, cfg.InterstitialDelay)
	verifier := ledger.NewVerifier(dbInstance, tokens, usersRepo, impressionsRepo, walletTxRepo, ids, cfg.ImpressionWindow)
	settle := settlement.NewService(dbInstance, usersRepo, payoutsRepo, walletTxRepo, ids, settlement.Policy{
		MinPayout:      cfg.MinPayout,
		CommissionRate: cfg.CommissionRate,
	})

	e := handler.NewRouter(handler.Handlers{
		Redirect:  handler.NewRedirectHandler(visits),
		Verify:    handler.NewVerifyHandler(verifier),
		Payouts:   handler.NewPayoutHandler(settle),
		Analytics: handler.NewAnalyticsHandler(linksRepo, impressionsRepo),
		Auth:      auth.NewAuthenticator(cfg.SessionSecret, usersRepo),
	}, handler.RouterConfig{
		TrustProxy:          cfg.TrustProxy,
		VerifyRatePerMinute: cfg.VerifyRatePerMinute,
	})
	defer e.Close()

	addr := net.JoinHostPort(cfg.Host, cfg.Port)
	log.Info().Str("address", addr).Msg("server starting")

	// Run server and handle graceful shutdown
	runServer(ctx, e, addr)

	return nil
}

func runServer(ctx context.Context, e *echo.Echo, addr string) {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received, gracefully shutting down...")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during graceful shutdown")
	}

	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("server stopped")
}
