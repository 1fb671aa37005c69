package handler

import (
	"context"
	"net/http"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/auth"
	"github.com/abdusco/linkpay/internal/money"
	"github.com/abdusco/linkpay/internal/settlement"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type Settlement interface {
	RequestPayout(ctx context.Context, ownerID int64) (*internal.PayoutRequest, error)
	Process(ctx context.Context, adminID, payoutID int64, status internal.PayoutStatus, note string) (*internal.PayoutRequest, error)
	History(ctx context.Context, ownerID int64) ([]internal.PayoutRequest, error)
	List(ctx context.Context, status internal.PayoutStatus) ([]internal.PayoutRequest, error)
	Wallet(ctx context.Context, ownerID int64) (*settlement.WalletSummary, error)
}

type PayoutHandler struct {
	settlement Settlement
}

func NewPayoutHandler(settlement Settlement) *PayoutHandler {
	return &PayoutHandler{settlement: settlement}
}

type WalletResponse struct {
	Balance            money.Micros                 `json:"wallet_balance"`
	TotalEarnings      money.Micros                 `json:"total_earnings"`
	MinPayout          money.Micros                 `json:"min_payout"`
	CanRequestPayout   bool                         `json:"can_request_payout"`
	RecentTransactions []internal.WalletTransaction `json:"recent_transactions"`
}

type PayoutResponse struct {
	Payout internal.PayoutRequest `json:"payout"`
}

type ListPayoutsResponse struct {
	Payouts []internal.PayoutRequest `json:"payouts"`
}

func (h *PayoutHandler) GetWallet(c echo.Context) error {
	principal, ok := auth.FromContext(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	summary, err := h.settlement.Wallet(c.Request().Context(), principal.UserID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, WalletResponse{
		Balance:            summary.Wallet.Balance,
		TotalEarnings:      summary.Wallet.TotalEarnings,
		MinPayout:          summary.MinPayout,
		CanRequestPayout:   summary.CanRequestPayout,
		RecentTransactions: nonNil(summary.RecentTransactions),
	})
}

func (h *PayoutHandler) History(c echo.Context) error {
	principal, ok := auth.FromContext(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	payouts, err := h.settlement.History(c.Request().Context(), principal.UserID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ListPayoutsResponse{Payouts: nonNil(payouts)})
}

func (h *PayoutHandler) RequestPayout(c echo.Context) error {
	principal, ok := auth.FromContext(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	payout, err := h.settlement.RequestPayout(c.Request().Context(), principal.UserID)
	if err != nil {
		log.Info().Err(err).Int64("user_id", principal.UserID).Msg("payout request refused")
		return toHTTPError(err)
	}
	return c.JSON(http.StatusCreated, PayoutResponse{Payout: *payout})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
