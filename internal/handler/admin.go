package handler

import (
	"net/http"
	"strconv"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/auth"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

type ProcessPayoutRequest struct {
	Status internal.PayoutStatus `json:"status"`
	Note   string                `json:"note"`
}

func (h *PayoutHandler) ListAll(c echo.Context) error {
	status := internal.PayoutStatus(c.QueryParam("status"))
	if status != "" && !lo.Contains(payoutStatuses, status) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	payouts, err := h.settlement.List(c.Request().Context(), status)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, ListPayoutsResponse{Payouts: nonNil(payouts)})
}

func (h *PayoutHandler) Process(c echo.Context) error {
	principal, ok := auth.FromContext(c)
	if !ok {
		return echo.ErrUnauthorized
	}

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payout id")
	}

	var req ProcessPayoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}
	if req.Status != internal.PayoutApproved && req.Status != internal.PayoutRejected {
		return echo.NewHTTPError(http.StatusBadRequest, "status must be approved or rejected")
	}

	payout, err := h.settlement.Process(c.Request().Context(), principal.UserID, id, req.Status, req.Note)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, PayoutResponse{Payout: *payout})
}

var payoutStatuses = []internal.PayoutStatus{
	internal.PayoutPending,
	internal.PayoutApproved,
	internal.PayoutRejected,
}
