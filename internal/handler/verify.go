package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/ledger"
	"github.com/labstack/echo/v4"
)

type ImpressionVerifier interface {
	Verify(ctx context.Context, rawToken, callerIP string) (ledger.Result, error)
}

type VerifyHandler struct {
	verifier ImpressionVerifier
}

func NewVerifyHandler(verifier ImpressionVerifier) *VerifyHandler {
	return &VerifyHandler{verifier: verifier}
}

type VerifyViewRequest struct {
	Token string `json:"token"`
}

type VerifyViewResponse struct {
	Success bool   `json:"success"`
	Paid    bool   `json:"paid"`
	Reason  string `json:"reason,omitempty"`
}

const reasonInvalidToken = "invalid_token"

func (h *VerifyHandler) VerifyView(c echo.Context) error {
	var req VerifyViewRequest
	if err := c.Bind(&req); err != nil || req.Token == "" {
		return c.JSON(http.StatusBadRequest, VerifyViewResponse{Reason: reasonInvalidToken})
	}

	res, err := h.verifier.Verify(c.Request().Context(), req.Token, c.RealIP())
	if errors.Is(err, internal.ErrInvalidToken) {
		return c.JSON(http.StatusBadRequest, VerifyViewResponse{Reason: reasonInvalidToken})
	}
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, VerifyViewResponse{
		Success: true,
		Paid:    res.Paid,
		Reason:  res.Reason,
	})
}
