// Package ledger turns redeemed payout tokens into impressions and wallet
// credits, at most once per link and visitor IP within the impression
// window.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/db"
	"github.com/abdusco/linkpay/internal/gen"
	"github.com/abdusco/linkpay/internal/money"
	"github.com/abdusco/linkpay/internal/repo"
	"github.com/abdusco/linkpay/internal/token"
	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"
)

const (
	ReasonAlreadyCounted = "already_counted"
	ReasonNotPayable     = "not_payable"
)

// Result of redeeming a valid token. Unpaid results are normal outcomes,
// not errors.
type Result struct {
	Paid         bool
	Reason       string
	ImpressionID int64
	Amount       money.Micros
}

type TokenParser interface {
	Parse(raw string) (*token.Claims, error)
}

type Verifier struct {
	db          *db.DB
	tokens      TokenParser
	users       *repo.UsersRepo
	impressions *repo.ImpressionsRepo
	walletTx    *repo.WalletTxRepo
	ids         *gen.SnowflakeNode
	window      time.Duration
	now         func() time.Time
}

func NewVerifier(
	d *db.DB,
	tokens TokenParser,
	users *repo.UsersRepo,
	impressions *repo.ImpressionsRepo,
	walletTx *repo.WalletTxRepo,
	ids *gen.SnowflakeNode,
	window time.Duration,
) *Verifier {
	return &Verifier{
		db:          d,
		tokens:      tokens,
		users:       users,
		impressions: impressions,
		walletTx:    walletTx,
		ids:         ids,
		window:      window,
		now:         time.Now,
	}
}

func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

// unpaid aborts the transaction without surfacing an error to the caller.
type unpaid string

func (u unpaid) Error() string { return string(u) }

// Verify redeems rawToken for callerIP. It returns internal.ErrInvalidToken
// for tokens that fail validation or were minted for a different IP.
func (v *Verifier) Verify(ctx context.Context, rawToken, callerIP string) (Result, error) {
	claims, err := v.tokens.Parse(rawToken)
	if err != nil {
		log.Debug().Err(err).Str("ip", callerIP).Msg("payout token rejected")
		return Result{}, err
	}

	if claims.VisitorIP != callerIP {
		log.Warn().
			Int64("link_id", claims.LinkID).
			Str("token_ip", claims.VisitorIP).
			Str("caller_ip", callerIP).
			Msg("payout token redeemed from another ip")
		return Result{}, fmt.Errorf("%w: ip mismatch", internal.ErrInvalidToken)
	}

	now := v.now()
	imp := internal.Impression{
		ID:               v.ids.NextID(),
		LinkID:           claims.LinkID,
		OwnerID:          claims.OwnerID,
		AdFormatID:       claims.AdFormatID,
		VisitorIP:        claims.VisitorIP,
		VisitorUserAgent: claims.VisitorUserAgent,
		Amount:           claims.Amount(),
		CreatedAt:        now,
	}

	err = v.db.WithTx(ctx, func(tx *goqu.TxDatabase) error {
		return v.credit(ctx, tx, imp)
	})

	var reason unpaid
	if errors.As(err, &reason) {
		log.Info().
			Int64("link_id", imp.LinkID).
			Str("ip", imp.VisitorIP).
			Str("reason", string(reason)).
			Msg("impression not paid")
		return Result{Paid: false, Reason: string(reason)}, nil
	}
	if err != nil {
		return Result{}, err
	}

	log.Info().
		Int64("link_id", imp.LinkID).
		Int64("owner_id", imp.OwnerID).
		Int64("impression_id", imp.ID).
		Stringer("amount", imp.Amount).
		Msg("impression credited")

	return Result{Paid: true, ImpressionID: imp.ID, Amount: imp.Amount}, nil
}

func (v *Verifier) credit(ctx context.Context, tx *goqu.TxDatabase, imp internal.Impression) error {
	// The owner row lock serializes redemptions for all of the owner's
	// links, so the NOT EXISTS check below sees every committed impression.
	wallet, err := v.users.LockWallet(ctx, tx, imp.OwnerID)
	if errors.Is(err, internal.ErrUserNotFound) {
		return unpaid(ReasonNotPayable)
	}
	if err != nil {
		return err
	}
	if wallet.Banned {
		return unpaid(ReasonNotPayable)
	}

	inserted, err := v.impressions.InsertIfAbsent(ctx, tx, imp, v.window)
	if err != nil {
		return err
	}
	if !inserted {
		return unpaid(ReasonAlreadyCounted)
	}

	if err := v.users.Credit(ctx, tx, imp.OwnerID, imp.Amount); err != nil {
		return err
	}

	after, err := v.users.GetWallet(ctx, tx, imp.OwnerID)
	if err != nil {
		return err
	}

	return v.walletTx.Append(ctx, tx, internal.WalletTransaction{
		ID:           v.ids.NextID(),
		UserID:       imp.OwnerID,
		Type:         internal.TxImpressionCredit,
		Delta:        imp.Amount,
		BalanceAfter: after.Balance,
		ReferenceID:  imp.ID,
		CreatedAt:    imp.CreatedAt,
	})
}
