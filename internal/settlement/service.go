// Package settlement moves earnings out of owner wallets: owners request a
// payout of their whole balance and admins approve or reject it.
package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/db"
	"github.com/abdusco/linkpay/internal/gen"
	"github.com/abdusco/linkpay/internal/money"
	"github.com/abdusco/linkpay/internal/repo"
	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const recentTransactions = 20

type Policy struct {
	MinPayout      money.Micros
	CommissionRate decimal.Decimal
}

type Service struct {
	db       *db.DB
	users    *repo.UsersRepo
	payouts  *repo.PayoutsRepo
	walletTx *repo.WalletTxRepo
	ids      *gen.SnowflakeNode
	policy   Policy
	now      func() time.Time
}

func NewService(d *db.DB, users *repo.UsersRepo, payouts *repo.PayoutsRepo, walletTx *repo.WalletTxRepo, ids *gen.SnowflakeNode, policy Policy) *Service {
	return &Service{
		db:       d,
		users:    users,
		payouts:  payouts,
		walletTx: walletTx,
		ids:      ids,
		policy:   policy,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RequestPayout withdraws the owner's entire balance into a pending payout
// request, splitting it into commission and net.
func (s *Service) RequestPayout(ctx context.Context, ownerID int64) (*internal.PayoutRequest, error) {
	now := s.now()
	var payout internal.PayoutRequest

	err := s.db.WithTx(ctx, func(tx *goqu.TxDatabase) error {
		wallet, err := s.users.LockWallet(ctx, tx, ownerID)
		if err != nil {
			return err
		}
		if wallet.Banned {
			return internal.ErrOwnerSuspended
		}

		gross := wallet.Balance
		if gross <= 0 || gross < s.policy.MinPayout {
			return fmt.Errorf("%w: balance %s, minimum %s", internal.ErrInsufficientBalance, gross, s.policy.MinPayout)
		}

		if err := s.users.Debit(ctx, tx, ownerID, gross); err != nil {
			return err
		}

		commission, net := money.Split(gross, s.policy.CommissionRate)
		payout = internal.PayoutRequest{
			ID:          s.ids.NextID(),
			UserID:      ownerID,
			Gross:       gross,
			Commission:  commission,
			Net:         net,
			Status:      internal.PayoutPending,
			RequestedAt: now,
		}
		if err := s.payouts.Create(ctx, tx, payout); err != nil {
			return err
		}

		return s.appendTx(ctx, tx, ownerID, internal.TxPayoutRequest, -gross, payout.ID, now)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("payout_id", payout.ID).
		Int64("user_id", ownerID).
		Stringer("gross", payout.Gross).
		Stringer("commission", payout.Commission).
		Stringer("net", payout.Net).
		Msg("payout requested")

	return &payout, nil
}

// Approve marks a pending request as paid out. The balance was already
// deducted when the request was made.
func (s *Service) Approve(ctx context.Context, adminID, payoutID int64, note string) (*internal.PayoutRequest, error) {
	var payout *internal.PayoutRequest
	err := s.db.WithTx(ctx, func(tx *goqu.TxDatabase) error {
		var err error
		payout, err = s.payouts.Resolve(ctx, tx, payoutID, internal.PayoutApproved, adminID, note, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Info().Int64("payout_id", payoutID).Int64("admin_id", adminID).Msg("payout approved")
	return payout, nil
}

// Reject marks a pending request as rejected and refunds the gross amount
// to the owner in the same transaction.
func (s *Service) Reject(ctx context.Context, adminID, payoutID int64, note string) (*internal.PayoutRequest, error) {
	now := s.now()
	var payout *internal.PayoutRequest

	err := s.db.WithTx(ctx, func(tx *goqu.TxDatabase) error {
		var err error
		payout, err = s.payouts.Resolve(ctx, tx, payoutID, internal.PayoutRejected, adminID, note, now)
		if err != nil {
			return err
		}

		if err := s.users.Refund(ctx, tx, payout.UserID, payout.Gross); err != nil {
			return err
		}
		return s.appendTx(ctx, tx, payout.UserID, internal.TxPayoutRefund, payout.Gross, payout.ID, now)
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("payout_id", payoutID).
		Int64("admin_id", adminID).
		Stringer("refunded", payout.Gross).
		Msg("payout rejected")
	return payout, nil
}

// Process applies an admin decision by status.
func (s *Service) Process(ctx context.Context, adminID, payoutID int64, status internal.PayoutStatus, note string) (*internal.PayoutRequest, error) {
	switch status {
	case internal.PayoutApproved:
		return s.Approve(ctx, adminID, payoutID, note)
	case internal.PayoutRejected:
		return s.Reject(ctx, adminID, payoutID, note)
	default:
		return nil, fmt.Errorf("unsupported payout status %q", status)
	}
}

func (s *Service) History(ctx context.Context, ownerID int64) ([]internal.PayoutRequest, error) {
	return s.payouts.ListByUser(ctx, ownerID)
}

func (s *Service) List(ctx context.Context, status internal.PayoutStatus) ([]internal.PayoutRequest, error) {
	return s.payouts.List(ctx, status)
}

type WalletSummary struct {
	Wallet             *internal.Wallet
	RecentTransactions []internal.WalletTransaction
	MinPayout          money.Micros
	CanRequestPayout   bool
}

func (s *Service) Wallet(ctx context.Context, ownerID int64) (*WalletSummary, error) {
	wallet, err := s.users.GetWallet(ctx, s.db, ownerID)
	if err != nil {
		return nil, err
	}

	txs, err := s.walletTx.ListByUser(ctx, s.db, ownerID, recentTransactions)
	if err != nil {
		return nil, err
	}

	return &WalletSummary{
		Wallet:             wallet,
		RecentTransactions: txs,
		MinPayout:          s.policy.MinPayout,
		CanRequestPayout:   !wallet.Banned && wallet.Balance > 0 && wallet.Balance >= s.policy.MinPayout,
	}, nil
}

func (s *Service) appendTx(ctx context.Context, tx *goqu.TxDatabase, userID int64, typ internal.TransactionType, delta money.Micros, ref int64, at time.Time) error {
	after, err := s.users.GetWallet(ctx, tx, userID)
	if err != nil {
		return err
	}

	return s.walletTx.Append(ctx, tx, internal.WalletTransaction{
		ID:           s.ids.NextID(),
		UserID:       userID,
		Type:         typ,
		Delta:        delta,
		BalanceAfter: after.Balance,
		ReferenceID:  ref,
		CreatedAt:    at,
	})
}
