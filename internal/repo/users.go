package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/db"
	"github.com/abdusco/linkpay/internal/money"
	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"
)

type walletRow struct {
	ID            int64 `db:"id"`
	WalletBalance int64 `db:"wallet_balance"`
	TotalEarnings int64 `db:"total_earnings"`
	FraudScore    int   `db:"fraud_score"`
	IsBanned      bool  `db:"is_banned"`
}

// UserRow is the users table as the surrounding CRUD system writes it.
type UserRow struct {
	ID            int64        `db:"id"`
	Email         string       `db:"email"`
	Role          string       `db:"role"`
	WalletBalance money.Micros `db:"wallet_balance"`
	TotalEarnings money.Micros `db:"total_earnings"`
	FraudScore    int          `db:"fraud_score"`
	IsBanned      bool         `db:"is_banned"`
	LastLoginIP   *string      `db:"last_login_ip"`
	CreatedAt     Date         `db:"created_at"`
}

type UsersRepo struct {
	db *db.DB
}

func NewUsersRepo(db *db.DB) *UsersRepo {
	return &UsersRepo{db: db}
}

// Create inserts a user row. Registration is owned by the external account
// service; this is its side of the data contract.
func (r *UsersRepo) Create(ctx context.Context, row UserRow) error {
	if time.Time(row.CreatedAt).IsZero() {
		row.CreatedAt = Date(time.Now())
	}
	if row.Role == "" {
		row.Role = "user"
	}
	if _, err := r.db.Insert("users").Rows(row).Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to create user %d: %w", row.ID, err)
	}
	return nil
}

// RecordLogin stores the IP of the owner's latest authenticated session,
// which the fraud evaluator uses as the self-click fingerprint.
func (r *UsersRepo) RecordLogin(ctx context.Context, userID int64, ip string) error {
	_, err := r.db.Update("users").
		Set(goqu.Record{"last_login_ip": ip}).
		Where(goqu.C("id").Eq(userID)).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to record login for user %d: %w", userID, err)
	}
	return nil
}

func (r *UsersRepo) GetWallet(ctx context.Context, q db.Querier, userID int64) (*internal.Wallet, error) {
	return r.wallet(ctx, q.From("users"), userID)
}

// LockWallet reads the wallet row under a row lock. Callers must pass the
// transaction they intend to mutate the wallet in.
func (r *UsersRepo) LockWallet(ctx context.Context, tx db.Querier, userID int64) (*internal.Wallet, error) {
	return r.wallet(ctx, r.db.ForUpdate(tx.From("users")), userID)
}

func (r *UsersRepo) wallet(ctx context.Context, ds *goqu.SelectDataset, userID int64) (*internal.Wallet, error) {
	var row walletRow
	found, err := ds.
		Select("id", "wallet_balance", "total_earnings", "fraud_score", "is_banned").
		Where(goqu.C("id").Eq(userID)).
		ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to read wallet of user %d: %w", userID, err)
	}
	if !found {
		return nil, internal.ErrUserNotFound
	}
	return row.toDomain(), nil
}

// Credit adds amount to both the spendable balance and lifetime earnings.
func (r *UsersRepo) Credit(ctx context.Context, tx db.Querier, userID int64, amount money.Micros) error {
	res, err := tx.Update("users").
		Set(goqu.Record{
			"wallet_balance": goqu.L("wallet_balance + ?", int64(amount)),
			"total_earnings": goqu.L("total_earnings + ?", int64(amount)),
		}).
		Where(goqu.C("id").Eq(userID)).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to credit user %d: %w", userID, err)
	}
	return expectOneRow(res, internal.ErrUserNotFound)
}

// Refund returns amount to the spendable balance without touching
// lifetime earnings.
func (r *UsersRepo) Refund(ctx context.Context, tx db.Querier, userID int64, amount money.Micros) error {
	res, err := tx.Update("users").
		Set(goqu.Record{"wallet_balance": goqu.L("wallet_balance + ?", int64(amount))}).
		Where(goqu.C("id").Eq(userID)).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to refund user %d: %w", userID, err)
	}
	return expectOneRow(res, internal.ErrUserNotFound)
}

// Debit subtracts amount only if the balance covers it.
func (r *UsersRepo) Debit(ctx context.Context, tx db.Querier, userID int64, amount money.Micros) error {
	res, err := tx.Update("users").
		Set(goqu.Record{"wallet_balance": goqu.L("wallet_balance - ?", int64(amount))}).
		Where(
			goqu.C("id").Eq(userID),
			goqu.C("wallet_balance").Gte(int64(amount)),
		).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to debit user %d: %w", userID, err)
	}
	return expectOneRow(res, internal.ErrInsufficientBalance)
}

// AddFraudPenalty raises the owner's fraud score and bans them once the new
// score reaches banThreshold. Both happen in one statement so concurrent
// penalties cannot both miss the threshold. It returns the updated state.
func (r *UsersRepo) AddFraudPenalty(ctx context.Context, userID int64, penalty, banThreshold int) (*internal.Wallet, error) {
	var wallet *internal.Wallet
	err := r.db.WithTx(ctx, func(tx *goqu.TxDatabase) error {
		res, err := tx.Update("users").
			Set(goqu.Record{
				"fraud_score": goqu.L("fraud_score + ?", penalty),
				"is_banned":   goqu.L("CASE WHEN fraud_score + ? >= ? THEN ? ELSE is_banned END", penalty, banThreshold, true),
			}).
			Where(goqu.C("id").Eq(userID)).
			Executor().ExecContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to apply fraud penalty to user %d: %w", userID, err)
		}
		if err := expectOneRow(res, internal.ErrUserNotFound); err != nil {
			return err
		}

		wallet, err = r.GetWallet(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Warn().
		Int64("user_id", userID).
		Int("penalty", penalty).
		Int("fraud_score", wallet.FraudScore).
		Bool("banned", wallet.Banned).
		Msg("fraud penalty applied")

	return wallet, nil
}

func (r *walletRow) toDomain() *internal.Wallet {
	return &internal.Wallet{
		UserID:        r.ID,
		Balance:       money.Micros(r.WalletBalance),
		TotalEarnings: money.Micros(r.TotalEarnings),
		FraudScore:    r.FraudScore,
		Banned:        r.IsBanned,
	}
}
