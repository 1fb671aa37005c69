package repo

import (
	"context"
	"fmt"

	"github.com/abdusco/linkpay/internal"
	"github.com/abdusco/linkpay/internal/db"
	"github.com/abdusco/linkpay/internal/money"
	"github.com/doug-martin/goqu/v9"
	"github.com/samber/lo"
)

type walletTxRow struct {
	ID           int64  `db:"id"`
	UserID       int64  `db:"user_id"`
	Type         string `db:"type"`
	Delta        int64  `db:"delta"`
	BalanceAfter int64  `db:"balance_after"`
	ReferenceID  int64  `db:"reference_id"`
	CreatedAt    Date   `db:"created_at"`
}

// WalletTxRepo is the append-only wallet audit trail. There is no update or
// delete.
type WalletTxRepo struct {
	db *db.DB
}

func NewWalletTxRepo(db *db.DB) *WalletTxRepo {
	return &WalletTxRepo{db: db}
}

func (r *WalletTxRepo) Append(ctx context.Context, tx db.Querier, wtx internal.WalletTransaction) error {
	row := walletTxRow{
		ID:           wtx.ID,
		UserID:       wtx.UserID,
		Type:         string(wtx.Type),
		Delta:        int64(wtx.Delta),
		BalanceAfter: int64(wtx.BalanceAfter),
		ReferenceID:  wtx.ReferenceID,
		CreatedAt:    Date(wtx.CreatedAt),
	}
	if _, err := tx.Insert("wallet_transactions").Rows(row).Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to append %s transaction for user %d: %w", wtx.Type, wtx.UserID, err)
	}
	return nil
}

// ListByUser returns the user's most recent transactions, newest first.
func (r *WalletTxRepo) ListByUser(ctx context.Context, q db.Querier, userID int64, limit uint) ([]internal.WalletTransaction, error) {
	var rows []walletTxRow
	err := q.From("wallet_transactions").
		Where(goqu.C("user_id").Eq(userID)).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc()).
		Limit(limit).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions for user %d: %w", userID, err)
	}

	return lo.Map(rows, func(row walletTxRow, _ int) internal.WalletTransaction {
		return row.toDomain()
	}), nil
}

// SumByUser is the signed total of every transaction the user has, which
// must always equal their wallet balance.
func (r *WalletTxRepo) SumByUser(ctx context.Context, q db.Querier, userID int64) (money.Micros, error) {
	var sum int64
	_, err := q.From("wallet_transactions").
		Select(goqu.Cast(goqu.COALESCE(goqu.SUM("delta"), 0), "BIGINT")).
		Where(goqu.C("user_id").Eq(userID)).
		ScanValContext(ctx, &sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum transactions for user %d: %w", userID, err)
	}
	return money.Micros(sum), nil
}

func (r walletTxRow) toDomain() internal.WalletTransaction {
	return internal.WalletTransaction{
		ID:           r.ID,
		UserID:       r.UserID,
		Type:         internal.TransactionType(r.Type),
		Delta:        money.Micros(r.Delta),
		BalanceAfter: money.Micros(r.BalanceAfter),
		ReferenceID:  r.ReferenceID,
		CreatedAt:    r.CreatedAt.Time(),
	}
}
