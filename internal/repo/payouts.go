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
	"github.com/samber/lo"
)

type payoutRow struct {
	ID               int64   `db:"id"`
	UserID           int64   `db:"user_id"`
	GrossAmount      int64   `db:"gross_amount"`
	CommissionAmount int64   `db:"commission_amount"`
	NetAmount        int64   `db:"net_amount"`
	Status           string  `db:"status"`
	RequestedAt      Date    `db:"requested_at"`
	ProcessedAt      *Date   `db:"processed_at"`
	ProcessedBy      *int64  `db:"processed_by"`
	AdminNote        *string `db:"admin_note"`
}

type PayoutsRepo struct {
	db *db.DB
}

func NewPayoutsRepo(db *db.DB) *PayoutsRepo {
	return &PayoutsRepo{db: db}
}

func (r *PayoutsRepo) Create(ctx context.Context, tx db.Querier, p internal.PayoutRequest) error {
	row := payoutRow{
		ID:               p.ID,
		UserID:           p.UserID,
		GrossAmount:      int64(p.Gross),
		CommissionAmount: int64(p.Commission),
		NetAmount:        int64(p.Net),
		Status:           string(p.Status),
		RequestedAt:      Date(p.RequestedAt),
	}
	if _, err := tx.Insert("payout_requests").Rows(row).Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to create payout request for user %d: %w", p.UserID, err)
	}
	return nil
}

func (r *PayoutsRepo) Get(ctx context.Context, q db.Querier, id int64) (*internal.PayoutRequest, error) {
	var row payoutRow
	found, err := q.From("payout_requests").Where(goqu.C("id").Eq(id)).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch payout request %d: %w", id, err)
	}
	if !found {
		return nil, internal.ErrPayoutNotFound
	}
	p := row.toDomain()
	return &p, nil
}

// Resolve moves a pending request to status. The status guard in the
// WHERE clause is the only thing that stops a request from being processed
// twice, so callers must not pre-check. It returns ErrPayoutNotFound or
// ErrPayoutProcessed when no row was updated.
func (r *PayoutsRepo) Resolve(ctx context.Context, tx db.Querier, id int64, status internal.PayoutStatus, adminID int64, note string, at time.Time) (*internal.PayoutRequest, error) {
	res, err := tx.Update("payout_requests").
		Set(goqu.Record{
			"status":       string(status),
			"processed_at": millis(at),
			"processed_by": adminID,
			"admin_note":   note,
		}).
		Where(
			goqu.C("id").Eq(id),
			goqu.C("status").Eq(string(internal.PayoutPending)),
		).
		Executor().ExecContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to update payout request %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read affected rows: %w", err)
	}

	p, err := r.Get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		log.Warn().Int64("payout_id", id).Str("status", string(p.Status)).Msg("payout request already processed")
		return nil, internal.ErrPayoutProcessed
	}
	return p, nil
}

func (r *PayoutsRepo) ListByUser(ctx context.Context, userID int64) ([]internal.PayoutRequest, error) {
	var rows []payoutRow
	err := r.db.From("payout_requests").
		Where(goqu.C("user_id").Eq(userID)).
		Order(goqu.C("requested_at").Desc(), goqu.C("id").Desc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list payout requests for user %d: %w", userID, err)
	}
	return toPayouts(rows), nil
}

// List returns requests in the given status, or all of them when status is
// empty. Oldest first, so admins work the queue in order.
func (r *PayoutsRepo) List(ctx context.Context, status internal.PayoutStatus) ([]internal.PayoutRequest, error) {
	query := r.db.From("payout_requests").Order(goqu.C("requested_at").Asc(), goqu.C("id").Asc())
	if status != "" {
		query = query.Where(goqu.C("status").Eq(string(status)))
	}

	var rows []payoutRow
	if err := query.ScanStructsContext(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to list payout requests: %w", err)
	}
	return toPayouts(rows), nil
}

func toPayouts(rows []payoutRow) []internal.PayoutRequest {
	return lo.Map(rows, func(row payoutRow, _ int) internal.PayoutRequest {
		return row.toDomain()
	})
}

func (r payoutRow) toDomain() internal.PayoutRequest {
	return internal.PayoutRequest{
		ID:          r.ID,
		UserID:      r.UserID,
		Gross:       money.Micros(r.GrossAmount),
		Commission:  money.Micros(r.CommissionAmount),
		Net:         money.Micros(r.NetAmount),
		Status:      internal.PayoutStatus(r.Status),
		RequestedAt: r.RequestedAt.Time(),
		ProcessedAt: timePtr(r.ProcessedAt),
		ProcessedBy: r.ProcessedBy,
		AdminNote:   deref(r.AdminNote),
	}
}
