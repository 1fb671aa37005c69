package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/abdusco/linkpay/internal/db"
	"github.com/abdusco/linkpay/internal/gen"
	"github.com/doug-martin/goqu/v9"
	"github.com/rs/zerolog/log"
)

type clickRow struct {
	ID        int64  `db:"id"`
	LinkID    int64  `db:"link_id"`
	VisitorIP string `db:"visitor_ip"`
	UserAgent string `db:"user_agent"`
	Verdict   string `db:"verdict"`
	CreatedAt Date   `db:"created_at"`
}

// ClicksRepo is the per-visit log for monetized links. Bots never reach it.
type ClicksRepo struct {
	db  *db.DB
	ids *gen.SnowflakeNode
}

func NewClicksRepo(db *db.DB, ids *gen.SnowflakeNode) *ClicksRepo {
	return &ClicksRepo{db: db, ids: ids}
}

func (r *ClicksRepo) Create(ctx context.Context, q db.Querier, linkID int64, ip, userAgent, verdict string, at time.Time) error {
	log.Debug().Int64("link_id", linkID).Str("ip", ip).Str("verdict", verdict).Msg("recording click")

	row := clickRow{
		ID:        r.ids.NextID(),
		LinkID:    linkID,
		VisitorIP: ip,
		UserAgent: userAgent,
		Verdict:   verdict,
		CreatedAt: Date(at),
	}
	if _, err := q.Insert("clicks").Rows(row).Executor().ExecContext(ctx); err != nil {
		return fmt.Errorf("failed to record click for link %d: %w", linkID, err)
	}
	return nil
}

// CountByIPSince counts clicks from ip on any link at or after since.
func (r *ClicksRepo) CountByIPSince(ctx context.Context, ip string, since time.Time) (int64, error) {
	count, err := r.db.From("clicks").
		Where(
			goqu.C("visitor_ip").Eq(ip),
			goqu.C("created_at").Gte(millis(since)),
		).
		CountContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count clicks for %s: %w", ip, err)
	}
	return count, nil
}
