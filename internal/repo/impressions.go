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

type dailyStatsRow struct {
	DayBucket   int64 `db:"day_bucket"`
	Impressions int64 `db:"impressions"`
	Earned      int64 `db:"earned"`
}

type ImpressionsRepo struct {
	db *db.DB
}

func NewImpressionsRepo(db *db.DB) *ImpressionsRepo {
	return &ImpressionsRepo{db: db}
}

// InsertIfAbsent records imp unless the same link already has an impression
// from the same IP newer than imp.CreatedAt-window. The check and the insert
// are a single statement. It reports whether a row was written.
func (r *ImpressionsRepo) InsertIfAbsent(ctx context.Context, tx db.Querier, imp internal.Impression, window time.Duration) (bool, error) {
	recent := tx.From("impressions").
		Select(goqu.L("1")).
		Where(
			goqu.C("link_id").Eq(imp.LinkID),
			goqu.C("visitor_ip").Eq(imp.VisitorIP),
			goqu.C("created_at").Gt(millis(imp.CreatedAt.Add(-window))),
		)

	values := tx.Select(
		goqu.V(imp.ID),
		goqu.V(imp.LinkID),
		goqu.V(imp.OwnerID),
		goqu.V(imp.AdFormatID),
		goqu.V(imp.VisitorIP),
		goqu.V(imp.VisitorUserAgent),
		goqu.V(int64(imp.Amount)),
		goqu.V(millis(imp.CreatedAt)),
		goqu.V(dayBucket(imp.CreatedAt)),
	).Where(goqu.L("NOT EXISTS ?", recent))

	res, err := tx.Insert("impressions").
		Cols("id", "link_id", "owner_id", "ad_format_id", "visitor_ip",
			"visitor_user_agent", "earned_amount", "created_at", "day_bucket").
		FromQuery(values).
		Executor().ExecContext(ctx)
	if err != nil {
		if db.IsUniqueViolation(err) {
			log.Debug().Int64("link_id", imp.LinkID).Str("ip", imp.VisitorIP).Msg("impression rejected by daily index")
			return false, nil
		}
		return false, fmt.Errorf("failed to insert impression for link %d: %w", imp.LinkID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// DailyStats aggregates a link's impressions per UTC day since the given
// time, newest day first.
func (r *ImpressionsRepo) DailyStats(ctx context.Context, linkID int64, since time.Time) ([]internal.DailyStats, error) {
	var rows []dailyStatsRow
	err := r.db.From("impressions").
		Select(
			goqu.C("day_bucket"),
			goqu.COUNT(goqu.Star()).As("impressions"),
			goqu.Cast(goqu.SUM("earned_amount"), "BIGINT").As("earned"),
		).
		Where(
			goqu.C("link_id").Eq(linkID),
			goqu.C("created_at").Gte(millis(since)),
		).
		GroupBy("day_bucket").
		Order(goqu.C("day_bucket").Desc()).
		ScanStructsContext(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate impressions for link %d: %w", linkID, err)
	}

	return lo.Map(rows, func(row dailyStatsRow, _ int) internal.DailyStats {
		return internal.DailyStats{
			Day:         time.UnixMilli(row.DayBucket * dayMillis).UTC(),
			Impressions: row.Impressions,
			Earned:      money.Micros(row.Earned),
		}
	}), nil
}
