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

// resolvedLinkRow is links LEFT JOIN ad_formats LEFT JOIN users.
type resolvedLinkRow struct {
	ID          int64  `db:"id"`
	Code        string `db:"short_code"`
	Destination string `db:"destination_url"`
	Monetized   bool   `db:"is_monetized"`
	Active      bool   `db:"is_active"`

	AdFormatID     *int64  `db:"ad_format_id"`
	AdFormatName   *string `db:"ad_format_name"`
	AdFormatTitle  *string `db:"ad_format_title"`
	AdMarkup       *string `db:"ad_markup"`
	CPMRate        *int64  `db:"cpm_rate"`
	AdFormatActive *bool   `db:"ad_format_active"`

	OwnerID          *int64  `db:"owner_id"`
	OwnerBanned      *bool   `db:"owner_banned"`
	OwnerFraudScore  *int    `db:"owner_fraud_score"`
	OwnerLastLoginIP *string `db:"owner_last_login_ip"`
}

type LinkRow struct {
	ID          int64  `db:"id"`
	Code        string `db:"short_code"`
	Destination string `db:"destination_url"`
	OwnerID     *int64 `db:"owner_id"`
	Monetized   bool   `db:"is_monetized"`
	AdFormatID  *int64 `db:"ad_format_id"`
	Active      bool   `db:"is_active"`
	ClickCount  int64  `db:"click_count"`
	CreatedAt   Date   `db:"created_at"`
}

type LinksRepo struct {
	db *db.DB
}

func NewLinksRepo(db *db.DB) *LinksRepo {
	return &LinksRepo{db: db}
}

// Resolve loads a link with its ad format and owner state in a single read.
// It returns internal.ErrLinkNotFound for unknown codes; activity and ban
// checks are left to the caller.
func (r *LinksRepo) Resolve(ctx context.Context, code string) (*internal.ResolvedLink, error) {
	log.Debug().Str("code", code).Msg("resolving link")

	query := r.db.From(goqu.T("links").As("l")).
		LeftJoin(goqu.T("ad_formats").As("af"), goqu.On(goqu.I("af.id").Eq(goqu.I("l.ad_format_id")))).
		LeftJoin(goqu.T("users").As("u"), goqu.On(goqu.I("u.id").Eq(goqu.I("l.owner_id")))).
		Select(
			goqu.I("l.id").As("id"),
			goqu.I("l.short_code").As("short_code"),
			goqu.I("l.destination_url").As("destination_url"),
			goqu.I("l.is_monetized").As("is_monetized"),
			goqu.I("l.is_active").As("is_active"),
			goqu.I("af.id").As("ad_format_id"),
			goqu.I("af.name").As("ad_format_name"),
			goqu.I("af.display_name").As("ad_format_title"),
			goqu.I("af.ad_markup").As("ad_markup"),
			goqu.I("af.cpm_rate").As("cpm_rate"),
			goqu.I("af.is_active").As("ad_format_active"),
			goqu.I("u.id").As("owner_id"),
			goqu.I("u.is_banned").As("owner_banned"),
			goqu.I("u.fraud_score").As("owner_fraud_score"),
			goqu.I("u.last_login_ip").As("owner_last_login_ip"),
		).
		Where(goqu.I("l.short_code").Eq(code))

	var row resolvedLinkRow
	found, err := query.ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve link %q: %w", code, err)
	}
	if !found {
		return nil, internal.ErrLinkNotFound
	}

	return row.toDomain(), nil
}

// IncrementClicks bumps the aggregate counter on the link row.
func (r *LinksRepo) IncrementClicks(ctx context.Context, q db.Querier, linkID int64) error {
	_, err := q.Update("links").
		Set(goqu.Record{"click_count": goqu.L("click_count + 1")}).
		Where(goqu.C("id").Eq(linkID)).
		Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to increment clicks for link %d: %w", linkID, err)
	}
	return nil
}

func (r *LinksRepo) GetByID(ctx context.Context, linkID int64) (*LinkRow, error) {
	var row LinkRow
	found, err := r.db.From("links").Where(goqu.C("id").Eq(linkID)).ScanStructContext(ctx, &row)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch link %d: %w", linkID, err)
	}
	if !found {
		return nil, internal.ErrLinkNotFound
	}
	return &row, nil
}

// Create inserts a link row. Link creation belongs to the dashboard; this is
// the write side of its contract and is used for seeding.
func (r *LinksRepo) Create(ctx context.Context, row LinkRow) error {
	if time.Time(row.CreatedAt).IsZero() {
		row.CreatedAt = Date(time.Now())
	}
	_, err := r.db.Insert("links").Rows(row).Executor().ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to create link %q: %w", row.Code, err)
	}
	return nil
}

func (r *resolvedLinkRow) toDomain() *internal.ResolvedLink {
	link := &internal.ResolvedLink{
		ID:          r.ID,
		Code:        r.Code,
		Destination: r.Destination,
		Monetized:   r.Monetized,
		Active:      r.Active,
	}

	if r.AdFormatID != nil {
		link.AdFormat = &internal.AdFormat{
			ID:          *r.AdFormatID,
			Name:        deref(r.AdFormatName),
			DisplayName: deref(r.AdFormatTitle),
			Markup:      deref(r.AdMarkup),
			CPMRate:     money.Micros(deref(r.CPMRate)),
			Active:      deref(r.AdFormatActive),
		}
	}

	if r.OwnerID != nil {
		link.Owner = &internal.Owner{
			ID:          *r.OwnerID,
			Banned:      deref(r.OwnerBanned),
			FraudScore:  deref(r.OwnerFraudScore),
			LastLoginIP: deref(r.OwnerLastLoginIP),
		}
	}

	return link
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
