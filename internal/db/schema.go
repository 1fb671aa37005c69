package db

import (
	"context"
	"database/sql"
	"strings"
)

// The schema is portable between SQLite and PostgreSQL: ids are client
// generated BIGINTs, money is BIGINT micros and timestamps are BIGINT
// unix milliseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		wallet_balance BIGINT NOT NULL DEFAULT 0 CHECK (wallet_balance >= 0),
		total_earnings BIGINT NOT NULL DEFAULT 0,
		fraud_score INTEGER NOT NULL DEFAULT 0,
		is_banned BOOLEAN NOT NULL DEFAULT FALSE,
		last_login_ip TEXT,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ad_formats (
		id BIGINT PRIMARY KEY,
		name TEXT UNIQUE NOT NULL,
		display_name TEXT NOT NULL,
		ad_markup TEXT NOT NULL,
		cpm_rate BIGINT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS links (
		id BIGINT PRIMARY KEY,
		short_code TEXT UNIQUE NOT NULL,
		destination_url TEXT NOT NULL,
		owner_id BIGINT REFERENCES users(id) ON DELETE CASCADE,
		is_monetized BOOLEAN NOT NULL DEFAULT FALSE,
		ad_format_id BIGINT REFERENCES ad_formats(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		click_count BIGINT NOT NULL DEFAULT 0,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS clicks (
		id BIGINT PRIMARY KEY,
		link_id BIGINT NOT NULL REFERENCES links(id) ON DELETE CASCADE,
		visitor_ip TEXT NOT NULL,
		user_agent TEXT,
		verdict TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS impressions (
		id BIGINT PRIMARY KEY,
		link_id BIGINT NOT NULL REFERENCES links(id) ON DELETE CASCADE,
		owner_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		ad_format_id BIGINT NOT NULL REFERENCES ad_formats(id),
		visitor_ip TEXT NOT NULL,
		visitor_user_agent TEXT,
		earned_amount BIGINT NOT NULL,
		created_at BIGINT NOT NULL,
		day_bucket BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS payout_requests (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		gross_amount BIGINT NOT NULL,
		commission_amount BIGINT NOT NULL,
		net_amount BIGINT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		requested_at BIGINT NOT NULL,
		processed_at BIGINT,
		processed_by BIGINT REFERENCES users(id),
		admin_note TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS wallet_transactions (
		id BIGINT PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		type TEXT NOT NULL,
		delta BIGINT NOT NULL,
		balance_after BIGINT NOT NULL,
		reference_id BIGINT NOT NULL,
		created_at BIGINT NOT NULL
	)`,

	`CREATE INDEX IF NOT EXISTS idx_links_owner ON links(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_clicks_ip_created ON clicks(visitor_ip, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_clicks_link ON clicks(link_id)`,
	`CREATE INDEX IF NOT EXISTS idx_impressions_link_ip ON impressions(link_id, visitor_ip, created_at)`,
	// One payable view per link, IP and UTC day. The ledger's rolling 24h
	// check is stricter, so this index only fires on races it already lost.
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_impressions_daily ON impressions(link_id, visitor_ip, day_bucket)`,
	`CREATE INDEX IF NOT EXISTS idx_payouts_user ON payout_requests(user_id, requested_at)`,
	`CREATE INDEX IF NOT EXISTS idx_payouts_status ON payout_requests(status)`,
	`CREATE INDEX IF NOT EXISTS idx_wallet_tx_user ON wallet_transactions(user_id, created_at)`,

	`INSERT INTO ad_formats (id, name, display_name, ad_markup, cpm_rate, is_active)
	VALUES (1, 'multitag', 'Multitag (Highest Earnings)', '<script src="https://quge5.com/88/tag.min.js" data-zone="207538" async data-cfasync="false"></script>', 120000000, TRUE)
	ON CONFLICT (id) DO NOTHING`,
	`INSERT INTO ad_formats (id, name, display_name, ad_markup, cpm_rate, is_active)
	VALUES (2, 'popunder', 'Onclick Popunder', '<script src="https://al5sm.com/tag.min.js" data-zone="10551833" async></script>', 100000000, TRUE)
	ON CONFLICT (id) DO NOTHING`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, strings.TrimSpace(stmt)); err != nil {
			return err
		}
	}
	return nil
}
