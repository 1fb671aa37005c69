package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// DB wraps the connection pool with the goqu dialect matching the driver.
type DB struct {
	*goqu.Database
	SQL     *sql.DB
	Dialect string
}

// Querier is the part of goqu shared by *goqu.Database and *goqu.TxDatabase,
// so repository methods can run inside or outside a transaction.
type Querier interface {
	From(from ...interface{}) *goqu.SelectDataset
	Select(cols ...interface{}) *goqu.SelectDataset
	Insert(table interface{}) *goqu.InsertDataset
	Update(table interface{}) *goqu.UpdateDataset
}

// Open connects to databaseURL, which is either postgres://... or
// sqlite://path (a bare path is treated as SQLite), and applies the schema.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	driver, dialect, dsn := parseURL(databaseURL)

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dialect == DialectSQLite {
		// A single connection serializes every transaction, which is what
		// the ledger relies on in place of row locks.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Debug().Str("dialect", dialect).Msg("database connection successful")

	if err := migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Str("dialect", dialect).Msg("migrations completed successfully")

	return &DB{
		Database: goqu.New(dialect, conn),
		SQL:      conn,
		Dialect:  dialect,
	}, nil
}

func (d *DB) Close() error {
	return d.SQL.Close()
}

// WithTx runs fn in a transaction, committing if it returns nil and rolling
// back otherwise.
func (d *DB) WithTx(ctx context.Context, fn func(tx *goqu.TxDatabase) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error().Err(rbErr).Msg("failed to roll back transaction")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ForUpdate adds a row lock on dialects that support one. SQLite has no
// FOR UPDATE; its writers are already serialized.
func (d *DB) ForUpdate(ds *goqu.SelectDataset) *goqu.SelectDataset {
	if d.Dialect == DialectPostgres {
		return ds.ForUpdate(exp.Wait)
	}
	return ds
}

// IsUniqueViolation reports whether err came from a unique constraint.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return true
		}
		// Primary result code only, when extended codes are off.
		return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE constraint failed")
	}
	return false
}

func parseURL(databaseURL string) (driver, dialect, dsn string) {
	if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
		return "pgx", DialectPostgres, databaseURL
	}
	return "sqlite", DialectSQLite, formatDBPath(strings.TrimPrefix(databaseURL, "sqlite://"))
}

func formatDBPath(path string) string {
	if path == "" {
		path = "linkpay.db"
	}

	path, query, _ := strings.Cut(path, "?")
	if !strings.HasPrefix(path, "file:") {
		path = "file:" + path
	}

	// Add pragmas for better performance and safety
	// See: https://pkg.go.dev/modernc.org/sqlite#pkg-overview
	params, err := url.ParseQuery(query)
	if err != nil {
		params = url.Values{}
	}
	if params.Get("mode") == "" {
		params.Set("mode", "rwc")
	}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	if params.Get("mode") != "memory" {
		params.Add("_pragma", "journal_mode(WAL)")
		params.Add("_pragma", "synchronous(NORMAL)")
	}

	return path + "?" + params.Encode()
}
