// Package sqlite stores working hours, bookings and billing state in SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// tsLayout is fixed-width so stored timestamps sort lexically.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

// DB wraps sql.DB with the repositories built on it.
type DB struct {
	*sql.DB
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open opens the database at path and runs migrations. Transactions start
// with BEGIN IMMEDIATE so writers are serialized.
func Open(path string) (*DB, error) {
	dsn := path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db}, nil
}

func migrate(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS working_hours (
			organization_id TEXT PRIMARY KEY,
			enabled INTEGER NOT NULL DEFAULT 0,
			weekly TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS working_hours_overrides (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			date TEXT NOT NULL,
			is_open INTEGER NOT NULL DEFAULT 0,
			open_time TEXT,
			close_time TEXT,
			reason TEXT NOT NULL,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			UNIQUE (organization_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS assets (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			title TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'AVAILABLE',
			kit_id TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS bookings (
			id TEXT PRIMARY KEY,
			organization_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			status TEXT NOT NULL,
			from_at TEXT,
			to_at TEXT,
			creator_id TEXT NOT NULL,
			custodian_id TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS booking_assets (
			booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
			asset_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (booking_id, asset_id)
		)`,
		`CREATE TABLE IF NOT EXISTS booking_checkins (
			booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
			asset_id TEXT NOT NULL,
			checked_in_by TEXT NOT NULL,
			checked_in_at TEXT NOT NULL,
			PRIMARY KEY (booking_id, asset_id)
		)`,
		`CREATE TABLE IF NOT EXISTS booking_activity (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			organization_id TEXT NOT NULL,
			booking_id TEXT NOT NULL,
			booking_name TEXT,
			type TEXT NOT NULL,
			actor_id TEXT,
			from_status TEXT,
			to_status TEXT,
			asset_count INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS billing_accounts (
			customer_id TEXT PRIMARY KEY,
			user_id TEXT,
			tier TEXT NOT NULL DEFAULT 'free',
			subscription_id TEXT,
			has_payment_method INTEGER NOT NULL DEFAULT 0,
			payment_failed INTEGER NOT NULL DEFAULT 0,
			overdue INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS billing_events (
			event_id TEXT PRIMARY KEY,
			processed_at TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_overrides_org_date ON working_hours_overrides(organization_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_org_status ON bookings(organization_id, status)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_window ON bookings(status, from_at, to_at)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_assets_asset ON booking_assets(asset_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_org_created ON booking_activity(organization_id, created_at)`,
	}

	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

func trimSQL(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: fmtTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// in renders "(?, ?, ...)" and appends values to args.
func in[T ~string](args []any, values []T) (string, []any) {
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = "?"
		args = append(args, string(v))
	}
	return "(" + strings.Join(ph, ", ") + ")", args
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
