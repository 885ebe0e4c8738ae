// Package sqlite implements the bet ledger and audit log on an embedded
// SQLite file via modernc.org/sqlite. It is the default store when no
// Postgres DSN is configured.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

var schema = []string{
	`PRAGMA journal_mode=WAL;`,
	`PRAGMA busy_timeout=5000;`,
	`CREATE TABLE IF NOT EXISTS bets (
		id             TEXT PRIMARY KEY,
		bet_id         TEXT NOT NULL UNIQUE,
		market_id      TEXT NOT NULL,
		market_name    TEXT NOT NULL DEFAULT '',
		venue          TEXT NOT NULL DEFAULT '',
		start_time     INTEGER,
		selection_id   INTEGER NOT NULL,
		selection_name TEXT NOT NULL DEFAULT '',
		side           TEXT NOT NULL,
		stake          TEXT NOT NULL,
		odds           TEXT NOT NULL,
		liability      TEXT NOT NULL,
		rule_id        TEXT NOT NULL DEFAULT '',
		result         TEXT NOT NULL DEFAULT 'pending',
		returns        TEXT NOT NULL DEFAULT '0',
		profit_loss    TEXT NOT NULL DEFAULT '0',
		placed_at      INTEGER NOT NULL,
		settled_at     INTEGER
	);`,
	`CREATE INDEX IF NOT EXISTS bets_placed_at_idx ON bets (placed_at);`,
	`CREATE INDEX IF NOT EXISTS bets_settled_at_idx ON bets (settled_at);`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		event      TEXT NOT NULL,
		detail     TEXT,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS audit_log_created_at_idx ON audit_log (created_at);`,
}

// DB is an open ledger database.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// One writer keeps SQLite free of SQLITE_BUSY under the ledger worker.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	for _, c := range addedColumns {
		if err := ensureColumn(ctx, db, c.table, c.name, c.ddl); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: migrate: %w", err)
		}
	}
	return &DB{db: db}, nil
}

// addedColumns were introduced after the first release; files created
// earlier get them on open.
var addedColumns = []struct{ table, name, ddl string }{
	{"bets", "returns", `ALTER TABLE bets ADD COLUMN returns TEXT NOT NULL DEFAULT '0'`},
}

func ensureColumn(ctx context.Context, db *sql.DB, table, name, ddl string) error {
	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return fmt.Errorf("table info %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return fmt.Errorf("table info %s: %w", table, err)
		}
		if col == name {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("table info %s: %w", table, err)
	}
	rows.Close()
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, name, err)
	}
	return nil
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Times are stored as Unix milliseconds so range queries compare integers.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
