package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx"
	_ "github.com/lib/pq"              // registers "postgres"
	_ "modernc.org/sqlite"             // registers "sqlite"
)

// The schema sticks to SQL that Postgres and SQLite both accept.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS bills (
		chamber          TEXT NOT NULL,
		billtype         TEXT NOT NULL,
		number           INTEGER NOT NULL,
		year             TEXT NOT NULL,
		billno           TEXT NOT NULL,
		title            TEXT,
		sponsor          TEXT,
		sponsor_link     TEXT,
		contents_link    TEXT,
		amend_link       TEXT,
		fir_link         TEXT,
		lesc_link        TEXT,
		status_text      TEXT,
		status_html      TEXT,
		last_action_date TIMESTAMP,
		update_date      TIMESTAMP,
		mod_date         TIMESTAMP NOT NULL,
		PRIMARY KEY (chamber, billtype, number, year)
	)`,
	`CREATE INDEX IF NOT EXISTS bills_year_update_idx ON bills (year, update_date)`,
	`CREATE TABLE IF NOT EXISTS users (
		username      TEXT PRIMARY KEY,
		email         TEXT UNIQUE,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMP NOT NULL,
		last_check    TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS user_bills (
		username         TEXT NOT NULL REFERENCES users (username) ON DELETE CASCADE,
		chamber          TEXT NOT NULL,
		billtype         TEXT NOT NULL,
		number           INTEGER NOT NULL,
		year             TEXT NOT NULL,
		position         INTEGER NOT NULL,
		checked_at       TIMESTAMP,
		seen_update_date TIMESTAMP,
		generation       INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (username, chamber, billtype, number, year),
		FOREIGN KEY (chamber, billtype, number, year)
			REFERENCES bills (chamber, billtype, number, year)
	)`,
	`CREATE TABLE IF NOT EXISTS metrics (
		metric_name   TEXT NOT NULL,
		metric_value  TEXT NOT NULL,
		calculated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS metrics_name_idx ON metrics (metric_name, calculated_at)`,
}

// NewDB opens a connection pool for one of the registered drivers and verifies it
func NewDB(driver, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		// one writer at a time; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(25)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// Migrate creates any missing tables and indexes
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
