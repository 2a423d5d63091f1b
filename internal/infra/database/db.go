package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnMaxIdleTime = 1 * time.Minute
)

// NewPostgresConnection creates and returns a new PostgreSQL database connection.
// It also pings the database to ensure connectivity.
func NewPostgresConnection(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close() // Close the connection if ping fails
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewSQLiteConnection opens a SQLite database and creates the schema.
// Use ":memory:" for an in-memory database; the pool is pinned to one
// connection so every query sees the same database.
func NewSQLiteConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// MigratePostgres creates the tables used by the reminder engine if missing.
func MigratePostgres(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS subjects (
	id                  TEXT PRIMARY KEY,
	email               TEXT NOT NULL DEFAULT '',
	company_type        TEXT NOT NULL DEFAULT '',
	company_name        TEXT NOT NULL DEFAULT '',
	shop_name           TEXT NOT NULL DEFAULT '',
	contact_name        TEXT NOT NULL DEFAULT '',
	fiscal_month        SMALLINT NOT NULL DEFAULT 3,
	employee_count      INTEGER NOT NULL DEFAULT 0,
	incorporation_date  DATE,
	subscription_plan   TEXT NOT NULL DEFAULT '',
	subscription_status TEXT NOT NULL DEFAULT '',
	disabled_rule_ids   TEXT[] NOT NULL DEFAULT '{}',
	custom_notes        JSONB NOT NULL DEFAULT '{}',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_subjects_status ON subjects (subscription_status);

CREATE TABLE IF NOT EXISTS notifications (
	subject_id           TEXT NOT NULL,
	rule_id              TEXT NOT NULL,
	occurrence_epoch_day BIGINT NOT NULL,
	lead_days            INTEGER NOT NULL,
	user_email           TEXT NOT NULL,
	regulation_name      TEXT NOT NULL,
	deadline_date        DATE NOT NULL,
	cycle_id             TEXT NOT NULL,
	sent_at              TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (subject_id, rule_id, occurrence_epoch_day, lead_days)
);
`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS subjects (
	id                  TEXT PRIMARY KEY,
	email               TEXT NOT NULL DEFAULT '',
	company_type        TEXT NOT NULL DEFAULT '',
	company_name        TEXT NOT NULL DEFAULT '',
	shop_name           TEXT NOT NULL DEFAULT '',
	contact_name        TEXT NOT NULL DEFAULT '',
	fiscal_month        INTEGER NOT NULL DEFAULT 3,
	employee_count      INTEGER NOT NULL DEFAULT 0,
	incorporation_date  TEXT,
	subscription_plan   TEXT NOT NULL DEFAULT '',
	subscription_status TEXT NOT NULL DEFAULT '',
	disabled_rule_ids   TEXT NOT NULL DEFAULT '[]',
	custom_notes        TEXT NOT NULL DEFAULT '{}',
	created_at          TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_subjects_status ON subjects (subscription_status);

CREATE TABLE IF NOT EXISTS notifications (
	subject_id           TEXT NOT NULL,
	rule_id              TEXT NOT NULL,
	occurrence_epoch_day INTEGER NOT NULL,
	lead_days            INTEGER NOT NULL,
	user_email           TEXT NOT NULL,
	regulation_name      TEXT NOT NULL,
	deadline_date        TEXT NOT NULL,
	cycle_id             TEXT NOT NULL,
	sent_at              TEXT NOT NULL,
	PRIMARY KEY (subject_id, rule_id, occurrence_epoch_day, lead_days)
);
`
