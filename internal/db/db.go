package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// Open connects to postgres and verifies the connection.
func Open(databaseURL string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return conn, nil
}

// Migrate bootstraps the schema so the server and worker can start against an
// empty database.
func Migrate(conn *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS customers (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			phone TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT 'individual',
			tags TEXT[] NOT NULL DEFAULT '{}',
			last_visit_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS campaigns (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			message TEXT NOT NULL,
			filters JSONB NOT NULL DEFAULT '{}',
			bh_start_min INT NOT NULL DEFAULT 540,
			bh_end_min INT NOT NULL DEFAULT 1080,
			daily_limit INT NOT NULL DEFAULT 100,
			delay_min_sec INT NOT NULL DEFAULT 20,
			delay_max_sec INT NOT NULL DEFAULT 60,
			scheduled_for TIMESTAMPTZ,
			status TEXT NOT NULL DEFAULT 'draft',
			target_count INT NOT NULL DEFAULT 0,
			sent_count INT NOT NULL DEFAULT 0,
			failed_count INT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS targets (
			id SERIAL PRIMARY KEY,
			campaign_id INT NOT NULL REFERENCES campaigns(id),
			customer_id INT,
			name TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			attempt_count INT NOT NULL DEFAULT 0,
			last_attempt_at TIMESTAMPTZ,
			sent_at TIMESTAMPTZ,
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_targets_campaign_status ON targets (campaign_id, status, id)`,
		`CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns (status)`,
	}
	for _, stmt := range stmts {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
