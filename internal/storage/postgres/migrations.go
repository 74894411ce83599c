package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// DDL statements applied in order at startup. Each statement is idempotent so
// Apply can run on every boot.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS trust_core_metrics (
		address     TEXT PRIMARY KEY,
		metrics     JSONB NOT NULL,
		updated_at  TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trust_metric_configs (
		app_id       TEXT PRIMARY KEY,
		developer_id TEXT NOT NULL,
		config       JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trust_field_values (
		address    TEXT NOT NULL,
		app_id     TEXT NOT NULL,
		field_name TEXT NOT NULL,
		value      DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (address, app_id, field_name)
	)`,
	`CREATE TABLE IF NOT EXISTS trust_composite_scores (
		id           TEXT PRIMARY KEY,
		address      TEXT NOT NULL,
		app_id       TEXT NOT NULL,
		core_score   DOUBLE PRECISION NOT NULL,
		custom_score DOUBLE PRECISION NOT NULL,
		final_score  DOUBLE PRECISION NOT NULL,
		components   JSONB,
		computed_at  TIMESTAMPTZ NOT NULL,
		UNIQUE (address, app_id)
	)`,
	`CREATE TABLE IF NOT EXISTS trust_delegations (
		id         TEXT PRIMARY KEY,
		delegator  TEXT NOT NULL,
		delegate   TEXT NOT NULL,
		amount     DOUBLE PRECISION NOT NULL,
		max_depth  INTEGER NOT NULL,
		active     BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trust_delegations_delegate
		ON trust_delegations (delegate) WHERE active`,
	`CREATE INDEX IF NOT EXISTS idx_trust_delegations_delegator
		ON trust_delegations (delegator) WHERE active`,
	`CREATE TABLE IF NOT EXISTS trust_base_scores (
		address    TEXT PRIMARY KEY,
		score      DOUBLE PRECISION NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS trust_environmental_submissions (
		address         TEXT PRIMARY KEY,
		renewable_ratio DOUBLE PRECISION NOT NULL,
		submitted_at    TIMESTAMPTZ NOT NULL
	)`,
}

// Apply runs the schema migrations.
func Apply(ctx context.Context, db *sql.DB) error {
	for i, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
