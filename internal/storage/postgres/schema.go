package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS verification_batches (
		id              TEXT PRIMARY KEY,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		finished_at     TIMESTAMPTZ,
		credential      TEXT NOT NULL DEFAULT '',
		browser_mode    TEXT NOT NULL DEFAULT 'headless',
		host            TEXT NOT NULL DEFAULT '',
		total_items     INTEGER NOT NULL DEFAULT 0,
		found_count     INTEGER NOT NULL DEFAULT 0,
		not_found_count INTEGER NOT NULL DEFAULT 0,
		status          TEXT NOT NULL DEFAULT 'queued',
		progress        INTEGER NOT NULL DEFAULT 0,
		heartbeat_at    TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS verification_items (
		id          BIGSERIAL PRIMARY KEY,
		batch_id    TEXT NOT NULL REFERENCES verification_batches(id) ON DELETE CASCADE,
		raw_line    TEXT NOT NULL,
		case_number TEXT NOT NULL,
		identifier  TEXT NOT NULL DEFAULT '',
		status      TEXT NOT NULL DEFAULT 'pending',
		message     TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at  TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_items_batch_status ON verification_items (batch_id, status)`,
	`CREATE TABLE IF NOT EXISTS verifications (
		case_number   TEXT NOT NULL,
		identifier    TEXT NOT NULL DEFAULT '',
		original_file TEXT NOT NULL,
		outcome       TEXT NOT NULL,
		matched_name  TEXT,
		protocol_date TEXT,
		message       TEXT NOT NULL DEFAULT '',
		credential    TEXT NOT NULL DEFAULT '',
		browser_mode  TEXT NOT NULL DEFAULT '',
		host          TEXT NOT NULL DEFAULT '',
		batch_id      TEXT NOT NULL DEFAULT '',
		item_id       BIGINT NOT NULL DEFAULT 0,
		verified_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (case_number, identifier)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_verifications_batch ON verifications (batch_id)`,
	`CREATE TABLE IF NOT EXISTS batch_logs (
		id        BIGSERIAL PRIMARY KEY,
		at        TIMESTAMPTZ NOT NULL DEFAULT now(),
		level     TEXT NOT NULL,
		message   TEXT NOT NULL,
		batch_id  TEXT NOT NULL DEFAULT '',
		worker_id TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS idx_batch_logs_batch ON batch_logs (batch_id, at)`,
	`CREATE TABLE IF NOT EXISTS credentials (
		username   TEXT PRIMARY KEY,
		password   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Init creates the schema if it does not already exist.
func (s *Store) Init(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
