package database

import (
	"context"
	"fmt"
	"log/slog"
)

// schema holds the DDL for every table the service owns. Statements are
// idempotent so Migrate can run on every start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS collections (
		name       TEXT PRIMARY KEY,
		data       JSONB NOT NULL DEFAULT '[]'::jsonb,
		version    BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id         UUID PRIMARY KEY,
		user_id    TEXT NOT NULL,
		topic_id   TEXT,
		state      TEXT NOT NULL DEFAULT 'tutoring',
		metadata   JSONB,
		started_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		ended_at   TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS conversations_user_topic_idx
		ON conversations (user_id, topic_id) WHERE ended_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS messages (
		id              BIGSERIAL PRIMARY KEY,
		conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		model           TEXT,
		input_tokens    INT,
		output_tokens   INT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id              BIGSERIAL PRIMARY KEY,
		conversation_id UUID REFERENCES conversations(id) ON DELETE SET NULL,
		user_id         TEXT NOT NULL,
		event_type      TEXT NOT NULL,
		data            JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS events_user_created_idx
		ON events (user_id, created_at DESC)`,
}

// Migrate creates the service tables if they do not exist.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i, err)
		}
	}
	slog.Info("database schema applied", "statements", len(schema))
	return nil
}
