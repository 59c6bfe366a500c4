package postgres

import (
	"context"
	"fmt"
)

const (
	constraintOrderNumber   = "orders_number_key"
	constraintTransactionID = "orders_transaction_id_key"
)

// Records are stored as JSONB documents; the columns next to them carry the
// fields that queries filter, sort or constrain on.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id               UUID PRIMARY KEY,
		number           TEXT NOT NULL CONSTRAINT orders_number_key UNIQUE,
		transaction_id   TEXT NOT NULL CONSTRAINT orders_transaction_id_key UNIQUE,
		user_id          TEXT NOT NULL,
		restaurant_id    TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		payment_status   TEXT NOT NULL,
		kitchen_status   TEXT NOT NULL,
		sent_to_kitchen  BOOLEAN NOT NULL DEFAULT FALSE,
		kitchen_hidden   BOOLEAN NOT NULL DEFAULT TRUE,
		kitchen_priority BOOLEAN NOT NULL DEFAULT FALSE,
		archived         BOOLEAN NOT NULL DEFAULT FALSE,
		version          BIGINT NOT NULL,
		created_at       TIMESTAMPTZ NOT NULL,
		doc              JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS orders_user_created_idx ON orders (user_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS orders_kitchen_idx ON orders (payment_status, sent_to_kitchen, kitchen_hidden)`,
	`CREATE TABLE IF NOT EXISTS order_history (
		id                UUID PRIMARY KEY,
		original_order_id UUID NOT NULL UNIQUE,
		user_id           TEXT NOT NULL,
		order_created_at  TIMESTAMPTZ NOT NULL,
		doc               JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS order_history_user_idx ON order_history (user_id, order_created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id            UUID PRIMARY KEY,
		order_id      TEXT NOT NULL,
		user_id       TEXT NOT NULL,
		restaurant_id TEXT NOT NULL DEFAULT '',
		created_at    TIMESTAMPTZ NOT NULL,
		doc           JSONB NOT NULL,
		UNIQUE (order_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS rating_stats (
		restaurant_id TEXT NOT NULL,
		subject_type  TEXT NOT NULL,
		subject_id    TEXT NOT NULL,
		doc           JSONB NOT NULL,
		PRIMARY KEY (restaurant_id, subject_type, subject_id)
	)`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id              UUID PRIMARY KEY,
		type            TEXT NOT NULL,
		payload         JSONB NOT NULL,
		status          TEXT NOT NULL,
		attempts        INT NOT NULL DEFAULT 0,
		max_attempts    INT NOT NULL,
		next_attempt_at TIMESTAMPTZ NOT NULL,
		lease_until     TIMESTAMPTZ,
		last_error      TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL,
		updated_at      TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_due_idx ON outbox (status, next_attempt_at)`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
