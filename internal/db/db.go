package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type DB struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// RunMigrations creates the settlement tables if they do not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS settle_events (
			id BIGSERIAL PRIMARY KEY,
			guild_id BIGINT NOT NULL,
			channel_id TEXT NOT NULL,
			organizer_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			closed_at TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_settle_events_active_channel
			ON settle_events(channel_id) WHERE status = 'active';

		CREATE TABLE IF NOT EXISTS settle_records (
			id BIGSERIAL PRIMARY KEY,
			event_id BIGINT NOT NULL REFERENCES settle_events(id) ON DELETE CASCADE,
			kind TEXT NOT NULL CHECK (kind IN ('spent', 'gave')),
			participant_id TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			receiver_id TEXT,
			memo TEXT,
			recorded_by TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_settle_records_event ON settle_records(event_id);

		CREATE TABLE IF NOT EXISTS settle_tasks (
			id BIGSERIAL PRIMARY KEY,
			event_id BIGINT NOT NULL REFERENCES settle_events(id) ON DELETE CASCADE,
			payer_id TEXT NOT NULL,
			payee_id TEXT NOT NULL,
			amount NUMERIC NOT NULL CHECK (amount > 0),
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_settle_tasks_event ON settle_tasks(event_id);

		CREATE TABLE IF NOT EXISTS settle_task_payments (
			id BIGSERIAL PRIMARY KEY,
			event_id BIGINT NOT NULL REFERENCES settle_events(id) ON DELETE CASCADE,
			payer_id TEXT NOT NULL,
			payee_id TEXT NOT NULL,
			amount NUMERIC NOT NULL,
			memo TEXT,
			recorded_by TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS settle_reminders (
			event_id BIGINT PRIMARY KEY REFERENCES settle_events(id) ON DELETE CASCADE,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			interval_minutes INT NOT NULL DEFAULT 60,
			next_due_at TIMESTAMP,
			last_sent_at TIMESTAMP
		);
	`)
	return err
}
