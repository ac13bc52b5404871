package postgres

import (
	"context"
	"fmt"
)

// Records are stored as JSONB documents; the columns next to them only serve lookups.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS properties (
		id  TEXT PRIMARY KEY,
		doc JSONB NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS local_packages (
		id          TEXT PRIMARY KEY,
		seq         BIGSERIAL,
		property_id TEXT NOT NULL,
		doc         JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS local_packages_property_idx ON local_packages (property_id, seq)`,
	`CREATE TABLE IF NOT EXISTS subscription_transactions (
		id          TEXT PRIMARY KEY,
		customer_id TEXT NOT NULL,
		doc         JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS subscription_transactions_customer_idx ON subscription_transactions (customer_id)`,
	`CREATE TABLE IF NOT EXISTS estimates (
		id             TEXT PRIMARY KEY,
		customer_id    TEXT NOT NULL,
		property_id    TEXT NOT NULL,
		payment_status TEXT NOT NULL,
		version        INTEGER NOT NULL,
		updated_at     TIMESTAMPTZ NOT NULL,
		doc            JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS estimates_unpaid_idx ON estimates (customer_id, property_id, updated_at DESC)
		WHERE payment_status = 'unpaid'`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id          TEXT PRIMARY KEY,
		estimate_id TEXT NOT NULL UNIQUE,
		property_id TEXT NOT NULL,
		from_date   DATE NOT NULL,
		to_date     DATE NOT NULL,
		doc         JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_property_idx ON bookings (property_id, from_date)`,
	`CREATE TABLE IF NOT EXISTS events (
		id         TEXT PRIMARY KEY,
		seq        BIGSERIAL,
		booking_id TEXT NOT NULL,
		doc        JSONB NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS events_booking_idx ON events (booking_id, seq)`,
}

func (db *DB) InitSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}

	db.l.LogInfo("Postgres schema is up to date (%d statements)", len(schema))

	return nil
}
