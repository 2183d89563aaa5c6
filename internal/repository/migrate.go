package repository

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		locale TEXT NOT NULL DEFAULT '',
		is_admin BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS tables (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		unified BOOLEAN NOT NULL DEFAULT false
	)`,
	`CREATE TABLE IF NOT EXISTS group_bookings (
		id TEXT PRIMARY KEY,
		author_id TEXT NOT NULL REFERENCES accounts(id),
		kind TEXT NOT NULL,
		guests JSONB NOT NULL DEFAULT '[]',
		date_from TIMESTAMPTZ NOT NULL,
		date_to TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id TEXT PRIMARY KEY,
		table_id TEXT NOT NULL REFERENCES tables(id),
		user_id TEXT NOT NULL REFERENCES accounts(id),
		group_id TEXT REFERENCES group_bookings(id) ON DELETE SET NULL,
		date_from TIMESTAMPTZ NOT NULL,
		date_to TIMESTAMPTZ NOT NULL,
		date_activate_until TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL,
		theme TEXT NOT NULL DEFAULT '',
		code INTEGER,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		CHECK (date_from < date_to),
		CHECK (date_activate_until BETWEEN date_from AND date_to)
	)`,
	`CREATE INDEX IF NOT EXISTS bookings_table_interval_idx ON bookings (table_id, date_from, date_to)`,
	`CREATE INDEX IF NOT EXISTS bookings_user_interval_idx ON bookings (user_id, date_from, date_to)`,
	`CREATE INDEX IF NOT EXISTS bookings_group_idx ON bookings (group_id)`,
	`CREATE TABLE IF NOT EXISTS booking_jobs (
		job_id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		booking_id TEXT NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		time_execute TIMESTAMPTZ NOT NULL,
		params JSONB NOT NULL DEFAULT '{}',
		executed BOOLEAN NOT NULL DEFAULT false,
		submitted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS booking_jobs_due_idx ON booking_jobs (time_execute) WHERE NOT executed`,
}

// Migrate creates the schema if it does not exist yet.
func Migrate(ctx context.Context, db DB) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
