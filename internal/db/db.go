// Package db owns the Postgres side of the booking engine: pool
// construction tuned for the short point queries the engine issues, and
// the idempotent schema the repository reads and writes.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectPostgres builds a pgx pool and verifies it with a ping before any
// booking traffic reaches it. The engine holds connections only for the
// duration of one statement, so the pool stays small.
func ConnectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	cfg.MinConns = 1
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return pool, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS providers (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	specialties TEXT[] NOT NULL DEFAULT '{}',
	rating DOUBLE PRECISION NOT NULL DEFAULT 5.0,
	active BOOLEAN NOT NULL DEFAULT true,
	timezone TEXT NOT NULL DEFAULT 'UTC',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS working_hours (
	id BIGSERIAL PRIMARY KEY,
	provider_id UUID NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
	weekday SMALLINT NOT NULL CHECK (weekday BETWEEN 0 AND 6),
	open_mins INT NOT NULL CHECK (open_mins >= 0 AND open_mins < 1440),
	close_mins INT NOT NULL CHECK (close_mins > open_mins AND close_mins <= 1440)
);

CREATE TABLE IF NOT EXISTS date_overrides (
	id BIGSERIAL PRIMARY KEY,
	provider_id UUID NOT NULL REFERENCES providers(id) ON DELETE CASCADE,
	day DATE NOT NULL,
	closed BOOLEAN NOT NULL DEFAULT false,
	open_mins INT,
	close_mins INT
);

CREATE TABLE IF NOT EXISTS services (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	duration_mins INT NOT NULL CHECK (duration_mins > 0),
	buffer_mins INT NOT NULL DEFAULT 0 CHECK (buffer_mins >= 0),
	price_cents BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS appointments (
	id UUID PRIMARY KEY,
	provider_id UUID NOT NULL REFERENCES providers(id),
	service_id UUID NOT NULL REFERENCES services(id),
	customer_name TEXT NOT NULL DEFAULT '',
	customer_email TEXT NOT NULL DEFAULT '',
	customer_phone TEXT NOT NULL DEFAULT '',
	start_at TIMESTAMPTZ NOT NULL,
	end_at TIMESTAMPTZ NOT NULL,
	buffer_mins INT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	idempotency_key TEXT NOT NULL UNIQUE,
	notes TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_working_hours_provider ON working_hours(provider_id, weekday);
CREATE INDEX IF NOT EXISTS idx_date_overrides_provider_day ON date_overrides(provider_id, day);
CREATE INDEX IF NOT EXISTS idx_appointments_provider_start ON appointments(provider_id, start_at);
CREATE INDEX IF NOT EXISTS idx_appointments_status_end ON appointments(status, end_at);
CREATE INDEX IF NOT EXISTS idx_appointments_customer_email ON appointments(customer_email);

CREATE TABLE IF NOT EXISTS event_logs (
	id BIGSERIAL PRIMARY KEY,
	event_type TEXT NOT NULL,
	appointment_id UUID,
	payload JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// Migrate applies the schema. All statements are idempotent so it is safe
// to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
