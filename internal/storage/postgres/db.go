// Package postgres provides Postgres-backed persistence for request and
// hashtag records. The two record kinds live in separate tables so the
// collections stay independent.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgxpool.Pool the stores rely on. pgxmock satisfies
// it for tests.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Config controls the shared connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// Connect builds a pgx pool from the config.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS requests (
	id UUID PRIMARY KEY,
	source_id TEXT NOT NULL,
	requested_by TEXT NOT NULL DEFAULT '',
	tag TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	archive_url TEXT NOT NULL DEFAULT '',
	response_id TEXT NOT NULL DEFAULT '',
	site JSONB,
	state TEXT NOT NULL,
	previous_state TEXT NOT NULL DEFAULT '',
	error_count INT NOT NULL DEFAULT 0,
	visibility TEXT NOT NULL DEFAULT 'unlisted',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS requests_state_idx ON requests (state);

CREATE TABLE IF NOT EXISTS hashtag_requests (
	seq BIGINT GENERATED ALWAYS AS IDENTITY,
	id UUID PRIMARY KEY,
	source_id TEXT NOT NULL,
	requested_by TEXT NOT NULL DEFAULT '',
	tag TEXT NOT NULL,
	url TEXT NOT NULL DEFAULT '',
	archive_url TEXT NOT NULL DEFAULT '',
	response_id TEXT NOT NULL DEFAULT '',
	site JSONB,
	state TEXT NOT NULL,
	previous_state TEXT NOT NULL DEFAULT '',
	error_count INT NOT NULL DEFAULT 0,
	visibility TEXT NOT NULL DEFAULT 'unlisted',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS hashtag_requests_tag_idx ON hashtag_requests (tag, seq);
`

// EnsureSchema creates the tables when they do not exist yet.
func EnsureSchema(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
