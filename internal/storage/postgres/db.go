// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// querier is the subset of *pgxpool.Pool the stores use. pgxmock pools
// satisfy it in tests.
type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Connect opens a connection pool using cfg.
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

// Schema creates the tables used by the stores.
const Schema = `
CREATE TABLE IF NOT EXISTS scraps (
	id            TEXT PRIMARY KEY,
	run_id        TEXT,
	establishment TEXT NOT NULL,
	city          TEXT NOT NULL,
	state         TEXT NOT NULL,
	platform      TEXT NOT NULL,
	link          TEXT NOT NULL,
	reviews       INTEGER NOT NULL DEFAULT 0,
	reviews_known BOOLEAN NOT NULL DEFAULT TRUE,
	last_review   DATE,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS scraps_created_at_idx ON scraps (created_at);

CREATE TABLE IF NOT EXISTS crawl_runs (
	id            TEXT PRIMARY KEY,
	platform      TEXT NOT NULL,
	started_at    TIMESTAMPTZ NOT NULL,
	finished_at   TIMESTAMPTZ,
	status        TEXT NOT NULL,
	targets       INTEGER NOT NULL DEFAULT 0,
	succeeded     INTEGER NOT NULL DEFAULT 0,
	failed        INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS crawl_runs_started_at_idx ON crawl_runs (started_at DESC);
`

// Migrate applies Schema. It is idempotent.
func Migrate(ctx context.Context, db interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
},
) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
