// Package db owns the postgres connection pool shared by the job queue and
// the postgres graph backend, plus schema migration for both.
package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/CodeAtlas-hq/codeatlas/internal/graphstore"
)

// DB wraps the shared connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and verifies connectivity.
func New(ctx context.Context, databaseURL string) (*DB, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", config.ConnConfig.Host).Msg("connected to database")

	return &DB{pool: pool}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// HealthCheck verifies database connectivity.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            UUID PRIMARY KEY,
	type          TEXT NOT NULL,
	status        TEXT NOT NULL,
	priority      INT NOT NULL DEFAULT 0,
	project       TEXT,
	parent_job_id UUID,
	payload       JSONB NOT NULL DEFAULT '{}',
	result        JSONB,
	error_message TEXT,
	retry_count   INT NOT NULL DEFAULT 0,
	max_retries   INT NOT NULL DEFAULT 3,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ,
	locked_until  TIMESTAMPTZ,
	worker_id     TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_status  ON jobs(status, priority DESC, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_project ON jobs(project, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_jobs_parent  ON jobs(parent_job_id);

CREATE TABLE IF NOT EXISTS job_history (
	id              UUID PRIMARY KEY,
	job_id          UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	previous_status TEXT NOT NULL,
	new_status      TEXT NOT NULL,
	changed_by      TEXT NOT NULL,
	changed_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_job_history_job ON job_history(job_id, changed_at);
`

// Migrate creates the job tables and the graph tables when missing. Safe to
// run on every startup.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, jobsSchema); err != nil {
		return fmt.Errorf("failed to initialize job schema: %w", err)
	}
	if err := graphstore.NewPostgres(db.pool).EnsureSchema(ctx); err != nil {
		return err
	}
	log.Debug().Msg("database schema ready")
	return nil
}
