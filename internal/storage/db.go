package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool is the subset of *pgxpool.Pool the repositories use.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

type DB struct {
	Pool Pool

	schemaMu       sync.Mutex
	schemaPrepared bool
}

func NewDB(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := poolConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DB{Pool: pool}, nil
}

// Connections are held for the export and the final write only; the pool
// drops them while the annotation loop runs.
const (
	idleConnTimeout = 30 * time.Second
	poolHealthCheck = 10 * time.Second
	maxPoolConns    = 4
)

func poolConfig(dsn string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	cfg.MinConns = 0
	cfg.MaxConns = maxPoolConns
	cfg.MaxConnIdleTime = idleConnTimeout
	cfg.HealthCheckPeriod = poolHealthCheck
	return cfg, nil
}

func NewWithPool(p Pool) *DB {
	return &DB{Pool: p}
}

func (d *DB) Close() {
	if d != nil && d.Pool != nil {
		d.Pool.Close()
	}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS source_items (
  id TEXT PRIMARY KEY,
  kind TEXT NOT NULL CHECK (kind IN ('post','comment')),
  parent_id TEXT,
  thread_id TEXT NOT NULL,
  author_tag TEXT,
  title TEXT,
  body TEXT NOT NULL DEFAULT '',
  score INT NOT NULL DEFAULT 0,
  community TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_source_items_thread ON source_items(thread_id);
CREATE INDEX IF NOT EXISTS idx_source_items_community ON source_items(community, created_at);

CREATE TABLE IF NOT EXISTS extraction_status (
  source_item_id TEXT PRIMARY KEY REFERENCES source_items(id) ON DELETE CASCADE,
  status TEXT NOT NULL CHECK (status IN ('pending','processed','skipped','failed')),
  log_message TEXT,
  attempted_at TIMESTAMPTZ,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_extraction_status_status ON extraction_status(status);

CREATE TABLE IF NOT EXISTS extraction_results (
  source_item_id TEXT PRIMARY KEY REFERENCES source_items(id) ON DELETE CASCADE,
  source_kind TEXT NOT NULL,
  thread_id TEXT NOT NULL,
  run_id TEXT,
  features JSONB NOT NULL,
  drugs_mentioned JSONB NOT NULL DEFAULT '[]'::jsonb,
  primary_drug TEXT,
  field_issues JSONB NOT NULL DEFAULT '[]'::jsonb,
  model_used TEXT NOT NULL,
  tier TEXT,
  cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
  tokens_in INT NOT NULL DEFAULT 0,
  tokens_out INT NOT NULL DEFAULT 0,
  processing_ms BIGINT NOT NULL DEFAULT 0,
  raw_response TEXT,
  prompt_hash TEXT,
  depth_flagged BOOLEAN NOT NULL DEFAULT FALSE,
  processed_at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_extraction_results_primary_drug ON extraction_results(primary_drug);

CREATE TABLE IF NOT EXISTS annotation_runs (
  run_id TEXT PRIMARY KEY,
  source TEXT NOT NULL DEFAULT 'run',
  filter JSONB NOT NULL DEFAULT '{}'::jsonb,
  backup_path TEXT,
  processed INT NOT NULL DEFAULT 0,
  skipped INT NOT NULL DEFAULT 0,
  failed INT NOT NULL DEFAULT 0,
  unattempted INT NOT NULL DEFAULT 0,
  persisted BIGINT NOT NULL DEFAULT 0,
  total_cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
  tokens_in BIGINT NOT NULL DEFAULT 0,
  tokens_out BIGINT NOT NULL DEFAULT 0,
  cancelled BOOLEAN NOT NULL DEFAULT FALSE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the pipeline tables when missing. Safe to call repeatedly.
func (d *DB) EnsureSchema(ctx context.Context) error {
	d.schemaMu.Lock()
	defer d.schemaMu.Unlock()
	if d.schemaPrepared {
		return nil
	}
	if _, err := d.Pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	d.schemaPrepared = true
	return nil
}
