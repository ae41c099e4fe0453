// Package postgres implements store.Driver against PostgreSQL, the
// recommended engine for production deployments.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	_ "github.com/lib/pq"

	"github.com/hrygo/contentpipe/internal/profile"
	"github.com/hrygo/contentpipe/store"
)

// DB wraps a connected postgres pool and implements store.Driver.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a connection pool to profile.DSN and verifies connectivity.
func NewDB(p *profile.Profile) (store.Driver, error) {
	if p.DSN == "" {
		return nil, errors.New("dsn required")
	}

	sqlDB, err := sql.Open("postgres", p.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", p.DSN)
	}

	// Worker processes are long-lived but typically single-digit
	// concurrency; keep the pool small so a handful of workers don't
	// exhaust a shared database's connection limit.
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, errors.Wrap(err, "failed to connect to postgres")
	}

	return &DB{db: sqlDB, profile: p}, nil
}

func (d *DB) GetDB() *sql.DB { return d.db }

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	return d.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS content (
	id SERIAL PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	content_type TEXT NOT NULL DEFAULT 'unknown',
	platform TEXT,
	source TEXT,
	title TEXT,
	status TEXT NOT NULL DEFAULT 'new',
	error_message TEXT,
	retry_count INTEGER NOT NULL DEFAULT 0,
	checked_out_by TEXT,
	checked_out_at TIMESTAMPTZ,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_content_status ON content (status);
CREATE INDEX IF NOT EXISTS idx_content_checked_out_by ON content (checked_out_by);
CREATE INDEX IF NOT EXISTS idx_content_status_type ON content (status, content_type);

CREATE TABLE IF NOT EXISTS processing_task (
	id SERIAL PRIMARY KEY,
	task_type TEXT NOT NULL,
	queue_name TEXT NOT NULL,
	content_id INTEGER REFERENCES content(id) ON DELETE CASCADE,
	payload JSONB NOT NULL DEFAULT '{}'::jsonb,
	status TEXT NOT NULL DEFAULT 'pending',
	retry_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at TIMESTAMPTZ,
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_task_status_queue ON processing_task (status, queue_name);
CREATE INDEX IF NOT EXISTS idx_task_content ON processing_task (content_id, task_type, status);
CREATE INDEX IF NOT EXISTS idx_task_completed_at ON processing_task (completed_at);

CREATE TABLE IF NOT EXISTS watchdog_event (
	id SERIAL PRIMARY KEY,
	run_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	row_count BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_watchdog_event_run ON watchdog_event (run_id);

CREATE TABLE IF NOT EXISTS watchdog_run (
	id SERIAL PRIMARY KEY,
	run_id TEXT NOT NULL UNIQUE,
	started_at TIMESTAMPTZ NOT NULL,
	completed_at TIMESTAMPTZ NOT NULL,
	stale_reclaimed BIGINT NOT NULL DEFAULT 0,
	checks_released BIGINT NOT NULL DEFAULT 0,
	tasks_cleaned_up BIGINT NOT NULL DEFAULT 0,
	transcribe_moved BIGINT NOT NULL DEFAULT 0,
	alert_fired BOOLEAN NOT NULL DEFAULT false
);
`

// Migrate creates the schema if it does not already exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to migrate postgres schema")
	}
	return nil
}
