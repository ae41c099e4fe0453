// Package sqlite implements store.Driver against SQLite for local
// development and single-process deployments.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"

	"github.com/hrygo/contentpipe/internal/profile"
	"github.com/hrygo/contentpipe/store"
)

// DB wraps a connected sqlite handle and implements store.Driver.
type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens profile.DSN with modernc.org/sqlite, a pure-Go driver: no
// CGO toolchain is required to run the worker against SQLite.
func NewDB(p *profile.Profile) (store.Driver, error) {
	if p.DSN == "" {
		return nil, errors.New("dsn required")
	}

	sqlDB, err := sql.Open("sqlite", p.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", p.DSN)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, errors.Wrapf(err, "failed to set pragma: %s", pragma)
		}
	}

	// A single connection avoids SQLITE_BUSY churn under WAL; the pipeline
	// already serializes writers through the claim/checkout compare-and-set
	// statements, so there is no concurrency benefit to a bigger pool.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

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
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	url TEXT NOT NULL UNIQUE,
	content_type TEXT NOT NULL DEFAULT 'unknown',
	platform TEXT,
	source TEXT,
	title TEXT,
	status TEXT NOT NULL DEFAULT 'new',
	error_message TEXT,
	retry_count INTEGER NOT NULL DEFAULT 0,
	checked_out_by TEXT,
	checked_out_at DATETIME,
	metadata TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	processed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_content_status ON content (status);
CREATE INDEX IF NOT EXISTS idx_content_checked_out_by ON content (checked_out_by);
CREATE INDEX IF NOT EXISTS idx_content_status_type ON content (status, content_type);

CREATE TABLE IF NOT EXISTS processing_task (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	task_type TEXT NOT NULL,
	queue_name TEXT NOT NULL,
	content_id INTEGER REFERENCES content(id) ON DELETE CASCADE,
	payload TEXT NOT NULL DEFAULT '{}',
	status TEXT NOT NULL DEFAULT 'pending',
	retry_count INTEGER NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	started_at DATETIME,
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_task_status_queue ON processing_task (status, queue_name);
CREATE INDEX IF NOT EXISTS idx_task_content ON processing_task (content_id, task_type, status);
CREATE INDEX IF NOT EXISTS idx_task_completed_at ON processing_task (completed_at);

CREATE TABLE IF NOT EXISTS watchdog_event (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	row_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_watchdog_event_run ON watchdog_event (run_id);

CREATE TABLE IF NOT EXISTS watchdog_run (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL UNIQUE,
	started_at DATETIME NOT NULL,
	completed_at DATETIME NOT NULL,
	stale_reclaimed INTEGER NOT NULL DEFAULT 0,
	checks_released INTEGER NOT NULL DEFAULT 0,
	tasks_cleaned_up INTEGER NOT NULL DEFAULT 0,
	transcribe_moved INTEGER NOT NULL DEFAULT 0,
	alert_fired INTEGER NOT NULL DEFAULT 0
);
`

// Migrate creates the schema if it does not already exist.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "failed to migrate sqlite schema")
	}
	return nil
}

func nowUTC() time.Time { return time.Now().UTC() }
