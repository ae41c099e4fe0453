// Package store defines the domain model and storage interfaces shared by
// the postgres and sqlite drivers. Handlers, the queue service, the
// checkout manager and the watchdog all depend on these interfaces, never
// on a concrete driver package, so the same binary runs against either
// engine.
package store

import "context"

// Driver is a connected, migrated database backing the pipeline. The two
// implementations live in store/db/postgres and store/db/sqlite.
type Driver interface {
	ContentStore
	TaskStore
	WatchdogStore

	// Migrate applies the schema, creating tables/indexes if they do not
	// already exist.
	Migrate(ctx context.Context) error

	// Ping verifies the underlying connection is alive, for the health
	// endpoint.
	Ping(ctx context.Context) error

	Close() error
}
