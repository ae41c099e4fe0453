// Package db selects and constructs the store.Driver implementation named
// by the worker process's profile.
package db

import (
	"fmt"

	"github.com/hrygo/contentpipe/internal/profile"
	"github.com/hrygo/contentpipe/store"
	"github.com/hrygo/contentpipe/store/db/postgres"
	"github.com/hrygo/contentpipe/store/db/sqlite"
)

// NewDriver constructs the store.Driver matching p.Driver.
func NewDriver(p *profile.Profile) (store.Driver, error) {
	switch p.Driver {
	case "postgres":
		return postgres.NewDB(p)
	case "sqlite":
		return sqlite.NewDB(p)
	default:
		return nil, fmt.Errorf("unsupported driver %q (want postgres or sqlite)", p.Driver)
	}
}
