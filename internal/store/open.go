package store

import (
	"context"
	"errors"
	"strings"

	logx "aircheck/pkg/logx"
)

// Store is the persistence API used by the job registry and bootstrap.
type Store interface {
	// SaveJobs replaces the durable snapshot with the given records.
	SaveJobs(ctx context.Context, recs []Record) error
	// LoadJobs returns the persisted schedule. Missing or corrupt state
	// yields an empty slice, not an error.
	LoadJobs(ctx context.Context) ([]Record, error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown store driver: " + driver)
	}
}
