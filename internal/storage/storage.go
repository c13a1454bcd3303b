// Package storage persists the per-source dedup state: the last page hash or
// the set of already notified identifiers.
package storage

import (
	"context"
	"fmt"

	"github.com/deusflow/sitewatch/internal/news"
)

// Store loads and atomically overwrites per-source state.
// Implementations are safe for concurrent use by different sources.
type Store interface {
	// Load returns the recorded state; an unknown source yields an empty state.
	Load(ctx context.Context, source string, maxItems int) (news.State, error)
	// Save replaces the recorded state of source. A failed Save leaves the
	// previously persisted state intact.
	Save(ctx context.Context, source string, mode news.Mode, st news.State) error
	Close() error
}

// PersistError reports a failed state write. The in-memory state is kept and
// written again on the next cycle.
type PersistError struct {
	Source string
	Err    error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist state of %s: %v", e.Source, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Config selects and configures a driver.
type Config struct {
	Driver string // "file" or "sqlite"
	Dir    string // file driver: one JSON document per source
	Path   string // sqlite driver: database file
}

// Open returns the store for cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.Dir)
	case "sqlite":
		return NewSQLiteStore(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
