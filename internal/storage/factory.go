// internal/storage/factory.go
package storage

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/database"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/storage/gormstore"
	"github.com/sherman-jordan/pf2e-visioner-sub010/internal/storage/memory"
)

// Config selects and parameterizes a storage backend.
type Config struct {
	Type       string // "memory", "sqlite" or "postgres"
	SqlitePath string // optional; empty means in-memory SQLite
}

// NewBackend creates a storage backend based on configuration and runs its
// schema migration. The "postgres" type falls back to SQLite through the
// database manager's connection chain before giving up.
func NewBackend(cfg Config, log zerolog.Logger) (Backend, error) {
	backend, err := openBackend(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("initializing %q backend: %w", cfg.Type, err)
	}
	return backend, nil
}

func openBackend(cfg Config, log zerolog.Logger) (Backend, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		db, err := database.GetSqliteDBStandalone(cfg.SqlitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite backend: %w", err)
		}
		return gormstore.New(db), nil
	case "postgres":
		mgr := database.NewManager(log)
		if err := mgr.Connect(cfg.SqlitePath); err != nil {
			return nil, fmt.Errorf("connecting database backend: %w", err)
		}
		return gormstore.New(mgr.DB), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
