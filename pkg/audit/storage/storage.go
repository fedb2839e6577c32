package storage

import (
	"fmt"

	"mercator-hq/lucid/pkg/audit"
	"mercator-hq/lucid/pkg/config"
)

// Backend names accepted by New.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// streamBuffer is the channel capacity used by QueryStream.
const streamBuffer = 100

// New opens the backend selected by cfg.Backend.
func New(cfg config.AuditConfig) (audit.Storage, error) {
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryStorage(), nil
	case BackendSQLite, "":
		return NewSQLiteStorage(cfg.SQLite)
	default:
		return nil, audit.NewStorageError(cfg.Backend, "open", fmt.Errorf("unknown backend %q", cfg.Backend))
	}
}
