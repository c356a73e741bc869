package storage

import (
	"fmt"
	"time"
)

// Config selects and configures a backend. It mirrors the storage section
// of the service configuration so this package stays independent of it.
type Config struct {
	// Backend is "memory", "sqlite" or "redis".
	Backend string

	SQLite SQLiteBackendConfig
	Redis  RedisBackendConfig
}

// Factory opens backends from configuration. The service builds exactly one
// backend at startup and passes it to every component explicitly; there is
// no package-level client.
type Factory struct {
	config Config
}

// NewFactory creates a backend factory for the given configuration.
func NewFactory(cfg Config) *Factory {
	return &Factory{config: cfg}
}

// Open creates the configured backend.
func (f *Factory) Open() (Backend, error) {
	switch f.config.Backend {
	case "", "memory":
		return NewMemoryBackend(), nil
	case "sqlite":
		cfg := f.config.SQLite
		if cfg.SnapshotInterval == 0 {
			cfg.SnapshotInterval = 5 * time.Minute
		}
		return NewSQLiteBackendWithConfig(cfg)
	case "redis":
		return NewRedisBackend(f.config.Redis)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", f.config.Backend)
	}
}
