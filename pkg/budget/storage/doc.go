// Package storage provides persistence backends for budgets.
//
// # Overview
//
// The Backend interface is the single source of truth for budget state.
// Three implementations are provided:
//
//   - Memory: in-process map guarded by a mutex (default, no persistence)
//   - SQLite: file-based persistence via modernc.org/sqlite or mattn/go-sqlite3
//   - Redis: shared state for multi-instance deployments
//
// # Atomic spend
//
// Spend is persisted as integer micro-dollars. IncrementSpend is a single
// store-level add (UPDATE ... SET x = x + ?, HINCRBY, or a locked map write),
// never a read-modify-write from the caller, so concurrent requests against
// one budget cannot lose updates.
//
// ResetSpend is a compare-and-set on reset_at: two sweeps racing on the same
// budget reset it once.
//
// # Usage
//
//	backend, err := storage.NewFactory(storage.Config{Backend: "sqlite",
//	    SQLite: storage.SQLiteBackendConfig{Path: "data/budgets.db", WALMode: true},
//	}).Open()
//	if err != nil {
//	    return err
//	}
//	defer backend.Close()
//
//	total, err := backend.IncrementSpend(ctx, id, decimal.RequireFromString("0.42"), time.Now())
package storage
