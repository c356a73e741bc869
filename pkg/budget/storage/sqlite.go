package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver ("sqlite3")
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // pure-Go SQLite driver ("sqlite")

	"mercator-hq/spendcap/pkg/budget"
)

const (
	// DriverModernc selects the pure-Go modernc.org/sqlite driver.
	DriverModernc = "sqlite"

	// DriverCGO selects the cgo github.com/mattn/go-sqlite3 driver.
	DriverCGO = "sqlite3"
)

// SQLiteBackend implements Backend on a SQLite database.
// It is suitable for single-instance deployments where budgets must survive
// restarts.
//
// SQLiteBackend uses a write-ahead log (WAL) for concurrent readers and a
// single writer connection, and checkpoints the WAL periodically.
type SQLiteBackend struct {
	db               *sql.DB
	driver           string
	snapshotInterval time.Duration
	done             chan struct{}
	closeOnce        sync.Once
	logger           *slog.Logger
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// Path is the path to the SQLite database file.
	Path string

	// Driver is DriverModernc (default) or DriverCGO.
	Driver string

	// WALMode enables write-ahead logging.
	WALMode bool

	// SnapshotInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	SnapshotInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a SQLite backend with default settings.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{
		Path:    path,
		Driver:  DriverModernc,
		WALMode: true,
	})
}

// NewSQLiteBackendWithConfig creates a SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverModernc
	}
	if cfg.Driver != DriverModernc && cfg.Driver != DriverCGO {
		return nil, fmt.Errorf("unsupported sqlite driver %q", cfg.Driver)
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	db, err := sql.Open(cfg.Driver, cfg.Path)
	if err != nil {
		return nil, newError("sqlite", "open", err)
	}

	// SQLite only supports a single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := newSQLiteBackend(db, cfg.Driver)
	s.snapshotInterval = cfg.SnapshotInterval

	if err := s.initialize(cfg); err != nil {
		db.Close()
		return nil, err
	}

	s.done = make(chan struct{})
	go s.checkpointLoop()

	s.logger.Info("SQLite budget storage initialized",
		"path", cfg.Path,
		"driver", cfg.Driver,
		"wal_mode", cfg.WALMode,
	)

	return s, nil
}

// newSQLiteBackend wraps an open database without touching the schema.
func newSQLiteBackend(db *sql.DB, driver string) *SQLiteBackend {
	return &SQLiteBackend{
		db:     db,
		driver: driver,
		logger: slog.Default().With("component", "budget.storage.sqlite"),
	}
}

// initialize applies pragmas, creates the schema and checks its version.
func (s *SQLiteBackend) initialize(cfg SQLiteBackendConfig) error {
	if cfg.WALMode {
		if _, err := s.db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			return newError("sqlite", "enable_wal", err)
		}
	}

	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", cfg.BusyTimeout.Milliseconds())); err != nil {
		return newError("sqlite", "set_busy_timeout", err)
	}

	if _, err := s.db.Exec(Schema); err != nil {
		return newError("sqlite", "create_schema", err)
	}

	if _, err := s.db.Exec(insertSchemaVersion, SchemaVersion); err != nil {
		return newError("sqlite", "insert_schema_version", err)
	}

	var version int
	if err := s.db.QueryRow(getSchemaVersion).Scan(&version); err != nil {
		return newError("sqlite", "get_schema_version", err)
	}
	if version != SchemaVersion {
		return newError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	return nil
}

// Create inserts a new budget row.
func (s *SQLiteBackend) Create(ctx context.Context, b *budget.Budget) error {
	if b == nil || b.ID == "" {
		return newError("sqlite", "create", fmt.Errorf("budget id cannot be empty"))
	}

	_, err := s.db.ExecContext(ctx, insertBudget,
		b.ID,
		b.OwnerID,
		b.Name,
		string(b.Period),
		b.LimitUSD.String(),
		string(b.Scope.Kind),
		nullableIdentifier(b.Scope),
		string(b.ActionOnBreach),
		budget.ToMicros(b.CurrentSpendUSD),
		encodeTime(b.ResetAt),
		boolToInt(b.IsActive),
		nullableBucket(b.LastNotifiedBucket),
		encodeTime(b.CreatedAt),
		encodeTime(b.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return newError("sqlite", "create", err)
	}
	return nil
}

// Get loads one budget.
func (s *SQLiteBackend) Get(ctx context.Context, id string) (*budget.Budget, error) {
	b, err := scanBudget(s.db.QueryRowContext(ctx, selectBudget, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, newError("sqlite", "get", err)
	}
	return b, nil
}

// List loads every budget matching the filter. Predicates are pushed down
// to SQL.
func (s *SQLiteBackend) List(ctx context.Context, filter Filter) ([]*budget.Budget, error) {
	var (
		where []string
		args  []any
	)
	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	if filter.DueAt != nil {
		where = append(where, "reset_at <= ?")
		args = append(args, encodeTime(*filter.DueAt))
	}

	query := selectBudgets
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, newError("sqlite", "list", err)
	}
	defer rows.Close()

	var out []*budget.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, newError("sqlite", "scan", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, newError("sqlite", "list", err)
	}
	return out, nil
}

// Update writes the definition fields of a budget if reset_at and is_active
// still hold the values it was read with.
func (s *SQLiteBackend) Update(ctx context.Context, b *budget.Budget, expect Precondition) error {
	res, err := s.db.ExecContext(ctx, updateBudget,
		b.Name,
		string(b.Period),
		b.LimitUSD.String(),
		string(b.Scope.Kind),
		nullableIdentifier(b.Scope),
		string(b.ActionOnBreach),
		encodeTime(b.ResetAt),
		boolToInt(b.IsActive),
		encodeTime(b.UpdatedAt),
		b.ID,
		encodeTime(expect.ResetAt),
		boolToInt(expect.IsActive),
	)
	if err != nil {
		return newError("sqlite", "update", err)
	}
	applied, err := s.applied(ctx, res, b.ID, "update")
	if err != nil {
		return err
	}
	if !applied {
		return ErrConflict
	}
	return nil
}

// Deactivate clears the active flag.
func (s *SQLiteBackend) Deactivate(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, deactivateBudget, encodeTime(at), id)
	if err != nil {
		return newError("sqlite", "deactivate", err)
	}
	return requireAffected(res, "deactivate")
}

// Delete removes the row.
func (s *SQLiteBackend) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, deleteBudget, id)
	if err != nil {
		return newError("sqlite", "delete", err)
	}
	return requireAffected(res, "delete")
}

// IncrementSpend adds amount with a single UPDATE ... RETURNING statement.
func (s *SQLiteBackend) IncrementSpend(ctx context.Context, id string, amount decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	var micros int64
	err := s.db.QueryRowContext(ctx, incrementSpend, budget.ToMicros(amount), encodeTime(at), id).Scan(&micros)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, ErrNotFound
	}
	if err != nil {
		return decimal.Zero, newError("sqlite", "increment_spend", err)
	}
	return budget.FromMicros(micros), nil
}

// ResetSpend performs a compare-and-set on reset_at.
func (s *SQLiteBackend) ResetSpend(ctx context.Context, id string, expected, next, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, resetSpend, encodeTime(next), encodeTime(at), id, encodeTime(expected))
	if err != nil {
		return false, newError("sqlite", "reset_spend", err)
	}
	return s.applied(ctx, res, id, "reset_spend")
}

// ClaimBucket performs a compare-and-set on last_notified_bucket.
func (s *SQLiteBackend) ClaimBucket(ctx context.Context, id string, expected *int, bucket int, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, claimBucket, bucket, encodeTime(at), id, nullableBucket(expected))
	if err != nil {
		return false, newError("sqlite", "claim_bucket", err)
	}
	return s.applied(ctx, res, id, "claim_bucket")
}

// applied reports whether a conditional UPDATE changed the row. When it did
// not, it distinguishes a lost race from a missing budget.
func (s *SQLiteBackend) applied(ctx context.Context, res sql.Result, id, op string) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, newError("sqlite", op, err)
	}
	if n > 0 {
		return true, nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, budgetExists, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, newError("sqlite", op, err)
	}
	return false, nil
}

// Ping checks the database connection.
func (s *SQLiteBackend) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return newError("sqlite", "ping", err)
	}
	return nil
}

// Close releases any resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		if s.done != nil {
			close(s.done)
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		}
		closeErr = s.db.Close()
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
				s.logger.Warn("wal checkpoint failed", "error", err)
			}
		case <-s.done:
			return
		}
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBudget(row rowScanner) (*budget.Budget, error) {
	var (
		b           budget.Budget
		period      string
		limit       string
		scopeKind   string
		scopeID     sql.NullString
		action      string
		spendMicros int64
		resetAt     int64
		isActive    int64
		lastBucket  sql.NullInt64
		createdAt   int64
		updatedAt   int64
	)

	err := row.Scan(
		&b.ID,
		&b.OwnerID,
		&b.Name,
		&period,
		&limit,
		&scopeKind,
		&scopeID,
		&action,
		&spendMicros,
		&resetAt,
		&isActive,
		&lastBucket,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	b.LimitUSD, err = decimal.NewFromString(limit)
	if err != nil {
		return nil, fmt.Errorf("invalid limit_usd %q: %w", limit, err)
	}
	b.Period = budget.Period(period)
	b.Scope = budget.NewScope(budget.ScopeKind(scopeKind), scopeID.String)
	b.ActionOnBreach = budget.Action(action)
	b.CurrentSpendUSD = budget.FromMicros(spendMicros)
	b.ResetAt = decodeTime(resetAt)
	b.IsActive = isActive != 0
	if lastBucket.Valid {
		v := int(lastBucket.Int64)
		b.LastNotifiedBucket = &v
	}
	b.CreatedAt = decodeTime(createdAt)
	b.UpdatedAt = decodeTime(updatedAt)

	return &b, nil
}

func requireAffected(res sql.Result, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return newError("sqlite", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableIdentifier(s budget.Scope) any {
	if s.Kind == budget.ScopeGlobal || s.Identifier == "" {
		return nil
	}
	return s.Identifier
}

func nullableBucket(b *int) any {
	if b == nil {
		return nil
	}
	return *b
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

// isUniqueViolation recognizes primary key conflicts from either driver
// without importing driver-specific error types.
func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
