package storage

// SchemaVersion is the current budget database schema version.
const SchemaVersion = 1

// Schema creates the budget tables. Spend is kept in integer micro-dollars
// so increments are a single arithmetic UPDATE; limits are decimal text.
const Schema = `
CREATE TABLE IF NOT EXISTS budgets (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL,
    name TEXT NOT NULL,
    period TEXT NOT NULL,
    limit_usd TEXT NOT NULL,
    scope TEXT NOT NULL,
    scope_identifier TEXT,
    action_on_breach TEXT NOT NULL,
    current_spend_micros INTEGER NOT NULL DEFAULT 0 CHECK (current_spend_micros >= 0),
    reset_at INTEGER NOT NULL,
    is_active INTEGER NOT NULL DEFAULT 1,
    last_notified_bucket INTEGER,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_budgets_owner ON budgets(owner_id);
CREATE INDEX IF NOT EXISTS idx_budgets_active_reset ON budgets(is_active, reset_at);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY
);
`

const (
	insertSchemaVersion = `INSERT OR IGNORE INTO schema_version (version) VALUES (?)`
	getSchemaVersion    = `SELECT MAX(version) FROM schema_version`

	budgetColumns = `id, owner_id, name, period, limit_usd, scope, scope_identifier, action_on_breach,
		current_spend_micros, reset_at, is_active, last_notified_bucket, created_at, updated_at`

	insertBudget = `INSERT INTO budgets (` + budgetColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	selectBudget = `SELECT ` + budgetColumns + ` FROM budgets WHERE id = ?`

	selectBudgets = `SELECT ` + budgetColumns + ` FROM budgets`

	updateBudget = `UPDATE budgets SET
		name = ?, period = ?, limit_usd = ?, scope = ?, scope_identifier = ?,
		action_on_breach = ?, reset_at = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND reset_at = ? AND is_active = ?`

	deactivateBudget = `UPDATE budgets SET is_active = 0, updated_at = ? WHERE id = ?`

	deleteBudget = `DELETE FROM budgets WHERE id = ?`

	incrementSpend = `UPDATE budgets
		SET current_spend_micros = current_spend_micros + ?, updated_at = ?
		WHERE id = ?
		RETURNING current_spend_micros`

	resetSpend = `UPDATE budgets
		SET current_spend_micros = 0, reset_at = ?, last_notified_bucket = NULL, updated_at = ?
		WHERE id = ? AND reset_at = ?`

	// IS compares NULL as a value, so a nil expected band matches a budget
	// that was never notified.
	claimBucket = `UPDATE budgets SET last_notified_bucket = ?, updated_at = ?
		WHERE id = ? AND last_notified_bucket IS ?`

	budgetExists = `SELECT 1 FROM budgets WHERE id = ?`
)
