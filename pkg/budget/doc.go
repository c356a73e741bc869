// Package budget defines the domain model shared by the spend enforcement
// engine: budgets, their scopes, periods, breach actions and severities.
//
// # Overview
//
// A Budget caps spend for one owner over a recurring calendar period. The
// scope decides which requests count against it:
//
//	budget.GlobalScope()            // every request of the owner
//	budget.ModelScope("gpt-4o")     // only requests for gpt-4o
//	budget.AgentScope("support-bot")
//	budget.WorkflowScope("nightly-etl")
//
// Spend is held as shopspring/decimal values in memory and as integer
// micro-dollars in storage, see ToMicros and FromMicros.
//
// Severity is never stored. It is derived from CurrentSpendUSD and LimitUSD
// by the threshold package whenever it is needed.
//
// # Sub-packages
//
//   - storage: persistence backends (memory, SQLite, Redis)
//   - period: reset boundaries and the reset sweep
//   - usage: spend attribution
//   - threshold: classification and alert deduplication
//   - alerts: notification dispatch
//   - enforcement: the synchronous allow/block/downgrade gate
package budget
