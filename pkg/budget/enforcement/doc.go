// Package enforcement decides whether a request may proceed given the
// budgets that cover it.
//
// # Decision rule
//
// Among the active budgets matching a request:
//
//   - any exceeded budget with action block: block
//   - otherwise any exceeded budget with action downgrade: downgrade to the
//     configured cheaper model (per-model mapping, then the default target;
//     block when neither exists)
//   - otherwise: allow
//
// # Hot path
//
// The Gate reads an immutable snapshot behind an atomic pointer. The
// snapshot is reloaded on an interval and patched in place after each spend
// update, so Check performs no store or network I/O once warm.
//
// # Failure mode
//
// When budget state cannot be read (no snapshot, or one older than
// MaxStaleness), the gate answers with its FailureMode: fail_open allows,
// fail_closed blocks. Such decisions are marked Degraded.
package enforcement
