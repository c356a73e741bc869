// Package engine ties the budget components into the operations the
// service exposes: budget definition, usage recording, enforcement checks
// and the reset and breach-check sweeps.
//
// All state lives in the storage.Backend passed to New. The engine keeps the
// enforcement gate's snapshot current by patching it after every write it
// makes, and the gate reloads the full snapshot in the background.
//
// # Sweeps
//
// ResetSweep moves budgets whose period has elapsed to a new period.
// BreachCheck detects threshold crossings, notifies owners and records the
// notified band so repeated sweeps stay quiet. Both can be run from the HTTP
// triggers, the CLI or the in-process scheduler in package scheduler.
package engine
