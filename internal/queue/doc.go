// Package queue persists generation runs in SQLite.
//
// A run records the script it came from, the segments the engine produced, and one
// job row per segment carrying the orchestrator's terminal outcome. The job table is
// the finalized clip list: completed rows point at saved assets, failed rows keep
// their error kind so the run can be retried selectively. The same database holds
// the credit ledger.
//
// Schema changes bump the version in schema.go; users delete the database to adopt
// the new schema.
package queue
