// Package preflight provides readiness checks for the directories, binaries, and
// external services scriptreel depends on.
//
// The CLI "scriptreel doctor" command runs RunAll and renders each Result;
// "scriptreel generate" runs the same checks first and refuses to start when a
// required one fails, so a batch never begins against an unreachable service.
//
// Each check is gated by its config toggle -- disabled features are skipped.
package preflight
