// Package services defines shared utilities consumed by the pipeline packages
// and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, segment positions, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper.
//   - The closed set of pipeline error types (validation, transient network,
//     permanent request, quota/credit, continuity extraction) and the single
//     Retryable decision the orchestrator consults.
//
// Use these helpers when wiring new pipeline logic so error classification
// and retry behaviour stay uniform.
package services
