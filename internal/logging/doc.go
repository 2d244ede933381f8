// Package logging assembles structured slog loggers and formatting helpers used
// across scriptreel.
//
// It owns the console/JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so pipeline code can tag log lines with
// run IDs, segment positions, and correlation IDs. The console handler folds
// the component and segment index into a short subject prefix. A no-op logger
// is provided for tests and wiring code that cannot fail.
package logging
