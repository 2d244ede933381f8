// Package notifications publishes generation milestones to ntfy.
//
// The ntfy topic comes from config.toml; without one the package returns a
// no-op Service. Batch start/finish and error messages can be switched off
// independently.
package notifications
