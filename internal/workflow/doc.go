// Package workflow drives one script through segmentation, duration planning,
// and clip generation, persisting every step in the run store.
//
// Runner.Run segments a script, records the run and its segments, hands the
// segments to the orchestrator, and stores each terminal job outcome so the
// run's clip list can be listed, exported, or retried later. Runner.Retry
// reloads a run and regenerates only the segments that did not complete,
// seeding continuity from stored predecessor clips.
//
// Only one run may drive a workspace at a time; the runner holds a file lock
// on the work directory for the duration of Run and Retry. Batch start,
// completion, and failure are published through the notifications service.
package workflow
