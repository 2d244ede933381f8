// Package orchestrator turns segments into saved clips.
//
// Each segment becomes a Job that walks a fixed state machine: pending,
// cache-lookup, then submitting, polling, downloading and finalizing for
// cache misses, with retry-wait between attempts after transient failures.
// Jobs end in completed or failed-permanent and never leave those states.
//
// Segments run in fixed batches of the requested concurrency. With continuity
// enabled a segment waits for its predecessor to finish so the predecessor's
// last frame can seed the request; seed presence is part of the fingerprint,
// so the cache lookup happens after that wait. Jobs sharing a fingerprint
// inside one batch are coalesced onto a single generation.
//
// The fingerprint is taken from the segment text. Prompt enhancement runs only
// on a cache miss, so an enhanced rewrite never changes the cache key.
package orchestrator
