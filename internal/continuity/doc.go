// Package continuity carries visual state from one generated clip into the request for
// the next one.
//
// After a segment's clip is saved, Manager extracts a frame near the end of it (90% of
// the clip duration by default), bounds it to the configured byte budget, and wraps it
// in a Directive with a short instruction for the generation service. Any failure along
// the way is logged and produces no directive: continuity improves output quality but
// never blocks generation.
package continuity
