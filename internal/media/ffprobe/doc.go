// Package ffprobe wraps ffprobe's JSON output for generated clips.
//
// Probe runs ffprobe and returns a Result; Result.Duration resolves the clip length
// from the container and falls back to the first video stream when the container
// omits it, which some generation services do for fragmented MP4 output.
package ffprobe
