package services

import "context"

type contextKey string

const (
	runIDKey        contextKey = "run_id"
	segmentIndexKey contextKey = "segment_index"
	segmentIDKey    contextKey = "segment_id"
	stageKey        contextKey = "stage"
	requestIDKey    contextKey = "request_id"
)

// WithRunID annotates context with the generation run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSegment annotates context with the segment position and identifier.
func WithSegment(ctx context.Context, index int, id string) context.Context {
	ctx = context.WithValue(ctx, segmentIndexKey, index)
	if id != "" {
		ctx = context.WithValue(ctx, segmentIDKey, id)
	}
	return ctx
}

// SegmentIndexFromContext extracts the segment order index if present.
func SegmentIndexFromContext(ctx context.Context) (int, bool) {
	switch val := ctx.Value(segmentIndexKey).(type) {
	case int:
		return val, true
	case int64:
		return int(val), true
	default:
		return 0, false
	}
}

// SegmentIDFromContext extracts the segment identifier if present.
func SegmentIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(segmentIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithStage annotates context with the pipeline stage name (segment, generate, retry).
func WithStage(ctx context.Context, stage string) context.Context {
	if stage == "" {
		return ctx
	}
	return context.WithValue(ctx, stageKey, stage)
}

// StageFromContext returns the stage name if present.
func StageFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(stageKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
