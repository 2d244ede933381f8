// Package segmentation splits a free-text script into ordered, bounded scene
// units ready for clip generation.
//
// Engine.Segment applies one of five strategies (scenes, paragraphs, sentences,
// duration, hybrid). Strategies that find no usable structure fall back along a
// fixed chain (scenes → paragraphs → sentences → duration) and every step is
// recorded in the result metadata. Hybrid runs cap the segment count with a
// deterministic pairwise merge of the shortest adjacent neighbours.
//
// After splitting, every segment is checked against the length and token
// constraints. Oversized segments are truncated with an ellipsis instead of
// being dropped, and each violation is reported as a typed Warning. The
// confidence score is advisory and never blocks generation.
//
// SceneDetector and the textutil.TokenEstimator are stateless values passed in
// through options; the engine itself holds no mutable state and is safe for
// concurrent use.
package segmentation
