package segmentation

import (
	"regexp"
	"strings"
)

// markerKind distinguishes headings, whose line stays in the scene text, from
// breaks, whose line is dropped.
type markerKind int

const (
	markerHeading markerKind = iota
	markerBreak
)

type markerFamily int

const (
	familyScreenplay markerFamily = iota
	familyNumbered
	familyMarkdown
	familySeparator
)

type marker struct {
	pattern *regexp.Regexp
	kind    markerKind
	family  markerFamily
}

// sceneMarkers is the fixed vocabulary. Every pattern is anchored at the start
// of a trimmed line and matched case-insensitively.
var sceneMarkers = []marker{
	{regexp.MustCompile(`(?i)^(INT\.?\s*/\s*EXT|EXT\.?\s*/\s*INT|I\s*/\s*E)\.?(\s|$)`), markerHeading, familyScreenplay},
	{regexp.MustCompile(`(?i)^(INT|EXT|EST)\.(\s|$)`), markerHeading, familyScreenplay},
	{regexp.MustCompile(`(?i)^(INTERIOR|EXTERIOR)\s*[-:.]`), markerHeading, familyScreenplay},
	{regexp.MustCompile(`(?i)^SCENE(\s+[0-9IVXLC]+[A-Z]?\s*[:.\-–—]?|\s*:)(\s|$)`), markerHeading, familyNumbered},
	{regexp.MustCompile(`(?i)^(CHAPTER|ACT)\s+([0-9]+|[IVXLC]+|ONE|TWO|THREE|FOUR|FIVE)\b`), markerHeading, familyNumbered},
	{regexp.MustCompile(`^#{1,3}\s+\S`), markerHeading, familyMarkdown},
	{regexp.MustCompile(`^(\*\s*){3,}$|^(-\s*){3,}$|^(_\s*){3,}$`), markerBreak, familySeparator},
}

// Scene is one detected scene. Line is the 0-based line of its marker, or -1
// for text that preceded the first marker.
type Scene struct {
	Heading string
	Text    string
	Line    int
}

// SceneDetector recognizes structural scene markers in raw text. The zero
// value is ready to use.
type SceneDetector struct{}

// NewSceneDetector returns a detector using the built-in marker vocabulary.
func NewSceneDetector() SceneDetector { return SceneDetector{} }

func matchMarker(line string) (marker, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return marker{}, false
	}
	for _, m := range sceneMarkers {
		if m.pattern.MatchString(trimmed) {
			return m, true
		}
	}
	return marker{}, false
}

// IsMarker reports whether line opens a new scene.
func (SceneDetector) IsMarker(line string) bool {
	_, ok := matchMarker(line)
	return ok
}

// Detect splits text into scenes. A script without any marker yields no scenes.
// Non-blank text before the first marker becomes a leading scene.
func (SceneDetector) Detect(text string) []Scene {
	lines := strings.Split(text, "\n")
	var (
		scenes  []Scene
		current *Scene
		body    []string
		found   bool
	)
	flush := func() {
		joined := strings.TrimSpace(strings.Join(body, "\n"))
		body = body[:0]
		if current == nil {
			if joined != "" {
				scenes = append(scenes, Scene{Text: joined, Line: -1})
			}
			return
		}
		current.Text = joined
		if joined != "" {
			scenes = append(scenes, *current)
		}
		current = nil
	}

	for i, line := range lines {
		m, ok := matchMarker(line)
		if !ok {
			body = append(body, line)
			continue
		}
		found = true
		flush()
		if m.kind == markerBreak {
			current = &Scene{Line: i}
			continue
		}
		heading := strings.TrimSpace(line)
		current = &Scene{Heading: heading, Line: i}
		body = append(body, heading)
	}
	flush()
	if !found {
		return nil
	}
	return scenes
}

// Ambiguous reports whether text mixes screenplay headings with markdown or
// numbered headings, which usually means pasted or hand-edited structure.
func (SceneDetector) Ambiguous(text string) bool {
	seen := map[markerFamily]bool{}
	for _, line := range strings.Split(text, "\n") {
		m, ok := matchMarker(line)
		if !ok || m.family == familySeparator {
			continue
		}
		seen[m.family] = true
	}
	return len(seen) > 1
}
