package continuity

import "sync"

// DefaultNote is sent alongside every seed image.
const DefaultNote = "this scene continues from the previous clip; maintain visual consistency"

// Directive instructs the generation service to continue from the previous clip.
// The seed is handed out once by Consume and never persisted.
type Directive struct {
	SourceSegmentID string
	SourceIndex     int
	Note            string

	mu   sync.Mutex
	seed []byte
}

// NewDirective builds a directive carrying seed.
func NewDirective(sourceID string, sourceIndex int, seed []byte, note string) *Directive {
	if note == "" {
		note = DefaultNote
	}
	return &Directive{
		SourceSegmentID: sourceID,
		SourceIndex:     sourceIndex,
		Note:            note,
		seed:            seed,
	}
}

// HasSeed reports whether the seed has not been consumed yet.
func (d *Directive) HasSeed() bool {
	if d == nil {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seed) > 0
}

// Consume returns the seed image and clears it; later calls return nil.
func (d *Directive) Consume() []byte {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	seed := d.seed
	d.seed = nil
	return seed
}
