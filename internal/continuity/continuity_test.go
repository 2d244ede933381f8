package continuity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"math/rand"
	"os"
	"os/exec"
	"testing"

	"scriptreel/internal/config"
	"scriptreel/internal/media/ffprobe"
	"scriptreel/internal/services"
)

func noisyJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 100}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestBoundLeavesSmallImagesAlone(t *testing.T) {
	data := noisyJPEG(t, 32, 32)
	got, err := Bound(data, len(data))
	if err != nil {
		t.Fatalf("Bound: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("expected unchanged bytes")
	}
}

func TestBoundShrinksToBudget(t *testing.T) {
	data := noisyJPEG(t, 640, 480)
	const budget = 20 * 1024
	if len(data) <= budget {
		t.Fatalf("fixture too small: %d bytes", len(data))
	}
	got, err := Bound(data, budget)
	if err != nil {
		t.Fatalf("Bound: %v", err)
	}
	if len(got) > budget {
		t.Fatalf("bounded size %d exceeds %d", len(got), budget)
	}
	if _, err := jpeg.Decode(bytes.NewReader(got)); err != nil {
		t.Fatalf("bounded output is not a JPEG: %v", err)
	}
}

func TestBoundRejectsUndecodableInput(t *testing.T) {
	if _, err := Bound(bytes.Repeat([]byte("x"), 100), 10); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDirectiveConsumedOnce(t *testing.T) {
	d := NewDirective("seg-0", 0, []byte("seed"), "")
	if d.Note != DefaultNote {
		t.Fatalf("note = %q", d.Note)
	}
	if !d.HasSeed() {
		t.Fatal("expected seed before consume")
	}
	if got := d.Consume(); string(got) != "seed" {
		t.Fatalf("first Consume = %q", got)
	}
	if got := d.Consume(); got != nil {
		t.Fatalf("second Consume = %q, want nil", got)
	}
	if d.HasSeed() {
		t.Fatal("seed should be gone")
	}
	var nilDirective *Directive
	if nilDirective.Consume() != nil || nilDirective.HasSeed() {
		t.Fatal("nil directive must be empty")
	}
}

type fakeExtractor struct {
	frame    []byte
	err      error
	calls    int
	position float64
}

func (f *fakeExtractor) ExtractFrame(_ context.Context, _ string, position float64) ([]byte, error) {
	f.calls++
	f.position = position
	return f.frame, f.err
}

func testManager(extractor FrameExtractor) *Manager {
	cfg := config.Default().Continuity
	cfg.Enabled = true
	return NewManager(cfg, WithExtractor(extractor))
}

func TestBuildDirectiveAttachesSeed(t *testing.T) {
	extractor := &fakeExtractor{frame: []byte("frame")}
	m := testManager(extractor)
	d := m.BuildDirective(context.Background(), &Previous{SegmentID: "a", Index: 0, Succeeded: true, AssetPath: "/clips/a.mp4"})
	if d == nil {
		t.Fatal("expected directive")
	}
	if d.SourceSegmentID != "a" || d.SourceIndex != 0 || d.Note != DefaultNote {
		t.Fatalf("directive = %+v", d)
	}
	if string(d.Consume()) != "frame" {
		t.Fatal("seed mismatch")
	}
	if extractor.position != 0.9 {
		t.Fatalf("sample position = %v, want 0.9", extractor.position)
	}
}

func TestBuildDirectiveSkipsWithoutUsablePredecessor(t *testing.T) {
	extractor := &fakeExtractor{frame: []byte("frame")}
	m := testManager(extractor)
	ctx := context.Background()
	cases := []*Previous{
		nil,
		{SegmentID: "a", Index: 0, Succeeded: false},
		{SegmentID: "a", Index: 0, Succeeded: true},
	}
	for _, prev := range cases {
		if d := m.BuildDirective(ctx, prev); d != nil {
			t.Fatalf("BuildDirective(%+v) = %+v, want nil", prev, d)
		}
	}
	if extractor.calls != 0 {
		t.Fatalf("extractor called %d times", extractor.calls)
	}
}

func TestBuildDirectiveSwallowsExtractionFailure(t *testing.T) {
	m := testManager(&fakeExtractor{err: errors.New("corrupt clip")})
	d := m.BuildDirective(context.Background(), &Previous{SegmentID: "a", Index: 2, Succeeded: true, AssetPath: "/clips/a.mp4"})
	if d != nil {
		t.Fatalf("expected nil directive, got %+v", d)
	}
}

func TestBuildDirectiveDisabled(t *testing.T) {
	extractor := &fakeExtractor{frame: []byte("frame")}
	cfg := config.Default().Continuity
	cfg.Enabled = false
	m := NewManager(cfg, WithExtractor(extractor))
	if d := m.BuildDirective(context.Background(), &Previous{Succeeded: true, AssetPath: "/a.mp4"}); d != nil {
		t.Fatal("disabled manager must not build directives")
	}
}

func TestExtractTerminalFrameWrapsErrors(t *testing.T) {
	m := testManager(&fakeExtractor{err: errors.New("boom")})
	ctx := services.WithSegment(context.Background(), 3, "seg-3")
	_, err := m.ExtractTerminalFrame(ctx, "/clips/c.mp4")
	var cerr *services.ContinuityExtractionError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ContinuityExtractionError", err)
	}
	if cerr.SegmentIndex != 3 || cerr.Path != "/clips/c.mp4" {
		t.Fatalf("error = %+v", cerr)
	}
	if services.Retryable(err) {
		t.Fatal("continuity errors are never retryable")
	}
}

func TestFFmpegExtractorSeeksToSamplePosition(t *testing.T) {
	var captured []string
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		captured = append([]string(nil), args...)
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1")
		return cmd
	}
	t.Cleanup(func() { commandContext = original })

	extractor := NewFFmpegExtractor("", "")
	extractor.probe = func(context.Context, string, string) (ffprobe.Result, error) {
		return ffprobe.Result{Format: ffprobe.Format{Duration: "10"}}, nil
	}
	frame, err := extractor.ExtractFrame(context.Background(), "/clips/a.mp4", 0.9)
	if err != nil {
		t.Fatalf("ExtractFrame: %v", err)
	}
	if string(frame) != "JPEGDATA" {
		t.Fatalf("frame = %q", frame)
	}
	joined := fmt.Sprint(captured)
	for _, want := range []string{"-ss 9.000", "-frames:v 1", "image2pipe", "mjpeg"} {
		if !bytes.Contains([]byte(joined), []byte(want)) {
			t.Fatalf("args %v missing %q", captured, want)
		}
	}
}

func TestFFmpegExtractorRejectsBadPosition(t *testing.T) {
	extractor := NewFFmpegExtractor("", "")
	if _, err := extractor.ExtractFrame(context.Background(), "/a.mp4", 1.5); err == nil {
		t.Fatal("expected error for position outside (0,1)")
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	_, _ = os.Stdout.WriteString("JPEGDATA")
	os.Exit(0)
}
