package continuity

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"scriptreel/internal/media/ffprobe"
)

var commandContext = exec.CommandContext

// FrameExtractor returns a JPEG still taken at position (0..1) through the clip at path.
type FrameExtractor interface {
	ExtractFrame(ctx context.Context, path string, position float64) ([]byte, error)
}

// FFmpegExtractor probes the clip duration with ffprobe and pipes a single MJPEG frame
// out of ffmpeg.
type FFmpegExtractor struct {
	FFmpeg  string
	FFprobe string

	probe func(ctx context.Context, binary, path string) (ffprobe.Result, error)
}

// NewFFmpegExtractor returns an extractor using the given binaries (PATH lookup when empty).
func NewFFmpegExtractor(ffmpegBinary, ffprobeBinary string) *FFmpegExtractor {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	if strings.TrimSpace(ffprobeBinary) == "" {
		ffprobeBinary = "ffprobe"
	}
	return &FFmpegExtractor{FFmpeg: ffmpegBinary, FFprobe: ffprobeBinary, probe: ffprobe.Probe}
}

// ExtractFrame seeks to position*duration and returns the frame as JPEG bytes.
func (e *FFmpegExtractor) ExtractFrame(ctx context.Context, path string, position float64) ([]byte, error) {
	if position <= 0 || position >= 1 {
		return nil, fmt.Errorf("sample position %v outside (0,1)", position)
	}
	probe := e.probe
	if probe == nil {
		probe = ffprobe.Probe
	}
	result, err := probe(ctx, e.FFprobe, path)
	if err != nil {
		return nil, err
	}
	duration, err := result.DurationSeconds()
	if err != nil {
		return nil, err
	}

	args := []string{
		"-v", "error",
		"-hide_banner",
		"-ss", strconv.FormatFloat(duration*position, 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"-",
	}
	cmd := commandContext(ctx, e.FFmpeg, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, errors.New("ffmpeg frame: no frame produced")
	}
	return stdout.Bytes(), nil
}
