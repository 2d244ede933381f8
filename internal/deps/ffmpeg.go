package deps

import "strings"

// FFmpegRequirements lists the binaries terminal-frame extraction shells out to.
// They are optional unless continuity seeding is enabled.
func FFmpegRequirements(ffmpegBinary, ffprobeBinary string, required bool) []Requirement {
	return []Requirement{
		{
			Name:        "FFmpeg",
			Command:     orDefault(ffmpegBinary, "ffmpeg"),
			Description: "Extracts terminal frames for continuity seeds",
			Optional:    !required,
		},
		{
			Name:        "FFprobe",
			Command:     orDefault(ffprobeBinary, "ffprobe"),
			Description: "Reads clip durations before frame extraction",
			Optional:    !required,
		},
	}
}

// Missing returns the required dependencies that are unavailable.
func Missing(statuses []Status) []Status {
	var out []Status
	for _, s := range statuses {
		if !s.Available && !s.Optional {
			out = append(out, s)
		}
	}
	return out
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
