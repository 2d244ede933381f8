package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}

	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}
	if results[0].Path != present {
		t.Fatalf("resolved path = %q, want %q", results[0].Path, present)
	}
}

func TestFFmpegRequirementsDefaults(t *testing.T) {
	reqs := FFmpegRequirements("", "  ", false)
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requirements, got %d", len(reqs))
	}
	if reqs[0].Command != "ffmpeg" || reqs[1].Command != "ffprobe" {
		t.Fatalf("unexpected default commands: %q %q", reqs[0].Command, reqs[1].Command)
	}
	if !reqs[0].Optional || !reqs[1].Optional {
		t.Fatal("expected binaries to be optional when continuity is off")
	}
}

func TestMissingIgnoresOptional(t *testing.T) {
	statuses := CheckBinaries(append(
		FFmpegRequirements("clearly-not-present-ffmpeg", "clearly-not-present-ffprobe", true),
		Requirement{Name: "Extra", Command: "clearly-not-present-extra", Optional: true},
	))
	missing := Missing(statuses)
	if len(missing) != 2 {
		t.Fatalf("expected 2 missing required binaries, got %#v", missing)
	}
	for _, m := range missing {
		if m.Optional {
			t.Fatalf("optional dependency reported missing: %#v", m)
		}
	}
}
