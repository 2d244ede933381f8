package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"scriptreel/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The cache uses the in-memory backend and credits are disabled unless an option
// says otherwise.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.OutputDir = filepath.Join(base, "clips")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Generation.BaseURL = "http://127.0.0.1:0/v1"
	cfgVal.Generation.APIKey = "test"
	cfgVal.Cache.Backend = "memory"
	cfgVal.Continuity.Enabled = false
	cfgVal.Orchestrator.RetryBaseDelayMS = 1
	cfgVal.Orchestrator.RetryMaxDelayMS = 5
	cfgVal.Orchestrator.PollInitialMS = 1
	cfgVal.Orchestrator.PollMaxMS = 2

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithGenerationURL points the generation client at a test server.
func WithGenerationURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Generation.BaseURL = url
	}
}

// WithCacheBackend selects the cache backend; sqlite stores its file under the test dir.
func WithCacheBackend(backend string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Cache.Backend = backend
		if backend == "sqlite" {
			b.cfg.Cache.Path = filepath.Join(b.baseDir, "cache", "cache.db")
		}
	}
}

// WithCredits enables the credit ledger with the given opening balance.
func WithCredits(balance float64) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Credits.Enabled = true
		b.cfg.Credits.InitialBalance = balance
	}
}

// WithContinuity enables continuity seeding.
func WithContinuity() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Continuity.Enabled = true
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WorkDir)
}
