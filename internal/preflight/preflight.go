package preflight

import (
	"context"

	"scriptreel/internal/config"
	"scriptreel/internal/deps"
	"scriptreel/internal/generation"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Optional bool
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Work directory", cfg.Paths.WorkDir),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	if cfg.Cache.Backend == "sqlite" || cfg.Cache.Backend == "" {
		results = append(results, CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir))
	}

	for _, status := range deps.CheckBinaries(deps.FFmpegRequirements(cfg.Continuity.FFmpegBinary, cfg.Continuity.FFprobeBinary, cfg.Continuity.Enabled)) {
		results = append(results, fromStatus(status))
	}

	results = append(results, CheckGeneration(ctx, generation.NewHTTPClient(generation.ConfigFrom(cfg.Generation))))
	results = append(results, CheckCache(ctx, cfg))

	if cfg.Enhancement.Enabled {
		results = append(results, CheckLLM(ctx, "Enhancement LLM", cfg.EnhancementLLM()))
	}
	return results
}

// Failed returns the non-optional results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}

func fromStatus(s deps.Status) Result {
	detail := s.Path
	if !s.Available {
		detail = s.Detail
		if s.Optional {
			detail += " (optional: " + s.Description + ")"
		}
	}
	return Result{Name: s.Name, Passed: s.Available, Detail: detail, Optional: s.Optional}
}
