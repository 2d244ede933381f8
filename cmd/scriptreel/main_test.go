package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"scriptreel/internal/config"
)

const testScript = `The lighthouse keeper climbs the spiral stairs as the evening fog rolls in.

A second storm gathers over the bay and the fishing boats race for shelter.

By morning the harbour is calm and gulls circle the broken masts.`

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	scriptPath string
	baseDir    string
	submits    *atomic.Int32
}

// fakeGenerationServer completes every job on its first poll.
func fakeGenerationServer(t *testing.T, submits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		n := submits.Add(1)
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, `{"id":"job-%d"}`, n)
	})
	mux.HandleFunc("GET /v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	mux.HandleFunc("GET /v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":%q,"status":"succeeded","asset_url":"assets/%s.mp4"}`, r.PathValue("id"), r.PathValue("id"))
	})
	mux.HandleFunc("GET /v1/assets/{name}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("clip:" + r.PathValue("name")))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	t.Setenv("HOME", base)

	submits := &atomic.Int32{}
	srv := fakeGenerationServer(t, submits)

	cfgVal := config.Default()
	cfgVal.Paths.WorkDir = filepath.Join(base, "work")
	cfgVal.Paths.OutputDir = filepath.Join(base, "clips")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.CacheDir = filepath.Join(base, "cache")
	cfgVal.Generation.BaseURL = srv.URL + "/v1"
	cfgVal.Generation.APIKey = "test-key"
	cfgVal.Generation.RequestsPerSecond = 0
	cfgVal.Segmentation.Strategy = "by-paragraphs"
	cfgVal.Orchestrator.PollInitialMS = 5
	cfgVal.Orchestrator.PollMaxMS = 10
	cfgVal.Orchestrator.RetryBaseDelayMS = 5
	cfgVal.Orchestrator.RetryMaxDelayMS = 10
	cfgVal.Continuity.Enabled = false
	cfgVal.Cache.Backend = "memory"
	cfgVal.Credits.Enabled = false

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, &cfgVal)

	scriptPath := filepath.Join(base, "script.txt")
	if err := os.WriteFile(scriptPath, []byte(testScript), 0o644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	return &cliTestEnv{
		cfg:        &cfgVal,
		configPath: configPath,
		scriptPath: scriptPath,
		baseDir:    base,
		submits:    submits,
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLISegmentJSON(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"segment", env.scriptPath, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	var result struct {
		Segments []struct {
			OrderIndex            int     `json:"order_index"`
			Text                  string  `json:"text"`
			TargetDurationSeconds float64 `json:"target_duration_seconds"`
		} `json:"segments"`
		Metadata struct {
			Strategy string `json:"strategy"`
		} `json:"metadata"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode segment output: %v\n%s", err, out)
	}
	if len(result.Segments) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(result.Segments))
	}
	if result.Metadata.Strategy != "by-paragraphs" {
		t.Fatalf("strategy = %q", result.Metadata.Strategy)
	}
	for i, seg := range result.Segments {
		if seg.OrderIndex != i {
			t.Fatalf("segment %d has order index %d", i, seg.OrderIndex)
		}
		if seg.TargetDurationSeconds != 5 && seg.TargetDurationSeconds != 10 {
			t.Fatalf("segment %d duration %v not in allowed set", i, seg.TargetDurationSeconds)
		}
	}
}

func TestCLISegmentTableHonorsStrategyFlag(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"segment", env.scriptPath, "--strategy", "by-sentences"}, env.configPath)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if !strings.Contains(out, "by-sentences") {
		t.Fatalf("missing requested strategy: %q", out)
	}
	if !strings.Contains(out, "lighthouse keeper") {
		t.Fatalf("missing segment text: %q", out)
	}
}

func TestCLIGenerateAndInspectRun(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"generate", env.scriptPath, "--json"}, env.configPath)
	if err != nil {
		t.Fatalf("generate: %v\n%s", err, out)
	}
	var view runView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode generate output: %v\n%s", err, out)
	}
	if view.Status != "completed" || view.Generated != 3 || view.Failed != 0 {
		t.Fatalf("unexpected run view: %+v", view)
	}
	if got := env.submits.Load(); got != 3 {
		t.Fatalf("expected 3 submits, got %d", got)
	}
	for _, o := range view.Outcomes {
		if _, err := os.Stat(o.AssetPath); err != nil {
			t.Fatalf("clip for segment %d missing: %v", o.Index, err)
		}
	}

	out, _, err = runCLI(t, []string{"runs", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("runs list: %v", err)
	}
	if !strings.Contains(out, shortID(view.RunID)) || !strings.Contains(out, "Completed") {
		t.Fatalf("runs list missing run: %q", out)
	}

	out, _, err = runCLI(t, []string{"runs", "show", shortID(view.RunID)}, env.configPath)
	if err != nil {
		t.Fatalf("runs show: %v", err)
	}
	if !strings.Contains(out, view.RunID) || !strings.Contains(out, "by-paragraphs") {
		t.Fatalf("runs show output: %q", out)
	}

	dest := filepath.Join(env.baseDir, "export")
	out, _, err = runCLI(t, []string{"runs", "export", view.RunID, dest}, env.configPath)
	if err != nil {
		t.Fatalf("runs export: %v", err)
	}
	if !strings.Contains(out, "Exported 3 clips") {
		t.Fatalf("runs export output: %q", out)
	}
	entries, err := os.ReadDir(dest)
	if err != nil || len(entries) != 3 {
		t.Fatalf("expected 3 exported clips, got %d (%v)", len(entries), err)
	}

	out, _, err = runCLI(t, []string{"retry", view.RunID}, env.configPath)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if !strings.Contains(out, "nothing to regenerate") {
		t.Fatalf("retry output: %q", out)
	}
	if got := env.submits.Load(); got != 3 {
		t.Fatalf("retry resubmitted completed segments: %d submits", got)
	}
}

func TestCLIRunsShowUnknownRun(t *testing.T) {
	env := setupCLITestEnv(t)

	if _, _, err := runCLI(t, []string{"runs", "show", "deadbeef"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestCLIConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	target := filepath.Join(env.baseDir, "new", "config.toml")
	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Wrote sample configuration") {
		t.Fatalf("unexpected init output: %q", out)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}

	out, _, err = runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") || !strings.Contains(out, env.configPath) {
		t.Fatalf("unexpected validate output: %q", out)
	}
}

func TestCLIConfigShowRedactsSecrets(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "test-key") {
		t.Fatalf("api key leaked: %q", out)
	}
	if !strings.Contains(out, redacted) {
		t.Fatalf("expected redaction marker: %q", out)
	}

	out, _, err = runCLI(t, []string{"config", "show", "--show-secrets"}, env.configPath)
	if err != nil {
		t.Fatalf("config show --show-secrets: %v", err)
	}
	if !strings.Contains(out, "test-key") {
		t.Fatalf("expected api key with --show-secrets: %q", out)
	}
}

func TestCLICacheStatsAndClear(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"cache", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	if !strings.Contains(out, "Backend: memory") || !strings.Contains(out, "Entries: 0") {
		t.Fatalf("unexpected cache stats: %q", out)
	}

	out, _, err = runCLI(t, []string{"cache", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	if !strings.Contains(out, "Cleared 0 cache entries") {
		t.Fatalf("unexpected cache clear output: %q", out)
	}
}

func TestCLIDoctor(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"doctor"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	for _, want := range []string{"Work directory", "Generation service", "[OK] Reachable", "Database"} {
		if !strings.Contains(out, want) {
			t.Fatalf("doctor output missing %q: %q", want, out)
		}
	}
}

func TestCLITestNotifyWithoutTopic(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	if !strings.Contains(out, "not configured") {
		t.Fatalf("unexpected output: %q", out)
	}
}
