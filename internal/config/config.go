package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkDir   string `toml:"work_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	CacheDir  string `toml:"cache_dir"`
}

// Generation contains configuration for the external video generation service.
type Generation struct {
	BaseURL           string    `toml:"base_url"`
	APIKey            string    `toml:"api_key"`
	Model             string    `toml:"model"`
	ModelVersion      string    `toml:"model_version"`
	TimeoutSeconds    int       `toml:"timeout_seconds"`
	RequestsPerSecond float64   `toml:"requests_per_second"`
	AllowedDurations  []float64 `toml:"allowed_durations"`
}

// Enhancement contains configuration for LLM prompt enhancement.
type Enhancement struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Segmentation contains the default strategy and constraints used to split scripts.
type Segmentation struct {
	Strategy            string  `toml:"strategy"`
	MaxSegments         int     `toml:"max_segments"`
	MinSegmentLength    int     `toml:"min_segment_length"`
	MaxSegmentLength    int     `toml:"max_segment_length"`
	MaxTokensPerSegment int     `toml:"max_tokens_per_segment"`
	EnforceTokenLimits  bool    `toml:"enforce_token_limits"`
	AllowEmptySegments  bool    `toml:"allow_empty_segments"`
	WordsPerChunk       int     `toml:"words_per_chunk"`
	CharsPerToken       float64 `toml:"chars_per_token"`
	SecondsPerWord      float64 `toml:"seconds_per_word"`
	MinClipSeconds      float64 `toml:"min_clip_seconds"`
	MaxClipSeconds      float64 `toml:"max_clip_seconds"`
}

// Orchestrator contains batch scheduling, retry, and polling settings.
type Orchestrator struct {
	Concurrency        int `toml:"concurrency"`
	MaxAttempts        int `toml:"max_attempts"`
	RetryBaseDelayMS   int `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS    int `toml:"retry_max_delay_ms"`
	PollInitialMS      int `toml:"poll_initial_ms"`
	PollMaxMS          int `toml:"poll_max_ms"`
	PollCeilingSeconds int `toml:"poll_ceiling_seconds"`
}

// Continuity contains settings for carrying the last frame of a clip into the next request.
type Continuity struct {
	Enabled        bool    `toml:"enabled"`
	SamplePosition float64 `toml:"sample_position"`
	MaxSeedBytes   int     `toml:"max_seed_bytes"`
	FFmpegBinary   string  `toml:"ffmpeg_binary"`
	FFprobeBinary  string  `toml:"ffprobe_binary"`
	Note           string  `toml:"note"`
}

// Cache contains configuration for the fingerprint cache.
type Cache struct {
	Backend       string `toml:"backend"`
	Path          string `toml:"path"`
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisPrefix   string `toml:"redis_prefix"`
}

// Credits contains configuration for generation cost accounting.
type Credits struct {
	Enabled            bool               `toml:"enabled"`
	InitialBalance     float64            `toml:"initial_balance"`
	CreditsPerSecond   float64            `toml:"credits_per_second"`
	FeatureMultipliers map[string]float64 `toml:"feature_multipliers"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Batch          bool   `toml:"batch"`
	Errors         bool   `toml:"errors"`
}

// Metrics contains configuration for the Prometheus endpoint.
type Metrics struct {
	ListenAddr string `toml:"listen_addr"`
}

// Telemetry contains configuration for OpenTelemetry trace export.
type Telemetry struct {
	Enabled      bool    `toml:"enabled"`
	Exporter     string  `toml:"exporter"`
	Endpoint     string  `toml:"endpoint"`
	SamplingRate float64 `toml:"sampling_rate"`
	ServiceName  string  `toml:"service_name"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scriptreel.
//
// Configuration sections by subsystem:
//   - Paths: work, output, log, and cache directories
//   - Generation: external video generation service
//   - Enhancement: optional LLM prompt rewriting
//   - Segmentation: default strategy and constraints
//   - Orchestrator: concurrency, retry, and polling
//   - Continuity: terminal frame seeding between clips
//   - Cache: fingerprint cache backend
//   - Credits: cost estimation and balance
//   - Notifications: ntfy push notification settings
//   - Metrics: Prometheus listener
//   - Telemetry: OTLP trace export
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Generation    Generation    `toml:"generation"`
	Enhancement   Enhancement   `toml:"enhancement"`
	Segmentation  Segmentation  `toml:"segmentation"`
	Orchestrator  Orchestrator  `toml:"orchestrator"`
	Continuity    Continuity    `toml:"continuity"`
	Cache         Cache         `toml:"cache"`
	Credits       Credits       `toml:"credits"`
	Notifications Notifications `toml:"notifications"`
	Metrics       Metrics       `toml:"metrics"`
	Telemetry     Telemetry     `toml:"telemetry"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scriptreel/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scriptreel.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the work, output, log, and cache directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkDir, c.Paths.OutputDir, c.Paths.LogDir, c.Paths.CacheDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// StorePath returns the location of the run/job database.
func (c *Config) StorePath() string {
	return filepath.Join(c.Paths.WorkDir, "scriptreel.db")
}

// LockPath returns the workspace lock file used to serialize generation runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.WorkDir, "scriptreel.lock")
}

// GenerationTimeout returns the per-request timeout for the generation service.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.Generation.TimeoutSeconds) * time.Second
}

// NotificationTimeout returns the ntfy request timeout.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func defaultCacheDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "scriptreel")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/scriptreel"
	}
	return filepath.Join(home, ".cache", "scriptreel")
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// LLMConfig contains the connection settings for prompt enhancement.
type LLMConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// EnhancementLLM returns the LLM connection settings for prompt enhancement.
func (c *Config) EnhancementLLM() LLMConfig {
	return LLMConfig{
		APIKey:         strings.TrimSpace(c.Enhancement.APIKey),
		BaseURL:        strings.TrimSpace(c.Enhancement.BaseURL),
		Model:          strings.TrimSpace(c.Enhancement.Model),
		Referer:        strings.TrimSpace(c.Enhancement.Referer),
		Title:          strings.TrimSpace(c.Enhancement.Title),
		TimeoutSeconds: c.Enhancement.TimeoutSeconds,
	}
}
