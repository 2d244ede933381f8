package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeGeneration()
	c.normalizeEnhancement()
	c.normalizeSegmentation()
	c.normalizeContinuity()
	if err := c.normalizeCache(); err != nil {
		return err
	}
	c.normalizeCredits()
	c.normalizeLogging()
	c.Metrics.ListenAddr = strings.TrimSpace(c.Metrics.ListenAddr)
	c.normalizeTelemetry()
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		c.Paths.WorkDir = defaultWorkDir
	}
	if c.Paths.WorkDir, err = expandPath(c.Paths.WorkDir); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = filepath.Join(c.Paths.WorkDir, "clips")
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.WorkDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir()
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeGeneration() {
	c.Generation.BaseURL = strings.TrimRight(strings.TrimSpace(c.Generation.BaseURL), "/")
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = defaultGenerationBaseURL
	}
	c.Generation.APIKey = strings.TrimSpace(c.Generation.APIKey)
	if c.Generation.APIKey == "" {
		if value, ok := os.LookupEnv("SCRIPTREEL_GENERATION_API_KEY"); ok {
			c.Generation.APIKey = strings.TrimSpace(value)
		}
	}
	c.Generation.Model = strings.TrimSpace(c.Generation.Model)
	if c.Generation.Model == "" {
		c.Generation.Model = defaultGenerationModel
	}
	c.Generation.ModelVersion = strings.TrimSpace(c.Generation.ModelVersion)
	if c.Generation.TimeoutSeconds <= 0 {
		c.Generation.TimeoutSeconds = defaultGenerationTimeout
	}
	if c.Generation.RequestsPerSecond < 0 {
		c.Generation.RequestsPerSecond = 0
	}
	if len(c.Generation.AllowedDurations) > 0 {
		durations := make([]float64, 0, len(c.Generation.AllowedDurations))
		for _, d := range c.Generation.AllowedDurations {
			if d > 0 {
				durations = append(durations, d)
			}
		}
		sort.Float64s(durations)
		c.Generation.AllowedDurations = durations
	}
}

func (c *Config) normalizeEnhancement() {
	c.Enhancement.BaseURL = strings.TrimSpace(c.Enhancement.BaseURL)
	if c.Enhancement.BaseURL == "" {
		c.Enhancement.BaseURL = defaultEnhancementBaseURL
	}
	c.Enhancement.Model = strings.TrimSpace(c.Enhancement.Model)
	if c.Enhancement.Model == "" {
		c.Enhancement.Model = defaultEnhancementModel
	}
	c.Enhancement.Referer = strings.TrimSpace(c.Enhancement.Referer)
	if c.Enhancement.Referer == "" {
		c.Enhancement.Referer = defaultEnhancementReferer
	}
	c.Enhancement.Title = strings.TrimSpace(c.Enhancement.Title)
	if c.Enhancement.Title == "" {
		c.Enhancement.Title = defaultEnhancementTitle
	}
	if c.Enhancement.TimeoutSeconds <= 0 {
		c.Enhancement.TimeoutSeconds = defaultEnhancementTimeout
	}
	c.Enhancement.APIKey = strings.TrimSpace(c.Enhancement.APIKey)
	if c.Enhancement.APIKey == "" {
		if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok {
			c.Enhancement.APIKey = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeSegmentation() {
	c.Segmentation.Strategy = strings.ToLower(strings.TrimSpace(c.Segmentation.Strategy))
	if c.Segmentation.Strategy == "" {
		c.Segmentation.Strategy = defaultStrategy
	}
	if c.Segmentation.WordsPerChunk <= 0 {
		c.Segmentation.WordsPerChunk = defaultWordsPerChunk
	}
	if c.Segmentation.CharsPerToken <= 0 {
		c.Segmentation.CharsPerToken = defaultCharsPerToken
	}
	if c.Segmentation.SecondsPerWord <= 0 {
		c.Segmentation.SecondsPerWord = defaultSecondsPerWord
	}
}

func (c *Config) normalizeContinuity() {
	c.Continuity.FFmpegBinary = strings.TrimSpace(c.Continuity.FFmpegBinary)
	if c.Continuity.FFmpegBinary == "" {
		c.Continuity.FFmpegBinary = defaultFFmpegBinary
	}
	c.Continuity.FFprobeBinary = strings.TrimSpace(c.Continuity.FFprobeBinary)
	if c.Continuity.FFprobeBinary == "" {
		c.Continuity.FFprobeBinary = defaultFFprobeBinary
	}
	c.Continuity.Note = strings.TrimSpace(c.Continuity.Note)
	if c.Continuity.Note == "" {
		c.Continuity.Note = defaultContinuityNote
	}
	if c.Continuity.MaxSeedBytes <= 0 {
		c.Continuity.MaxSeedBytes = defaultMaxSeedBytes
	}
}

func (c *Config) normalizeCache() error {
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.Backend == "" {
		c.Cache.Backend = defaultCacheBackend
	}
	if strings.TrimSpace(c.Cache.Path) == "" {
		c.Cache.Path = filepath.Join(c.Paths.CacheDir, defaultCacheFileName)
	}
	var err error
	if c.Cache.Path, err = expandPath(c.Cache.Path); err != nil {
		return fmt.Errorf("cache.path: %w", err)
	}
	c.Cache.RedisAddr = strings.TrimSpace(c.Cache.RedisAddr)
	if c.Cache.RedisAddr == "" {
		if value, ok := os.LookupEnv("SCRIPTREEL_REDIS_ADDR"); ok {
			c.Cache.RedisAddr = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Cache.RedisPrefix) == "" {
		c.Cache.RedisPrefix = defaultRedisPrefix
	}
	return nil
}

func (c *Config) normalizeCredits() {
	if c.Credits.FeatureMultipliers == nil {
		c.Credits.FeatureMultipliers = map[string]float64{}
	}
	normalized := make(map[string]float64, len(c.Credits.FeatureMultipliers))
	for name, value := range c.Credits.FeatureMultipliers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		normalized[key] = value
	}
	c.Credits.FeatureMultipliers = normalized
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeTelemetry() {
	c.Telemetry.Exporter = strings.ToLower(strings.TrimSpace(c.Telemetry.Exporter))
	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = defaultTelemetryExporter
	}
	c.Telemetry.Endpoint = strings.TrimSpace(c.Telemetry.Endpoint)
	if c.Telemetry.Endpoint == "" {
		if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); value != "" {
			c.Telemetry.Endpoint = value
		} else {
			c.Telemetry.Endpoint = defaultTelemetryEndpoint
		}
	}
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaultTelemetryServiceName
	}
}
