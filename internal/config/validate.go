package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var knownStrategies = map[string]struct{}{
	"by-scenes":     {},
	"by-paragraphs": {},
	"by-sentences":  {},
	"by-duration":   {},
	"hybrid":        {},
	"byscenes":      {},
	"byparagraphs":  {},
	"bysentences":   {},
	"byduration":    {},
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGeneration(); err != nil {
		return err
	}
	if err := c.validateEnhancement(); err != nil {
		return err
	}
	if err := c.validateSegmentation(); err != nil {
		return err
	}
	if err := c.validateOrchestrator(); err != nil {
		return err
	}
	if err := c.validateContinuity(); err != nil {
		return err
	}
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateCredits(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return c.validateTelemetry()
}

func (c *Config) validateTelemetry() error {
	switch c.Telemetry.Exporter {
	case "http", "grpc":
	default:
		return fmt.Errorf("telemetry.exporter %q must be http or grpc", c.Telemetry.Exporter)
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		return fmt.Errorf("telemetry.sampling_rate %v must be between 0 and 1", c.Telemetry.SamplingRate)
	}
	return nil
}

func (c *Config) validateGeneration() error {
	if strings.TrimSpace(c.Generation.BaseURL) == "" {
		return errors.New("generation.base_url must be set")
	}
	if !strings.HasPrefix(c.Generation.BaseURL, "http://") && !strings.HasPrefix(c.Generation.BaseURL, "https://") {
		return fmt.Errorf("generation.base_url must be an http(s) URL, got %q", c.Generation.BaseURL)
	}
	if strings.TrimSpace(c.Generation.Model) == "" {
		return errors.New("generation.model must be set")
	}
	return nil
}

func (c *Config) validateEnhancement() error {
	if c.Enhancement.Enabled && strings.TrimSpace(c.Enhancement.APIKey) == "" {
		return errors.New("enhancement.api_key must be set when enhancement.enabled is true (or set OPENROUTER_API_KEY)")
	}
	return nil
}

func (c *Config) validateSegmentation() error {
	s := c.Segmentation
	if _, ok := knownStrategies[s.Strategy]; !ok {
		names := make([]string, 0, len(knownStrategies))
		for name := range knownStrategies {
			if strings.Contains(name, "-") || name == "hybrid" {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		return fmt.Errorf("segmentation.strategy %q is not one of %s", s.Strategy, strings.Join(names, ", "))
	}
	if err := ensurePositiveMap(map[string]int{
		"segmentation.max_segments":           s.MaxSegments,
		"segmentation.max_segment_length":     s.MaxSegmentLength,
		"segmentation.max_tokens_per_segment": s.MaxTokensPerSegment,
	}); err != nil {
		return err
	}
	if s.MinSegmentLength < 0 {
		return errors.New("segmentation.min_segment_length must be >= 0")
	}
	if s.MinSegmentLength > s.MaxSegmentLength {
		return errors.New("segmentation.min_segment_length must not exceed segmentation.max_segment_length")
	}
	if s.MinClipSeconds <= 0 || s.MaxClipSeconds <= 0 {
		return errors.New("segmentation.min_clip_seconds and segmentation.max_clip_seconds must be positive")
	}
	if s.MinClipSeconds > s.MaxClipSeconds {
		return errors.New("segmentation.min_clip_seconds must not exceed segmentation.max_clip_seconds")
	}
	return nil
}

func (c *Config) validateOrchestrator() error {
	o := c.Orchestrator
	if err := ensurePositiveMap(map[string]int{
		"orchestrator.concurrency":          o.Concurrency,
		"orchestrator.max_attempts":         o.MaxAttempts,
		"orchestrator.retry_base_delay_ms":  o.RetryBaseDelayMS,
		"orchestrator.retry_max_delay_ms":   o.RetryMaxDelayMS,
		"orchestrator.poll_initial_ms":      o.PollInitialMS,
		"orchestrator.poll_max_ms":          o.PollMaxMS,
		"orchestrator.poll_ceiling_seconds": o.PollCeilingSeconds,
	}); err != nil {
		return err
	}
	if o.RetryMaxDelayMS < o.RetryBaseDelayMS {
		return errors.New("orchestrator.retry_max_delay_ms must be >= orchestrator.retry_base_delay_ms")
	}
	if o.PollMaxMS < o.PollInitialMS {
		return errors.New("orchestrator.poll_max_ms must be >= orchestrator.poll_initial_ms")
	}
	return nil
}

func (c *Config) validateContinuity() error {
	if !c.Continuity.Enabled {
		return nil
	}
	if c.Continuity.SamplePosition <= 0 || c.Continuity.SamplePosition > 1 {
		return errors.New("continuity.sample_position must be in (0, 1]")
	}
	return nil
}

func (c *Config) validateCache() error {
	switch c.Cache.Backend {
	case "sqlite", "memory":
		return nil
	case "redis":
		if c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr must be set when cache.backend is redis (or set SCRIPTREEL_REDIS_ADDR)")
		}
		if c.Cache.RedisDB < 0 {
			return errors.New("cache.redis_db must be >= 0")
		}
		return nil
	default:
		return fmt.Errorf("cache.backend %q must be one of sqlite, redis, memory", c.Cache.Backend)
	}
}

func (c *Config) validateCredits() error {
	if !c.Credits.Enabled {
		return nil
	}
	if c.Credits.CreditsPerSecond < 0 {
		return errors.New("credits.credits_per_second must be >= 0")
	}
	if c.Credits.InitialBalance < 0 {
		return errors.New("credits.initial_balance must be >= 0")
	}
	for name, value := range c.Credits.FeatureMultipliers {
		if value <= 0 {
			return fmt.Errorf("credits.feature_multipliers.%s must be positive", name)
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if values[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
