// Package enhance rewrites segment text into generation prompts. Enhancement is
// optional: when it is disabled or fails, the original text is used unchanged.
package enhance

import (
	"context"
	"log/slog"
	"strings"

	"scriptreel/internal/config"
	"scriptreel/internal/logging"
	"scriptreel/internal/services/llm"
)

// Enhancer rewrites a prompt.
type Enhancer interface {
	Enhance(ctx context.Context, prompt string) (string, error)
}

// LLMEnhancer enhances prompts through the chat completion client.
type LLMEnhancer struct {
	client *llm.Client
}

// NewLLMEnhancer wraps client.
func NewLLMEnhancer(client *llm.Client) *LLMEnhancer {
	return &LLMEnhancer{client: client}
}

// Enhance implements Enhancer.
func (e *LLMEnhancer) Enhance(ctx context.Context, prompt string) (string, error) {
	result, err := e.client.EnhancePrompt(ctx, prompt)
	if err != nil {
		return "", err
	}
	return result.Prompt, nil
}

// Service applies an Enhancer with fallback to the original prompt.
type Service struct {
	enhancer Enhancer
	logger   *slog.Logger
}

// NewService returns a service. A nil enhancer disables enhancement.
func NewService(enhancer Enhancer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{enhancer: enhancer, logger: logging.NewComponentLogger(logger, "enhance")}
}

// FromConfig builds a service from cfg.Enhancement. Enhancement is disabled unless it
// is enabled and an API key is available.
func FromConfig(cfg *config.Config, logger *slog.Logger) *Service {
	if cfg == nil || !cfg.Enhancement.Enabled {
		return NewService(nil, logger)
	}
	settings := cfg.EnhancementLLM()
	client := llm.NewClient(llm.Config{
		APIKey:         settings.APIKey,
		BaseURL:        settings.BaseURL,
		Model:          settings.Model,
		Referer:        settings.Referer,
		Title:          settings.Title,
		TimeoutSeconds: settings.TimeoutSeconds,
	})
	if !client.Configured() {
		if logger != nil {
			logging.WarnWithContext(logger, "prompt enhancement disabled", "enhancement_unconfigured",
				logging.String(logging.FieldErrorHint, "set enhancement.api_key or OPENROUTER_API_KEY"),
				logging.String(logging.FieldImpact, "segments are submitted with their original text"))
		}
		return NewService(nil, logger)
	}
	return NewService(NewLLMEnhancer(client), logger)
}

// Enabled reports whether an enhancer is configured.
func (s *Service) Enabled() bool { return s != nil && s.enhancer != nil }

// Apply returns the enhanced prompt and true, or the original prompt and false when
// enhancement is disabled or fails. Failures are logged, never returned.
func (s *Service) Apply(ctx context.Context, prompt string) (string, bool) {
	if !s.Enabled() {
		return prompt, false
	}
	enhanced, err := s.enhancer.Enhance(ctx, prompt)
	if err == nil && strings.TrimSpace(enhanced) != "" {
		return strings.TrimSpace(enhanced), true
	}
	logger := logging.WithContext(ctx, s.logger)
	if err != nil && ctx.Err() == nil {
		logging.WarnWithContext(logger, "prompt enhancement failed", "enhancement_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check enhancement settings and provider status"),
			logging.String(logging.FieldImpact, "segment is submitted with its original text"))
	}
	return prompt, false
}
