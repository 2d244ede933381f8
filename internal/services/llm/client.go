package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"scriptreel/internal/services"
)

const (
	defaultBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultHTTPTimeout    = 15 * time.Second
	defaultRetryAttempts  = 5
	defaultRetryBaseDelay = time.Second
	defaultRetryMaxDelay  = 10 * time.Second
	maxResponseBytes      = 1 << 20
)

// Config captures the runtime settings required to talk to the chat completion API.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Referer        string
	Title          string
	TimeoutSeconds int
}

// Client rewrites prompts through an OpenRouter-compatible chat completion endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client

	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
	sleeper   func(time.Duration)
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryMaxAttempts bounds the number of requests per call.
func WithRetryMaxAttempts(attempts int) Option {
	return func(c *Client) { c.attempts = attempts }
}

// WithRetryBackoff sets the first retry delay and the cap it doubles towards.
func WithRetryBackoff(baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

// WithSleeper replaces the timer used between attempts.
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) { c.sleeper = sleeper }
}

// NewClient constructs a client. Blank fields fall back to the OpenRouter endpoint
// and a 15 second timeout.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		attempts:   defaultRetryAttempts,
		baseDelay:  defaultRetryBaseDelay,
		maxDelay:   defaultRetryMaxDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.attempts < 1 {
		c.attempts = 1
	}
	return c
}

// Configured reports whether the client has the settings needed to make requests.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != "" && c.cfg.Model != ""
}

// Enhancement is the JSON payload the model returns for a prompt rewrite.
type Enhancement struct {
	Prompt string `json:"prompt"`
	Raw    string `json:"-"`
}

// EnhancePrompt asks the model to rewrite a narration segment into a visual
// generation prompt. An empty rewrite is an error.
func (c *Client) EnhancePrompt(ctx context.Context, prompt string) (Enhancement, error) {
	const op = "llm enhance"
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Enhancement{}, &services.ValidationError{Field: "prompt", Reason: "required"}
	}
	content, err := c.complete(ctx, op, PromptEnhancementPrompt, prompt)
	if err != nil {
		return Enhancement{}, err
	}
	var out Enhancement
	if err := DecodeLLMJSON(content, &out); err != nil {
		return Enhancement{}, fmt.Errorf("%s: parse payload: %w", op, err)
	}
	out.Raw = content
	out.Prompt = strings.TrimSpace(out.Prompt)
	if out.Prompt == "" {
		return Enhancement{}, fmt.Errorf("%s: empty prompt in payload (snippet: %s)", op, snippet(content))
	}
	return out, nil
}

// HealthCheck verifies the key and model with a one-line JSON exchange.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.complete(ctx, "llm health", "You must respond with JSON only.", `Respond with {"ok":true}`)
	if err != nil {
		return err
	}
	var reply struct {
		OK bool `json:"ok"`
	}
	if err := DecodeLLMJSON(content, &reply); err != nil {
		return fmt.Errorf("llm health: parse payload: %w", err)
	}
	if !reply.OK {
		return errors.New("llm health: unexpected response")
	}
	return nil
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Refusal string `json:"refusal"`
		} `json:"message"`
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// complete sends a JSON-mode chat request, retrying transient failures with
// exponential backoff or the server's Retry-After.
func (c *Client) complete(ctx context.Context, op, system, user string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrConfiguration, "enhancement", op, "api key required", nil)
	}
	body, err := json.Marshal(chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("%s: encode request: %w", op, err)
	}

	for attempt := 1; ; attempt++ {
		content, err := c.send(ctx, op, body)
		if err == nil {
			return content, nil
		}
		if ctx.Err() != nil || !services.Retryable(err) {
			return "", err
		}
		if attempt >= c.attempts {
			if attempt == 1 {
				return "", err
			}
			return "", fmt.Errorf("%s: failed after %d attempts: %w", op, attempt, err)
		}
		if err := c.wait(ctx, c.backoff(attempt, err)); err != nil {
			return "", err
		}
	}
}

func (c *Client) send(ctx context.Context, op string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &services.TransientNetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", &services.TransientNetworkError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", statusError(op, resp, raw)
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &services.TransientNetworkError{Op: op, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("decode response: %w (snippet: %s)", err, snippet(string(raw)))}
	}
	if parsed.Error != nil {
		return "", &services.PermanentRequestError{Op: op, StatusCode: resp.StatusCode, Detail: strings.TrimSpace(parsed.Error.Message)}
	}
	return firstContent(op, parsed, raw)
}

// firstContent returns the first non-blank message or legacy text. A refusal is
// permanent; plain empty content is retried since providers drop it intermittently.
func firstContent(op string, parsed chatResponse, raw []byte) (string, error) {
	var finish, refusal string
	for _, choice := range parsed.Choices {
		for _, candidate := range []string{choice.Message.Content, choice.Text} {
			if trimmed := strings.TrimSpace(candidate); trimmed != "" {
				return trimmed, nil
			}
		}
		if finish == "" {
			finish = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = strings.TrimSpace(choice.Message.Refusal)
		}
	}
	if refusal != "" {
		return "", &services.PermanentRequestError{Op: op, Detail: fmt.Sprintf("model refused (finish_reason=%q): %s", finish, refusal)}
	}
	if len(parsed.Choices) == 0 {
		return "", &services.TransientNetworkError{Op: op, Err: errors.New("empty choices")}
	}
	return "", &services.TransientNetworkError{Op: op,
		Err: fmt.Errorf("empty content (finish_reason=%q, response_snippet=%s)", finish, snippet(string(raw)))}
}

// statusError treats 408, 429, and 5xx as transient and every other status as a rejection.
func statusError(op string, resp *http.Response, raw []byte) error {
	detail := snippet(string(raw))
	switch code := resp.StatusCode; {
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= http.StatusInternalServerError:
		return &services.TransientNetworkError{
			Op:         op,
			StatusCode: code,
			RetryAfter: retryAfterSeconds(resp.Header.Get("Retry-After")),
			Err:        errors.New(detail),
		}
	default:
		return &services.PermanentRequestError{Op: op, StatusCode: code, Detail: detail}
	}
}

func retryAfterSeconds(value string) int {
	value = strings.TrimSpace(value)
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return seconds
	}
	if when, err := http.ParseTime(value); err == nil {
		if d := time.Until(when); d > 0 {
			return int((d + time.Second - 1) / time.Second)
		}
	}
	return 0
}

// backoff doubles baseDelay per attempt, prefers a Retry-After hint, and never
// exceeds maxDelay.
func (c *Client) backoff(attempt int, err error) time.Duration {
	var transient *services.TransientNetworkError
	if errors.As(err, &transient) && transient.RetryAfter > 0 {
		return c.capped(time.Duration(transient.RetryAfter) * time.Second)
	}
	if c.baseDelay <= 0 {
		return 0
	}
	delay := c.baseDelay
	for i := 1; i < attempt && delay < c.maxDelay; i++ {
		delay *= 2
	}
	return c.capped(delay)
}

func (c *Client) capped(d time.Duration) time.Duration {
	if c.maxDelay > 0 && d > c.maxDelay {
		return c.maxDelay
	}
	return d
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
