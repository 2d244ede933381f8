package generation

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"scriptreel/internal/config"
	"scriptreel/internal/metrics"
	"scriptreel/internal/services"
)

const (
	defaultHTTPTimeout = 2 * time.Minute
	maxErrorBody       = 4 << 10
	maxAssetBytes      = 512 << 20
)

// Config captures the settings HTTPClient needs.
type Config struct {
	BaseURL           string
	APIKey            string
	Model             string
	ModelVersion      string
	TimeoutSeconds    int
	RequestsPerSecond float64
}

// ConfigFrom maps the [generation] section onto Config.
func ConfigFrom(g config.Generation) Config {
	return Config{
		BaseURL:           g.BaseURL,
		APIKey:            g.APIKey,
		Model:             g.Model,
		ModelVersion:      g.ModelVersion,
		TimeoutSeconds:    g.TimeoutSeconds,
		RequestsPerSecond: g.RequestsPerSecond,
	}
}

// HTTPClient implements Client over the generic JSON REST protocol.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// Option customizes HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithLimiter overrides the request rate limiter.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *HTTPClient) {
		if limiter != nil {
			c.limiter = limiter
		}
	}
}

// NewHTTPClient constructs a client. A non-positive RequestsPerSecond disables limiting.
func NewHTTPClient(cfg Config, opts ...Option) *HTTPClient {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	client := &HTTPClient{
		cfg: Config{
			BaseURL:           strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:            strings.TrimSpace(cfg.APIKey),
			Model:             strings.TrimSpace(cfg.Model),
			ModelVersion:      strings.TrimSpace(cfg.ModelVersion),
			TimeoutSeconds:    cfg.TimeoutSeconds,
			RequestsPerSecond: cfg.RequestsPerSecond,
		},
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type submitPayload struct {
	Model           string  `json:"model"`
	ModelVersion    string  `json:"model_version,omitempty"`
	Prompt          string  `json:"prompt"`
	DurationSeconds float64 `json:"duration_seconds"`
	SeedImage       string  `json:"seed_image,omitempty"`
}

type jobResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	AssetURL  string `json:"asset_url"`
	Error     string `json:"error"`
	Retryable *bool  `json:"retryable"`
}

// Submit posts a new job.
func (c *HTTPClient) Submit(ctx context.Context, req SubmitRequest) (JobHandle, error) {
	const op = "submit"
	if strings.TrimSpace(req.Prompt) == "" {
		return JobHandle{}, &services.ValidationError{Field: "prompt", Reason: "must not be empty"}
	}
	if req.DurationSeconds <= 0 {
		return JobHandle{}, &services.ValidationError{Field: "duration_seconds", Reason: "must be positive"}
	}
	payload := submitPayload{
		Model:           c.cfg.Model,
		ModelVersion:    c.cfg.ModelVersion,
		Prompt:          req.Prompt,
		DurationSeconds: req.DurationSeconds,
	}
	if len(req.SeedImage) > 0 {
		payload.SeedImage = base64.StdEncoding.EncodeToString(req.SeedImage)
		if note := strings.TrimSpace(req.ContinuityNote); note != "" {
			payload.Prompt = strings.TrimSpace(req.Prompt) + "\n\n" + note
		}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return JobHandle{}, fmt.Errorf("generation submit: encode body: %w", err)
	}

	var resp jobResponse
	if err := c.doJSON(ctx, op, http.MethodPost, c.cfg.BaseURL+"/jobs", body, &resp); err != nil {
		return JobHandle{}, err
	}
	if strings.TrimSpace(resp.ID) == "" {
		metrics.GenerationRequests.WithLabelValues(op, "malformed").Inc()
		return JobHandle{}, &services.PermanentRequestError{Op: op, Detail: "response did not include a job id"}
	}
	return JobHandle{ID: resp.ID, SubmittedAt: c.now()}, nil
}

// PollStatus fetches the current job state.
func (c *HTTPClient) PollStatus(ctx context.Context, handle JobHandle) (Status, error) {
	const op = "poll"
	if strings.TrimSpace(handle.ID) == "" {
		return Status{}, &services.ValidationError{Field: "job_id", Reason: "must not be empty"}
	}
	var resp jobResponse
	endpoint := c.cfg.BaseURL + "/jobs/" + url.PathEscape(handle.ID)
	if err := c.doJSON(ctx, op, http.MethodGet, endpoint, nil, &resp); err != nil {
		return Status{}, err
	}

	switch strings.ToLower(strings.TrimSpace(resp.Status)) {
	case "pending", "queued", "running", "processing", "in_progress":
		return Status{State: StatePending}, nil
	case "succeeded", "completed", "success":
		if strings.TrimSpace(resp.AssetURL) == "" {
			return Status{}, &services.PermanentRequestError{Op: op, Detail: "succeeded job has no asset url"}
		}
		return Status{State: StateSucceeded, AssetURL: c.resolveURL(resp.AssetURL)}, nil
	case "failed", "error", "canceled", "cancelled":
		status := Status{State: StateFailed, Reason: strings.TrimSpace(resp.Error), Retryable: true}
		if resp.Retryable != nil {
			status.Retryable = *resp.Retryable
		}
		if status.Reason == "" {
			status.Reason = "job failed without a reason"
		}
		return status, nil
	default:
		return Status{}, &services.PermanentRequestError{Op: op, Detail: fmt.Sprintf("unknown job status %q", resp.Status)}
	}
}

// Download fetches the finished clip.
func (c *HTTPClient) Download(ctx context.Context, assetURL string) ([]byte, error) {
	const op = "download"
	assetURL = strings.TrimSpace(assetURL)
	if assetURL == "" {
		return nil, &services.ValidationError{Field: "asset_url", Reason: "must not be empty"}
	}
	resp, err := c.do(ctx, op, http.MethodGet, c.resolveURL(assetURL), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		metrics.GenerationRequests.WithLabelValues(op, "transport").Inc()
		return nil, &services.TransientNetworkError{Op: op, Err: err}
	}
	if len(data) > maxAssetBytes {
		return nil, &services.PermanentRequestError{Op: op, Detail: "asset exceeds maximum size"}
	}
	if len(data) == 0 {
		return nil, &services.TransientNetworkError{Op: op, Err: errors.New("empty asset body")}
	}
	metrics.GenerationRequests.WithLabelValues(op, "ok").Inc()
	return data, nil
}

// Ping checks that the service answers at all. Any HTTP response counts as reachable.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/jobs", nil)
	if err != nil {
		return err
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}

func (c *HTTPClient) resolveURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.IsAbs() {
		return raw
	}
	base, err := url.Parse(c.cfg.BaseURL + "/")
	if err != nil {
		return raw
	}
	return base.ResolveReference(parsed).String()
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

func (c *HTTPClient) doJSON(ctx context.Context, op, method, endpoint string, body []byte, out any) error {
	resp, err := c.do(ctx, op, method, endpoint, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.GenerationRequests.WithLabelValues(op, "transport").Inc()
		return &services.TransientNetworkError{Op: op, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		metrics.GenerationRequests.WithLabelValues(op, "malformed").Inc()
		return &services.PermanentRequestError{Op: op, StatusCode: resp.StatusCode, Detail: "decode response: " + err.Error()}
	}
	metrics.GenerationRequests.WithLabelValues(op, "ok").Inc()
	return nil
}

// do waits for the limiter, sends the request, and converts transport failures and
// non-2xx responses into classified errors. On success the caller owns resp.Body.
func (c *HTTPClient) do(ctx context.Context, op, method, endpoint string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &services.TransientNetworkError{Op: op, Err: err}
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, &services.ValidationError{Field: "url", Reason: "invalid request url", Err: err}
	}
	c.authorize(req)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		metrics.GenerationRequests.WithLabelValues(op, "transport").Inc()
		return nil, &services.TransientNetworkError{Op: op, Err: err}
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		classified := classifyStatus(op, resp.StatusCode, resp.Header.Get("Retry-After"), detail)
		metrics.GenerationRequests.WithLabelValues(op, services.Kind(classified)).Inc()
		return nil, classified
	}
	return resp, nil
}
