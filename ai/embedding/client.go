// Package embedding converts text to vectors through an OpenAI-compatible
// /embeddings endpoint.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/hrygo/leodock/internal/profile"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Observer receives one call per Embed with the final result label and the
// total time spent, retries included.
type Observer interface {
	RecordEmbedding(result string, latency time.Duration)
}

// Result labels passed to Observer.
const (
	ResultOK          = "ok"
	ResultUnavailable = "unavailable"
	ResultMalformed   = "malformed"
)

const maxAttempts = 2

// Config configures the embedding client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string

	// Timeout bounds each attempt.
	Timeout time.Duration
	// Backoff is the pause before the retry.
	Backoff time.Duration
	// RateLimit caps requests per second; 0 disables limiting.
	RateLimit float64

	HTTPClient *http.Client
	Guard      *DimensionGuard
	Observer   Observer
	Logger     *slog.Logger
}

// DefaultConfig targets a local LM Studio server.
func DefaultConfig() Config {
	return Config{
		BaseURL: profile.DefaultEmbeddingBaseURL,
		Model:   profile.DefaultEmbeddingModel,
		Timeout: 10 * time.Second,
		Backoff: 250 * time.Millisecond,
	}
}

// ConfigFromProfile builds a Config from the instance profile.
func ConfigFromProfile(p *profile.Profile) Config {
	cfg := DefaultConfig()
	if p.EmbeddingBaseURL != "" {
		cfg.BaseURL = p.EmbeddingBaseURL
	}
	if p.EmbeddingModel != "" {
		cfg.Model = p.EmbeddingModel
	}
	cfg.APIKey = p.EmbeddingAPIKey
	if p.EmbeddingTimeout > 0 {
		cfg.Timeout = p.EmbeddingTimeout
	}
	if p.EmbeddingBackoff > 0 {
		cfg.Backoff = p.EmbeddingBackoff
	}
	cfg.RateLimit = p.EmbeddingRateLimit
	return cfg
}

// Client is an Embedder backed by go-openai.
type Client struct {
	client   *openai.Client
	limiter  *rate.Limiter
	guard    *DimensionGuard
	observer Observer
	logger   *slog.Logger
	model    string
	timeout  time.Duration
	backoff  time.Duration
}

// New creates a Client. Zero-valued timeout, backoff and model fall back to
// DefaultConfig.
func New(cfg Config) *Client {
	defaults := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.Backoff < 0 {
		cfg.Backoff = 0
	}
	if cfg.Guard == nil {
		cfg.Guard = NewDimensionGuard(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	c := &Client{
		client:   openai.NewClientWithConfig(clientConfig),
		guard:    cfg.Guard,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		model:    cfg.Model,
		timeout:  cfg.Timeout,
		backoff:  cfg.Backoff,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(1, int(math.Ceil(cfg.RateLimit))))
	}
	return c
}

// Embed returns the vector for text. Transient failures are retried once;
// a malformed vector is not.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	vec, err := c.embed(ctx, text)
	if c.observer != nil {
		c.observer.RecordEmbedding(resultLabel(err), time.Since(start))
	}
	return vec, err
}

func (c *Client) embed(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, c.backoff); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
			}
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("%w: rate limiter: %v", ErrEmbeddingUnavailable, err)
			}
		}

		vec, err := c.attempt(ctx, text)
		if err == nil {
			return vec, nil
		}
		if errors.Is(err, ErrMalformedEmbedding) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, ctx.Err())
		}
		lastErr = err
		c.logger.Warn("embedding attempt failed",
			"attempt", attempt,
			"model", c.model,
			"error", err,
		)
	}
	return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, lastErr)
}

func (c *Client) attempt(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		// An empty body is treated like any other bad response and retried.
		return nil, errors.New("empty embedding response")
	}

	vec := resp.Data[0].Embedding
	for _, v := range vec {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: non-finite component", ErrMalformedEmbedding)
		}
	}
	if err := c.guard.Check(vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
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

func resultLabel(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, ErrMalformedEmbedding):
		return ResultMalformed
	default:
		return ResultUnavailable
	}
}
