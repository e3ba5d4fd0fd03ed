// Package embedding produces L2-normalized vectors via an OpenAI-compatible
// embeddings API, with retries and an optional cache decorator.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/metrics"
)

// Embedder turns text into L2-normalized vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
	EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingResult, error)
	Dimensions() int
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	MaxRetries int
	Logger     *zap.Logger
}

// Client is an embedding provider using the OpenAI-compatible API.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	maxRetries int
	logger     *zap.Logger
}

var _ Embedder = (*Client)(nil)

// NewClient creates an OpenAI-compatible embedding provider.
func NewClient(cfg *Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		maxRetries: cfg.MaxRetries,
		logger:     cfg.Logger,
	}
}

func (c *Client) Dimensions() int { return c.dimensions }

// Embed returns the normalized vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	results, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return domain.EmbeddingResult{}, err
	}
	return results[0], nil
}

// EmbedBatch embeds texts in a single request, one vector per input in
// input order. Transient provider failures are retried with backoff.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingResult, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := openai.EmbeddingRequest{
		Input:          texts,
		Model:          c.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	var resp openai.EmbeddingResponse
	var err error

	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err = c.client.CreateEmbeddings(ctx, req)
		if err == nil {
			metrics.EmbeddingRequestsTotal.WithLabelValues(string(c.model), "success").Inc()
			metrics.EmbeddingRequestDuration.WithLabelValues(string(c.model)).Observe(time.Since(start).Seconds())
			break
		}

		metrics.EmbeddingRequestsTotal.WithLabelValues(string(c.model), "error").Inc()

		if !isTransient(err) || attempt >= c.maxRetries {
			return nil, classifyError(err)
		}

		delay := backoffDelay(attempt)
		c.logger.Warn("Embedding request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingTransient, ctx.Err())
		case <-time.After(delay):
		}
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			domain.ErrEmbedding, len(resp.Data), len(texts))
	}

	if resp.Usage.TotalTokens > 0 {
		metrics.EmbeddingTokensTotal.WithLabelValues(string(c.model), "prompt").Add(float64(resp.Usage.PromptTokens))
		metrics.EmbeddingTokensTotal.WithLabelValues(string(c.model), "total").Add(float64(resp.Usage.TotalTokens))
	}

	results := make([]domain.EmbeddingResult, len(texts))
	for i, d := range resp.Data {
		vec := d.Embedding
		if c.dimensions > 0 && len(vec) != c.dimensions {
			return nil, fmt.Errorf("%w: embedding %d has %d dimensions, want %d",
				domain.ErrEmbedding, i, len(vec), c.dimensions)
		}
		Normalize(vec)
		results[i] = domain.EmbeddingResult{
			Embedding:    vec,
			PromptTokens: resp.Usage.PromptTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}
	return results, nil
}

// HealthCheck verifies API availability via ListModels.
func (c *Client) HealthCheck(ctx context.Context) error {
	if _, err := c.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// Normalize scales v to unit L2 length in place. Zero vectors are left as-is.
func Normalize(v []float32) {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

// isTransient reports whether the provider error is worth retrying:
// rate limits, server errors and plain transport failures.
func isTransient(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	// Network-level failure without an HTTP status.
	return true
}

// classifyError wraps a provider error with the matching domain sentinel.
func classifyError(err error) error {
	wrap := domain.ErrEmbedding
	if isTransient(err) {
		wrap = domain.ErrEmbeddingTransient
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%w: API error %d: %s", wrap, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Errorf("%w: API error %d: %s", wrap, reqErr.HTTPStatusCode, string(reqErr.Body))
	}
	return fmt.Errorf("%w: %v", wrap, err)
}

func backoffDelay(attempt int) time.Duration {
	d := 500 * time.Millisecond << attempt
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}
