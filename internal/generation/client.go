// Package generation wraps an OpenAI-compatible chat completion API behind
// a small interface used by the chat and email summarization flows.
package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/metrics"
)

// Message is one turn of a completion request.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Generator produces a model completion for a message sequence.
type Generator interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// Config holds the generation provider settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	TopP        float32
	Timeout     time.Duration
	MaxRetries  int
	Logger      *zap.Logger
}

// Client calls an OpenAI-compatible chat completion endpoint with fixed
// sampling parameters and a per-request deadline.
type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	topP        float32
	timeout     time.Duration
	maxRetries  int
	logger      *zap.Logger
}

var _ Generator = (*Client)(nil)

func NewClient(cfg *Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		topP:        cfg.TopP,
		timeout:     cfg.Timeout,
		maxRetries:  cfg.MaxRetries,
		logger:      cfg.Logger,
	}
}

// Complete returns the first choice's content. Transient provider failures
// are retried with backoff inside the configured deadline; anything that
// survives retries surfaces as ErrGenerationUnavailable.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: no messages", domain.ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		TopP:        c.topP,
		Messages:    make([]openai.ChatCompletionMessage, len(messages)),
	}
	for i, m := range messages {
		req.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err == nil {
			metrics.GenerationRequestsTotal.WithLabelValues(c.model, "success").Inc()
			metrics.GenerationRequestDuration.WithLabelValues(c.model).Observe(time.Since(start).Seconds())

			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("%w: empty completion response", domain.ErrGenerationUnavailable)
			}
			return resp.Choices[0].Message.Content, nil
		}

		metrics.GenerationRequestsTotal.WithLabelValues(c.model, "error").Inc()

		if !retryable(err) || attempt >= c.maxRetries {
			return "", fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, err)
		}

		delay := backoffDelay(attempt)
		c.logger.Warn("Generation request failed, retrying",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", domain.ErrGenerationUnavailable, ctx.Err())
		case <-time.After(delay):
		}
	}
}

// retryable reports whether the provider error is worth another attempt.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func backoffDelay(attempt int) time.Duration {
	d := 500 * time.Millisecond << attempt
	if d > 8*time.Second {
		d = 8 * time.Second
	}
	return d
}
