// Package chat answers questions over a project's ingested corpus:
// retrieve, prompt, generate, resolve.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/generation"
)

// Config bounds query behavior.
type Config struct {
	SystemPrompt string
	DefaultTopK  int
	MaxTopK      int
	HistoryLimit int
}

// Service runs the question answering flow.
type Service struct {
	embedder  Embedder
	retriever Retriever
	generator Generator
	history   HistoryStore
	prompt    *PromptBuilder
	cfg       Config
	logger    *zap.Logger
}

func New(
	embedder Embedder,
	retriever Retriever,
	generator Generator,
	history HistoryStore,
	prompt *PromptBuilder,
	cfg Config,
	logger *zap.Logger,
) *Service {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = DefaultSystemPrompt
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 50
	}
	return &Service{
		embedder:  embedder,
		retriever: retriever,
		generator: generator,
		history:   history,
		prompt:    prompt,
		cfg:       cfg,
		logger:    logger,
	}
}

// Query answers a question against a project's corpus. Empty retrieval
// still reaches the model, which then answers from general knowledge with
// no citations. Unparseable model output degrades to the raw text with
// the Degraded flag set instead of failing the request.
func (s *Service) Query(ctx context.Context, projectID, question string, topK int) (domain.Answer, error) {
	question = strings.TrimSpace(question)
	if projectID == "" || question == "" {
		return domain.Answer{}, fmt.Errorf("%w: project_id and question are required", domain.ErrInvalidRequest)
	}
	topK = s.clampTopK(topK)

	embedded, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return domain.Answer{}, err
	}

	retrieved, err := s.retriever.Search(ctx, projectID, embedded.Embedding, topK)
	if err != nil {
		return domain.Answer{}, err
	}

	promptText, used := s.prompt.Build(question, retrieved)

	raw, err := s.generator.Complete(ctx, []generation.Message{
		{Role: generation.RoleSystem, Content: s.cfg.SystemPrompt},
		{Role: generation.RoleUser, Content: promptText},
	})
	if err != nil {
		return domain.Answer{}, err
	}

	answer, err := Resolve(raw, used)
	if err != nil {
		if !errors.Is(err, domain.ErrMalformedResponse) {
			return domain.Answer{}, err
		}
		s.logger.Warn("Model output did not match the reply schema, degrading",
			zap.String("project_id", projectID))
		answer = domain.Answer{Text: raw, Citations: []domain.Citation{}, Degraded: true}
	}
	if answer.Citations == nil {
		answer.Citations = []domain.Citation{}
	}

	s.record(ctx, projectID, question, answer)
	return answer, nil
}

// History returns the recent chat log of a project.
func (s *Service) History(ctx context.Context, projectID string, limit int) ([]domain.ChatMessage, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project_id is required", domain.ErrInvalidRequest)
	}
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	return s.history.History(ctx, projectID, limit)
}

// record appends the exchange to the chat log. Log failures never fail
// the answered request.
func (s *Service) record(ctx context.Context, projectID, question string, answer domain.Answer) {
	now := time.Now().UTC()
	messages := []domain.ChatMessage{
		{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			Role:      domain.RoleUser,
			Content:   question,
			Timestamp: now,
		},
		{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			Role:      domain.RoleAssistant,
			Content:   answer.Text,
			Citations: answer.Citations,
			Timestamp: now,
		},
	}
	for _, msg := range messages {
		if err := s.history.AppendMessage(ctx, msg); err != nil {
			s.logger.Warn("Failed to append chat message",
				zap.String("project_id", projectID),
				zap.String("role", string(msg.Role)),
				zap.Error(err))
		}
	}
}

func (s *Service) clampTopK(topK int) int {
	if topK <= 0 {
		return s.cfg.DefaultTopK
	}
	if topK > s.cfg.MaxTopK {
		return s.cfg.MaxTopK
	}
	return topK
}
