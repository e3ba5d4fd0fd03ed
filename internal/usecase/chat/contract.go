package chat

import (
	"context"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/generation"
)

// Embedder vectorizes the question.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Retriever finds the most similar chunks within a project.
type Retriever interface {
	Search(ctx context.Context, projectID string, vector []float32, topK int) ([]domain.Chunk, error)
}

// Generator produces the model completion.
type Generator interface {
	Complete(ctx context.Context, messages []generation.Message) (string, error)
}

// HistoryStore persists the append-only chat log.
type HistoryStore interface {
	AppendMessage(ctx context.Context, msg domain.ChatMessage) error
	History(ctx context.Context, projectID string, limit int) ([]domain.ChatMessage, error)
}

// TokenCounter measures prompt budget consumption.
type TokenCounter interface {
	CountTokens(text string) int
}
