package email

import (
	"context"

	"github.com/docsage-ai/docsage/internal/chunker"
	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/generation"
)

// Fetcher retrieves raw emails from a mailbox. Implementations own the
// IMAP session; the service hands them decrypted credentials and a hard
// cap on the number of records.
type Fetcher interface {
	Fetch(ctx context.Context, cfg domain.EmailConfig, limit int) ([]domain.RawEmailRecord, error)
}

// SettingsStore persists per-project mailbox settings and pipeline state.
type SettingsStore interface {
	SaveEmailConfig(ctx context.Context, cfg domain.EmailConfig) error
	GetEmailConfig(ctx context.Context, projectID string) (domain.EmailConfig, domain.EmailState, error)
	SetEmailState(ctx context.Context, projectID string, state domain.EmailState) error
}

// RawStore holds fetched records awaiting summarization.
type RawStore interface {
	Append(projectID string, records []domain.RawEmailRecord) (int, error)
	Unsummarized(projectID string) ([]domain.RawEmailRecord, error)
	MarkSummarized(projectID, recordID string) error
}

// ChunkStore persists and lists email-sourced chunks.
type ChunkStore interface {
	UpsertChunks(ctx context.Context, chunks []domain.Chunk) error
	ListEmailChunks(ctx context.Context, projectID string) ([]domain.Chunk, error)
}

// Chunker turns summary text into sanitized chunk candidates. Summaries
// go through the same pipeline as document text so citation-shaped
// markers never reach the store.
type Chunker interface {
	Chunk(units []domain.ExtractedUnit) []chunker.Candidate
}

// Embedder vectorizes summary chunks.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingResult, error)
}

// Generator produces the per-email summary.
type Generator interface {
	Complete(ctx context.Context, messages []generation.Message) (string, error)
}
