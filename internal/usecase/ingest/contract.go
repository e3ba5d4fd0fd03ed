package ingest

import (
	"context"

	"github.com/docsage-ai/docsage/internal/chunker"
	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/extract"
)

// Extractors routes files to source extractors.
type Extractors interface {
	ForFile(name string) (extract.Extractor, error)
}

// WebFetcher downloads and extracts a web page.
type WebFetcher interface {
	Fetch(ctx context.Context, rawURL string) (string, []domain.ExtractedUnit, error)
}

// Chunker splits extracted units into candidates.
type Chunker interface {
	Chunk(units []domain.ExtractedUnit) []chunker.Candidate
}

// Embedder vectorizes chunk texts in batch, one vector per input.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([]domain.EmbeddingResult, error)
}

// Store persists documents and their chunks.
type Store interface {
	SaveDocument(ctx context.Context, doc domain.Document) error
	UpsertChunks(ctx context.Context, chunks []domain.Chunk) error
	DeleteDocument(ctx context.Context, id string) (int64, error)
}
