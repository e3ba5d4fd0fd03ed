// Package ingest runs the ingestion pipeline: extract, chunk, embed, store.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/metrics"
)

// File is one uploaded file of a batch.
type File struct {
	Name string
	Data []byte
}

// Service ingests documents into a project's chunk store.
type Service struct {
	extractors Extractors
	web        WebFetcher
	chunker    Chunker
	embedder   Embedder
	store      Store
	workers    int
	logger     *zap.Logger
}

func New(
	extractors Extractors,
	web WebFetcher,
	chunker Chunker,
	embedder Embedder,
	store Store,
	workers int,
	logger *zap.Logger,
) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		extractors: extractors,
		web:        web,
		chunker:    chunker,
		embedder:   embedder,
		store:      store,
		workers:    workers,
		logger:     logger,
	}
}

// IngestFiles processes a batch on a bounded worker pool. Each file fails
// or succeeds on its own; results keep the order of the input. A canceled
// context stops unstarted work, results for those files carry the
// cancellation error.
func (s *Service) IngestFiles(ctx context.Context, projectID string, files []File) []domain.FileResult {
	results := make([]domain.FileResult, len(files))

	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = s.ingestFile(ctx, projectID, files[i])
			}
		}()
	}

	for i := range files {
		select {
		case <-ctx.Done():
			results[i] = domain.FileResult{DocName: files[i].Name, Error: ctx.Err().Error()}
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	return results
}

func (s *Service) ingestFile(ctx context.Context, projectID string, file File) domain.FileResult {
	result := domain.FileResult{DocName: file.Name}

	if err := ctx.Err(); err != nil {
		result.Error = err.Error()
		return result
	}

	extractor, err := s.extractors.ForFile(file.Name)
	if err != nil {
		result.Error = err.Error()
		metrics.IngestFilesTotal.WithLabelValues("unknown", "error").Inc()
		return result
	}
	sourceType := extractor.SourceType()
	result.SourceType = string(sourceType)

	units, err := extractor.Extract(ctx, file.Name, file.Data)
	if err != nil {
		result.Error = err.Error()
		metrics.IngestFilesTotal.WithLabelValues(string(sourceType), "error").Inc()
		return result
	}
	result.PagesProcessed = len(units)

	stored, err := s.storeUnits(ctx, projectID, file.Name, sourceType, units)
	if err != nil {
		result.Error = err.Error()
		metrics.IngestFilesTotal.WithLabelValues(string(sourceType), "error").Inc()
		return result
	}

	result.DocID = stored.docID
	result.ChunksCreated = stored.chunks
	metrics.IngestFilesTotal.WithLabelValues(string(sourceType), "success").Inc()

	s.logger.Info("File ingested",
		zap.String("project_id", projectID),
		zap.String("doc_name", file.Name),
		zap.String("source_type", string(sourceType)),
		zap.Int("chunks", stored.chunks))

	return result
}

// IngestWeb fetches a page and ingests it like a file; the normalized URL
// becomes the document name.
func (s *Service) IngestWeb(ctx context.Context, projectID, rawURL string) (domain.FileResult, error) {
	name, units, err := s.web.Fetch(ctx, rawURL)
	if err != nil {
		metrics.IngestFilesTotal.WithLabelValues(string(domain.SourceWeb), "error").Inc()
		return domain.FileResult{DocName: rawURL, Error: err.Error()}, err
	}

	stored, err := s.storeUnits(ctx, projectID, name, domain.SourceWeb, units)
	if err != nil {
		metrics.IngestFilesTotal.WithLabelValues(string(domain.SourceWeb), "error").Inc()
		return domain.FileResult{DocName: name, Error: err.Error()}, err
	}

	metrics.IngestFilesTotal.WithLabelValues(string(domain.SourceWeb), "success").Inc()
	return domain.FileResult{
		DocID:          stored.docID,
		DocName:        name,
		SourceType:     string(domain.SourceWeb),
		PagesProcessed: len(units),
		ChunksCreated:  stored.chunks,
	}, nil
}

// DeleteDocument removes a document and its chunks.
func (s *Service) DeleteDocument(ctx context.Context, documentID string) (int64, error) {
	removed, err := s.store.DeleteDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Document deleted",
		zap.String("document_id", documentID),
		zap.Int64("chunks_removed", removed))
	return removed, nil
}

type storedDoc struct {
	docID  string
	chunks int
}

// storeUnits runs chunk, embed and persist for one document. A re-ingested
// identical file gets a fresh document id and an independent chunk set.
func (s *Service) storeUnits(
	ctx context.Context,
	projectID, docName string,
	sourceType domain.SourceType,
	units []domain.ExtractedUnit,
) (storedDoc, error) {
	candidates := s.chunker.Chunk(units)
	if len(candidates) == 0 {
		return storedDoc{}, fmt.Errorf("%w: %s produced no chunks", domain.ErrChunking, docName)
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	embeddings, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return storedDoc{}, err
	}

	docID := uuid.NewString()
	now := time.Now().UTC()

	chunks := make([]domain.Chunk, len(candidates))
	for i, c := range candidates {
		chunks[i] = domain.Chunk{
			ID:         uuid.NewString(),
			ProjectID:  projectID,
			DocumentID: docID,
			Text:       c.Text,
			Embedding:  embeddings[i].Embedding,
			SourceType: sourceType,
			DocName:    docName,
			PageNumber: c.PageNumber,
			Images:     c.Images,
			CreatedAt:  now,
		}
	}

	doc := domain.Document{
		ID:         docID,
		ProjectID:  projectID,
		Name:       docName,
		SourceType: sourceType,
		UploadedAt: now,
	}
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return storedDoc{}, err
	}
	if err := s.store.UpsertChunks(ctx, chunks); err != nil {
		return storedDoc{}, err
	}

	metrics.ChunksIngestedTotal.WithLabelValues(string(sourceType)).Add(float64(len(chunks)))
	return storedDoc{docID: docID, chunks: len(chunks)}, nil
}
