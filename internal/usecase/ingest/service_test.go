package ingest

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/docsage-ai/docsage/internal/chunker"
	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/extract"
)

type fakeExtractor struct {
	sourceType domain.SourceType
	units      []domain.ExtractedUnit
	err        error
}

func (f *fakeExtractor) SourceType() domain.SourceType { return f.sourceType }

func (f *fakeExtractor) Extract(context.Context, string, []byte) ([]domain.ExtractedUnit, error) {
	return f.units, f.err
}

type fakeExtractors struct {
	byName map[string]extract.Extractor
}

func (f *fakeExtractors) ForFile(name string) (extract.Extractor, error) {
	e, ok := f.byName[name]
	if !ok {
		return nil, domain.ErrUnsupportedSource
	}
	return e, nil
}

// unitChunker emits one candidate per non-empty unit.
type unitChunker struct{}

func (unitChunker) Chunk(units []domain.ExtractedUnit) []chunker.Candidate {
	var out []chunker.Candidate
	for _, u := range units {
		if strings.TrimSpace(u.Text) == "" {
			continue
		}
		out = append(out, chunker.Candidate{Text: u.Text, PageNumber: u.PageNumber, Images: u.Images})
	}
	return out
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, texts []string) ([]domain.EmbeddingResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	results := make([]domain.EmbeddingResult, len(texts))
	for i := range texts {
		results[i] = domain.EmbeddingResult{Embedding: []float32{1, 0}}
	}
	return results, nil
}

type fakeStore struct {
	mu      sync.Mutex
	docs    []domain.Document
	chunks  []domain.Chunk
	saveErr error
}

func (f *fakeStore) SaveDocument(_ context.Context, doc domain.Document) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	return nil
}

func (f *fakeStore) UpsertChunks(_ context.Context, chunks []domain.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chunks = append(f.chunks, chunks...)
	return nil
}

func (f *fakeStore) DeleteDocument(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []domain.Chunk
	var removed int64
	for _, c := range f.chunks {
		if c.DocumentID == id {
			removed++
			continue
		}
		kept = append(kept, c)
	}
	f.chunks = kept
	return removed, nil
}

type fakeWeb struct {
	name  string
	units []domain.ExtractedUnit
	err   error
}

func (f *fakeWeb) Fetch(context.Context, string) (string, []domain.ExtractedUnit, error) {
	return f.name, f.units, f.err
}

func newTestService(extractors Extractors, web WebFetcher, emb Embedder, store Store) *Service {
	return New(extractors, web, unitChunker{}, emb, store, 2, zap.NewNop())
}

func mdExtractor(text string) *fakeExtractor {
	return &fakeExtractor{
		sourceType: domain.SourceMarkdown,
		units:      []domain.ExtractedUnit{{Text: text}},
	}
}

func TestIngestFiles_Success(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(
		&fakeExtractors{byName: map[string]extract.Extractor{"notes.md": mdExtractor("The sky is blue.")}},
		nil, &fakeEmbedder{}, store,
	)

	results := svc.IngestFiles(context.Background(), "proj-1", []File{{Name: "notes.md", Data: []byte("x")}})

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	r := results[0]
	if !r.Succeeded() {
		t.Fatalf("result error = %q", r.Error)
	}
	if r.ChunksCreated != 1 || r.SourceType != "markdown" || r.DocID == "" {
		t.Errorf("result = %+v", r)
	}
	if len(store.docs) != 1 || len(store.chunks) != 1 {
		t.Fatalf("store has %d docs, %d chunks", len(store.docs), len(store.chunks))
	}
	c := store.chunks[0]
	if c.ProjectID != "proj-1" || c.DocumentID != r.DocID || c.DocName != "notes.md" {
		t.Errorf("chunk = %+v", c)
	}
	if len(c.Embedding) == 0 {
		t.Error("chunk missing embedding")
	}
}

func TestIngestFiles_PerFileIsolation(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(
		&fakeExtractors{byName: map[string]extract.Extractor{
			"good.md": mdExtractor("Water is wet."),
			"bad.pdf": &fakeExtractor{sourceType: domain.SourcePDF, err: domain.ErrExtraction},
		}},
		nil, &fakeEmbedder{}, store,
	)

	results := svc.IngestFiles(context.Background(), "proj-1", []File{
		{Name: "bad.pdf"},
		{Name: "unknown.zip"},
		{Name: "good.md"},
	})

	if results[0].Succeeded() || results[1].Succeeded() {
		t.Errorf("failures not reported: %+v", results[:2])
	}
	if !results[2].Succeeded() {
		t.Errorf("good file failed: %q", results[2].Error)
	}
	if len(store.chunks) != 1 {
		t.Errorf("store has %d chunks, want 1", len(store.chunks))
	}
}

func TestIngestFiles_EmbedderFailure(t *testing.T) {
	svc := newTestService(
		&fakeExtractors{byName: map[string]extract.Extractor{"notes.md": mdExtractor("text")}},
		nil, &fakeEmbedder{err: domain.ErrEmbeddingTransient}, &fakeStore{},
	)

	results := svc.IngestFiles(context.Background(), "proj-1", []File{{Name: "notes.md"}})
	if results[0].Succeeded() {
		t.Fatal("expected failure when embedding fails")
	}
}

func TestIngestFiles_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := newTestService(
		&fakeExtractors{byName: map[string]extract.Extractor{"notes.md": mdExtractor("text")}},
		nil, &fakeEmbedder{}, &fakeStore{},
	)

	results := svc.IngestFiles(ctx, "proj-1", []File{{Name: "notes.md"}, {Name: "notes.md"}})
	for i, r := range results {
		if r.Succeeded() {
			t.Errorf("result %d succeeded under canceled context", i)
		}
	}
}

func TestReingest_CreatesIndependentChunkSets(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(
		&fakeExtractors{byName: map[string]extract.Extractor{"notes.md": mdExtractor("Same content.")}},
		nil, &fakeEmbedder{}, store,
	)

	first := svc.IngestFiles(context.Background(), "proj-1", []File{{Name: "notes.md"}})
	second := svc.IngestFiles(context.Background(), "proj-1", []File{{Name: "notes.md"}})

	if first[0].DocID == second[0].DocID {
		t.Error("re-ingestion must produce a new document id")
	}
	if len(store.chunks) != 2 {
		t.Errorf("store has %d chunks, want 2 independent sets", len(store.chunks))
	}
}

func TestIngestWeb(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(nil,
		&fakeWeb{name: "https://example.com/page", units: []domain.ExtractedUnit{{Text: "Page text."}}},
		&fakeEmbedder{}, store,
	)

	result, err := svc.IngestWeb(context.Background(), "proj-1", "example.com/page")
	if err != nil {
		t.Fatalf("IngestWeb() error = %v", err)
	}
	if result.DocName != "https://example.com/page" || result.ChunksCreated != 1 {
		t.Errorf("result = %+v", result)
	}
	if store.chunks[0].SourceType != domain.SourceWeb {
		t.Errorf("source type = %s", store.chunks[0].SourceType)
	}
}

func TestIngestWeb_FetchError(t *testing.T) {
	svc := newTestService(nil, &fakeWeb{err: domain.ErrExtraction}, &fakeEmbedder{}, &fakeStore{})

	if _, err := svc.IngestWeb(context.Background(), "proj-1", "bad"); !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("error = %v, want ErrExtraction", err)
	}
}

func TestDeleteDocument(t *testing.T) {
	store := &fakeStore{}
	svc := newTestService(
		&fakeExtractors{byName: map[string]extract.Extractor{"notes.md": mdExtractor("text")}},
		nil, &fakeEmbedder{}, store,
	)

	results := svc.IngestFiles(context.Background(), "proj-1", []File{{Name: "notes.md"}})
	removed, err := svc.DeleteDocument(context.Background(), results[0].DocID)
	if err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if len(store.chunks) != 0 {
		t.Errorf("chunks remain after delete: %d", len(store.chunks))
	}
}
