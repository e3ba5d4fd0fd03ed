package domain

import "time"

// Document is a single uploaded artifact owned by a project. Deleting a
// document cascades to its chunks.
type Document struct {
	ID         string
	ProjectID  string
	Name       string
	SourceType SourceType
	UploadedAt time.Time
}

// ExtractedUnit is the normalized output of a source extractor: one
// coherent span of raw text with optional page attribution and images.
// PDF extraction yields one unit per page; single-page formats yield one
// unit with a nil page number.
type ExtractedUnit struct {
	Text       string
	PageNumber *int
	Images     []PageImage
}

// EmbeddingResult is a vectorized text with provider usage accounting.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// FileResult is the per-file outcome of an ingestion batch.
type FileResult struct {
	DocID          string `json:"document_id,omitempty"`
	DocName        string `json:"doc_name"`
	SourceType     string `json:"source_type,omitempty"`
	PagesProcessed int    `json:"pages_processed,omitempty"`
	ChunksCreated  int    `json:"chunks_created"`
	Error          string `json:"error,omitempty"`
}

// Succeeded reports whether the file was ingested.
func (r *FileResult) Succeeded() bool { return r.Error == "" }
