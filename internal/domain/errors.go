package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrProjectNotFound signals an unknown project id.
	ErrProjectNotFound = errors.New("project not found")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrExtraction signals an unreadable or corrupt source file.
	// Per-file: it never aborts a multi-file batch.
	ErrExtraction = errors.New("extraction failed")
	// ErrUnsupportedSource signals a file format no extractor handles.
	ErrUnsupportedSource = errors.New("unsupported source format")
	// ErrChunking signals pathological input that yields no chunks.
	ErrChunking = errors.New("chunking produced no output")
	// ErrEmbedding signals a permanent embedding failure for a chunk.
	ErrEmbedding = errors.New("embedding failed")
	// ErrEmbeddingTransient signals a retryable embedding backend failure.
	ErrEmbeddingTransient = errors.New("embedding backend unavailable")
	// ErrStore signals a persistence failure.
	ErrStore = errors.New("store failure")
	// ErrGenerationUnavailable signals that the generation backend
	// exhausted retries or timed out.
	ErrGenerationUnavailable = errors.New("generation service unavailable")
	// ErrMalformedResponse signals model output that did not parse into
	// the reply schema even after brace extraction.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrEmailNotConfigured signals missing email settings for a project.
	ErrEmailNotConfigured = errors.New("email not configured")
	// ErrNoRawEmails signals that summarization was requested before any
	// emails were ingested.
	ErrNoRawEmails = errors.New("no raw emails ingested")
	// ErrInvalidRequest signals malformed caller input.
	ErrInvalidRequest = errors.New("invalid request")
)

// MalformedResponseError wraps ErrMalformedResponse and carries the raw
// model output so callers can degrade to a best-effort answer.
type MalformedResponseError struct {
	Raw string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: %d bytes of raw output", ErrMalformedResponse.Error(), len(e.Raw))
}

func (e *MalformedResponseError) Unwrap() error { return ErrMalformedResponse }

// NewMalformedResponse creates a malformed response error preserving the raw output.
func NewMalformedResponse(raw string) error {
	return &MalformedResponseError{Raw: raw}
}
