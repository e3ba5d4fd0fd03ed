package domain

import "time"

// SourceType identifies the origin format of a chunk's document.
type SourceType string

// Supported source types.
const (
	SourcePDF      SourceType = "pdf"
	SourceMarkdown SourceType = "markdown"
	SourceText     SourceType = "text"
	SourceImage    SourceType = "image"
	SourceWeb      SourceType = "web"
	SourceEmail    SourceType = "email"
)

// PageImage is a base64-encoded raster image attached to a chunk,
// carrying a data-URI prefix so viewers can render it directly.
type PageImage struct {
	ID       string `json:"id"`
	Base64   string `json:"base64"`
	MimeType string `json:"mime_type"`
}

// Chunk is the retrievable unit of text: a 300-500 token span with its
// embedding and source metadata. Chunks are immutable after creation and
// removed only by cascading document or project deletion.
type Chunk struct {
	ID         string
	ProjectID  string
	DocumentID string
	Text       string
	Embedding  []float32
	SourceType SourceType
	DocName    string
	PageNumber *int
	Images     []PageImage
	CreatedAt  time.Time

	// Score is the similarity to the query vector, populated by search
	// results only; it is not persisted.
	Score float64
}

// HasImages reports whether the chunk carries page images.
func (c *Chunk) HasImages() bool { return len(c.Images) > 0 }
