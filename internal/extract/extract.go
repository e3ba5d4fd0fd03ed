// Package extract turns raw source material (PDFs, markdown, images, web
// pages) into extracted units ready for chunking.
package extract

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/docsage-ai/docsage/internal/domain"
)

// Extractor converts one raw source into extracted units.
type Extractor interface {
	// SourceType reports the kind of source this extractor handles.
	SourceType() domain.SourceType

	// Extract parses data into units. name is the original file name and is
	// used for diagnostics only.
	Extract(ctx context.Context, name string, data []byte) ([]domain.ExtractedUnit, error)
}

// Registry routes uploaded files to extractors by extension.
type Registry struct {
	byExt map[string]Extractor
}

// NewRegistry wires the default extractor set. ocr may be nil, in which
// case image ingestion falls back to the no-text placeholder.
func NewRegistry(ocr OCR) *Registry {
	pdf := NewPDF()
	md := newText(domain.SourceMarkdown)
	txt := newText(domain.SourceText)
	img := NewImage(ocr)

	return &Registry{byExt: map[string]Extractor{
		".pdf":      pdf,
		".md":       md,
		".markdown": md,
		".txt":      txt,
		".text":     txt,
		".png":      img,
		".jpg":      img,
		".jpeg":     img,
		".gif":      img,
		".webp":     img,
		".bmp":      img,
		".tiff":     img,
	}}
}

// ForFile selects the extractor for a file name.
func (r *Registry) ForFile(name string) (Extractor, error) {
	ext := strings.ToLower(filepath.Ext(name))
	e, ok := r.byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: extension %q", domain.ErrUnsupportedSource, ext)
	}
	return e, nil
}
