package extract

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/docsage-ai/docsage/internal/domain"
)

// textExtractor handles markdown and plain text. Both come through as a
// single unit with no page attribution; the chunker does the rest.
type textExtractor struct {
	sourceType domain.SourceType
}

func newText(st domain.SourceType) *textExtractor {
	return &textExtractor{sourceType: st}
}

func (t *textExtractor) SourceType() domain.SourceType { return t.sourceType }

func (t *textExtractor) Extract(_ context.Context, name string, data []byte) ([]domain.ExtractedUnit, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", domain.ErrExtraction, name)
	}
	text := string(data)
	if text == "" {
		return nil, nil
	}
	return []domain.ExtractedUnit{{Text: text}}, nil
}
