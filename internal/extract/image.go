package extract

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/docsage-ai/docsage/internal/domain"
)

// noTextPlaceholder stands in for sources that carry no extractable text.
// It keeps the chunk retrievable so its image still reaches citations.
const noTextPlaceholder = "[Image with no extractable text]"

// OCR recognizes text in an image file.
type OCR interface {
	Recognize(ctx context.Context, imagePath string) (string, error)
}

// TesseractOCR shells out to the tesseract binary.
type TesseractOCR struct{}

func (TesseractOCR) Recognize(ctx context.Context, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, "tesseract", imagePath, "stdout")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	return out.String(), nil
}

// imageExtractor produces a single unit per image: OCR text (or the
// placeholder) plus the image itself for citation payloads.
type imageExtractor struct {
	ocr OCR
}

func NewImage(ocr OCR) *imageExtractor {
	return &imageExtractor{ocr: ocr}
}

func (e *imageExtractor) SourceType() domain.SourceType { return domain.SourceImage }

func (e *imageExtractor) Extract(ctx context.Context, name string, data []byte) ([]domain.ExtractedUnit, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrExtraction, name)
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, fmt.Errorf("%w: %s is not an image (%s)", domain.ErrExtraction, name, mime)
	}

	text := e.recognize(ctx, name, data)
	if text == "" {
		text = noTextPlaceholder
	}

	return []domain.ExtractedUnit{{
		Text: text,
		Images: []domain.PageImage{{
			ID:       uuid.NewString(),
			Base64:   dataURI(mime, data),
			MimeType: mime,
		}},
	}}, nil
}

// recognize runs OCR over a temp copy of the image. OCR failure is not an
// extraction failure; the caller substitutes the placeholder.
func (e *imageExtractor) recognize(ctx context.Context, name string, data []byte) string {
	if e.ocr == nil {
		return ""
	}

	tmp, err := os.CreateTemp("", "docsage-ocr-*"+filepath.Ext(name))
	if err != nil {
		return ""
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return ""
	}
	tmp.Close()

	text, err := e.ocr.Recognize(ctx, tmp.Name())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(text)
}
