package extract

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	ledongthuc "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/docsage-ai/docsage/internal/domain"
)

// pdfExtractor extracts per-page text plus any embedded raster images.
// Text decoding and image extraction use separate parsers; an image
// extraction failure never fails the document.
type pdfExtractor struct {
	conf *model.Configuration
}

func NewPDF() *pdfExtractor {
	return &pdfExtractor{conf: model.NewDefaultConfiguration()}
}

func (p *pdfExtractor) SourceType() domain.SourceType { return domain.SourcePDF }

func (p *pdfExtractor) Extract(ctx context.Context, name string, data []byte) ([]domain.ExtractedUnit, error) {
	rs := bytes.NewReader(data)
	if err := api.Validate(rs, p.conf); err != nil {
		return nil, fmt.Errorf("%w: %s is not a readable PDF: %v", domain.ErrExtraction, name, err)
	}

	reader, err := ledongthuc.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrExtraction, name, err)
	}

	imagesByPage := p.extractImages(data)

	var units []domain.ExtractedUnit
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		var text string
		if !page.V.IsNull() {
			// A single undecodable page is skipped, not fatal.
			if t, err := page.GetPlainText(nil); err == nil {
				text = strings.TrimSpace(t)
			}
		}

		images := imagesByPage[i]
		if text == "" {
			if len(images) == 0 {
				continue
			}
			text = noTextPlaceholder
		}

		pageNr := i
		units = append(units, domain.ExtractedUnit{
			Text:       text,
			PageNumber: &pageNr,
			Images:     images,
		})
	}

	if len(units) == 0 {
		return nil, fmt.Errorf("%w: %s has no extractable content", domain.ErrExtraction, name)
	}
	return units, nil
}

// extractImages pulls embedded raster images grouped by page number.
// Any failure degrades to a text-only document.
func (p *pdfExtractor) extractImages(data []byte) map[int][]domain.PageImage {
	pages, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, p.conf)
	if err != nil {
		return nil
	}

	byPage := make(map[int][]domain.PageImage)
	for _, page := range pages {
		for _, img := range page {
			raw, err := io.ReadAll(img)
			if err != nil || len(raw) == 0 {
				continue
			}
			mime := mimeFromFileType(img.FileType)
			byPage[img.PageNr] = append(byPage[img.PageNr], domain.PageImage{
				ID:       uuid.NewString(),
				Base64:   dataURI(mime, raw),
				MimeType: mime,
			})
		}
	}
	return byPage
}

func mimeFromFileType(ft string) string {
	switch strings.ToLower(ft) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "tif", "tiff":
		return "image/tiff"
	case "webp":
		return "image/webp"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}

func dataURI(mime string, raw []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw)
}
