package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/docsage-ai/docsage/internal/domain"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) Recognize(context.Context, string) (string, error) {
	return f.text, f.err
}

func TestImageExtractor_OCRText(t *testing.T) {
	e := NewImage(&fakeOCR{text: "  Meeting agenda\n"})

	units, err := e.Extract(context.Background(), "scan.png", pngHeader)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	if units[0].Text != "Meeting agenda" {
		t.Errorf("text = %q", units[0].Text)
	}
	if len(units[0].Images) != 1 {
		t.Fatalf("got %d images, want 1", len(units[0].Images))
	}
	img := units[0].Images[0]
	if img.MimeType != "image/png" {
		t.Errorf("mime = %q", img.MimeType)
	}
	if !strings.HasPrefix(img.Base64, "data:image/png;base64,") {
		t.Errorf("base64 payload missing data URI prefix: %q", img.Base64[:min(len(img.Base64), 40)])
	}
	if img.ID == "" {
		t.Error("image id must be assigned")
	}
}

func TestImageExtractor_PlaceholderWhenOCRFails(t *testing.T) {
	cases := []struct {
		name string
		ocr  OCR
	}{
		{"nil ocr", nil},
		{"empty result", &fakeOCR{text: "   "}},
		{"ocr error", &fakeOCR{err: errors.New("tesseract not found")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewImage(tc.ocr)
			units, err := e.Extract(context.Background(), "scan.png", pngHeader)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if units[0].Text != noTextPlaceholder {
				t.Errorf("text = %q, want placeholder", units[0].Text)
			}
			if len(units[0].Images) != 1 {
				t.Error("image payload must survive OCR failure")
			}
		})
	}
}

func TestImageExtractor_RejectsNonImage(t *testing.T) {
	e := NewImage(nil)

	_, err := e.Extract(context.Background(), "fake.png", []byte("plain text pretending"))
	if !errors.Is(err, domain.ErrExtraction) {
		t.Fatalf("error = %v, want ErrExtraction", err)
	}
}
