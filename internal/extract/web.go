package extract

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/docsage-ai/docsage/internal/domain"
)

// maxWebBodyBytes caps how much of a remote page is read.
const maxWebBodyBytes = 10 << 20

// Web fetches a page over HTTP and strips it down to readable text.
type Web struct {
	client *http.Client
}

func NewWeb(timeout time.Duration) *Web {
	return &Web{client: &http.Client{Timeout: timeout}}
}

func (w *Web) SourceType() domain.SourceType { return domain.SourceWeb }

// Fetch downloads rawURL and returns the normalized URL (used as the
// document name) together with the extracted text unit.
func (w *Web) Fetch(ctx context.Context, rawURL string) (string, []domain.ExtractedUnit, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return "", nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalized, nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: build request: %v", domain.ErrExtraction, err)
	}
	req.Header.Set("User-Agent", "docsage/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("%w: fetch %s: %v", domain.ErrExtraction, normalized, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil, fmt.Errorf("%w: fetch %s: status %d", domain.ErrExtraction, normalized, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebBodyBytes))
	if err != nil {
		return "", nil, fmt.Errorf("%w: read %s: %v", domain.ErrExtraction, normalized, err)
	}

	var text string
	ct := resp.Header.Get("Content-Type")
	if strings.Contains(ct, "text/html") || strings.Contains(ct, "xhtml") || looksLikeHTML(body) {
		text = StripHTML(string(body))
	} else {
		text = strings.TrimSpace(string(body))
	}
	if text == "" {
		return "", nil, fmt.Errorf("%w: %s has no extractable content", domain.ErrExtraction, normalized)
	}

	return normalized, []domain.ExtractedUnit{{Text: text}}, nil
}

// NormalizeURL validates a URL and brings it to canonical form: https by
// default, lowercased host, no fragment, tracking parameters removed.
func NormalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", domain.ErrInvalidRequest)
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: parse url: %v", domain.ErrInvalidRequest, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", domain.ErrInvalidRequest, u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: url %q has no host", domain.ErrInvalidRequest, raw)
	}

	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func looksLikeHTML(body []byte) bool {
	head := strings.ToLower(string(body[:min(len(body), 512)]))
	return strings.Contains(head, "<!doctype html") || strings.Contains(head, "<html")
}

var (
	scriptTag     = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag      = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag   = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag       = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	svgTag        = regexp.MustCompile(`(?is)<svg[^>]*>.*?</svg>`)
	htmlComments  = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockClose    = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	blockOpen     = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	lineBreakTags = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t]+`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// StripHTML reduces an HTML page to its readable text, keeping block
// boundaries as newlines so the chunker can cut at paragraphs.
func StripHTML(content string) string {
	content = scriptTag.ReplaceAllString(content, "")
	content = styleTag.ReplaceAllString(content, "")
	content = noscriptTag.ReplaceAllString(content, "")
	content = headTag.ReplaceAllString(content, "")
	content = svgTag.ReplaceAllString(content, "")
	content = htmlComments.ReplaceAllString(content, "")

	content = blockOpen.ReplaceAllString(content, "\n")
	content = blockClose.ReplaceAllString(content, "\n")
	content = lineBreakTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")

	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")
	content = multiNewlines.ReplaceAllString(content, "\n\n")

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
