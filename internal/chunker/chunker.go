// Package chunker splits extracted text into token-bounded, sentence-aligned
// chunk candidates sized for the embedding model's context window.
package chunker

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/docsage-ai/docsage/internal/domain"
)

// encodingName is the tokenizer used for window budgeting. It does not have
// to match the embedding model exactly; it only has to over-approximate
// consistently.
const encodingName = "cl100k_base"

// Candidate is a chunk-to-be: text plus the page attribution and images of
// the unit it was drawn from. IDs and embeddings are assigned downstream.
type Candidate struct {
	Text       string
	PageNumber *int
	Images     []domain.PageImage
}

// Chunker accumulates text greedily by token count, cutting at sentence
// boundaries, and never emits a chunk above the hard cap.
type Chunker struct {
	enc      *tiktoken.Tiktoken
	min      int
	max      int
	hardCap  int
	lookback int
}

// New creates a chunker with the given token windows.
// min/max is the target window (300-500 by default), hardCap is the
// embedding model's input limit.
func New(minTokens, maxTokens, hardCap, lookback int) (*Chunker, error) {
	if minTokens <= 0 || maxTokens <= minTokens || hardCap < maxTokens {
		return nil, fmt.Errorf("invalid token windows: min=%d max=%d cap=%d", minTokens, maxTokens, hardCap)
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", encodingName, err)
	}
	return &Chunker{enc: enc, min: minTokens, max: maxTokens, hardCap: hardCap, lookback: lookback}, nil
}

// CountTokens returns the token count of a text.
func (c *Chunker) CountTokens(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// Chunk turns extracted units into chunk candidates. Units are chunked
// independently so page attribution never crosses a page boundary. A unit
// shorter than the minimum window becomes exactly one candidate rather
// than being dropped; a unit with no text yields nothing.
func (c *Chunker) Chunk(units []domain.ExtractedUnit) []Candidate {
	var out []Candidate
	for _, u := range units {
		text := sanitize(u.Text)
		if text == "" {
			continue
		}
		for _, piece := range c.split(text) {
			// Greedy budgeting sums per-word counts, which can drift from
			// the joined count. The embedding input limit is absolute, so
			// anything still above it gets token-sliced.
			if c.CountTokens(piece) > c.hardCap {
				for _, part := range c.splitTokens(piece) {
					out = append(out, Candidate{
						Text:       part,
						PageNumber: u.PageNumber,
						Images:     u.Images,
					})
				}
				continue
			}
			out = append(out, Candidate{
				Text:       piece,
				PageNumber: u.PageNumber,
				Images:     u.Images,
			})
		}
	}
	return out
}

// split cuts text into pieces of at most max tokens, preferring sentence
// boundaries. Interior pieces land in [min, max]; the tail may be shorter,
// mirroring the short-unit rule. When sentence sizes do not tile the
// window, words are borrowed from the next sentence rather than emitting
// an undersized piece.
func (c *Chunker) split(text string) []string {
	if c.CountTokens(text) <= c.max {
		return []string{text}
	}

	// Pre-cut oversized sentences so every segment fits the window on its
	// own. Anything with no usable boundary at all ends up token-sliced.
	var segments []string
	for _, sentence := range splitSentences(text) {
		if c.CountTokens(sentence) > c.max {
			segments = append(segments, c.splitWords(sentence)...)
			continue
		}
		segments = append(segments, sentence)
	}

	var pieces []string
	cur := ""
	curTokens := 0
	for _, seg := range segments {
		n := c.CountTokens(seg)
		switch {
		case curTokens+n <= c.max:
			cur = joinPiece(cur, seg)
			curTokens += n
		case curTokens >= c.min:
			pieces = append(pieces, cur)
			cur, curTokens = seg, n
		default:
			// Flushing here would emit below the minimum: borrow from this
			// segment instead, backtracking to an ender within the lookback.
			head, rest := c.fill(joinPiece(cur, seg))
			pieces = append(pieces, head)
			for c.CountTokens(rest) > c.max {
				head, rest = c.fill(rest)
				pieces = append(pieces, head)
			}
			cur, curTokens = rest, c.CountTokens(rest)
		}
	}
	if cur != "" {
		pieces = append(pieces, cur)
	}
	return pieces
}

// fill takes the largest prefix of s that fits the window, backtracking to
// a sentence ender within the lookback range, and returns it with the
// remainder.
func (c *Chunker) fill(s string) (string, string) {
	words := strings.Fields(s)

	var cur strings.Builder
	curTokens := 0
	for i, w := range words {
		n := c.CountTokens(w)
		if curTokens+n > c.max && cur.Len() > 0 {
			head, carry := c.cut(cur.String())
			rest := strings.Join(words[i:], " ")
			if carry != "" {
				rest = carry + " " + rest
			}
			return head, rest
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
		curTokens += n
	}
	return cur.String(), ""
}

// splitWords cuts an oversized sentence at whitespace, keeping each part
// within the target window. Used only when no sentence boundary exists.
func (c *Chunker) splitWords(sentence string) []string {
	words := strings.Fields(sentence)

	var parts []string
	var cur strings.Builder
	curTokens := 0

	emit := func(s string) {
		parts = append(parts, c.splitTokens(s)...)
	}

	for _, w := range words {
		n := c.CountTokens(w)
		if curTokens+n > c.max && cur.Len() > 0 {
			head, rest := c.cut(cur.String())
			emit(head)
			cur.Reset()
			cur.WriteString(rest)
			curTokens = c.CountTokens(rest)
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
		curTokens += n
	}
	if cur.Len() > 0 {
		emit(cur.String())
	}
	return parts
}

// splitTokens hard-cuts text into max-token slices. Last resort for runs
// with no whitespace to cut at: base64 blobs, long URLs, unsegmented
// scripts. Keeping the slices at max rather than the hard cap keeps every
// emitted piece inside the target window.
func (c *Chunker) splitTokens(s string) []string {
	ids := c.enc.Encode(s, nil, nil)
	if len(ids) <= c.max {
		return []string{s}
	}

	var parts []string
	for start := 0; start < len(ids); start += c.max {
		end := start + c.max
		if end > len(ids) {
			end = len(ids)
		}
		parts = append(parts, c.enc.Decode(ids[start:end]))
	}
	return parts
}

func joinPiece(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}

// cut backtracks at most lookback tokens from the end of s to the nearest
// sentence ender. It returns the piece to emit and the remainder carried
// into the next piece; the remainder is empty when no ender is in range.
func (c *Chunker) cut(s string) (string, string) {
	for i := len(s) - 1; i > 0; i-- {
		if !sentenceEnders[s[i]] {
			continue
		}
		tail := strings.TrimSpace(s[i+1:])
		if tail == "" || c.CountTokens(tail) > c.lookback {
			break
		}
		return strings.TrimSpace(s[:i+1]), tail
	}
	return s, ""
}

// sentenceEnders terminate a sentence when followed by whitespace.
var sentenceEnders = map[byte]bool{'.': true, '!': true, '?': true}

// splitSentences breaks text at sentence enders and paragraph breaks,
// keeping the terminator attached to its sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0

	for i := 0; i < len(text); i++ {
		ch := text[i]

		atEnder := sentenceEnders[ch] && i+1 < len(text) && isSpace(text[i+1])
		atParagraph := ch == '\n' && i+1 < len(text) && text[i+1] == '\n'

		if atEnder || atParagraph {
			if s := strings.TrimSpace(text[start : i+1]); s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

// sanitize collapses whitespace within paragraphs and strips any literal
// citation-marker prefix so markers embedded later in prompts can never
// collide with text. Paragraph breaks survive so the splitter can cut there.
func sanitize(text string) string {
	text = strings.ReplaceAll(text, domain.CitationOpen, "")

	paragraphs := strings.Split(text, "\n\n")
	kept := paragraphs[:0]
	for _, p := range paragraphs {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}
