package chunker

import (
	"strings"
	"testing"

	"github.com/docsage-ai/docsage/internal/domain"
)

func newTestChunker(t *testing.T) *Chunker {
	t.Helper()
	c, err := New(30, 50, 60, 10)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func intPtr(v int) *int { return &v }

func TestNew_InvalidWindows(t *testing.T) {
	cases := []struct {
		name string
		min  int
		max  int
		cap  int
	}{
		{"zero min", 0, 50, 60},
		{"max below min", 50, 30, 60},
		{"cap below max", 30, 50, 40},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.min, tc.max, tc.cap, 10); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestChunk_ShortUnitBecomesSingleChunk(t *testing.T) {
	c := newTestChunker(t)

	units := []domain.ExtractedUnit{{Text: "Just a tiny note.", PageNumber: intPtr(3)}}
	got := c.Chunk(units)

	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].Text != "Just a tiny note." {
		t.Errorf("text = %q", got[0].Text)
	}
	if got[0].PageNumber == nil || *got[0].PageNumber != 3 {
		t.Errorf("page number not preserved: %v", got[0].PageNumber)
	}
}

func TestChunk_EmptyUnitsSkipped(t *testing.T) {
	c := newTestChunker(t)

	units := []domain.ExtractedUnit{
		{Text: ""},
		{Text: "   \n\n\t  "},
		{Text: "Kept."},
	}
	got := c.Chunk(units)

	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].Text != "Kept." {
		t.Errorf("text = %q", got[0].Text)
	}
}

func TestChunk_LongTextStaysWithinWindows(t *testing.T) {
	c := newTestChunker(t)

	text := strings.TrimSpace(strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40))
	got := c.Chunk([]domain.ExtractedUnit{{Text: text}})

	if len(got) < 2 {
		t.Fatalf("got %d candidates, want several", len(got))
	}
	for i, cand := range got {
		n := c.CountTokens(cand.Text)
		if n > 50 {
			t.Errorf("candidate %d has %d tokens, above max", i, n)
		}
		if i < len(got)-1 && n < 30 {
			t.Errorf("interior candidate %d has %d tokens, below min", i, n)
		}
	}
}

func TestChunk_CutsAtSentenceBoundaries(t *testing.T) {
	c := newTestChunker(t)

	text := strings.TrimSpace(strings.Repeat("Sentences end cleanly here. ", 30))
	got := c.Chunk([]domain.ExtractedUnit{{Text: text}})

	for i, cand := range got {
		if !strings.HasSuffix(cand.Text, ".") {
			t.Errorf("candidate %d does not end at a sentence boundary: %q", i, cand.Text)
		}
	}
}

func TestChunk_OversizedSentenceSplitsAtWords(t *testing.T) {
	c := newTestChunker(t)

	// One long run with no sentence enders at all.
	text := strings.TrimSpace(strings.Repeat("endless stream of words without punctuation ", 30))
	got := c.Chunk([]domain.ExtractedUnit{{Text: text}})

	if len(got) < 2 {
		t.Fatalf("got %d candidates, want several", len(got))
	}
	var rebuilt []string
	for i, cand := range got {
		if n := c.CountTokens(cand.Text); n > 50 {
			t.Errorf("candidate %d has %d tokens, above max", i, n)
		}
		if strings.Contains(cand.Text, "  ") {
			t.Errorf("candidate %d split mid-word: %q", i, cand.Text)
		}
		rebuilt = append(rebuilt, cand.Text)
	}
	if strings.Join(rebuilt, " ") != text {
		t.Error("word split lost or reordered content")
	}
}

func TestChunk_HardCapsUnbrokenRuns(t *testing.T) {
	c := newTestChunker(t)

	// A single whitespace-free run far above the window, like a base64
	// blob or a long URL. With no boundary to cut at, the splitter must
	// fall back to token slices instead of emitting the run whole.
	blob := strings.Repeat("QmFzZTY0", 400)
	got := c.Chunk([]domain.ExtractedUnit{{Text: blob}})

	if len(got) < 2 {
		t.Fatalf("got %d candidates, want several", len(got))
	}
	var rebuilt strings.Builder
	for i, cand := range got {
		if n := c.CountTokens(cand.Text); n > 50 {
			t.Errorf("candidate %d has %d tokens, above max", i, n)
		}
		rebuilt.WriteString(cand.Text)
	}
	if rebuilt.String() != blob {
		t.Error("token slicing lost content")
	}
}

func TestChunk_UnsegmentedScriptStaysWithinCap(t *testing.T) {
	c := newTestChunker(t)

	// No spaces and no ASCII sentence enders anywhere.
	text := strings.Repeat("古池や蛙飛び込む水の音", 40)
	got := c.Chunk([]domain.ExtractedUnit{{Text: text}})

	if len(got) < 2 {
		t.Fatalf("got %d candidates, want several", len(got))
	}
	for i, cand := range got {
		if n := c.CountTokens(cand.Text); n > 50 {
			t.Errorf("candidate %d has %d tokens, above max", i, n)
		}
	}
}

// sentenceOfTokens builds a sentence of at least want tokens, within a few
// tokens of the target.
func sentenceOfTokens(c *Chunker, want int) string {
	s := ""
	for c.CountTokens(s+"final.") < want {
		s += "plain text "
	}
	return s + "final."
}

func TestChunk_BorrowsWhenSentencesDoNotTileWindow(t *testing.T) {
	c := newTestChunker(t)

	// Two sentences that each sit below the 30-token minimum but together
	// exceed the 50-token maximum. Flushing at the sentence boundary would
	// emit two undersized pieces; the first piece must borrow words from
	// the second sentence instead.
	s1 := sentenceOfTokens(c, 26)
	s2 := sentenceOfTokens(c, 26)
	if n := c.CountTokens(s1); n >= 30 || 2*n <= 50 {
		t.Fatalf("fixture drifted: sentence is %d tokens", n)
	}

	got := c.Chunk([]domain.ExtractedUnit{{Text: s1 + " " + s2}})

	if len(got) < 2 {
		t.Fatalf("got %d candidates, want at least 2", len(got))
	}
	for i, cand := range got[:len(got)-1] {
		n := c.CountTokens(cand.Text)
		if n < 30 || n > 50 {
			t.Errorf("interior candidate %d has %d tokens, outside the window", i, n)
		}
	}
}

func TestChunk_PageAttributionDoesNotCrossUnits(t *testing.T) {
	c := newTestChunker(t)

	units := []domain.ExtractedUnit{
		{Text: "Content from the first page.", PageNumber: intPtr(1)},
		{Text: "Content from the second page.", PageNumber: intPtr(2)},
	}
	got := c.Chunk(units)

	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
	if *got[0].PageNumber != 1 || *got[1].PageNumber != 2 {
		t.Errorf("page numbers = %d, %d", *got[0].PageNumber, *got[1].PageNumber)
	}
}

func TestChunk_ImagesCarried(t *testing.T) {
	c := newTestChunker(t)

	imgs := []domain.PageImage{{ID: "img-1", Base64: "data:image/png;base64,AAAA", MimeType: "image/png"}}
	got := c.Chunk([]domain.ExtractedUnit{{Text: "A page with a figure.", Images: imgs}})

	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if len(got[0].Images) != 1 || got[0].Images[0].ID != "img-1" {
		t.Errorf("images not carried: %+v", got[0].Images)
	}
}

func TestChunk_StripsCitationMarkerPrefix(t *testing.T) {
	c := newTestChunker(t)

	got := c.Chunk([]domain.ExtractedUnit{{Text: `See [CITATION::CHUNK_ID::"x"] for details.`}})

	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if strings.Contains(got[0].Text, domain.CitationOpen) {
		t.Errorf("citation marker survived sanitization: %q", got[0].Text)
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("First one. Second one! Third?\n\nFourth paragraph")
	want := []string{"First one.", "Second one!", "Third?", "Fourth paragraph"}

	if len(got) != len(want) {
		t.Fatalf("got %d sentences %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}
