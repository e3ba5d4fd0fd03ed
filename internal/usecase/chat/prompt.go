package chat

import (
	"strings"

	"github.com/docsage-ai/docsage/internal/domain"
)

// DefaultSystemPrompt instructs the model to answer from the provided
// context and emit the strict reply schema.
const DefaultSystemPrompt = `You are a document assistant. Answer the user's question using the provided context chunks when they are relevant. Each chunk is followed by a citation marker of the form [CITATION::CHUNK_ID::"<id>"]. When no context is provided or none of it is relevant, answer from general knowledge and cite nothing.`

// responseTrailer pins the output contract.
const responseTrailer = `Respond with exactly one JSON object and nothing else, in the form:
{"reply_text": "<your answer>", "citation": ["<chunk id>", "..."]}
List in "citation" the CHUNK_ID value of every context chunk your answer draws on, in order of use. Use an empty list when no chunk was used.`

// PromptBuilder renders the grounding prompt under a token ceiling.
type PromptBuilder struct {
	maxTokens int
	counter   TokenCounter
}

func NewPromptBuilder(maxTokens int, counter TokenCounter) *PromptBuilder {
	return &PromptBuilder{maxTokens: maxTokens, counter: counter}
}

// Build renders the user message for a question over retrieved chunks and
// returns it with the chunks that made it into the prompt. Chunks are
// added in rank order and the lowest-ranked are dropped whole when the
// ceiling would be exceeded. The question and trailer are always kept.
func (b *PromptBuilder) Build(question string, chunks []domain.Chunk) (string, []domain.Chunk) {
	tail := "User Question: " + question + "\n\n" + responseTrailer
	budget := b.maxTokens - b.counter.CountTokens(tail) - b.counter.CountTokens("Context:\n\n")

	var blocks []string
	var used []domain.Chunk
	for _, c := range chunks {
		block := c.Text + "\n" + domain.CitationMarker(c.ID)
		cost := b.counter.CountTokens(block + "\n\n")
		if cost > budget {
			break
		}
		budget -= cost
		blocks = append(blocks, block)
		used = append(used, c)
	}

	if len(blocks) == 0 {
		return tail, nil
	}

	var sb strings.Builder
	sb.WriteString("Context:\n\n")
	for _, block := range blocks {
		sb.WriteString(block)
		sb.WriteString("\n\n")
	}
	sb.WriteString(tail)
	return sb.String(), used
}
