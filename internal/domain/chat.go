package domain

import "time"

// CitationOpen is the prefix of the inline citation marker embedded after
// each context chunk in the grounding prompt. The full marker form is
// [CITATION::CHUNK_ID::"<chunk_id>"]. Chunk text is sanitized at ingestion
// so the literal prefix never occurs inside stored text.
const CitationOpen = "[CITATION::"

// CitationMarker renders the inline marker for a chunk id.
func CitationMarker(chunkID string) string {
	return CitationOpen + `CHUNK_ID::"` + chunkID + `"]`
}

// ModelReply is the strict output schema the generation model must emit:
// exactly one JSON object with these two fields.
type ModelReply struct {
	ReplyText string   `json:"reply_text"`
	Citation  []string `json:"citation"`
}

// Citation is a resolved source reference returned to the caller.
type Citation struct {
	DocName    string      `json:"doc_name"`
	PageNumber *int        `json:"page_number"`
	SourceType SourceType  `json:"source_type"`
	Images     []PageImage `json:"images_base64,omitempty"`
}

// Answer is the final grounded response contract.
type Answer struct {
	Text      string     `json:"answer"`
	Citations []Citation `json:"citations"`

	// Degraded marks a best-effort answer assembled from unparseable
	// model output; citations are always empty in that case.
	Degraded bool `json:"degraded,omitempty"`
}

// ChatRole is a chat history participant.
type ChatRole string

// Chat roles.
const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is one entry of a project's append-only chat log.
type ChatMessage struct {
	ID        string     `json:"id"`
	ProjectID string     `json:"project_id"`
	Role      ChatRole   `json:"role"`
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}
