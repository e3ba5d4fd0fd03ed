package chat

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/docsage-ai/docsage/internal/domain"
)

// Resolve parses the model output into the final answer. The JSON object
// is located between the first '{' and the last '}' so chatty wrappers
// around the payload are tolerated. Citation ids are resolved only against
// the chunks retrieved for this request: unknown ids are dropped silently,
// duplicates collapse to first appearance.
func Resolve(raw string, retrieved []domain.Chunk) (domain.Answer, error) {
	payload, ok := extractJSON(raw)
	if !ok {
		return domain.Answer{}, domain.NewMalformedResponse(raw)
	}

	var reply domain.ModelReply
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&reply); err != nil {
		return domain.Answer{}, domain.NewMalformedResponse(raw)
	}
	if strings.TrimSpace(reply.ReplyText) == "" {
		return domain.Answer{}, domain.NewMalformedResponse(raw)
	}

	byID := make(map[string]domain.Chunk, len(retrieved))
	for _, c := range retrieved {
		byID[c.ID] = c
	}

	seen := make(map[string]bool, len(reply.Citation))
	var citations []domain.Citation
	for _, id := range reply.Citation {
		if seen[id] {
			continue
		}
		seen[id] = true
		c, ok := byID[id]
		if !ok {
			continue
		}
		citations = append(citations, domain.Citation{
			DocName:    c.DocName,
			PageNumber: c.PageNumber,
			SourceType: c.SourceType,
			Images:     c.Images,
		})
	}

	return domain.Answer{Text: reply.ReplyText, Citations: citations}, nil
}

// extractJSON returns the span from the first '{' to the last '}'.
func extractJSON(raw string) ([]byte, bool) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start == -1 || end <= start {
		return nil, false
	}
	return []byte(raw[start : end+1]), true
}
