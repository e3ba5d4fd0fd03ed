package postgres

import (
	"strings"
	"testing"
)

func TestSearchQuery_DeterministicTiebreak(t *testing.T) {
	// Equal-distance rows must come back in insertion order. Ids are
	// random uuids, so ordering by id alone reshuffles duplicated text
	// across re-ingests.
	if !strings.Contains(searchChunksQuery, "ORDER BY embedding <=> $2, created_at, id") {
		t.Errorf("search query lost its tiebreak:\n%s", searchChunksQuery)
	}
	if strings.Index(searchChunksQuery, "ORDER BY") > strings.Index(searchChunksQuery, "LIMIT") {
		t.Error("ORDER BY must come before LIMIT")
	}
}
