package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/docsage-ai/docsage/internal/domain"
)

// AppendMessage adds one entry to a project's chat log.
func (s *Store) AppendMessage(ctx context.Context, msg domain.ChatMessage) error {
	var citations []byte
	if len(msg.Citations) > 0 {
		var err error
		if citations, err = json.Marshal(msg.Citations); err != nil {
			return fmt.Errorf("%w: encode citations: %v", domain.ErrStore, err)
		}
	}

	query := `
	INSERT INTO chat_messages (id, project_id, role, content, citations, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.pool.Exec(ctx, query,
		msg.ID, msg.ProjectID, string(msg.Role), msg.Content, citations, msg.Timestamp)
	if err != nil {
		return fmt.Errorf("%w: append chat message: %v", domain.ErrStore, err)
	}
	return nil
}

// History returns the most recent limit messages of a project in
// chronological order.
func (s *Store) History(ctx context.Context, projectID string, limit int) ([]domain.ChatMessage, error) {
	query := `
	SELECT id, project_id, role, content, citations, created_at
	FROM (
		SELECT id, project_id, role, content, citations, created_at
		FROM chat_messages
		WHERE project_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	) recent
	ORDER BY created_at ASC, id ASC
	`

	rows, err := s.pool.Query(ctx, query, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: load chat history: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	var messages []domain.ChatMessage
	for rows.Next() {
		var msg domain.ChatMessage
		var role string
		var citations []byte

		if err := rows.Scan(&msg.ID, &msg.ProjectID, &role, &msg.Content, &citations, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("%w: scan chat message: %v", domain.ErrStore, err)
		}
		msg.Role = domain.ChatRole(role)
		if len(citations) > 0 {
			if err := json.Unmarshal(citations, &msg.Citations); err != nil {
				return nil, fmt.Errorf("%w: decode citations: %v", domain.ErrStore, err)
			}
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate chat history: %v", domain.ErrStore, err)
	}
	return messages, nil
}
