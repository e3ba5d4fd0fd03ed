package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/docsage-ai/docsage/internal/domain"
)

// SaveDocument records an uploaded document. Idempotent on id.
func (s *Store) SaveDocument(ctx context.Context, doc domain.Document) error {
	query := `
	INSERT INTO documents (id, project_id, name, source_type, created_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		name        = EXCLUDED.name,
		source_type = EXCLUDED.source_type
	`
	_, err := s.pool.Exec(ctx, query,
		doc.ID, doc.ProjectID, doc.Name, string(doc.SourceType), doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("%w: save document %s: %v", domain.ErrStore, doc.ID, err)
	}
	return nil
}

// GetDocument fetches a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	query := `
	SELECT id, project_id, name, source_type, created_at
	FROM documents WHERE id = $1
	`

	var doc domain.Document
	var sourceType string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&doc.ID, &doc.ProjectID, &doc.Name, &sourceType, &doc.UploadedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Document{}, fmt.Errorf("%w: %s", domain.ErrDocumentNotFound, id)
		}
		return domain.Document{}, fmt.Errorf("%w: get document %s: %v", domain.ErrStore, id, err)
	}
	doc.SourceType = domain.SourceType(sourceType)
	return doc, nil
}

// DeleteDocument removes a document and cascades to its chunks. Returns
// the number of chunks removed.
func (s *Store) DeleteDocument(ctx context.Context, id string) (int64, error) {
	if _, err := s.GetDocument(ctx, id); err != nil {
		return 0, err
	}

	removed, err := s.DeleteByDocument(ctx, id)
	if err != nil {
		return 0, err
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id); err != nil {
		return removed, fmt.Errorf("%w: delete document %s: %v", domain.ErrStore, id, err)
	}
	return removed, nil
}

// ListDocuments returns a project's documents, newest first.
func (s *Store) ListDocuments(ctx context.Context, projectID string) ([]domain.Document, error) {
	query := `
	SELECT id, project_id, name, source_type, created_at
	FROM documents WHERE project_id = $1
	ORDER BY created_at DESC, id
	`

	rows, err := s.pool.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: list documents: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var doc domain.Document
		var sourceType string
		if err := rows.Scan(&doc.ID, &doc.ProjectID, &doc.Name, &sourceType, &doc.UploadedAt); err != nil {
			return nil, fmt.Errorf("%w: scan document: %v", domain.ErrStore, err)
		}
		doc.SourceType = domain.SourceType(sourceType)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate documents: %v", domain.ErrStore, err)
	}
	return docs, nil
}
