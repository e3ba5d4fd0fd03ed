package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/docsage-ai/docsage/internal/domain"
)

// UpsertChunks writes chunks one by one so a partial batch failure leaves
// already written chunks in place. Upsert by id makes re-runs idempotent
// for deterministic ids (email chunks).
func (s *Store) UpsertChunks(ctx context.Context, chunks []domain.Chunk) error {
	query := `
	INSERT INTO chunks
		(id, project_id, document_id, content, embedding, source_type,
		 doc_name, page_number, images, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (id) DO UPDATE SET
		content     = EXCLUDED.content,
		embedding   = EXCLUDED.embedding,
		source_type = EXCLUDED.source_type,
		doc_name    = EXCLUDED.doc_name,
		page_number = EXCLUDED.page_number,
		images      = EXCLUDED.images
	`

	for _, c := range chunks {
		images, err := imagesJSON(c.Images)
		if err != nil {
			return fmt.Errorf("%w: encode images for chunk %s: %v", domain.ErrStore, c.ID, err)
		}

		var docID any
		if c.DocumentID != "" {
			docID = c.DocumentID
		}

		_, err = s.pool.Exec(ctx, query,
			c.ID, c.ProjectID, docID, c.Text, pgvector.NewVector(c.Embedding),
			string(c.SourceType), c.DocName, c.PageNumber, images, c.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("%w: upsert chunk %s: %v", domain.ErrStore, c.ID, err)
		}
	}
	return nil
}

// searchChunksQuery orders by cosine distance, then insertion time, then
// id. Chunk ids are random, so without created_at equal-distance rows
// (duplicated text) would come back in arbitrary order across re-ingests.
const searchChunksQuery = `
	SELECT id, project_id, COALESCE(document_id, ''),
	       content, source_type, doc_name, page_number, images, created_at,
	       1 - (embedding <=> $2) AS score
	FROM chunks
	WHERE project_id = $1
	ORDER BY embedding <=> $2, created_at, id
	LIMIT $3
	`

// Search returns the topK most similar chunks within a project, ordered by
// cosine similarity descending with deterministic tiebreaking.
func (s *Store) Search(ctx context.Context, projectID string, vector []float32, topK int) ([]domain.Chunk, error) {
	rows, err := s.pool.Query(ctx, searchChunksQuery, projectID, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("%w: search chunks: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		var c domain.Chunk
		var sourceType string
		var images []byte

		if err := rows.Scan(&c.ID, &c.ProjectID, &c.DocumentID, &c.Text, &sourceType,
			&c.DocName, &c.PageNumber, &images, &c.CreatedAt, &c.Score); err != nil {
			return nil, fmt.Errorf("%w: scan chunk: %v", domain.ErrStore, err)
		}
		c.SourceType = domain.SourceType(sourceType)
		if c.Images, err = imagesFromJSON(images); err != nil {
			return nil, fmt.Errorf("%w: decode images for chunk %s: %v", domain.ErrStore, c.ID, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate chunks: %v", domain.ErrStore, err)
	}
	return chunks, nil
}

// DeleteByDocument removes a document's chunks. Returns the count removed.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete chunks of document %s: %v", domain.ErrStore, documentID, err)
	}
	return tag.RowsAffected(), nil
}

// DeleteByProject removes every chunk in a project.
func (s *Store) DeleteByProject(ctx context.Context, projectID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, fmt.Errorf("%w: delete chunks of project %s: %v", domain.ErrStore, projectID, err)
	}
	return tag.RowsAffected(), nil
}

// ListEmailChunks returns a project's email-sourced chunks, newest first.
func (s *Store) ListEmailChunks(ctx context.Context, projectID string) ([]domain.Chunk, error) {
	query := `
	SELECT id, project_id, content, doc_name, created_at
	FROM chunks
	WHERE project_id = $1 AND source_type = $2
	ORDER BY created_at DESC, id
	`

	rows, err := s.pool.Query(ctx, query, projectID, string(domain.SourceEmail))
	if err != nil {
		return nil, fmt.Errorf("%w: list email chunks: %v", domain.ErrStore, err)
	}
	defer rows.Close()

	var chunks []domain.Chunk
	for rows.Next() {
		c := domain.Chunk{SourceType: domain.SourceEmail}
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Text, &c.DocName, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scan email chunk: %v", domain.ErrStore, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate email chunks: %v", domain.ErrStore, err)
	}
	return chunks, nil
}

func imagesJSON(images []domain.PageImage) ([]byte, error) {
	if len(images) == 0 {
		return nil, nil
	}
	return json.Marshal(images)
}

func imagesFromJSON(data []byte) ([]domain.PageImage, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var images []domain.PageImage
	if err := json.Unmarshal(data, &images); err != nil {
		return nil, err
	}
	return images, nil
}
