// Package postgres persists documents, chunks, chat history and email
// settings in PostgreSQL with pgvector for similarity search.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool       *pgxpool.Pool
	dimensions int
	cipher     *Cipher
	logger     *zap.Logger
}

// New connects to Postgres. dimensions fixes the vector column width and
// must match the embedding model. cipher may be nil when email ingestion
// is not configured.
func New(ctx context.Context, dsn string, dimensions int, cipher *Cipher, logger *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, dimensions: dimensions, cipher: cipher, logger: logger}, nil
}

// Init creates the schema if missing.
func (s *Store) Init(ctx context.Context) error {
	query := fmt.Sprintf(`
	CREATE EXTENSION IF NOT EXISTS vector;

	CREATE TABLE IF NOT EXISTS documents (
		id          TEXT PRIMARY KEY,
		project_id  TEXT NOT NULL,
		name        TEXT NOT NULL,
		source_type TEXT NOT NULL,
		created_at  TIMESTAMP WITH TIME ZONE NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_project ON documents(project_id);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		project_id  TEXT NOT NULL,
		document_id TEXT,
		content     TEXT NOT NULL,
		embedding   vector(%d) NOT NULL,
		source_type TEXT NOT NULL,
		doc_name    TEXT NOT NULL,
		page_number INT,
		images      JSONB,
		created_at  TIMESTAMP WITH TIME ZONE NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_embedding ON chunks
		USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id         UUID PRIMARY KEY,
		project_id TEXT NOT NULL,
		role       TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
		content    TEXT NOT NULL,
		citations  JSONB,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_project
		ON chat_messages(project_id, created_at);

	CREATE TABLE IF NOT EXISTS email_settings (
		project_id         TEXT PRIMARY KEY,
		imap_server        TEXT NOT NULL,
		email_address      TEXT NOT NULL,
		password_encrypted BYTEA NOT NULL,
		sender_filter      TEXT,
		subject_keywords   TEXT[],
		start_date         TIMESTAMP WITH TIME ZONE,
		end_date           TIMESTAMP WITH TIME ZONE,
		state              TEXT NOT NULL,
		updated_at         TIMESTAMP WITH TIME ZONE NOT NULL
	);
	`, s.dimensions)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// WaitForReady polls Ping until the database responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for database: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

func (s *Store) Close() {
	s.pool.Close()
	s.logger.Info("Postgres connection pool closed")
}
