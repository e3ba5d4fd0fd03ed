// Package email drives the mailbox pipeline: configure, ingest raw
// records, summarize them into retrievable chunks.
package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/docsage-ai/docsage/internal/domain"
	"github.com/docsage-ai/docsage/internal/generation"
	"github.com/docsage-ai/docsage/internal/metrics"
)

// summarizeInstruction asks for a compact factual summary; the output is
// stored verbatim as the chunk text.
const summarizeInstruction = `Summarize the following email in a few sentences. Keep every concrete fact: names, dates, amounts, decisions and requested actions. Output only the summary text.`

// Service runs the email pipeline for a project.
type Service struct {
	fetcher  Fetcher
	settings SettingsStore
	raw      RawStore
	chunks   ChunkStore
	chunker  Chunker
	embedder Embedder
	gen      Generator
	fetchCap int
	logger   *zap.Logger
}

func New(
	fetcher Fetcher,
	settings SettingsStore,
	raw RawStore,
	chunks ChunkStore,
	chunk Chunker,
	embedder Embedder,
	gen Generator,
	fetchCap int,
	logger *zap.Logger,
) *Service {
	if fetchCap <= 0 {
		fetchCap = 50
	}
	return &Service{
		fetcher:  fetcher,
		settings: settings,
		raw:      raw,
		chunks:   chunks,
		chunker:  chunk,
		embedder: embedder,
		gen:      gen,
		fetchCap: fetchCap,
		logger:   logger,
	}
}

// Configure stores mailbox settings for a project, replacing any previous
// ones, and resets the pipeline to the configured state.
func (s *Service) Configure(ctx context.Context, cfg domain.EmailConfig) error {
	if cfg.ProjectID == "" || cfg.IMAPServer == "" || cfg.EmailAddress == "" || cfg.Password == "" {
		return fmt.Errorf("%w: project_id, imap_server, email and password are required", domain.ErrInvalidRequest)
	}
	if err := s.settings.SaveEmailConfig(ctx, cfg); err != nil {
		return err
	}
	s.logger.Info("Email configured",
		zap.String("project_id", cfg.ProjectID),
		zap.String("imap_server", cfg.IMAPServer))
	return nil
}

// Ingest fetches mailbox records, applies the configured filters and
// persists the survivors as raw records. Re-running never duplicates a
// record. Returns the count added and their subjects.
func (s *Service) Ingest(ctx context.Context, projectID string) (int, []string, error) {
	cfg, _, err := s.settings.GetEmailConfig(ctx, projectID)
	if err != nil {
		return 0, nil, err
	}

	fetched, err := s.fetcher.Fetch(ctx, cfg, s.fetchCap)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: fetch mailbox: %v", domain.ErrExtraction, err)
	}

	var kept []domain.RawEmailRecord
	var subjects []string
	for _, r := range fetched {
		if r.ID == "" || !r.MatchesFilters(&cfg) {
			continue
		}
		kept = append(kept, r)
		subjects = append(subjects, r.Subject)
		if len(kept) == s.fetchCap {
			break
		}
	}

	added, err := s.raw.Append(projectID, kept)
	if err != nil {
		return 0, nil, err
	}

	if err := s.settings.SetEmailState(ctx, projectID, domain.EmailIngested); err != nil {
		return 0, nil, err
	}

	s.logger.Info("Emails ingested",
		zap.String("project_id", projectID),
		zap.Int("fetched", len(fetched)),
		zap.Int("added", added))
	return added, subjects, nil
}

// Summarize turns every unsummarized record into retrievable chunks.
// Chunk ids are derived from the record id, so re-summarization upserts
// rather than duplicates. One record's failure is logged and skipped.
func (s *Service) Summarize(ctx context.Context, projectID string) ([]domain.EmailSummary, error) {
	if _, _, err := s.settings.GetEmailConfig(ctx, projectID); err != nil {
		return nil, err
	}

	pending, err := s.raw.Unsummarized(projectID)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, fmt.Errorf("%w: project %s", domain.ErrNoRawEmails, projectID)
	}

	var summaries []domain.EmailSummary
	for _, record := range pending {
		if err := ctx.Err(); err != nil {
			return summaries, err
		}

		summary, err := s.summarizeRecord(ctx, projectID, record)
		if err != nil {
			s.logger.Warn("Skipping email record",
				zap.String("project_id", projectID),
				zap.String("record_id", record.ID),
				zap.Error(err))
			continue
		}
		summaries = append(summaries, summary)
	}

	if len(summaries) > 0 {
		if err := s.settings.SetEmailState(ctx, projectID, domain.EmailSummarized); err != nil {
			return summaries, err
		}
	}
	return summaries, nil
}

// Summaries lists the stored email summaries of a project.
func (s *Service) Summaries(ctx context.Context, projectID string) ([]domain.EmailSummary, error) {
	chunks, err := s.chunks.ListEmailChunks(ctx, projectID)
	if err != nil {
		return nil, err
	}

	summaries := make([]domain.EmailSummary, len(chunks))
	for i, c := range chunks {
		summaries[i] = domain.EmailSummary{ID: c.ID, Subject: c.DocName, Summary: c.Text}
	}
	return summaries, nil
}

func (s *Service) summarizeRecord(ctx context.Context, projectID string, record domain.RawEmailRecord) (domain.EmailSummary, error) {
	content := fmt.Sprintf("Subject: %s\nFrom: %s\nDate: %s\n\n%s",
		record.Subject, record.Sender, record.Date.Format(time.RFC3339), record.Body)

	summary, err := s.gen.Complete(ctx, []generation.Message{
		{Role: generation.RoleSystem, Content: summarizeInstruction},
		{Role: generation.RoleUser, Content: content},
	})
	if err != nil {
		return domain.EmailSummary{}, err
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return domain.EmailSummary{}, fmt.Errorf("empty summary for record %s", record.ID)
	}

	// The summary goes through the chunker so it gets sanitized like any
	// other ingestible text. A short summary yields exactly one candidate.
	candidates := s.chunker.Chunk([]domain.ExtractedUnit{{Text: summary}})
	if len(candidates) == 0 {
		return domain.EmailSummary{}, fmt.Errorf("empty summary for record %s", record.ID)
	}

	texts := make([]string, len(candidates))
	for i, cand := range candidates {
		texts[i] = cand.Text
	}
	embedded, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return domain.EmailSummary{}, err
	}
	if len(embedded) != len(candidates) {
		return domain.EmailSummary{}, fmt.Errorf("%w: got %d embeddings for %d chunks", domain.ErrEmbedding, len(embedded), len(candidates))
	}

	now := time.Now().UTC()
	chunks := make([]domain.Chunk, len(candidates))
	for i, cand := range candidates {
		id := "email_" + record.ID
		if i > 0 {
			id = fmt.Sprintf("email_%s_%d", record.ID, i+1)
		}
		chunks[i] = domain.Chunk{
			ID:         id,
			ProjectID:  projectID,
			Text:       cand.Text,
			Embedding:  embedded[i].Embedding,
			SourceType: domain.SourceEmail,
			DocName:    record.Subject,
			CreatedAt:  now,
		}
	}
	if err := s.chunks.UpsertChunks(ctx, chunks); err != nil {
		return domain.EmailSummary{}, err
	}
	metrics.ChunksIngestedTotal.WithLabelValues(string(domain.SourceEmail)).Add(float64(len(chunks)))

	if err := s.raw.MarkSummarized(projectID, record.ID); err != nil {
		return domain.EmailSummary{}, err
	}

	return domain.EmailSummary{ID: chunks[0].ID, Subject: record.Subject, Summary: chunks[0].Text}, nil
}
