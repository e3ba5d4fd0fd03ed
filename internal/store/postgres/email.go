package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/docsage-ai/docsage/internal/domain"
)

// SaveEmailConfig upserts a project's mailbox settings with the password
// encrypted at rest, and resets the pipeline state to configured.
func (s *Store) SaveEmailConfig(ctx context.Context, cfg domain.EmailConfig) error {
	if s.cipher == nil {
		return fmt.Errorf("%w: email encryption key not configured", domain.ErrStore)
	}

	encrypted, err := s.cipher.Encrypt(cfg.Password)
	if err != nil {
		return fmt.Errorf("%w: encrypt password: %v", domain.ErrStore, err)
	}

	query := `
	INSERT INTO email_settings
		(project_id, imap_server, email_address, password_encrypted,
		 sender_filter, subject_keywords, start_date, end_date, state, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (project_id) DO UPDATE SET
		imap_server        = EXCLUDED.imap_server,
		email_address      = EXCLUDED.email_address,
		password_encrypted = EXCLUDED.password_encrypted,
		sender_filter      = EXCLUDED.sender_filter,
		subject_keywords   = EXCLUDED.subject_keywords,
		start_date         = EXCLUDED.start_date,
		end_date           = EXCLUDED.end_date,
		state              = EXCLUDED.state,
		updated_at         = EXCLUDED.updated_at
	`
	_, err = s.pool.Exec(ctx, query,
		cfg.ProjectID, cfg.IMAPServer, cfg.EmailAddress, encrypted,
		cfg.SenderFilter, cfg.SubjectKeywords, cfg.StartDate, cfg.EndDate,
		string(domain.EmailConfigured), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: save email settings: %v", domain.ErrStore, err)
	}
	return nil
}

// GetEmailConfig loads a project's mailbox settings with the password
// decrypted, plus the current pipeline state.
func (s *Store) GetEmailConfig(ctx context.Context, projectID string) (domain.EmailConfig, domain.EmailState, error) {
	if s.cipher == nil {
		return domain.EmailConfig{}, "", fmt.Errorf("%w: email encryption key not configured", domain.ErrStore)
	}

	query := `
	SELECT project_id, imap_server, email_address, password_encrypted,
	       COALESCE(sender_filter, ''), subject_keywords, start_date, end_date,
	       state, updated_at
	FROM email_settings WHERE project_id = $1
	`

	var cfg domain.EmailConfig
	var encrypted []byte
	var state string

	err := s.pool.QueryRow(ctx, query, projectID).Scan(
		&cfg.ProjectID, &cfg.IMAPServer, &cfg.EmailAddress, &encrypted,
		&cfg.SenderFilter, &cfg.SubjectKeywords, &cfg.StartDate, &cfg.EndDate,
		&state, &cfg.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EmailConfig{}, domain.EmailNotConfigured,
				fmt.Errorf("%w: project %s", domain.ErrEmailNotConfigured, projectID)
		}
		return domain.EmailConfig{}, "", fmt.Errorf("%w: get email settings: %v", domain.ErrStore, err)
	}

	if cfg.Password, err = s.cipher.Decrypt(encrypted); err != nil {
		return domain.EmailConfig{}, "", fmt.Errorf("%w: decrypt password: %v", domain.ErrStore, err)
	}
	return cfg, domain.EmailState(state), nil
}

// SetEmailState advances a project's email pipeline state.
func (s *Store) SetEmailState(ctx context.Context, projectID string, state domain.EmailState) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE email_settings SET state = $2, updated_at = $3 WHERE project_id = $1`,
		projectID, string(state), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%w: set email state: %v", domain.ErrStore, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: project %s", domain.ErrEmailNotConfigured, projectID)
	}
	return nil
}
