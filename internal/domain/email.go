package domain

import (
	"strings"
	"time"
)

// EmailState tracks a project's email pipeline progress.
type EmailState string

// Email pipeline states.
const (
	EmailNotConfigured EmailState = "not_configured"
	EmailConfigured    EmailState = "configured"
	EmailIngested      EmailState = "ingested"
	EmailSummarized    EmailState = "summarized"
)

// EmailConfig holds per-project mailbox settings and fetch filters.
// The password is encrypted at rest; the summarizer receives decrypted
// credentials from the settings store, never the ciphertext.
type EmailConfig struct {
	ProjectID       string
	IMAPServer      string
	EmailAddress    string
	Password        string
	SenderFilter    string
	SubjectKeywords []string
	StartDate       *time.Time
	EndDate         *time.Time
	UpdatedAt       time.Time
}

// RawEmailRecord is a transient, file-backed record of one fetched email.
// It is consumed exactly once by the summarizer and superseded by the
// chunk it produces.
type RawEmailRecord struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	Date       time.Time `json:"date"`
	Body       string    `json:"body"`
	Summarized bool      `json:"summarized"`
}

// EmailSummary is a stored summary of one email, backed by its chunk.
type EmailSummary struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Summary string `json:"summary"`
}

// MatchesFilters reports whether the record passes the config's filters.
// All configured filters are ANDed; substring matches are case-insensitive.
func (r *RawEmailRecord) MatchesFilters(cfg *EmailConfig) bool {
	if cfg.SenderFilter != "" &&
		!strings.Contains(strings.ToLower(r.Sender), strings.ToLower(cfg.SenderFilter)) {
		return false
	}
	if len(cfg.SubjectKeywords) > 0 {
		subject := strings.ToLower(r.Subject)
		matched := false
		for _, kw := range cfg.SubjectKeywords {
			if strings.Contains(subject, strings.ToLower(kw)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if cfg.StartDate != nil && r.Date.Before(*cfg.StartDate) {
		return false
	}
	if cfg.EndDate != nil && r.Date.After(*cfg.EndDate) {
		return false
	}
	return true
}
