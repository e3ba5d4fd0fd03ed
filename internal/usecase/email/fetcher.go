package email

import (
	"context"
	"errors"

	"github.com/docsage-ai/docsage/internal/domain"
)

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, cfg domain.EmailConfig, limit int) ([]domain.RawEmailRecord, error)

func (f FetcherFunc) Fetch(ctx context.Context, cfg domain.EmailConfig, limit int) ([]domain.RawEmailRecord, error) {
	return f(ctx, cfg, limit)
}

// UnavailableFetcher is wired when no mailbox connector is deployed; every
// fetch fails with a clear error while the rest of the pipeline (configure,
// summarize previously ingested records) keeps working.
type UnavailableFetcher struct{}

func (UnavailableFetcher) Fetch(context.Context, domain.EmailConfig, int) ([]domain.RawEmailRecord, error) {
	return nil, errors.New("no mailbox connector configured")
}
