// Package rawmail persists fetched email records as one jsonl file per
// project. Records are an intermediate ingestion artifact consumed by the
// summarizer, not part of the retrievable corpus.
package rawmail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/docsage-ai/docsage/internal/domain"
)

const fileName = "raw_emails.jsonl"

// Store keeps raw email records on disk, one directory per project.
// All operations are serialized by a single mutex; the summarizer and the
// ingest endpoint may touch the same project concurrently.
type Store struct {
	dir    string
	mu     sync.Mutex
	logger *zap.Logger
}

func New(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logger}
}

// Append adds records to a project's file, skipping ids already present so
// repeated fetches stay idempotent. Returns the number actually added.
func (s *Store) Append(projectID string, records []domain.RawEmailRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read(projectID)
	if err != nil {
		return 0, err
	}

	seen := make(map[string]bool, len(existing))
	for _, r := range existing {
		seen[r.ID] = true
	}

	added := 0
	for _, r := range records {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		existing = append(existing, r)
		added++
	}

	if added == 0 {
		return 0, nil
	}
	return added, s.write(projectID, existing)
}

// List returns every record of a project.
func (s *Store) List(projectID string) ([]domain.RawEmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(projectID)
}

// Unsummarized returns the records not yet consumed by the summarizer.
func (s *Store) Unsummarized(projectID string) ([]domain.RawEmailRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read(projectID)
	if err != nil {
		return nil, err
	}

	var pending []domain.RawEmailRecord
	for _, r := range records {
		if !r.Summarized {
			pending = append(pending, r)
		}
	}
	return pending, nil
}

// MarkSummarized flips one record's state.
func (s *Store) MarkSummarized(projectID, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read(projectID)
	if err != nil {
		return err
	}

	for i := range records {
		if records[i].ID == recordID {
			records[i].Summarized = true
			return s.write(projectID, records)
		}
	}
	return fmt.Errorf("%w: record %s", domain.ErrNoRawEmails, recordID)
}

func (s *Store) path(projectID string) (string, error) {
	if projectID == "" || strings.ContainsAny(projectID, "/\\") || strings.Contains(projectID, "..") {
		return "", fmt.Errorf("%w: invalid project id %q", domain.ErrInvalidRequest, projectID)
	}
	return filepath.Join(s.dir, projectID, fileName), nil
}

func (s *Store) read(projectID string) ([]domain.RawEmailRecord, error) {
	path, err := s.path(projectID)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: open %s: %v", domain.ErrStore, path, err)
	}
	defer f.Close()

	var records []domain.RawEmailRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var r domain.RawEmailRecord
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			s.logger.Warn("Skipping corrupt raw email record",
				zap.String("project_id", projectID), zap.Error(err))
			continue
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrStore, path, err)
	}
	return records, nil
}

// write replaces the project file atomically via a temp file rename.
func (s *Store) write(projectID string, records []domain.RawEmailRecord) error {
	path, err := s.path(projectID)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %v", domain.ErrStore, filepath.Dir(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), fileName+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", domain.ErrStore, err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			tmp.Close()
			return fmt.Errorf("%w: encode record %s: %v", domain.ErrStore, r.ID, err)
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: flush %s: %v", domain.ErrStore, tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", domain.ErrStore, tmp.Name(), err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: rename %s: %v", domain.ErrStore, path, err)
	}
	return nil
}
