// Package store persists the pipeline artifacts: the document manifest, the
// chunk metadata table, the per-view embedding tables, and the append-only
// run log. Tables are parquet; logs are JSONL. Every load validates schema
// and version tags so stale artifacts fail fast instead of corrupting runs.
package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/altmanac/altmanac/engine/domain"
)

// ManifestStore persists the document manifest as a parquet table keyed by
// doc_id.
type ManifestStore struct {
	path string
}

// NewManifestStore creates a store writing to path.
func NewManifestStore(path string) *ManifestStore {
	return &ManifestStore{path: path}
}

// Path returns the backing file path.
func (s *ManifestStore) Path() string { return s.path }

// Load reads all manifest rows. A missing file is an empty manifest.
func (s *ManifestStore) Load() ([]domain.ManifestRow, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[domain.ManifestRow](s.path)
	if err != nil {
		return nil, fmt.Errorf("store: read manifest %s: %w", s.path, err)
	}
	return rows, nil
}

// Write replaces the manifest with rows, creating parent directories as
// needed. The write goes through a temp file and rename so readers never
// observe a partial table.
func (s *ManifestStore) Write(rows []domain.ManifestRow) error {
	return writeParquet(s.path, rows)
}

// Upsert merges updates into the persisted manifest by doc_id, keeping the
// updated row when ids collide, and writes the result. Row order follows
// the existing manifest with new documents appended.
func (s *ManifestStore) Upsert(updates []domain.ManifestRow) error {
	if len(updates) == 0 {
		return nil
	}
	existing, err := s.Load()
	if err != nil {
		return err
	}

	updated := make(map[string]domain.ManifestRow, len(updates))
	for _, row := range updates {
		updated[row.DocID] = row
	}

	merged := make([]domain.ManifestRow, 0, len(existing)+len(updates))
	for _, row := range existing {
		if replacement, ok := updated[row.DocID]; ok {
			merged = append(merged, replacement)
			delete(updated, row.DocID)
			continue
		}
		merged = append(merged, row)
	}
	for _, row := range updates {
		if _, pending := updated[row.DocID]; pending {
			merged = append(merged, row)
			delete(updated, row.DocID)
		}
	}
	return s.Write(merged)
}

func writeParquet[T any](path string, rows []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: create dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, rows); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("store: replace %s: %w", path, err)
	}
	return nil
}
