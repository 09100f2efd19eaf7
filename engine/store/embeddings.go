package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"

	"github.com/altmanac/altmanac/engine/domain"
)

// EmbeddingTables persists one parquet table per secondary view at a fixed
// path, so a version bump always collides with the prior generation instead
// of leaving it stranded beside the new one.
type EmbeddingTables struct {
	dir     string
	version string
}

// NewEmbeddingTables creates tables under dir for the current embedding set
// version.
func NewEmbeddingTables(dir string) *EmbeddingTables {
	return &EmbeddingTables{dir: dir, version: domain.EmbeddingSetVersion}
}

// PathFor returns the table path for a view.
func (t *EmbeddingTables) PathFor(view string) string {
	return filepath.Join(t.dir, fmt.Sprintf("embeddings_%s.parquet", view))
}

// Load reads the embedding rows for a view. A missing table is empty.
// Rows tagged with a different embedding set version fail with a schema
// error; mixing sets within one table would poison every query against it.
func (t *EmbeddingTables) Load(view string) ([]domain.EmbeddingRow, error) {
	path := t.PathFor(view)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[domain.EmbeddingRow](path)
	if err != nil {
		return nil, fmt.Errorf("store: read embeddings %s: %w", path, err)
	}
	for _, row := range rows {
		if row.EmbeddingSetVersion != t.version {
			return nil, domain.NewSchemaError(path, "row %s carries embedding set %q, current set is %q",
				row.ID, row.EmbeddingSetVersion, t.version)
		}
	}
	return rows, nil
}

// Write persists rows for a view. In rebuild mode the table is replaced; in
// append mode incoming rows merge with the persisted ones by id, incoming
// winning on collision.
func (t *EmbeddingTables) Write(view string, rows []domain.EmbeddingRow, mode domain.Mode) error {
	for i := range rows {
		rows[i].SourceField = sourceFieldFor(view)
		rows[i].EmbeddingSetVersion = t.version
	}

	if mode == domain.ModeAppend {
		existing, err := t.Load(view)
		if err != nil {
			return err
		}
		rows = mergeEmbeddingRows(existing, rows)
	}
	return writeParquet(t.PathFor(view), rows)
}

func sourceFieldFor(view string) string {
	switch view {
	case domain.ViewSummary:
		return domain.SourceChunkSummary
	case domain.ViewIntents:
		return domain.SourceChunkIntents
	case domain.ViewDocsum:
		return domain.SourceDocSummary
	default:
		return domain.SourceChunkText
	}
}

// mergeEmbeddingRows keeps first-seen order from existing and replaces rows
// whose id reappears in incoming with the incoming value.
func mergeEmbeddingRows(existing, incoming []domain.EmbeddingRow) []domain.EmbeddingRow {
	replacement := make(map[string]domain.EmbeddingRow, len(incoming))
	for _, row := range incoming {
		replacement[row.ID] = row
	}
	merged := make([]domain.EmbeddingRow, 0, len(existing)+len(incoming))
	for _, row := range existing {
		if repl, ok := replacement[row.ID]; ok {
			merged = append(merged, repl)
			delete(replacement, row.ID)
			continue
		}
		merged = append(merged, row)
	}
	for _, row := range incoming {
		if _, pending := replacement[row.ID]; pending {
			merged = append(merged, row)
			delete(replacement, row.ID)
		}
	}
	return merged
}
