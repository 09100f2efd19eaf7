package store

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"

	"github.com/altmanac/altmanac/engine/domain"
)

// ChunkTable persists chunk metadata as a parquet table keyed by chunk id.
type ChunkTable struct {
	path string
}

// NewChunkTable creates a table backed by path.
func NewChunkTable(path string) *ChunkTable {
	return &ChunkTable{path: path}
}

// Path returns the backing file path.
func (t *ChunkTable) Path() string { return t.path }

// Exists reports whether the table file is present.
func (t *ChunkTable) Exists() bool {
	_, err := os.Stat(t.path)
	return err == nil
}

// Load reads all chunk rows after validating that the persisted file carries
// every required enrichment column. A table written by an older schema fails
// with a schema error rather than loading rows with silently-zeroed fields.
func (t *ChunkTable) Load() ([]domain.ChunkRow, error) {
	if err := t.validateSchema(); err != nil {
		return nil, err
	}
	rows, err := parquet.ReadFile[domain.ChunkRow](t.path)
	if err != nil {
		return nil, fmt.Errorf("store: read chunk table %s: %w", t.path, err)
	}
	return rows, nil
}

// Write replaces the table with rows.
func (t *ChunkTable) Write(rows []domain.ChunkRow) error {
	return writeParquet(t.path, rows)
}

// Append merges rows into the persisted table by chunk id, with incoming
// rows replacing existing ones on collision, and rewrites the table.
func (t *ChunkTable) Append(rows []domain.ChunkRow) error {
	if len(rows) == 0 {
		return nil
	}
	if !t.Exists() {
		return t.Write(rows)
	}
	existing, err := t.Load()
	if err != nil {
		return err
	}

	incoming := make(map[string]domain.ChunkRow, len(rows))
	for _, row := range rows {
		incoming[row.ID] = row
	}
	merged := make([]domain.ChunkRow, 0, len(existing)+len(rows))
	for _, row := range existing {
		if replacement, ok := incoming[row.ID]; ok {
			merged = append(merged, replacement)
			delete(incoming, row.ID)
			continue
		}
		merged = append(merged, row)
	}
	for _, row := range rows {
		if _, pending := incoming[row.ID]; pending {
			merged = append(merged, row)
			delete(incoming, row.ID)
		}
	}
	return t.Write(merged)
}

func (t *ChunkTable) validateSchema() error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("store: open chunk table %s: %w", t.path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("store: stat chunk table %s: %w", t.path, err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return fmt.Errorf("store: parse chunk table %s: %w", t.path, err)
	}

	present := make(map[string]struct{})
	for _, field := range pf.Schema().Fields() {
		present[field.Name()] = struct{}{}
	}

	var missing []string
	for _, col := range domain.RequiredChunkColumns {
		if _, ok := present[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return domain.NewSchemaError(t.path, "missing columns %s", strings.Join(missing, ", "))
	}
	return nil
}

// ChunkStore serves chunk lookups for the retrieval backend from an
// in-memory index over the loaded table.
type ChunkStore struct {
	rows   []domain.ChunkRow
	byID   map[string]int
	anchor map[string]int
}

// NewChunkStore indexes rows by chunk id and by lowest chunk index per
// document.
func NewChunkStore(rows []domain.ChunkRow) *ChunkStore {
	s := &ChunkStore{
		rows:   rows,
		byID:   make(map[string]int, len(rows)),
		anchor: make(map[string]int, len(rows)/8+1),
	}
	for i, row := range rows {
		s.byID[row.ID] = i
		if j, ok := s.anchor[row.DocID]; !ok || row.ChunkIndex < rows[j].ChunkIndex {
			s.anchor[row.DocID] = i
		}
	}
	return s
}

// Len returns the number of indexed chunks.
func (s *ChunkStore) Len() int { return len(s.rows) }

// Get returns the chunk with the given id.
func (s *ChunkStore) Get(id string) (domain.ChunkRow, error) {
	i, ok := s.byID[id]
	if !ok {
		return domain.ChunkRow{}, fmt.Errorf("store: chunk %s: %w", id, domain.ErrChunkNotFound)
	}
	return s.rows[i], nil
}

// DocAnchor returns the id of the document's lowest-indexed chunk, which
// stands in for the whole document in doc-level retrieval results.
func (s *ChunkStore) DocAnchor(docID string) (string, error) {
	i, ok := s.anchor[docID]
	if !ok {
		return "", fmt.Errorf("store: document %s has no chunks: %w", docID, domain.ErrChunkNotFound)
	}
	return s.rows[i].ID, nil
}

// DocIDs returns the distinct document ids in first-seen order.
func (s *ChunkStore) DocIDs() []string {
	seen := make(map[string]struct{}, len(s.anchor))
	var out []string
	for _, row := range s.rows {
		if _, ok := seen[row.DocID]; ok {
			continue
		}
		seen[row.DocID] = struct{}{}
		out = append(out, row.DocID)
	}
	return out
}
