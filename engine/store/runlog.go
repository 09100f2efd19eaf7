package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/altmanac/altmanac/engine/domain"
)

// RunSummary is one ingestion run, appended to the run log when the run
// finishes. The version tags let the backend verify at startup that the
// artifacts it is about to serve were produced by the code it is running.
type RunSummary struct {
	Timestamp string      `json:"timestamp"`
	Mode      domain.Mode `json:"mode"`
	Skipped   bool        `json:"skipped,omitempty"`

	DocsProcessed int `json:"docs_processed"`
	DocsSkipped   int `json:"docs_skipped"`
	ChunksWritten int `json:"chunks_written"`

	VectorCounts map[string]int `json:"vector_counts,omitempty"`

	ChunkSchemaVersion     int     `json:"chunk_schema_version"`
	DocEnrichmentVersion   int     `json:"doc_enrichment_version"`
	ChunkEnrichmentVersion int     `json:"chunk_enrichment_version"`
	EmbeddingSetVersion    string  `json:"embedding_set_version"`
	EmbeddingModel         string  `json:"embedding_model"`
	DurationSeconds        float64 `json:"duration_seconds"`
}

// StampVersions fills the summary's version tags from the current constants.
func (s *RunSummary) StampVersions(embeddingModel string) {
	s.ChunkSchemaVersion = domain.ChunkSchemaVersion
	s.DocEnrichmentVersion = domain.DocumentEnrichmentVersion
	s.ChunkEnrichmentVersion = domain.ChunkEnrichmentVersion
	s.EmbeddingSetVersion = domain.EmbeddingSetVersion
	s.EmbeddingModel = embeddingModel
}

// RunLog is the append-only JSONL log of ingestion runs.
type RunLog struct {
	path string
}

// NewRunLog creates a log backed by path.
func NewRunLog(path string) *RunLog {
	return &RunLog{path: path}
}

// Append writes one summary as a JSON line.
func (l *RunLog) Append(summary RunSummary) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("store: create dir for %s: %w", l.path, err)
	}
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("store: encode run summary: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("store: open run log %s: %w", l.path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("store: append run log %s: %w", l.path, err)
	}
	return nil
}

// Latest returns the most recent parseable summary, or ok=false when the
// log is missing or holds no parseable line.
func (l *RunLog) Latest() (RunSummary, bool, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return RunSummary{}, false, nil
	}
	if err != nil {
		return RunSummary{}, false, fmt.Errorf("store: open run log %s: %w", l.path, err)
	}
	defer f.Close()

	var latest RunSummary
	found := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var summary RunSummary
		if err := json.Unmarshal([]byte(line), &summary); err != nil {
			continue
		}
		latest = summary
		found = true
	}
	if err := scanner.Err(); err != nil {
		return RunSummary{}, false, fmt.Errorf("store: scan run log %s: %w", l.path, err)
	}
	return latest, found, nil
}

// VerifyVersions checks the latest run's version tags against the current
// constants. Serving artifacts produced by a different generation gives
// silently wrong answers, so the backend calls this before accepting
// queries. A missing or empty log passes; there is nothing to contradict.
func (l *RunLog) VerifyVersions(embeddingModel string) error {
	latest, found, err := l.Latest()
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	var stale []string
	if latest.ChunkSchemaVersion != domain.ChunkSchemaVersion {
		stale = append(stale, fmt.Sprintf("chunk schema %d (current %d)", latest.ChunkSchemaVersion, domain.ChunkSchemaVersion))
	}
	if latest.DocEnrichmentVersion != domain.DocumentEnrichmentVersion {
		stale = append(stale, fmt.Sprintf("doc enrichment %d (current %d)", latest.DocEnrichmentVersion, domain.DocumentEnrichmentVersion))
	}
	if latest.ChunkEnrichmentVersion != domain.ChunkEnrichmentVersion {
		stale = append(stale, fmt.Sprintf("chunk enrichment %d (current %d)", latest.ChunkEnrichmentVersion, domain.ChunkEnrichmentVersion))
	}
	if latest.EmbeddingSetVersion != domain.EmbeddingSetVersion {
		stale = append(stale, fmt.Sprintf("embedding set %s (current %s)", latest.EmbeddingSetVersion, domain.EmbeddingSetVersion))
	}
	if embeddingModel != "" && latest.EmbeddingModel != "" && latest.EmbeddingModel != embeddingModel {
		stale = append(stale, fmt.Sprintf("embedding model %s (current %s)", latest.EmbeddingModel, embeddingModel))
	}
	if len(stale) > 0 {
		return domain.NewSchemaError(l.path, "last run used stale versions: %s", strings.Join(stale, "; "))
	}
	return nil
}
