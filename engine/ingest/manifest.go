package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/altmanac/altmanac/engine/domain"
)

// Discover scans the transcripts directory for .txt files and builds one
// manifest row per document, joined with sidecar metadata when a JSON file
// with the same stem exists in the metadata directory. Rows come back
// sorted by doc id so runs are deterministic.
func Discover(transcriptsDir, metadataDir string) ([]domain.ManifestRow, error) {
	entries, err := os.ReadDir(transcriptsDir)
	if err != nil {
		return nil, fmt.Errorf("ingest: read transcripts dir %s: %w", transcriptsDir, err)
	}

	var rows []domain.ManifestRow
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		stem := strings.TrimSuffix(entry.Name(), ".txt")
		row := domain.ManifestRow{
			DocID:      stem,
			SourcePath: filepath.Join(transcriptsDir, entry.Name()),
			SourceName: entry.Name(),
			Title:      stem,
		}
		applySidecar(&row, filepath.Join(metadataDir, stem+".json"))
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].DocID < rows[j].DocID })
	return rows, nil
}

// applySidecar fills title, upload date and url from the metadata JSON.
// A missing or malformed sidecar leaves the defaults in place; metadata is
// best-effort, transcripts are not.
func applySidecar(row *domain.ManifestRow, path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return
	}

	if title := stringField(meta, "title"); title != "" {
		row.Title = title
	}
	row.UploadDate = stringField(meta, "upload_date")
	// Sources disagree on where they put the canonical link.
	for _, key := range []string{"original_url", "webpage_url", "url"} {
		if url := stringField(meta, key); url != "" {
			row.URL = url
			break
		}
	}
}

func stringField(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// ReadTranscript loads the raw transcript text for a manifest row.
func ReadTranscript(row domain.ManifestRow) (string, error) {
	data, err := os.ReadFile(row.SourcePath)
	if err != nil {
		return "", fmt.Errorf("ingest: read transcript %s: %w", row.SourcePath, err)
	}
	return string(data), nil
}
