package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/altmanac/altmanac/engine/transcript"
)

// minSpeakerRatio is the fraction of speaker-formatted lines below which a
// transcript is flagged as probably not in interview format.
const minSpeakerRatio = 0.8

// AuditEntry is the per-document result of a corpus audit.
type AuditEntry struct {
	DocID         string   `json:"doc_id"`
	TokenCount    int      `json:"token_count"`
	TurnCount     int      `json:"turn_count"`
	SamTurns      int      `json:"sam_turns"`
	NonEmptyLines int      `json:"non_empty_lines"`
	MatchedLines  int      `json:"matched_lines"`
	SpeakerRatio  float64  `json:"speaker_ratio"`
	Issues        []string `json:"issues,omitempty"`
}

// AuditReport summarizes an audit pass over the whole corpus.
type AuditReport struct {
	Timestamp      string       `json:"timestamp"`
	Documents      int          `json:"documents"`
	Flagged        int          `json:"flagged"`
	TokenThreshold int          `json:"token_threshold"`
	Entries        []AuditEntry `json:"entries"`
}

// Auditor checks the raw corpus for transcripts the pipeline would ingest
// badly: wrong format, empty text, missing metadata. Run it before a
// rebuild, not after one fails.
type Auditor struct {
	normalizer *transcript.Normalizer
	logger     *slog.Logger
}

// NewAuditor creates an Auditor.
func NewAuditor(normalizer *transcript.Normalizer, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{normalizer: normalizer, logger: logger}
}

// Audit analyzes every discovered transcript and flags the problem cases.
func (a *Auditor) Audit(transcriptsDir, metadataDir string) (AuditReport, error) {
	rows, err := Discover(transcriptsDir, metadataDir)
	if err != nil {
		return AuditReport{}, err
	}

	report := AuditReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Documents: len(rows),
	}
	for _, row := range rows {
		text, err := ReadTranscript(row)
		if err != nil {
			return AuditReport{}, err
		}
		analysis := a.normalizer.Analyze(row.DocID, text)

		entry := AuditEntry{
			DocID:         row.DocID,
			TokenCount:    analysis.TokenCount,
			TurnCount:     len(analysis.Turns),
			SamTurns:      analysis.SamTurns(),
			NonEmptyLines: analysis.NonEmptyLines,
			MatchedLines:  analysis.MatchedLines,
			SpeakerRatio:  analysis.SpeakerRatio(),
		}
		if analysis.TokenCount == 0 {
			entry.Issues = append(entry.Issues, "empty transcript")
		} else if entry.SpeakerRatio < minSpeakerRatio {
			entry.Issues = append(entry.Issues, fmt.Sprintf("speaker ratio %.2f below %.2f, not interview format?", entry.SpeakerRatio, minSpeakerRatio))
		}
		if entry.SamTurns == 0 && analysis.TokenCount > 0 {
			entry.Issues = append(entry.Issues, "no turns attributed to Sam Altman")
		}
		if row.URL == "" {
			entry.Issues = append(entry.Issues, "no source url in metadata")
		}
		if row.UploadDate == "" {
			entry.Issues = append(entry.Issues, "no upload date in metadata")
		}

		report.Entries = append(report.Entries, entry)
	}

	report.TokenThreshold = tokenThreshold(report.Entries)
	for i := range report.Entries {
		entry := &report.Entries[i]
		if report.TokenThreshold > 0 && entry.TokenCount >= report.TokenThreshold {
			entry.Issues = append(entry.Issues, fmt.Sprintf("token count %d at or above 75th percentile (%d)", entry.TokenCount, report.TokenThreshold))
		}
		if len(entry.Issues) > 0 {
			report.Flagged++
			a.logger.Warn("audit flagged document", "doc_id", entry.DocID, "issues", entry.Issues)
		}
	}
	return report, nil
}

// tokenThreshold returns the 75th-percentile token count across non-empty
// documents, or 0 when the corpus has none.
func tokenThreshold(entries []AuditEntry) int {
	var counts []int
	for _, entry := range entries {
		if entry.TokenCount > 0 {
			counts = append(counts, entry.TokenCount)
		}
	}
	if len(counts) == 0 {
		return 0
	}
	sort.Ints(counts)
	index := len(counts)*3/4 - 1
	if index < 0 {
		index = 0
	}
	return counts[index]
}

// WriteReport appends the report as one JSON line to path.
func WriteReport(report AuditReport, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ingest: create dir for %s: %w", path, err)
	}
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("ingest: encode audit report: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("ingest: open audit log %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("ingest: append audit log %s: %w", path, err)
	}
	return nil
}
