// Package domain defines the shared data model for the ingestion pipeline
// and the retrieval backend: manifest rows, chunk rows, embedding records,
// retrieval profiles, and the schema/version constants that gate artifact
// reuse across runs.
package domain

import (
	"encoding/json"
	"strings"
)

// Mode selects the ingestion pipeline behaviour.
type Mode string

const (
	// ModeRebuild resets every collection and re-ingests the full corpus.
	ModeRebuild Mode = "rebuild"
	// ModeAppend ingests only documents absent from the persisted chunk table.
	ModeAppend Mode = "append"
)

// Views addressable by retrieval profiles. Each view is backed by its own
// vector collection.
const (
	ViewPrimary = "primary"
	ViewSummary = "summary"
	ViewIntents = "intents"
	ViewDocsum  = "docsum"
)

// Source fields stamped on embedding rows, one per view.
const (
	SourceChunkText    = "chunk_text"
	SourceChunkSummary = "chunk_summary"
	SourceChunkIntents = "chunk_intents"
	SourceDocSummary   = "doc_summary"
)

// ManifestRow is one document in the corpus manifest. Enrichment fields are
// empty until the first enrichment run; list-shaped fields are stored
// JSON-encoded so the row round-trips through parquet unchanged.
type ManifestRow struct {
	DocID      string `parquet:"doc_id" json:"doc_id"`
	SourcePath string `parquet:"source_path" json:"source_path"`
	SourceName string `parquet:"source_name" json:"source_name"`
	Title      string `parquet:"title" json:"title"`
	UploadDate string `parquet:"upload_date" json:"upload_date"`
	URL        string `parquet:"url" json:"url"`

	DocSummary        string `parquet:"doc_summary" json:"doc_summary"`
	KeyThemes         string `parquet:"key_themes" json:"key_themes"`
	TimeSpan          string `parquet:"time_span" json:"time_span"`
	Entities          string `parquet:"entities" json:"entities"`
	StanceNotes       string `parquet:"stance_notes" json:"stance_notes"`
	SpeakerStats      string `parquet:"speaker_stats" json:"speaker_stats"`
	TokenCount        int    `parquet:"token_count" json:"token_count"`
	SamTurns          int    `parquet:"sam_turns" json:"sam_turns"`
	TurnCount         int    `parquet:"turn_count" json:"turn_count"`
	EnrichmentVersion int    `parquet:"enrichment_version" json:"enrichment_version"`
	EnrichedAt        string `parquet:"enriched_at" json:"enriched_at"`
}

// ChunkRow is one retrieval unit: a token-bounded slice of a document with
// denormalized document metadata and chunk-level enrichment.
type ChunkRow struct {
	ID         string `parquet:"id" json:"id"`
	DocID      string `parquet:"doc_id" json:"doc_id"`
	ChunkIndex int    `parquet:"chunk_index" json:"chunk_index"`
	Text       string `parquet:"text" json:"text"`
	Tokens     int    `parquet:"tokens" json:"tokens"`
	StartToken int    `parquet:"start_token" json:"start_token"`
	EndToken   int    `parquet:"end_token" json:"end_token"`

	Title      string `parquet:"title" json:"title"`
	UploadDate string `parquet:"upload_date" json:"upload_date"`
	URL        string `parquet:"url" json:"url"`
	SourcePath string `parquet:"source_path" json:"source_path"`
	SourceName string `parquet:"source_name" json:"source_name"`
	DocSummary string `parquet:"doc_summary" json:"doc_summary"`

	ChunkSummary           string `parquet:"chunk_summary" json:"chunk_summary"`
	ChunkIntents           string `parquet:"chunk_intents" json:"chunk_intents"`
	ChunkSentiment         string `parquet:"chunk_sentiment" json:"chunk_sentiment"`
	ChunkClaims            string `parquet:"chunk_claims" json:"chunk_claims"`
	ChunkEnrichmentVersion int    `parquet:"chunk_enrichment_version" json:"chunk_enrichment_version"`
}

// Intents decodes the JSON-encoded chunk_intents column.
func (c ChunkRow) Intents() []string { return DecodeStringList(c.ChunkIntents) }

// Claims decodes the JSON-encoded chunk_claims column.
func (c ChunkRow) Claims() []string { return DecodeStringList(c.ChunkClaims) }

// EmbeddingRow is one persisted vector for a secondary view. All rows within
// one table must share the same EmbeddingSetVersion.
type EmbeddingRow struct {
	ID                  string    `parquet:"id" json:"id"`
	Vector              []float32 `parquet:"vector" json:"vector"`
	SourceField         string    `parquet:"source_field" json:"source_field"`
	EmbeddingModel      string    `parquet:"embedding_model" json:"embedding_model"`
	EmbeddingSetVersion string    `parquet:"embedding_set_version" json:"embedding_set_version"`
	CreatedAt           string    `parquet:"created_at" json:"created_at"`
}

// RetrievalProfile maps a question type to an ordered set of views to query
// with optional per-view result caps. Resolved once at Retriever
// construction and immutable thereafter.
type RetrievalProfile struct {
	Name        string         `json:"name"`
	Collections []string       `json:"collections"`
	Limits      map[string]int `json:"limits,omitempty"`
	Blend       string         `json:"blend,omitempty"`
}

// QuestionTypes enumerates the classifier labels in canonical order.
var QuestionTypes = []string{
	"factual",
	"analytical",
	"meta",
	"exploratory",
	"comparative",
	"creative",
}

// ValidQuestionType reports whether label is a known question type.
func ValidQuestionType(label string) bool {
	lowered := strings.ToLower(strings.TrimSpace(label))
	for _, t := range QuestionTypes {
		if t == lowered {
			return true
		}
	}
	return false
}

// DecodeStringList decodes a JSON-encoded string column, dropping blanks.
// Malformed input decodes as empty rather than failing the row.
func DecodeStringList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// EncodeStringList JSON-encodes a list for storage in a string column.
// Nil and empty both encode as "[]" so column values are never blank.
func EncodeStringList(items []string) string {
	cleaned := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			cleaned = append(cleaned, s)
		}
	}
	data, err := json.Marshal(cleaned)
	if err != nil {
		return "[]"
	}
	return string(data)
}
