package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/altmanac/altmanac/engine/domain"
	"github.com/altmanac/altmanac/engine/store"
	"github.com/altmanac/altmanac/pkg/fn"
)

// SecondaryViews lists the views derived from enrichment, in generation
// order. The primary view embeds raw chunk text and is handled by the
// pipeline directly.
var SecondaryViews = []string{domain.ViewSummary, domain.ViewIntents, domain.ViewDocsum}

// ViewPayload is everything one vector collection needs for an upsert:
// parallel slices of ids, vectors, display documents and payload metadata.
type ViewPayload struct {
	IDs       []string
	Vectors   [][]float32
	Documents []string
	Metas     []map[string]any
}

// Len returns the number of records in the payload.
func (p ViewPayload) Len() int { return len(p.IDs) }

// SecondaryService builds and persists embeddings for the enrichment-derived
// views: chunk summaries, chunk intents, and per-document summaries.
type SecondaryService struct {
	embedder Embedder
	tables   *store.EmbeddingTables
	model    string
	logger   *slog.Logger
}

// NewSecondaryService wires a secondary embedding service.
func NewSecondaryService(embedder Embedder, tables *store.EmbeddingTables, model string, logger *slog.Logger) *SecondaryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecondaryService{embedder: embedder, tables: tables, model: model, logger: logger}
}

// Generate embeds every secondary view of chunks, persists the embedding
// tables under the given mode, and returns the payloads keyed by view.
// Chunks with empty source text for a view are skipped, not embedded blank.
func (s *SecondaryService) Generate(ctx context.Context, chunks []domain.ChunkRow, mode domain.Mode) (map[string]ViewPayload, error) {
	out := make(map[string]ViewPayload, len(SecondaryViews))
	for _, view := range SecondaryViews {
		payload, err := s.generateView(ctx, view, chunks, mode)
		if err != nil {
			return nil, err
		}
		s.logger.Info("secondary view embedded", "view", view, "records", payload.Len())
		out[view] = payload
	}
	return out, nil
}

func (s *SecondaryService) generateView(ctx context.Context, view string, chunks []domain.ChunkRow, mode domain.Mode) (ViewPayload, error) {
	var payload ViewPayload
	for _, record := range viewRecords(view, chunks) {
		payload.IDs = append(payload.IDs, record.id)
		payload.Documents = append(payload.Documents, record.text)
		payload.Metas = append(payload.Metas, record.meta)
	}
	if payload.Len() == 0 {
		return payload, nil
	}

	vectors, err := s.embedder.Embed(ctx, payload.Documents)
	if err != nil {
		return ViewPayload{}, fmt.Errorf("embed: view %s: %w", view, err)
	}
	payload.Vectors = vectors

	now := time.Now().UTC().Format(time.RFC3339)
	rows := make([]domain.EmbeddingRow, payload.Len())
	for i := range rows {
		rows[i] = domain.EmbeddingRow{
			ID:             payload.IDs[i],
			Vector:         vectors[i],
			EmbeddingModel: s.model,
			CreatedAt:      now,
		}
	}
	if err := s.tables.Write(view, rows, mode); err != nil {
		return ViewPayload{}, err
	}
	return payload, nil
}

type viewRecord struct {
	id   string
	text string
	meta map[string]any
}

// viewRecords selects the source text per view. The docsum view collapses to
// one record per document, identified by doc id; the retriever maps docsum
// hits back onto the document's first chunk.
func viewRecords(view string, chunks []domain.ChunkRow) []viewRecord {
	switch view {
	case domain.ViewSummary:
		return fn.FilterMap(chunks, func(c domain.ChunkRow) (viewRecord, bool) {
			text := strings.TrimSpace(c.ChunkSummary)
			if text == "" {
				return viewRecord{}, false
			}
			return viewRecord{id: c.ID, text: text, meta: chunkMeta(c, domain.SourceChunkSummary)}, true
		})
	case domain.ViewIntents:
		return fn.FilterMap(chunks, func(c domain.ChunkRow) (viewRecord, bool) {
			intents := c.Intents()
			if len(intents) == 0 {
				return viewRecord{}, false
			}
			return viewRecord{id: c.ID, text: strings.Join(intents, "; "), meta: chunkMeta(c, domain.SourceChunkIntents)}, true
		})
	case domain.ViewDocsum:
		perDoc := fn.UniqueBy(chunks, func(c domain.ChunkRow) string { return c.DocID })
		return fn.FilterMap(perDoc, func(c domain.ChunkRow) (viewRecord, bool) {
			text := strings.TrimSpace(c.DocSummary)
			if text == "" {
				return viewRecord{}, false
			}
			meta := map[string]any{
				"doc_id":       c.DocID,
				"title":        c.Title,
				"upload_date":  c.UploadDate,
				"url":          c.URL,
				"source_field": domain.SourceDocSummary,
			}
			return viewRecord{id: c.DocID, text: text, meta: meta}, true
		})
	default:
		return nil
	}
}

func chunkMeta(c domain.ChunkRow, sourceField string) map[string]any {
	return map[string]any{
		"doc_id":       c.DocID,
		"chunk_index":  c.ChunkIndex,
		"title":        c.Title,
		"upload_date":  c.UploadDate,
		"url":          c.URL,
		"source_field": sourceField,
	}
}
