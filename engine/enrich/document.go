package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/altmanac/altmanac/engine/domain"
	"github.com/altmanac/altmanac/engine/store"
	"github.com/altmanac/altmanac/engine/transcript"
	"github.com/altmanac/altmanac/pkg/fn"
)

// Generator produces one model completion for a system+user prompt pair.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// DocumentEnrichment is the structured payload generated per document.
type DocumentEnrichment struct {
	DocSummary  string   `json:"doc_summary"`
	KeyThemes   []string `json:"key_themes"`
	TimeSpan    string   `json:"time_span"`
	Entities    []string `json:"entities"`
	StanceNotes string   `json:"stance_notes"`
}

func (e DocumentEnrichment) validate() error {
	var missing []string
	if strings.TrimSpace(e.DocSummary) == "" {
		missing = append(missing, "doc_summary")
	}
	if len(e.KeyThemes) == 0 {
		missing = append(missing, "key_themes")
	}
	if strings.TrimSpace(e.TimeSpan) == "" {
		missing = append(missing, "time_span")
	}
	if len(e.Entities) == 0 {
		missing = append(missing, "entities")
	}
	if len(missing) > 0 {
		return fmt.Errorf("response missing %s: %w", strings.Join(missing, ", "), domain.ErrGeneration)
	}
	return nil
}

// DocumentInput pairs a manifest row with its transcript analysis.
type DocumentInput struct {
	Row      domain.ManifestRow
	Analysis *transcript.Analysis
}

// DocumentService enriches manifest rows with document-level metadata.
// Rows already carrying the current enrichment version are reused, then the
// on-disk cache is consulted, and only misses reach the model. Results are
// flushed to the manifest in worker-width batches so a crash mid-run loses
// at most one batch of work beyond the caches.
type DocumentService struct {
	gen     Generator
	cache   *Cache
	errlog  *ErrorLog
	store   *store.ManifestStore
	workers int
	snippet int
	logger  *slog.Logger
}

// NewDocumentService wires a document enrichment service.
func NewDocumentService(gen Generator, cache *Cache, errlog *ErrorLog, manifest *store.ManifestStore, workers, snippetSize int, logger *slog.Logger) *DocumentService {
	if logger == nil {
		logger = slog.Default()
	}
	if workers <= 0 {
		workers = 1
	}
	return &DocumentService{
		gen:     gen,
		cache:   cache,
		errlog:  errlog,
		store:   manifest,
		workers: workers,
		snippet: snippetSize,
		logger:  logger,
	}
}

// EnsureEnriched returns every input row carrying current document
// enrichment, generating what is missing. With force set, manifest and
// cache hits are bypassed and everything regenerates. Failed documents are
// recorded in the error log; the first failure is returned after the
// surrounding batch has been flushed.
func (s *DocumentService) EnsureEnriched(ctx context.Context, inputs []DocumentInput, force bool) ([]domain.ManifestRow, error) {
	stage := fn.TracedStage("enrich.document", func(ctx context.Context, in DocumentInput) fn.Result[domain.ManifestRow] {
		return s.enrichOne(ctx, in, force)
	})

	out := make([]domain.ManifestRow, 0, len(inputs))
	var firstErr error
	for _, batch := range fn.Chunk(inputs, s.workers) {
		results := fn.ParMapResult(batch, s.workers, func(in DocumentInput) fn.Result[domain.ManifestRow] {
			return stage(ctx, in)
		})

		flush := make([]domain.ManifestRow, 0, len(results))
		for i, r := range results {
			row, err := r.Unwrap()
			if err != nil {
				s.errlog.Record(batch[i].Row.DocID, err)
				s.logger.Error("document enrichment failed", "doc_id", batch[i].Row.DocID, "error", err)
				if firstErr == nil {
					firstErr = fmt.Errorf("enrich: document %s: %w", batch[i].Row.DocID, err)
				}
				continue
			}
			flush = append(flush, row)
		}
		if len(flush) > 0 {
			if err := s.store.Upsert(flush); err != nil {
				return out, err
			}
			out = append(out, flush...)
		}
		if firstErr != nil {
			return out, firstErr
		}
	}
	return out, nil
}

func (s *DocumentService) enrichOne(ctx context.Context, in DocumentInput, force bool) fn.Result[domain.ManifestRow] {
	row := in.Row
	applyAnalysis(&row, in.Analysis)

	if !force && row.EnrichmentVersion == domain.DocumentEnrichmentVersion && rowComplete(row) {
		return fn.Ok(row)
	}

	// A cached payload is only reusable when it carries every required
	// field; an incomplete one regenerates rather than being served forever.
	var payload DocumentEnrichment
	cached := !force && s.cache.Load(row.DocID, &payload) && payload.validate() == nil
	if !cached {
		payload = DocumentEnrichment{}
		snippet := in.Analysis.Snippet(s.snippet)
		raw, err := s.gen.Generate(ctx, documentSystemPrompt, documentUserPrompt(row.Title, in.Analysis.SpeakerSummary(), snippet))
		if err != nil {
			return fn.Err[domain.ManifestRow](err)
		}
		if err := ParseStructured(raw, &payload); err != nil {
			return fn.Err[domain.ManifestRow](err)
		}
		if err := payload.validate(); err != nil {
			return fn.Err[domain.ManifestRow](err)
		}
		if err := s.cache.Store(row.DocID, payload); err != nil {
			return fn.Err[domain.ManifestRow](err)
		}
	}

	row.DocSummary = payload.DocSummary
	row.KeyThemes = domain.EncodeStringList(payload.KeyThemes)
	row.TimeSpan = payload.TimeSpan
	row.Entities = domain.EncodeStringList(payload.Entities)
	row.StanceNotes = payload.StanceNotes
	row.EnrichmentVersion = domain.DocumentEnrichmentVersion
	row.EnrichedAt = time.Now().UTC().Format(time.RFC3339)
	return fn.Ok(row)
}

// rowComplete reports whether a manifest row carries every required
// enrichment field. Version alone is not enough; a partially written row at
// the current version must still regenerate.
func rowComplete(row domain.ManifestRow) bool {
	return strings.TrimSpace(row.DocSummary) != "" &&
		strings.TrimSpace(row.TimeSpan) != "" &&
		len(domain.DecodeStringList(row.KeyThemes)) > 0 &&
		len(domain.DecodeStringList(row.Entities)) > 0
}

// applyAnalysis refreshes the derived transcript statistics. These are cheap
// to recompute, so they update on every run even when enrichment is reused.
func applyAnalysis(row *domain.ManifestRow, a *transcript.Analysis) {
	if a == nil {
		return
	}
	row.TokenCount = a.TokenCount
	row.SamTurns = a.SamTurns()
	row.TurnCount = len(a.Turns)
	if stats, err := json.Marshal(a.SpeakerCounts); err == nil {
		row.SpeakerStats = string(stats)
	}
}
