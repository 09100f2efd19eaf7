package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/altmanac/altmanac/engine/domain"
	"github.com/altmanac/altmanac/engine/transcript"
	"github.com/altmanac/altmanac/pkg/fn"
)

// DefaultClipTokens bounds the passage text sent to the model per chunk.
const DefaultClipTokens = 800

// ChunkEnrichment is the structured payload generated per chunk.
type ChunkEnrichment struct {
	ChunkSummary   string   `json:"chunk_summary"`
	ChunkIntents   []string `json:"chunk_intents"`
	ChunkSentiment string   `json:"chunk_sentiment"`
	ChunkClaims    []string `json:"chunk_claims"`
}

func (e ChunkEnrichment) validate() error {
	if strings.TrimSpace(e.ChunkSummary) == "" {
		return fmt.Errorf("response missing chunk_summary: %w", domain.ErrGeneration)
	}
	return nil
}

// ChunkService enriches chunk rows with passage-level metadata. Rows already
// carrying the current chunk enrichment version are reused, then the cache,
// and only misses reach the model. The caller persists the returned rows;
// the per-chunk cache bounds lost work if a run dies first.
type ChunkService struct {
	gen     Generator
	cache   *Cache
	errlog  *ErrorLog
	tok     transcript.Tokenizer
	clip    int
	workers int
	logger  *slog.Logger
}

// NewChunkService wires a chunk enrichment service. clipTokens <= 0 uses the
// default.
func NewChunkService(gen Generator, cache *Cache, errlog *ErrorLog, tok transcript.Tokenizer, clipTokens, workers int, logger *slog.Logger) *ChunkService {
	if logger == nil {
		logger = slog.Default()
	}
	if clipTokens <= 0 {
		clipTokens = DefaultClipTokens
	}
	if workers <= 0 {
		workers = 1
	}
	return &ChunkService{
		gen:     gen,
		cache:   cache,
		errlog:  errlog,
		tok:     tok,
		clip:    clipTokens,
		workers: workers,
		logger:  logger,
	}
}

// EnsureEnriched returns rows carrying current chunk enrichment, in input
// order, generating what is missing. Failed chunks are recorded in the
// error log and the first failure is returned once the pass completes, so
// one bad chunk does not discard a corpus worth of cached progress.
func (s *ChunkService) EnsureEnriched(ctx context.Context, rows []domain.ChunkRow, force bool) ([]domain.ChunkRow, error) {
	stage := fn.TracedStage("enrich.chunk", func(ctx context.Context, row domain.ChunkRow) fn.Result[domain.ChunkRow] {
		return s.enrichOne(ctx, row, force)
	})

	out := make([]domain.ChunkRow, 0, len(rows))
	var firstErr error
	for _, batch := range fn.Chunk(rows, s.workers) {
		results := fn.ParMapResult(batch, s.workers, func(row domain.ChunkRow) fn.Result[domain.ChunkRow] {
			return stage(ctx, row)
		})
		for i, r := range results {
			row, err := r.Unwrap()
			if err != nil {
				s.errlog.Record(batch[i].ID, err)
				s.logger.Error("chunk enrichment failed", "chunk_id", batch[i].ID, "error", err)
				if firstErr == nil {
					firstErr = fmt.Errorf("enrich: chunk %s: %w", batch[i].ID, err)
				}
				// Keep the unenriched row so output stays aligned with input.
				out = append(out, batch[i])
				continue
			}
			out = append(out, row)
		}
	}
	return out, firstErr
}

func (s *ChunkService) enrichOne(ctx context.Context, row domain.ChunkRow, force bool) fn.Result[domain.ChunkRow] {
	if !force && row.ChunkEnrichmentVersion == domain.ChunkEnrichmentVersion && row.ChunkSummary != "" {
		return fn.Ok(row)
	}

	var payload ChunkEnrichment
	if force || !s.cache.Load(row.ID, &payload) {
		raw, err := s.gen.Generate(ctx, chunkSystemPrompt, chunkUserPrompt(row.Title, s.clipText(row.Text)))
		if err != nil {
			return fn.Err[domain.ChunkRow](err)
		}
		if err := ParseStructured(raw, &payload); err != nil {
			return fn.Err[domain.ChunkRow](err)
		}
		if err := payload.validate(); err != nil {
			return fn.Err[domain.ChunkRow](err)
		}
		if err := s.cache.Store(row.ID, payload); err != nil {
			return fn.Err[domain.ChunkRow](err)
		}
	}

	row.ChunkSummary = payload.ChunkSummary
	row.ChunkIntents = domain.EncodeStringList(payload.ChunkIntents)
	row.ChunkSentiment = payload.ChunkSentiment
	row.ChunkClaims = domain.EncodeStringList(payload.ChunkClaims)
	row.ChunkEnrichmentVersion = domain.ChunkEnrichmentVersion
	return fn.Ok(row)
}

func (s *ChunkService) clipText(text string) string {
	tokens := s.tok.Encode(text)
	if len(tokens) <= s.clip {
		return text
	}
	return s.tok.Decode(tokens[:s.clip])
}
