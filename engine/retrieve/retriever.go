package retrieve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/altmanac/altmanac/engine/domain"
	"github.com/altmanac/altmanac/engine/semantic"
)

// Searcher queries one vector collection, returning hits in ascending
// distance order.
type Searcher interface {
	Query(ctx context.Context, collection string, embedding []float32, limit int) ([]semantic.Hit, error)
}

// Embedder embeds query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkSource serves authoritative chunk metadata.
type ChunkSource interface {
	Get(id string) (domain.ChunkRow, error)
	DocAnchor(docID string) (string, error)
}

// Hit is one retrieval result, always addressed by a concrete chunk id.
// VectorSource names the view whose vector matched.
type Hit struct {
	ID           string   `json:"id"`
	Score        float32  `json:"score"`
	VectorSource string   `json:"vector_source"`
	Document     string   `json:"document"`
	DocID        string   `json:"doc_id"`
	ChunkIndex   int      `json:"chunk_index"`
	Title        string   `json:"title"`
	UploadDate   string   `json:"upload_date"`
	URL          string   `json:"url"`
	Summary      string   `json:"chunk_summary,omitempty"`
	Intents      []string `json:"chunk_intents,omitempty"`
	Sentiment    string   `json:"chunk_sentiment,omitempty"`
	Claims       []string `json:"chunk_claims,omitempty"`
}

// CollectionUsage is the per-collection accounting returned with results.
type CollectionUsage struct {
	Source    string `json:"source"`
	Requested int    `json:"requested"`
	Returned  int    `json:"returned"`
}

// Result is a ranked, deduplicated retrieval response.
type Result struct {
	Profile     string            `json:"retrieval_profile"`
	Collections []CollectionUsage `json:"collections_used"`
	Hits        []Hit             `json:"hits"`
}

// Options tune one search call.
type Options struct {
	// TopK overrides the retriever's default per-collection limit when > 0.
	TopK int
	// Intents keeps only hits carrying at least one of these intent tags.
	Intents []string
	// Sentiments keeps only hits whose sentiment is one of these.
	Sentiments []string
}

// Retriever blends hits across the per-view collections. It holds no
// per-query state; profiles are resolved once at construction.
type Retriever struct {
	searcher Searcher
	embedder Embedder
	chunks   ChunkSource
	profiles profileSet
	base     string
	topK     int
	logger   *slog.Logger
}

// New creates a Retriever over the base collection name. Configured
// profiles override the built-in defaults by name.
func New(searcher Searcher, embedder Embedder, chunks ChunkSource, configured map[string]domain.RetrievalProfile, baseCollection string, topK int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{
		searcher: searcher,
		embedder: embedder,
		chunks:   chunks,
		profiles: resolveProfiles(configured),
		base:     baseCollection,
		topK:     topK,
		logger:   logger,
	}
}

// Search embeds the query once, fans out to every collection in the
// selected profile, and folds the hits into one ranked list addressed by
// chunk ids.
func (r *Retriever) Search(ctx context.Context, query, questionType string, opts Options) (Result, error) {
	profile := r.profiles.selectProfile(questionType)
	result := Result{Profile: profile.Name}

	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("retrieve: embed query: %w", err)
	}
	queryVector := vectors[0]

	topK := r.topK
	if opts.TopK > 0 {
		topK = opts.TopK
	}

	// Dedup by resolved chunk id. A strictly greater score replaces the
	// incumbent; an equal score keeps the first-seen hit, so collection
	// iteration order is the stable tie-break.
	position := make(map[string]int)
	var merged []Hit

	for _, view := range profile.Collections {
		limit := topK
		if override, ok := profile.Limits[view]; ok {
			limit = override
		}
		if limit <= 0 {
			continue
		}

		collection := semantic.CollectionName(r.base, view)
		hits, err := r.searcher.Query(ctx, collection, queryVector, limit)
		if err != nil {
			return Result{}, fmt.Errorf("retrieve: query %s: %w", collection, err)
		}
		result.Collections = append(result.Collections, CollectionUsage{
			Source:    view,
			Requested: limit,
			Returned:  len(hits),
		})

		for _, raw := range hits {
			hit, ok := r.resolveHit(view, raw)
			if !ok {
				continue
			}
			if i, seen := position[hit.ID]; seen {
				if hit.Score > merged[i].Score {
					merged[i] = hit
				}
				continue
			}
			position[hit.ID] = len(merged)
			merged = append(merged, hit)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })

	for _, hit := range merged {
		if !matchesFilters(hit, opts) {
			continue
		}
		result.Hits = append(result.Hits, hit)
	}
	return result, nil
}

// resolveHit maps a raw index hit onto a chunk-addressed Hit: doc-level
// hits resolve to their anchor chunk, metadata hydrates from the chunk
// store, and the distance becomes a clamped similarity score.
func (r *Retriever) resolveHit(view string, raw semantic.Hit) (Hit, bool) {
	id := raw.ID
	if view == domain.ViewDocsum {
		docID := raw.DocID
		if docID == "" {
			docID = raw.ID
		}
		anchor, err := r.chunks.DocAnchor(docID)
		if err != nil {
			r.logger.Warn("dropping doc-level hit with no anchor chunk", "doc_id", docID, "error", err)
			return Hit{}, false
		}
		id = anchor
	}

	hit := Hit{
		ID:           id,
		Score:        clampScore(raw.Distance),
		VectorSource: view,
		Document:     raw.Document,
		DocID:        raw.DocID,
		ChunkIndex:   raw.ChunkIndex,
		Title:        raw.Meta["title"],
		UploadDate:   raw.Meta["upload_date"],
		URL:          raw.Meta["url"],
	}
	r.hydrate(&hit, raw)
	return hit, true
}

// enrichmentKeys are the chunk-level fields a hit needs before the index
// metadata can be trusted on its own.
var enrichmentKeys = [4]string{"chunk_summary", "chunk_intents", "chunk_sentiment", "chunk_claims"}

func (r *Retriever) hydrate(hit *Hit, raw semantic.Hit) {
	if indexCarriesEnrichment(raw) {
		hit.Summary = raw.Meta["chunk_summary"]
		hit.Intents = decodeTagList(raw.Meta["chunk_intents"])
		hit.Sentiment = raw.Meta["chunk_sentiment"]
		hit.Claims = decodeTagList(raw.Meta["chunk_claims"])
		return
	}

	row, err := r.chunks.Get(hit.ID)
	if err != nil {
		if !errors.Is(err, domain.ErrChunkNotFound) {
			r.logger.Warn("chunk store lookup failed", "chunk_id", hit.ID, "error", err)
		} else {
			r.logger.Warn("hit references unknown chunk, serving index metadata only", "chunk_id", hit.ID)
		}
		return
	}

	// Authoritative chunk fields first, then the index's document-level
	// metadata wins on overlap.
	hit.DocID = row.DocID
	hit.ChunkIndex = row.ChunkIndex
	if hit.Document == "" {
		hit.Document = row.Text
	}
	hit.Summary = row.ChunkSummary
	hit.Intents = row.Intents()
	hit.Sentiment = row.ChunkSentiment
	hit.Claims = row.Claims()

	if hit.Title == "" {
		hit.Title = row.Title
	}
	if hit.UploadDate == "" {
		hit.UploadDate = row.UploadDate
	}
	if hit.URL == "" {
		hit.URL = row.URL
	}
	if raw.DocID != "" {
		hit.DocID = raw.DocID
	}
}

func indexCarriesEnrichment(raw semantic.Hit) bool {
	for _, key := range enrichmentKeys {
		if _, ok := raw.Meta[key]; !ok {
			return false
		}
	}
	return true
}

// decodeTagList accepts either a JSON-encoded list or a semicolon-joined
// string, the two shapes tags take in index payloads.
func decodeTagList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	if strings.HasPrefix(strings.TrimSpace(raw), "[") {
		return domain.ChunkRow{ChunkIntents: raw}.Intents()
	}
	var out []string
	for _, part := range strings.Split(raw, ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func clampScore(distance float32) float32 {
	score := 1 - distance
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// matchesFilters applies the case-insensitive intent and sentiment
// intersection tests. An empty filter set passes everything.
func matchesFilters(hit Hit, opts Options) bool {
	if len(opts.Intents) > 0 {
		want := lowerSet(opts.Intents)
		found := false
		for _, tag := range hit.Intents {
			if _, ok := want[strings.ToLower(strings.TrimSpace(tag))]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(opts.Sentiments) > 0 {
		want := lowerSet(opts.Sentiments)
		if _, ok := want[strings.ToLower(strings.TrimSpace(hit.Sentiment))]; !ok {
			return false
		}
	}
	return true
}

func lowerSet(items []string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[strings.ToLower(strings.TrimSpace(item))] = struct{}{}
	}
	return out
}
