package retrieve

import (
	"context"
	"testing"

	"github.com/altmanac/altmanac/engine/domain"
	"github.com/altmanac/altmanac/engine/semantic"
)

type fakeEmbedder struct{ calls int }

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

type fakeSearcher struct {
	hits      map[string][]semantic.Hit
	requested map[string]int
}

func (f *fakeSearcher) Query(_ context.Context, collection string, _ []float32, limit int) ([]semantic.Hit, error) {
	if f.requested == nil {
		f.requested = make(map[string]int)
	}
	f.requested[collection] = limit
	hits := f.hits[collection]
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

type fakeChunkSource struct {
	rows    map[string]domain.ChunkRow
	anchors map[string]string
	gets    int
}

func (f *fakeChunkSource) Get(id string) (domain.ChunkRow, error) {
	f.gets++
	row, ok := f.rows[id]
	if !ok {
		return domain.ChunkRow{}, domain.ErrChunkNotFound
	}
	return row, nil
}

func (f *fakeChunkSource) DocAnchor(docID string) (string, error) {
	anchor, ok := f.anchors[docID]
	if !ok {
		return "", domain.ErrChunkNotFound
	}
	return anchor, nil
}

func defaultChunkSource() *fakeChunkSource {
	return &fakeChunkSource{
		rows: map[string]domain.ChunkRow{
			"chunk-1": {
				ID: "chunk-1", DocID: "doc-a", ChunkIndex: 1, Text: "chunk one text",
				Title: "Interview A", URL: "https://a", UploadDate: "2020-01-01",
				ChunkSummary:   "About startups.",
				ChunkIntents:   domain.EncodeStringList([]string{"Startup Advice"}),
				ChunkSentiment: "Positive",
				ChunkClaims:    domain.EncodeStringList([]string{"growth matters"}),
			},
			"chunk-2": {
				ID: "chunk-2", DocID: "doc-b", ChunkIndex: 0, Text: "chunk two text",
				Title: "Interview B", ChunkSummary: "About AGI.", ChunkSentiment: "neutral",
			},
			"chunk-3": {
				ID: "chunk-3", DocID: "doc-c", ChunkIndex: 0, Text: "chunk three text",
				ChunkSummary: "About policy.", ChunkSentiment: "negative",
			},
		},
		anchors: map[string]string{"doc-a": "chunk-1", "doc-b": "chunk-2"},
	}
}

func newRetriever(searcher *fakeSearcher, chunks *fakeChunkSource, configured map[string]domain.RetrievalProfile) *Retriever {
	return New(searcher, &fakeEmbedder{}, chunks, configured, "altman", 5, nil)
}

func TestProfileSelection(t *testing.T) {
	configured := map[string]domain.RetrievalProfile{
		"factual":     {Collections: []string{domain.ViewPrimary}},
		"comparative": {Collections: []string{domain.ViewPrimary, domain.ViewDocsum, domain.ViewSummary}},
	}
	set := resolveProfiles(configured)

	cases := []struct {
		questionType string
		wantProfile  string
	}{
		{"factual", "factual"},
		{"Analytical", "analytical"},
		{"comparative", "comparative"},
		{"meta", "exploratory"},
		{"creative", "exploratory"},
		{"nonsense", "factual"},
		{"", "factual"},
	}
	for _, tc := range cases {
		t.Run(tc.questionType, func(t *testing.T) {
			if got := set.selectProfile(tc.questionType); got.Name != tc.wantProfile {
				t.Errorf("selectProfile(%q) = %q, want %q", tc.questionType, got.Name, tc.wantProfile)
			}
		})
	}

	// The configured factual profile replaces the built-in one.
	if got := set.selectProfile("factual"); len(got.Collections) != 1 {
		t.Errorf("configured override not applied: %v", got.Collections)
	}
	// Without a configured comparative profile, the fallback applies.
	plain := resolveProfiles(nil)
	if got := plain.selectProfile("comparative"); got.Name != "analytical" {
		t.Errorf("comparative fallback = %q, want analytical", got.Name)
	}
}

func TestSearchResolvesDocsumHitsToAnchors(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]semantic.Hit{
		"altman": {
			{ID: "chunk-1", DocID: "doc-a", Distance: 0.2},
		},
		"altman_docsum": {
			{ID: "doc-b", DocID: "doc-b", Distance: 0.1, Document: "doc b summary"},
		},
		"altman_summary": {},
	}}
	configured := map[string]domain.RetrievalProfile{
		"comparative": {Collections: []string{domain.ViewPrimary, domain.ViewDocsum, domain.ViewSummary}},
	}
	r := newRetriever(searcher, defaultChunkSource(), configured)

	result, err := r.Search(context.Background(), "compare things", "comparative", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if result.Profile != "comparative" {
		t.Errorf("profile = %q", result.Profile)
	}
	if len(result.Hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(result.Hits))
	}

	// The docsum hit scored higher and resolved to the anchor chunk.
	top := result.Hits[0]
	if top.ID != "chunk-2" || top.VectorSource != domain.ViewDocsum {
		t.Errorf("top hit = id %q source %q, want chunk-2 via docsum", top.ID, top.VectorSource)
	}
	if top.Summary != "About AGI." {
		t.Errorf("docsum hit not hydrated from the chunk store: %+v", top)
	}
}

func TestSearchDropsUnresolvableDocsumHits(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]semantic.Hit{
		"altman_docsum": {
			{ID: "doc-unknown", DocID: "doc-unknown", Distance: 0.1},
		},
	}}
	configured := map[string]domain.RetrievalProfile{
		"docs": {Collections: []string{domain.ViewDocsum}},
	}
	r := newRetriever(searcher, defaultChunkSource(), configured)

	result, err := r.Search(context.Background(), "q", "docs", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits) != 0 {
		t.Errorf("got %d hits, want 0", len(result.Hits))
	}
	if len(result.Collections) != 1 || result.Collections[0].Returned != 1 {
		t.Errorf("usage = %+v, want raw returned count of 1", result.Collections)
	}
}

func TestSearchDedupKeepsHighestScore(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]semantic.Hit{
		"altman": {
			{ID: "chunk-1", DocID: "doc-a", Distance: 0.5},
		},
		"altman_summary": {
			{ID: "chunk-1", DocID: "doc-a", Distance: 0.1},
		},
	}}
	r := newRetriever(searcher, defaultChunkSource(), nil)

	result, err := r.Search(context.Background(), "q", "factual", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(result.Hits))
	}
	hit := result.Hits[0]
	if hit.VectorSource != domain.ViewSummary {
		t.Errorf("surviving hit source = %q, want the higher-scoring summary hit", hit.VectorSource)
	}
	if hit.Score != 0.9 {
		t.Errorf("score = %v, want 0.9", hit.Score)
	}
}

func TestSearchDedupEqualScoresKeepFirstSeen(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]semantic.Hit{
		"altman": {
			{ID: "chunk-1", DocID: "doc-a", Distance: 0.3},
		},
		"altman_summary": {
			{ID: "chunk-1", DocID: "doc-a", Distance: 0.3},
		},
	}}
	r := newRetriever(searcher, defaultChunkSource(), nil)

	result, err := r.Search(context.Background(), "q", "factual", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(result.Hits))
	}
	if result.Hits[0].VectorSource != domain.ViewPrimary {
		t.Errorf("equal-score tie went to %q, want the first-iterated primary view", result.Hits[0].VectorSource)
	}
}

func TestSearchTrustsCompleteIndexMetadata(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]semantic.Hit{
		"altman": {
			{
				ID: "chunk-1", DocID: "doc-a", Distance: 0.2,
				Meta: map[string]string{
					"chunk_summary":   "From the index.",
					"chunk_intents":   "one; two",
					"chunk_sentiment": "mixed",
					"chunk_claims":    `["a claim"]`,
				},
			},
		},
		"altman_summary": {},
	}}
	chunks := defaultChunkSource()
	r := newRetriever(searcher, chunks, nil)

	result, err := r.Search(context.Background(), "q", "factual", Options{})
	if err != nil {
		t.Fatal(err)
	}
	hit := result.Hits[0]
	if hit.Summary != "From the index." {
		t.Errorf("summary = %q, want the index value", hit.Summary)
	}
	if len(hit.Intents) != 2 || hit.Intents[0] != "one" {
		t.Errorf("intents = %v", hit.Intents)
	}
	if len(hit.Claims) != 1 || hit.Claims[0] != "a claim" {
		t.Errorf("claims = %v", hit.Claims)
	}
	if chunks.gets != 0 {
		t.Errorf("chunk store consulted %d times for a self-sufficient hit", chunks.gets)
	}
}

func TestSearchHydratesFromStoreWithIndexWinningOverlap(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]semantic.Hit{
		"altman": {
			{
				ID: "chunk-1", DocID: "doc-a", Distance: 0.2,
				Meta: map[string]string{"title": "Index Title"},
			},
		},
		"altman_summary": {},
	}}
	r := newRetriever(searcher, defaultChunkSource(), nil)

	result, err := r.Search(context.Background(), "q", "factual", Options{})
	if err != nil {
		t.Fatal(err)
	}
	hit := result.Hits[0]
	if hit.Title != "Index Title" {
		t.Errorf("title = %q, index metadata must win on overlap", hit.Title)
	}
	if hit.URL != "https://a" || hit.Summary != "About startups." {
		t.Errorf("store fields not merged: %+v", hit)
	}
	if hit.Document != "chunk one text" {
		t.Errorf("document = %q, want store text when index sends none", hit.Document)
	}
}

func TestSearchUnknownChunkFallsBackToIndexMetadata(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]semantic.Hit{
		"altman": {
			{ID: "chunk-gone", DocID: "doc-x", Distance: 0.4, Document: "index text",
				Meta: map[string]string{"title": "Only The Index Knows"}},
		},
		"altman_summary": {},
	}}
	r := newRetriever(searcher, defaultChunkSource(), nil)

	result, err := r.Search(context.Background(), "q", "factual", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits) != 1 {
		t.Fatalf("got %d hits, want 1 despite the missing chunk", len(result.Hits))
	}
	hit := result.Hits[0]
	if hit.Title != "Only The Index Knows" || hit.Document != "index text" {
		t.Errorf("fallback hit = %+v", hit)
	}
	if hit.Summary != "" {
		t.Errorf("unhydratable hit carries enrichment: %+v", hit)
	}
}

func TestSearchScoreClamp(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]semantic.Hit{
		"altman": {
			{ID: "chunk-1", DocID: "doc-a", Distance: 1.7},
			{ID: "chunk-2", DocID: "doc-b", Distance: -0.2},
		},
		"altman_summary": {},
	}}
	r := newRetriever(searcher, defaultChunkSource(), nil)

	result, err := r.Search(context.Background(), "q", "factual", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits) != 2 {
		t.Fatalf("got %d hits", len(result.Hits))
	}
	if result.Hits[0].Score != 1 || result.Hits[1].Score != 0 {
		t.Errorf("scores = %v, %v, want clamped to [0, 1]", result.Hits[0].Score, result.Hits[1].Score)
	}
}

func TestSearchFilters(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]semantic.Hit{
		"altman": {
			{ID: "chunk-1", DocID: "doc-a", Distance: 0.1},
			{ID: "chunk-3", DocID: "doc-c", Distance: 0.2},
		},
		"altman_summary": {},
	}}
	r := newRetriever(searcher, defaultChunkSource(), nil)

	result, err := r.Search(context.Background(), "q", "factual", Options{
		Intents: []string{"startup advice"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits) != 1 || result.Hits[0].ID != "chunk-1" {
		t.Errorf("intent filter kept %+v", result.Hits)
	}

	result, err = r.Search(context.Background(), "q", "factual", Options{
		Sentiments: []string{"NEGATIVE"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Hits) != 1 || result.Hits[0].ID != "chunk-3" {
		t.Errorf("sentiment filter kept %+v", result.Hits)
	}
}

func TestSearchLimitsAndUsage(t *testing.T) {
	searcher := &fakeSearcher{hits: map[string][]semantic.Hit{
		"altman": {
			{ID: "chunk-1", DocID: "doc-a", Distance: 0.1},
			{ID: "chunk-2", DocID: "doc-b", Distance: 0.2},
		},
		"altman_summary": {
			{ID: "chunk-3", DocID: "doc-c", Distance: 0.3},
		},
		"altman_intents": {},
	}}
	configured := map[string]domain.RetrievalProfile{
		"analytical": {
			Collections: []string{domain.ViewPrimary, domain.ViewSummary, domain.ViewIntents},
			Limits:      map[string]int{domain.ViewPrimary: 1, domain.ViewIntents: 0},
		},
	}
	r := newRetriever(searcher, defaultChunkSource(), configured)

	result, err := r.Search(context.Background(), "q", "analytical", Options{})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Collections) != 2 {
		t.Fatalf("usage = %+v, want 2 entries with the zero-limit view skipped", result.Collections)
	}
	if result.Collections[0] != (CollectionUsage{Source: domain.ViewPrimary, Requested: 1, Returned: 1}) {
		t.Errorf("primary usage = %+v", result.Collections[0])
	}
	if result.Collections[1] != (CollectionUsage{Source: domain.ViewSummary, Requested: 5, Returned: 1}) {
		t.Errorf("summary usage = %+v", result.Collections[1])
	}
	if searcher.requested["altman"] != 1 {
		t.Errorf("primary queried with limit %d, want the override 1", searcher.requested["altman"])
	}
	if _, queried := searcher.requested["altman_intents"]; queried {
		t.Error("zero-limit collection was queried")
	}
	if len(result.Hits) != 2 {
		t.Errorf("got %d hits, want 2", len(result.Hits))
	}
}
