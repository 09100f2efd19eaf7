package enrich

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/altmanac/altmanac/engine/domain"
	"github.com/altmanac/altmanac/engine/store"
	"github.com/altmanac/altmanac/engine/transcript"
)

type fakeTokenizer struct{}

func (fakeTokenizer) Encode(text string) []int {
	fields := strings.Fields(text)
	tokens := make([]int, len(fields))
	for i := range fields {
		tokens[i] = i
	}
	return tokens
}

func (fakeTokenizer) Decode(tokens []int) string {
	parts := make([]string, len(tokens))
	for i := range parts {
		parts[i] = "w"
	}
	return strings.Join(parts, " ")
}

// countingGenerator returns a canned response and counts calls, optionally
// failing for specific prompts.
type countingGenerator struct {
	mu       sync.Mutex
	calls    int
	response string
	failWhen func(userPrompt string) bool
	lastUser string
}

func (g *countingGenerator) Generate(_ context.Context, _, userPrompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastUser = userPrompt
	if g.failWhen != nil && g.failWhen(userPrompt) {
		return "", errors.New("model unavailable")
	}
	return g.response, nil
}

func (g *countingGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

const docResponse = `{"doc_summary": "A talk about startups.", "key_themes": ["startups"], "time_span": "YC era, ~2014", "entities": ["Y Combinator"], "stance_notes": ""}`

const chunkResponse = `{"chunk_summary": "Advice on founders.", "chunk_intents": ["what makes a good founder"], "chunk_sentiment": "positive", "chunk_claims": ["determination matters most"]}`

func docInputs(n int) []DocumentInput {
	norm := transcript.NewNormalizer(fakeTokenizer{})
	inputs := make([]DocumentInput, n)
	for i := range inputs {
		id := "doc-" + string(rune('a'+i))
		inputs[i] = DocumentInput{
			Row:      domain.ManifestRow{DocID: id, Title: "Interview " + id},
			Analysis: norm.Analyze(id, "Host: a question\nSam: an answer"),
		}
	}
	return inputs
}

func newDocService(t *testing.T, gen Generator) (*DocumentService, *store.ManifestStore) {
	t.Helper()
	dir := t.TempDir()
	manifest := store.NewManifestStore(filepath.Join(dir, "manifest.parquet"))
	cache := NewCache(filepath.Join(dir, "cache"), domain.DocumentEnrichmentVersion)
	errlog := NewErrorLog(filepath.Join(dir, "errors.jsonl"))
	return NewDocumentService(gen, cache, errlog, manifest, 2, 4, nil), manifest
}

func TestDocumentEnrichmentGeneratesAndPersists(t *testing.T) {
	gen := &countingGenerator{response: docResponse}
	svc, manifest := newDocService(t, gen)

	rows, err := svc.EnsureEnriched(context.Background(), docInputs(3), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	if gen.callCount() != 3 {
		t.Errorf("generator called %d times, want 3", gen.callCount())
	}

	for _, row := range rows {
		if row.DocSummary != "A talk about startups." {
			t.Errorf("row %s summary = %q", row.DocID, row.DocSummary)
		}
		if row.EnrichmentVersion != domain.DocumentEnrichmentVersion {
			t.Errorf("row %s version = %d", row.DocID, row.EnrichmentVersion)
		}
		if row.SamTurns != 1 || row.TurnCount != 2 {
			t.Errorf("row %s stats: sam_turns=%d turn_count=%d", row.DocID, row.SamTurns, row.TurnCount)
		}
	}

	persisted, err := manifest.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 3 {
		t.Errorf("manifest holds %d rows, want 3", len(persisted))
	}
}

func TestDocumentEnrichmentIsIdempotent(t *testing.T) {
	gen := &countingGenerator{response: docResponse}
	svc, _ := newDocService(t, gen)

	inputs := docInputs(2)
	enriched, err := svc.EnsureEnriched(context.Background(), inputs, false)
	if err != nil {
		t.Fatal(err)
	}

	// Second pass over already-enriched rows must not touch the model.
	second := make([]DocumentInput, len(enriched))
	for i, row := range enriched {
		second[i] = DocumentInput{Row: row, Analysis: inputs[i].Analysis}
	}
	if _, err := svc.EnsureEnriched(context.Background(), second, false); err != nil {
		t.Fatal(err)
	}
	if gen.callCount() != 2 {
		t.Errorf("generator called %d times, want 2", gen.callCount())
	}

	// Unenriched rows hit the cache, not the model.
	if _, err := svc.EnsureEnriched(context.Background(), docInputs(2), false); err != nil {
		t.Fatal(err)
	}
	if gen.callCount() != 2 {
		t.Errorf("generator called %d times after cache pass, want 2", gen.callCount())
	}
}

func TestDocumentEnrichmentForceBypassesCache(t *testing.T) {
	gen := &countingGenerator{response: docResponse}
	svc, _ := newDocService(t, gen)

	if _, err := svc.EnsureEnriched(context.Background(), docInputs(2), false); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EnsureEnriched(context.Background(), docInputs(2), true); err != nil {
		t.Fatal(err)
	}
	if gen.callCount() != 4 {
		t.Errorf("generator called %d times, want 4 with force", gen.callCount())
	}
}

func TestDocumentEnrichmentRegeneratesIncompleteCacheEntry(t *testing.T) {
	gen := &countingGenerator{response: docResponse}
	dir := t.TempDir()
	manifest := store.NewManifestStore(filepath.Join(dir, "manifest.parquet"))
	cache := NewCache(filepath.Join(dir, "cache"), domain.DocumentEnrichmentVersion)
	errlog := NewErrorLog(filepath.Join(dir, "errors.jsonl"))
	svc := NewDocumentService(gen, cache, errlog, manifest, 1, 4, nil)

	// Current-version cache entry missing key_themes, time_span partially
	// filled: must not be served, the document regenerates.
	if err := cache.Store("doc-a", DocumentEnrichment{DocSummary: "partial", TimeSpan: "2014"}); err != nil {
		t.Fatal(err)
	}

	rows, err := svc.EnsureEnriched(context.Background(), docInputs(1), false)
	if err != nil {
		t.Fatal(err)
	}
	if gen.callCount() != 1 {
		t.Fatalf("generator called %d times, want 1 for incomplete cache entry", gen.callCount())
	}
	if rows[0].DocSummary != "A talk about startups." || len(domain.DecodeStringList(rows[0].KeyThemes)) == 0 {
		t.Errorf("row not regenerated: %+v", rows[0])
	}
}

func TestDocumentEnrichmentRegeneratesIncompleteManifestRow(t *testing.T) {
	gen := &countingGenerator{response: docResponse}
	svc, _ := newDocService(t, gen)

	inputs := docInputs(1)
	// Current version and a summary, but no themes or entities. The version
	// check alone must not short-circuit the completeness check.
	inputs[0].Row.EnrichmentVersion = domain.DocumentEnrichmentVersion
	inputs[0].Row.DocSummary = "partial"
	inputs[0].Row.TimeSpan = "2014"

	rows, err := svc.EnsureEnriched(context.Background(), inputs, false)
	if err != nil {
		t.Fatal(err)
	}
	if gen.callCount() != 1 {
		t.Fatalf("generator called %d times, want 1 for incomplete manifest row", gen.callCount())
	}
	if len(domain.DecodeStringList(rows[0].Entities)) == 0 {
		t.Errorf("entities still empty after regeneration: %+v", rows[0])
	}
}

func TestDocumentEnrichmentRejectsIncompleteResponse(t *testing.T) {
	gen := &countingGenerator{response: `{"doc_summary": "only a summary"}`}
	svc, _ := newDocService(t, gen)

	_, err := svc.EnsureEnriched(context.Background(), docInputs(1), false)
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("error = %v, want generation failure", err)
	}
	if !strings.Contains(err.Error(), "key_themes") {
		t.Errorf("error %q does not name a missing field", err)
	}
}

func TestDocumentEnrichmentFlushesSurvivorsOnFailure(t *testing.T) {
	gen := &countingGenerator{
		response: docResponse,
		failWhen: func(userPrompt string) bool {
			return strings.Contains(userPrompt, "doc-b")
		},
	}
	svc, manifest := newDocService(t, gen)

	_, err := svc.EnsureEnriched(context.Background(), docInputs(2), false)
	if err == nil {
		t.Fatal("expected failure for doc-b")
	}

	persisted, loadErr := manifest.Load()
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if len(persisted) != 1 || persisted[0].DocID != "doc-a" {
		t.Errorf("persisted rows = %+v, want only doc-a", persisted)
	}
}

func newChunkService(t *testing.T, gen Generator) *ChunkService {
	t.Helper()
	dir := t.TempDir()
	cache := NewCache(filepath.Join(dir, "cache"), domain.ChunkEnrichmentVersion)
	errlog := NewErrorLog(filepath.Join(dir, "errors.jsonl"))
	return NewChunkService(gen, cache, errlog, fakeTokenizer{}, 5, 2, nil)
}

func chunkRows(n int) []domain.ChunkRow {
	rows := make([]domain.ChunkRow, n)
	for i := range rows {
		rows[i] = domain.ChunkRow{
			ID:         "doc::chunk::" + string(rune('0'+i)),
			DocID:      "doc",
			ChunkIndex: i,
			Text:       "some words about startups and ai in this passage",
			Title:      "Interview",
		}
	}
	return rows
}

func TestChunkEnrichmentPopulatesFields(t *testing.T) {
	gen := &countingGenerator{response: chunkResponse}
	svc := newChunkService(t, gen)

	rows, err := svc.EnsureEnriched(context.Background(), chunkRows(3), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for i, row := range rows {
		if row.ChunkIndex != i {
			t.Errorf("row %d out of order: index %d", i, row.ChunkIndex)
		}
		if row.ChunkSummary != "Advice on founders." {
			t.Errorf("row %s summary = %q", row.ID, row.ChunkSummary)
		}
		if got := row.Intents(); len(got) != 1 || got[0] != "what makes a good founder" {
			t.Errorf("row %s intents = %v", row.ID, got)
		}
		if row.ChunkEnrichmentVersion != domain.ChunkEnrichmentVersion {
			t.Errorf("row %s version = %d", row.ID, row.ChunkEnrichmentVersion)
		}
	}
}

func TestChunkEnrichmentClipsLongPassages(t *testing.T) {
	gen := &countingGenerator{response: chunkResponse}
	svc := newChunkService(t, gen) // clip at 5 tokens

	rows := chunkRows(1)
	rows[0].Text = "one two three four five six seven eight"
	if _, err := svc.EnsureEnriched(context.Background(), rows, false); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(gen.lastUser, "w w w w w") || strings.Contains(gen.lastUser, "w w w w w w") {
		t.Errorf("passage not clipped to 5 tokens: %q", gen.lastUser)
	}
}

func TestChunkEnrichmentContinuesPastFailures(t *testing.T) {
	gen := &countingGenerator{
		response: chunkResponse,
		failWhen: func(userPrompt string) bool {
			return strings.Contains(userPrompt, "broken")
		},
	}
	svc := newChunkService(t, gen)

	rows := chunkRows(3)
	rows[1].Text = "broken"

	out, err := svc.EnsureEnriched(context.Background(), rows, false)
	if err == nil {
		t.Fatal("expected failure for the broken chunk")
	}
	if len(out) != 3 {
		t.Fatalf("got %d rows, want all 3 back", len(out))
	}
	if out[0].ChunkSummary == "" || out[2].ChunkSummary == "" {
		t.Error("surviving chunks were not enriched")
	}
	if out[1].ChunkSummary != "" {
		t.Error("failed chunk carries enrichment")
	}
}

func TestParseStructuredUnwrapsFences(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		ok   bool
	}{
		{"plain json", `{"chunk_summary": "s"}`, true},
		{"fenced", "```json\n{\"chunk_summary\": \"s\"}\n```", true},
		{"bare fence", "```\n{\"chunk_summary\": \"s\"}\n```", true},
		{"prose", "Sure! Here is the JSON you asked for.", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var payload ChunkEnrichment
			err := ParseStructured(tc.raw, &payload)
			if tc.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, domain.ErrGeneration) {
				t.Errorf("error = %v, want generation failure", err)
			}
		})
	}
}

func TestCacheVersionGate(t *testing.T) {
	dir := t.TempDir()

	old := NewCache(dir, 1)
	if err := old.Store("doc/with:odd-id", ChunkEnrichment{ChunkSummary: "cached"}); err != nil {
		t.Fatal(err)
	}

	var payload ChunkEnrichment
	if !old.Load("doc/with:odd-id", &payload) {
		t.Fatal("same-version load missed")
	}
	if payload.ChunkSummary != "cached" {
		t.Errorf("payload = %+v", payload)
	}

	current := NewCache(dir, 2)
	if current.Load("doc/with:odd-id", &payload) {
		t.Error("stale-version entry was served")
	}
}
