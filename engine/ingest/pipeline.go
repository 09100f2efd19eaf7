package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/altmanac/altmanac/engine/domain"
	"github.com/altmanac/altmanac/engine/embed"
	"github.com/altmanac/altmanac/engine/enrich"
	"github.com/altmanac/altmanac/engine/semantic"
	"github.com/altmanac/altmanac/engine/store"
	"github.com/altmanac/altmanac/engine/transcript"
	"github.com/altmanac/altmanac/pkg/fn"
)

// VectorIndex is the slice of the vector store the pipeline drives.
type VectorIndex interface {
	EnsureCollection(ctx context.Context, collection string, dims int) error
	Reset(ctx context.Context, collection string, dims int) error
	Upsert(ctx context.Context, collection string, records []semantic.VectorRecord) error
}

// EventPublisher receives the run summary when a run completes. Optional.
type EventPublisher interface {
	PublishRun(ctx context.Context, summary store.RunSummary) error
}

// Pipeline orchestrates the two ingestion modes over the enrichment,
// embedding, storage and index components.
type Pipeline struct {
	TranscriptsDir string
	MetadataDir    string

	Normalizer *transcript.Normalizer
	Chunker    *Chunker
	Documents  *enrich.DocumentService
	Chunks     *enrich.ChunkService
	Embedder   embed.Embedder
	Secondary  *embed.SecondaryService

	Manifest   *store.ManifestStore
	ChunkTable *store.ChunkTable
	RunLog     *store.RunLog

	Index          VectorIndex
	BaseCollection string
	Dims           int
	EmbeddingModel string

	Events EventPublisher
	Logger *slog.Logger
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		return slog.Default()
	}
	return p.Logger
}

// Run executes one ingestion run. Rebuild re-ingests the full corpus into
// fresh collections; append ingests only documents absent from the
// persisted chunk table and never overwrites what is already served.
func (p *Pipeline) Run(ctx context.Context, mode domain.Mode, force bool) (store.RunSummary, error) {
	started := time.Now()

	summary := store.RunSummary{
		Timestamp: started.UTC().Format(time.RFC3339),
		Mode:      mode,
	}
	summary.StampVersions(p.EmbeddingModel)

	var err error
	switch mode {
	case domain.ModeAppend:
		err = p.runAppend(ctx, &summary, force)
	default:
		err = p.runRebuild(ctx, &summary, force)
	}
	if err != nil {
		return summary, err
	}

	summary.DurationSeconds = time.Since(started).Seconds()
	if logErr := p.RunLog.Append(summary); logErr != nil {
		return summary, logErr
	}
	p.publish(ctx, summary)
	p.logger().Info("ingestion run complete",
		"mode", mode, "skipped", summary.Skipped,
		"docs", summary.DocsProcessed, "chunks", summary.ChunksWritten,
		"duration_s", summary.DurationSeconds)
	return summary, nil
}

func (p *Pipeline) runRebuild(ctx context.Context, summary *store.RunSummary, force bool) error {
	inputs, err := p.discoverAndAnalyze()
	if err != nil {
		return err
	}

	enriched, err := p.Documents.EnsureEnriched(ctx, inputs, force)
	if err != nil {
		return err
	}

	chunks, err := p.buildChunks(ctx, enriched, inputs, force)
	if err != nil {
		return err
	}
	if err := p.ChunkTable.Write(chunks); err != nil {
		return err
	}

	payloads, err := p.Secondary.Generate(ctx, chunks, domain.ModeRebuild)
	if err != nil {
		return err
	}
	primary, err := p.primaryRecords(ctx, chunks)
	if err != nil {
		return err
	}

	// Fresh collections before any upsert; a rebuild must never serve
	// points from the previous generation.
	for _, view := range append([]string{domain.ViewPrimary}, embed.SecondaryViews...) {
		if err := p.Index.Reset(ctx, semantic.CollectionName(p.BaseCollection, view), p.Dims); err != nil {
			return err
		}
	}
	if err := p.upsertAll(ctx, summary, primary, payloads); err != nil {
		return err
	}

	summary.DocsProcessed = len(enriched)
	summary.ChunksWritten = len(chunks)
	return nil
}

func (p *Pipeline) runAppend(ctx context.Context, summary *store.RunSummary, force bool) error {
	if !p.ChunkTable.Exists() {
		p.logger().Warn("no chunk table found, append run falls back to a full rebuild")
		summary.Mode = domain.ModeRebuild
		return p.runRebuild(ctx, summary, force)
	}

	inputs, err := p.discoverAndAnalyze()
	if err != nil {
		return err
	}
	enriched, err := p.Documents.EnsureEnriched(ctx, inputs, force)
	if err != nil {
		return err
	}

	existing, err := p.ChunkTable.Load()
	if err != nil {
		return err
	}
	known := make(map[string]struct{}, len(existing))
	for _, row := range existing {
		known[row.DocID] = struct{}{}
	}

	var newInputs []enrich.DocumentInput
	var newRows []domain.ManifestRow
	for i, row := range enriched {
		if _, ok := known[row.DocID]; ok {
			continue
		}
		newRows = append(newRows, row)
		newInputs = append(newInputs, inputs[i])
	}
	summary.DocsSkipped = len(enriched) - len(newRows)

	if len(newRows) == 0 {
		summary.Skipped = true
		p.logger().Info("append run found nothing new", "docs_known", len(enriched))
		return nil
	}

	chunks, err := p.buildChunks(ctx, newRows, newInputs, force)
	if err != nil {
		return err
	}
	if err := p.ChunkTable.Append(chunks); err != nil {
		return err
	}

	payloads, err := p.Secondary.Generate(ctx, chunks, domain.ModeAppend)
	if err != nil {
		return err
	}
	primary, err := p.primaryRecords(ctx, chunks)
	if err != nil {
		return err
	}

	for _, view := range append([]string{domain.ViewPrimary}, embed.SecondaryViews...) {
		if err := p.Index.EnsureCollection(ctx, semantic.CollectionName(p.BaseCollection, view), p.Dims); err != nil {
			return err
		}
	}
	if err := p.upsertAll(ctx, summary, primary, payloads); err != nil {
		return err
	}

	summary.DocsProcessed = len(newRows)
	summary.ChunksWritten = len(chunks)
	return nil
}

// discoverAndAnalyze builds the document inputs for enrichment: one
// manifest row plus transcript analysis per discovered file.
func (p *Pipeline) discoverAndAnalyze() ([]enrich.DocumentInput, error) {
	rows, err := Discover(p.TranscriptsDir, p.MetadataDir)
	if err != nil {
		return nil, err
	}
	inputs := make([]enrich.DocumentInput, 0, len(rows))
	for _, row := range rows {
		text, err := ReadTranscript(row)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, enrich.DocumentInput{
			Row:      row,
			Analysis: p.Normalizer.Analyze(row.DocID, text),
		})
	}
	return inputs, nil
}

// buildChunks chunks each document, denormalizes document metadata onto the
// chunks, and runs chunk-level enrichment.
func (p *Pipeline) buildChunks(ctx context.Context, docs []domain.ManifestRow, inputs []enrich.DocumentInput, force bool) ([]domain.ChunkRow, error) {
	analyses := make(map[string]*transcript.Analysis, len(inputs))
	for _, in := range inputs {
		analyses[in.Row.DocID] = in.Analysis
	}

	var chunks []domain.ChunkRow
	for _, doc := range docs {
		analysis, ok := analyses[doc.DocID]
		if !ok {
			return nil, fmt.Errorf("ingest: no analysis for document %s", doc.DocID)
		}
		for _, chunk := range p.Chunker.Chunk(doc.DocID, analysis.Text) {
			chunk.Title = doc.Title
			chunk.UploadDate = doc.UploadDate
			chunk.URL = doc.URL
			chunk.SourcePath = doc.SourcePath
			chunk.SourceName = doc.SourceName
			chunk.DocSummary = doc.DocSummary
			chunks = append(chunks, chunk)
		}
	}
	return p.Chunks.EnsureEnriched(ctx, chunks, force)
}

// primaryRecords embeds raw chunk text for the primary collection.
func (p *Pipeline) primaryRecords(ctx context.Context, chunks []domain.ChunkRow) ([]semantic.VectorRecord, error) {
	texts := fn.Map(chunks, func(c domain.ChunkRow) string { return c.Text })
	vectors, err := p.Embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("ingest: embed primary chunks: %w", err)
	}

	records := make([]semantic.VectorRecord, len(chunks))
	for i, c := range chunks {
		records[i] = semantic.VectorRecord{
			ID:        c.ID,
			Embedding: vectors[i],
			Document:  c.Text,
			Payload: map[string]any{
				"doc_id":       c.DocID,
				"chunk_index":  c.ChunkIndex,
				"title":        c.Title,
				"upload_date":  c.UploadDate,
				"url":          c.URL,
				"source_field": domain.SourceChunkText,
			},
		}
	}
	return records, nil
}

func (p *Pipeline) upsertAll(ctx context.Context, summary *store.RunSummary, primary []semantic.VectorRecord, payloads map[string]embed.ViewPayload) error {
	summary.VectorCounts = map[string]int{domain.ViewPrimary: len(primary)}

	if err := p.Index.Upsert(ctx, semantic.CollectionName(p.BaseCollection, domain.ViewPrimary), primary); err != nil {
		return err
	}
	for _, view := range embed.SecondaryViews {
		payload := payloads[view]
		records := make([]semantic.VectorRecord, payload.Len())
		for i := range records {
			records[i] = semantic.VectorRecord{
				ID:        payload.IDs[i],
				Embedding: payload.Vectors[i],
				Document:  payload.Documents[i],
				Payload:   payload.Metas[i],
			}
		}
		if err := p.Index.Upsert(ctx, semantic.CollectionName(p.BaseCollection, view), records); err != nil {
			return err
		}
		summary.VectorCounts[view] = len(records)
	}
	return nil
}

func (p *Pipeline) publish(ctx context.Context, summary store.RunSummary) {
	if p.Events == nil {
		return
	}
	if err := p.Events.PublishRun(ctx, summary); err != nil {
		p.logger().Warn("run summary publish failed", "error", err)
	}
}
