// Package app wires the engine's components from configuration into one
// explicit application context, constructed once at startup and handed to
// the binaries. Nothing in the engine reaches for process-wide singletons.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/nats-io/nats.go"

	"github.com/altmanac/altmanac/config"
	"github.com/altmanac/altmanac/engine/answer"
	"github.com/altmanac/altmanac/engine/domain"
	"github.com/altmanac/altmanac/engine/embed"
	"github.com/altmanac/altmanac/engine/enrich"
	"github.com/altmanac/altmanac/engine/ingest"
	"github.com/altmanac/altmanac/engine/retrieve"
	"github.com/altmanac/altmanac/engine/semantic"
	"github.com/altmanac/altmanac/engine/store"
	"github.com/altmanac/altmanac/engine/transcript"
	"github.com/altmanac/altmanac/pkg/llmclient"
	"github.com/altmanac/altmanac/pkg/natsutil"
	"github.com/altmanac/altmanac/pkg/tokenizer"
)

// App is the application context shared by the binaries.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Tokenizer  *tokenizer.Codec
	Normalizer *transcript.Normalizer
	Client     *llmclient.Client
	Vectors    *semantic.VectorStore

	Manifest   *store.ManifestStore
	ChunkTable *store.ChunkTable
	Embeddings *store.EmbeddingTables
	RunLog     *store.RunLog

	nc *nats.Conn
}

// New constructs the application context. Fails fast on anything that would
// make later work impossible: unreachable index, bad tokenizer encoding,
// unbuildable client.
func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tok, err := tokenizer.New("")
	if err != nil {
		return nil, err
	}

	client, err := llmclient.New(llmclient.Config{
		BaseURL:           cfg.Models.BaseURL,
		Token:             os.Getenv("OPENAI_API_KEY"),
		Model:             cfg.Models.Enrichment,
		EmbeddingModel:    cfg.Embedding.Model,
		RequestsPerSecond: cfg.Enrichment.RequestsPerSecond,
	}, logger)
	if err != nil {
		return nil, err
	}

	vectors, err := semantic.New(cfg.Index.Addr)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Tokenizer:  tok,
		Normalizer: transcript.NewNormalizer(tok),
		Client:     client,
		Vectors:    vectors,
		Manifest:   store.NewManifestStore(cfg.Storage.ManifestPath),
		ChunkTable: store.NewChunkTable(cfg.Storage.ChunkMetadataPath),
		Embeddings: store.NewEmbeddingTables(cfg.Storage.ArtifactsDir),
		RunLog:     store.NewRunLog(cfg.Logging.SummariesPath),
	}

	if cfg.Events.URL != "" {
		nc, err := nats.Connect(cfg.Events.URL)
		if err != nil {
			// Event publishing is observability, not correctness.
			logger.Warn("nats connect failed, run summaries will not be published", "url", cfg.Events.URL, "error", err)
		} else {
			a.nc = nc
		}
	}
	return a, nil
}

// Close releases the context's connections.
func (a *App) Close() {
	if a.nc != nil {
		a.nc.Close()
	}
	if a.Vectors != nil {
		if err := a.Vectors.Close(); err != nil {
			a.Logger.Warn("closing vector store", "error", err)
		}
	}
}

// Pipeline assembles the ingestion pipeline.
func (a *App) Pipeline() (*ingest.Pipeline, error) {
	cfg := a.Config

	chunker, err := ingest.NewChunker(a.Tokenizer, cfg.Chunking.SizeTokens, cfg.Chunking.OverlapTokens)
	if err != nil {
		return nil, err
	}

	errlog := enrich.NewErrorLog(cfg.Logging.EnrichmentErrorsPath)
	docCache := enrich.NewCache(filepath.Join(cfg.Storage.ArtifactsDir, "cache", "docs"), domain.DocumentEnrichmentVersion)
	chunkCache := enrich.NewCache(filepath.Join(cfg.Storage.ArtifactsDir, "cache", "chunks"), domain.ChunkEnrichmentVersion)
	batchEmbedder := embed.NewBatchEmbedder(a.Client, cfg.Embedding.BatchSize, a.Logger)

	p := &ingest.Pipeline{
		TranscriptsDir: cfg.Storage.TranscriptsDir,
		MetadataDir:    cfg.Storage.MetadataDir,
		Normalizer:     a.Normalizer,
		Chunker:        chunker,
		Documents: enrich.NewDocumentService(a.Client, docCache, errlog, a.Manifest,
			cfg.Enrichment.MaxWorkers, cfg.Enrichment.SnippetSampleSize, a.Logger),
		Chunks: enrich.NewChunkService(a.Client, chunkCache, errlog, a.Tokenizer,
			cfg.Enrichment.ClipTokens, cfg.ChunkWorkers(), a.Logger),
		Embedder:       batchEmbedder,
		Secondary:      embed.NewSecondaryService(batchEmbedder, a.Embeddings, cfg.Embedding.Model, a.Logger),
		Manifest:       a.Manifest,
		ChunkTable:     a.ChunkTable,
		RunLog:         a.RunLog,
		Index:          a.Vectors,
		BaseCollection: cfg.Retrieval.CollectionName,
		Dims:           cfg.Embedding.Dims,
		EmbeddingModel: cfg.Embedding.Model,
		Logger:         a.Logger,
	}
	if a.nc != nil {
		p.Events = &natsPublisher{nc: a.nc, subject: cfg.Events.Subject}
	}
	return p, nil
}

// Retriever loads the persisted chunk table and assembles the retriever.
// The run-log version gate runs first; serving artifacts from a different
// generation is worse than refusing to start.
func (a *App) Retriever() (*retrieve.Retriever, *store.ChunkStore, error) {
	if err := a.RunLog.VerifyVersions(a.Config.Embedding.Model); err != nil {
		return nil, nil, err
	}
	rows, err := a.ChunkTable.Load()
	if err != nil {
		return nil, nil, err
	}
	chunks := store.NewChunkStore(rows)
	if chunks.Len() == 0 {
		return nil, nil, fmt.Errorf("app: chunk table %s is empty, run an ingest first", a.ChunkTable.Path())
	}

	r := retrieve.New(a.Vectors, a.Client, chunks, a.Config.Profiles(),
		a.Config.Retrieval.CollectionName, a.Config.Retrieval.TopK, a.Logger)
	return r, chunks, nil
}

// Answer assembles the classification and synthesis service.
func (a *App) Answer() *answer.Service {
	return answer.NewService(a.Client, a.Logger)
}

// Auditor assembles the corpus auditor.
func (a *App) Auditor() *ingest.Auditor {
	return ingest.NewAuditor(a.Normalizer, a.Logger)
}

// natsPublisher publishes run summaries over NATS with trace propagation.
type natsPublisher struct {
	nc      *nats.Conn
	subject string
}

func (p *natsPublisher) PublishRun(ctx context.Context, summary store.RunSummary) error {
	return natsutil.Publish(ctx, p.nc, p.subject, summary)
}
