// Package config loads and validates the YAML configuration shared by the
// ingestion and backend binaries. Invalid settings fail at load time, before
// any pipeline work starts.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/altmanac/altmanac/engine/domain"
)

// Config is the root configuration object.
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Models     ModelsConfig     `yaml:"models"`
	Index      IndexConfig      `yaml:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Logging    LoggingConfig    `yaml:"logging"`
	Events     EventsConfig     `yaml:"events"`
}

// StorageConfig locates the corpus inputs and persisted artifacts.
type StorageConfig struct {
	TranscriptsDir    string `yaml:"transcripts_dir"`
	MetadataDir       string `yaml:"metadata_dir"`
	ArtifactsDir      string `yaml:"artifacts_dir"`
	ManifestPath      string `yaml:"manifest_path"`
	ChunkMetadataPath string `yaml:"chunk_metadata_path"`
}

// ChunkingConfig sets the token window shape.
type ChunkingConfig struct {
	SizeTokens    int `yaml:"size_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// EnrichmentConfig sets worker pools and prompt budgets.
type EnrichmentConfig struct {
	MaxWorkers      int `yaml:"max_workers"`
	ChunkMaxWorkers int `yaml:"chunk_max_workers"`
	ClipTokens      int `yaml:"clip_tokens"`
	// RequestsPerSecond paces outbound completion calls. Zero disables pacing.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	SnippetSampleSize int     `yaml:"snippet_sample_size"`
}

// EmbeddingConfig sets the embedding model and batching.
type EmbeddingConfig struct {
	Model     string `yaml:"model"`
	BatchSize int    `yaml:"batch_size"`
	Dims      int    `yaml:"dims"`
}

// ModelsConfig selects completion models and the endpoint.
type ModelsConfig struct {
	Enrichment string `yaml:"enrichment"`
	Classifier string `yaml:"classifier"`
	Synthesis  string `yaml:"synthesis"`
	BaseURL    string `yaml:"base_url"`
}

// IndexConfig points at the vector index.
type IndexConfig struct {
	Addr string `yaml:"addr"`
}

// ProfileConfig is one configured retrieval profile.
type ProfileConfig struct {
	Collections []string       `yaml:"collections"`
	Limits      map[string]int `yaml:"limits"`
	Blend       string         `yaml:"blend"`
}

// RetrievalConfig sets the primary collection and profile overrides.
type RetrievalConfig struct {
	CollectionName string                   `yaml:"collection_name"`
	TopK           int                      `yaml:"top_k"`
	Profiles       map[string]ProfileConfig `yaml:"profiles"`
}

// LoggingConfig locates the append-only operational logs.
type LoggingConfig struct {
	SummariesPath        string `yaml:"summaries_path"`
	EnrichmentErrorsPath string `yaml:"enrichment_errors_path"`
	AuditPath            string `yaml:"audit_path"`
}

// EventsConfig enables run-summary publishing over NATS. Empty URL disables.
type EventsConfig struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Load reads, defaults, resolves, and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.resolvePaths(filepath.Dir(path))
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Chunking.SizeTokens == 0 {
		c.Chunking.SizeTokens = 512
	}
	if c.Chunking.OverlapTokens == 0 {
		c.Chunking.OverlapTokens = 64
	}
	if c.Enrichment.MaxWorkers <= 0 {
		c.Enrichment.MaxWorkers = 4
	}
	if c.Enrichment.ClipTokens <= 0 {
		c.Enrichment.ClipTokens = 800
	}
	if c.Enrichment.SnippetSampleSize <= 0 {
		c.Enrichment.SnippetSampleSize = 4
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = domain.EmbeddingModelName
	}
	if c.Embedding.BatchSize <= 0 {
		c.Embedding.BatchSize = 64
	}
	if c.Embedding.Dims <= 0 {
		c.Embedding.Dims = 1536
	}
	if c.Models.Enrichment == "" {
		c.Models.Enrichment = domain.EnrichmentModelName
	}
	if c.Models.Classifier == "" {
		c.Models.Classifier = c.Models.Enrichment
	}
	if c.Models.Synthesis == "" {
		c.Models.Synthesis = c.Models.Enrichment
	}
	if c.Index.Addr == "" {
		c.Index.Addr = "localhost:6334"
	}
	if c.Retrieval.CollectionName == "" {
		c.Retrieval.CollectionName = "altman_chunks"
	}
	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Events.Subject == "" {
		c.Events.Subject = "ingest.runs"
	}
}

func (c *Config) resolvePaths(baseDir string) {
	resolve := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
	resolve(&c.Storage.TranscriptsDir)
	resolve(&c.Storage.MetadataDir)
	resolve(&c.Storage.ArtifactsDir)
	resolve(&c.Storage.ManifestPath)
	resolve(&c.Storage.ChunkMetadataPath)
	resolve(&c.Logging.SummariesPath)
	resolve(&c.Logging.EnrichmentErrorsPath)
	resolve(&c.Logging.AuditPath)
}

// Validate rejects settings that would corrupt a run if discovered later.
func (c *Config) Validate() error {
	if c.Chunking.SizeTokens <= 0 {
		return fmt.Errorf("chunking.size_tokens must be positive, got %d", c.Chunking.SizeTokens)
	}
	if c.Chunking.OverlapTokens < 0 {
		return fmt.Errorf("chunking.overlap_tokens must not be negative, got %d", c.Chunking.OverlapTokens)
	}
	if c.Chunking.SizeTokens <= c.Chunking.OverlapTokens {
		return fmt.Errorf("chunking.size_tokens (%d) must exceed chunking.overlap_tokens (%d): the window would never advance",
			c.Chunking.SizeTokens, c.Chunking.OverlapTokens)
	}
	if c.Storage.TranscriptsDir == "" {
		return fmt.Errorf("storage.transcripts_dir is required")
	}
	if c.Storage.MetadataDir == "" {
		return fmt.Errorf("storage.metadata_dir is required")
	}
	if c.Storage.ArtifactsDir == "" {
		return fmt.Errorf("storage.artifacts_dir is required")
	}
	if c.Storage.ManifestPath == "" {
		return fmt.Errorf("storage.manifest_path is required")
	}
	if c.Storage.ChunkMetadataPath == "" {
		return fmt.Errorf("storage.chunk_metadata_path is required")
	}
	if c.Logging.SummariesPath == "" {
		return fmt.Errorf("logging.summaries_path is required")
	}
	if c.Logging.EnrichmentErrorsPath == "" {
		return fmt.Errorf("logging.enrichment_errors_path is required")
	}
	for name, profile := range c.Retrieval.Profiles {
		if len(profile.Collections) == 0 {
			return fmt.Errorf("retrieval.profiles.%s has no collections", name)
		}
		for _, view := range profile.Collections {
			switch view {
			case domain.ViewPrimary, domain.ViewSummary, domain.ViewIntents, domain.ViewDocsum:
			default:
				return fmt.Errorf("retrieval.profiles.%s references unknown view %q", name, view)
			}
		}
	}
	return nil
}

// ChunkWorkers returns the chunk-enrichment pool width, which falls back to
// the shared enrichment pool width when no override is configured.
func (c *Config) ChunkWorkers() int {
	if c.Enrichment.ChunkMaxWorkers > 0 {
		return c.Enrichment.ChunkMaxWorkers
	}
	return c.Enrichment.MaxWorkers
}

// Profiles converts configured profile overrides into domain profiles.
func (c *Config) Profiles() map[string]domain.RetrievalProfile {
	out := make(map[string]domain.RetrievalProfile, len(c.Retrieval.Profiles))
	for name, p := range c.Retrieval.Profiles {
		out[name] = domain.RetrievalProfile{
			Name:        name,
			Collections: append([]string(nil), p.Collections...),
			Limits:      p.Limits,
			Blend:       p.Blend,
		}
	}
	return out
}
