package domain

// Schema and enrichment generation identifiers. Persisted artifacts carry
// these values; a stored tag that differs from the current constant forces
// regeneration (caches) or a full rebuild (tables).
const (
	// ChunkSchemaVersion tracks the required column set of the chunk table.
	ChunkSchemaVersion = 2
	// DocumentEnrichmentVersion tags document-level enrichment payloads.
	DocumentEnrichmentVersion = 3
	// ChunkEnrichmentVersion tags chunk-level enrichment payloads.
	ChunkEnrichmentVersion = 2
	// EmbeddingSetVersion tags every persisted embedding table. All rows in
	// one table must carry the same value.
	EmbeddingSetVersion = "v2"

	// EnrichmentModelName is the default completion model for enrichment.
	EnrichmentModelName = "gpt-4o-mini"
	// EmbeddingModelName is the default embedding model.
	EmbeddingModelName = "text-embedding-3-small"
)

// RequiredChunkColumns is the enrichment column set the chunk table must
// carry for ChunkSchemaVersion. Checked once at load time.
var RequiredChunkColumns = []string{
	"chunk_summary",
	"chunk_intents",
	"chunk_sentiment",
	"chunk_claims",
	"chunk_enrichment_version",
}
