package semantic

import (
	"github.com/google/uuid"

	"github.com/altmanac/altmanac/engine/domain"
)

// VectorRecord is a single vector to store, identified by a logical id
// (chunk id or doc id). The point id written to the index is a deterministic
// UUID derived from the logical id, so re-upserting the same record is a
// no-op overwrite rather than a duplicate.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Document  string
	Payload   map[string]any
}

// Hit is a single similarity search result. Score is cosine similarity in
// [0, 1]; Distance is 1 - Score, so results sort ascending by distance.
type Hit struct {
	ID         string            `json:"id"`
	Document   string            `json:"document"`
	DocID      string            `json:"doc_id"`
	Score      float32           `json:"score"`
	Distance   float32           `json:"distance"`
	ChunkIndex int               `json:"chunk_index"`
	Meta       map[string]string `json:"meta"`
}

var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("altmanac/points"))

// PointID derives the deterministic point UUID for a logical id within a
// collection.
func PointID(collection, logicalID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(collection+"/"+logicalID)).String()
}

// CollectionName maps a retrieval view onto its collection. The primary
// view owns the base name; secondary views get a suffix.
func CollectionName(base, view string) string {
	switch view {
	case domain.ViewSummary:
		return base + "_summary"
	case domain.ViewIntents:
		return base + "_intents"
	case domain.ViewDocsum:
		return base + "_docsum"
	default:
		return base
	}
}
