// Package embed turns chunk text and enrichment fields into vectors and
// assembles the per-view payloads the vector index is built from.
package embed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/altmanac/altmanac/pkg/fn"
)

// Embedder produces one vector per input text, preserving order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// BatchEmbedder slices large inputs into model-sized batches and retries
// failed batches with exponential backoff, without an attempt cap. Embedding
// is idempotent, and an ingestion run that gives up on a transient outage
// throws away hours of enrichment work.
type BatchEmbedder struct {
	inner     Embedder
	batchSize int
	logger    *slog.Logger
}

// NewBatchEmbedder wraps inner with batching and retry.
func NewBatchEmbedder(inner Embedder, batchSize int, logger *slog.Logger) *BatchEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 64
	}
	return &BatchEmbedder{inner: inner, batchSize: batchSize, logger: logger}
}

var embedRetry = fn.RetryOpts{
	MaxAttempts: 0,
	InitialWait: time.Second,
	MaxWait:     60 * time.Second,
}

// Embed returns one vector per text. Batches that fail keep retrying until
// they succeed or ctx is cancelled.
func (b *BatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for i, batch := range fn.Chunk(texts, b.batchSize) {
		attempt := 0
		result := fn.Retry(ctx, embedRetry, func(ctx context.Context) fn.Result[[][]float32] {
			attempt++
			vectors, err := b.inner.Embed(ctx, batch)
			if err != nil {
				b.logger.Warn("embedding batch failed, retrying",
					"batch", i, "size", len(batch), "attempt", attempt, "error", err)
				return fn.Err[[][]float32](err)
			}
			return fn.Ok(vectors)
		})
		vectors, err := result.Unwrap()
		if err != nil {
			return nil, fmt.Errorf("embed: batch %d: %w", i, err)
		}
		out = append(out, vectors...)
	}
	return out, nil
}
