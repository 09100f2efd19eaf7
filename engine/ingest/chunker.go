// Package ingest drives the corpus pipeline: discovery, chunking, and the
// rebuild/append orchestration that keeps the artifacts and vector index
// consistent.
package ingest

import (
	"fmt"

	"github.com/altmanac/altmanac/engine/domain"
	"github.com/altmanac/altmanac/engine/transcript"
)

// ChunkID renders the stable chunk identifier for a document and index.
func ChunkID(docID string, index int) string {
	return fmt.Sprintf("%s::chunk::%d", docID, index)
}

// Chunker slices normalized transcripts into overlapping token windows.
type Chunker struct {
	tok     transcript.Tokenizer
	size    int
	overlap int
}

// NewChunker creates a Chunker. The window size must exceed the overlap or
// the window would never advance.
func NewChunker(tok transcript.Tokenizer, sizeTokens, overlapTokens int) (*Chunker, error) {
	if sizeTokens <= 0 {
		return nil, fmt.Errorf("ingest: chunk size must be positive, got %d", sizeTokens)
	}
	if overlapTokens < 0 {
		return nil, fmt.Errorf("ingest: chunk overlap must not be negative, got %d", overlapTokens)
	}
	if sizeTokens <= overlapTokens {
		return nil, fmt.Errorf("ingest: chunk size %d must exceed overlap %d", sizeTokens, overlapTokens)
	}
	return &Chunker{tok: tok, size: sizeTokens, overlap: overlapTokens}, nil
}

// Chunk splits text into token windows of the configured size, each window
// starting overlap tokens before the previous one ended. Chunk text is
// decoded from the token slice, so boundaries are exact in token space.
// Empty text yields no chunks.
func (c *Chunker) Chunk(docID, text string) []domain.ChunkRow {
	tokens := c.tok.Encode(text)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []domain.ChunkRow
	start := 0
	for start < len(tokens) {
		end := min(start+c.size, len(tokens))
		window := tokens[start:end]
		chunks = append(chunks, domain.ChunkRow{
			ID:         ChunkID(docID, len(chunks)),
			DocID:      docID,
			ChunkIndex: len(chunks),
			Text:       c.tok.Decode(window),
			Tokens:     len(window),
			StartToken: start,
			EndToken:   end,
		})
		if end == len(tokens) {
			break
		}
		start = max(end-c.overlap, 0)
	}
	return chunks
}
