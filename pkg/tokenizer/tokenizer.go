// Package tokenizer wraps tiktoken so every component that measures or
// slices text (normalizer, chunker, enrichment clipping) shares one
// deterministic token stream.
package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding matches the embedding models the pipeline targets.
const DefaultEncoding = "cl100k_base"

// Codec encodes and decodes text against a fixed BPE encoding.
type Codec struct {
	enc *tiktoken.Tiktoken
}

// New creates a Codec for the named encoding.
func New(encoding string) (*Codec, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load encoding %s: %w", encoding, err)
	}
	return &Codec{enc: enc}, nil
}

// Encode converts text to token ids.
func (c *Codec) Encode(text string) []int {
	return c.enc.Encode(text, nil, nil)
}

// Decode converts token ids back to text.
func (c *Codec) Decode(tokens []int) string {
	return c.enc.Decode(tokens)
}

// Count returns the number of tokens in text.
func (c *Codec) Count(text string) int {
	return len(c.Encode(text))
}
