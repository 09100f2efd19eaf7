// Package llmclient provides the OpenAI-compatible completion and embedding
// client the engine talks to. Generation calls are paced by a token-bucket
// rate limiter; retry policy is owned by the callers.
package llmclient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/time/rate"
)

// Config selects models and endpoint for the client.
type Config struct {
	BaseURL        string
	Token          string
	Model          string
	EmbeddingModel string
	// RequestsPerSecond paces completion calls. Zero disables pacing.
	RequestsPerSecond float64
}

// Client implements the enrich.Generator and embed.Embedder contracts over
// one OpenAI-compatible endpoint.
type Client struct {
	model    llms.Model
	embedder embeddings.Embedder
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// New creates a Client. The embedder strips newlines before embedding, which
// keeps vectors stable across transcript formatting differences.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithEmbeddingModel(cfg.EmbeddingModel),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Token != "" {
		opts = append(opts, openai.WithToken(cfg.Token))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("llmclient: create client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("llmclient: create embedder: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{model: llm, embedder: embedder, limiter: limiter, logger: logger}, nil
}

// Generate sends a system+user prompt pair and returns the raw model text.
// Callers parse and validate the structured payload.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(userPrompt)},
		},
	}

	resp, err := c.model.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
	if err != nil {
		return "", fmt.Errorf("llmclient: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llmclient: generate: no choices returned")
	}
	return resp.Choices[0].Content, nil
}

// Embed returns one vector per input text, preserving order and length.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := c.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("llmclient: embed %d texts: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("llmclient: embed returned %d vectors for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}
