package semantic

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/profileqa/internal/config"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// OpenAIEmbedder embeds text with an OpenAI-compatible embeddings endpoint.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
}

// NewOpenAIEmbedder creates an embedder from cfg. Either an API key or a
// base URL (for self-hosted compatible servers) is required.
func NewOpenAIEmbedder(cfg config.EmbeddingConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding api key or base url is required")
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	c := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		c.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{client: openai.NewClientWithConfig(c), model: cfg.Model}, nil
}

// Embed returns the embedding of text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return resp.Data[0].Embedding, nil
}
