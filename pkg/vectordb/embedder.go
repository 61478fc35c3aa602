// Package vectordb provides embedding clients behind a common Embedder
// interface. Two providers are supported: Gemini's embedding API and any
// OpenAI-compatible endpoint (OpenAI itself, LM Studio, Ollama).
package vectordb

import (
	"context"
	"fmt"

	"github.com/chatlens/chatlens/pkg/config"
)

// Embedder turns text into fixed-dimension vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	IsAvailable(ctx context.Context) bool
}

// New builds the Embedder named by the config. apiKey may be empty for
// local OpenAI-compatible servers.
func New(ctx context.Context, cfg config.EmbeddingConfig, apiKey string) (Embedder, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiEmbedder(ctx, GeminiConfig{
			APIKey:    apiKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		})
	case "openai":
		return NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:   cfg.BaseURL,
			APIKey:    apiKey,
			Model:     cfg.Model,
			Dimension: cfg.Dimension,
		}), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
