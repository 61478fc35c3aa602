package vectordb

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiEmbedder generates embeddings through the Gemini API.
type GeminiEmbedder struct {
	client    *genai.Client
	model     *genai.EmbeddingModel
	dimension int
}

// GeminiConfig holds the Gemini embedding settings.
type GeminiConfig struct {
	APIKey    string
	Model     string
	Dimension int
}

// NewGeminiEmbedder creates a Gemini embedding client. The caller owns the
// returned embedder and should Close it when done.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini embedder requires an API key")
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 1536
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &GeminiEmbedder{
		client:    client,
		model:     client.EmbeddingModel(cfg.Model),
		dimension: cfg.Dimension,
	}, nil
}

// Embed generates an embedding for a single text.
func (g *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := g.model.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("embedding content: %w", err)
	}
	if resp.Embedding == nil {
		return nil, fmt.Errorf("no embedding returned")
	}
	if err := g.checkDimension(resp.Embedding.Values); err != nil {
		return nil, err
	}
	return resp.Embedding.Values, nil
}

// EmbedBatch generates embeddings for multiple texts in one API call.
func (g *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batch := g.model.NewBatch()
	for _, text := range texts {
		batch = batch.AddContent(genai.Text(text))
	}

	resp, err := g.model.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("embedding batch: %w", err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(resp.Embeddings))
	}

	result := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil {
			return nil, fmt.Errorf("missing embedding for index %d", i)
		}
		if err := g.checkDimension(emb.Values); err != nil {
			return nil, err
		}
		result[i] = emb.Values
	}
	return result, nil
}

// Dimension returns the embedding dimension.
func (g *GeminiEmbedder) Dimension() int {
	return g.dimension
}

// IsAvailable probes the API with a one-token embedding request.
func (g *GeminiEmbedder) IsAvailable(ctx context.Context) bool {
	_, err := g.model.EmbedContent(ctx, genai.Text("ping"))
	return err == nil
}

// Close releases the underlying API client.
func (g *GeminiEmbedder) Close() error {
	return g.client.Close()
}

func (g *GeminiEmbedder) checkDimension(values []float32) error {
	if g.dimension > 0 && len(values) != g.dimension {
		return fmt.Errorf("embedding dimension mismatch: expected %d, got %d", g.dimension, len(values))
	}
	return nil
}
