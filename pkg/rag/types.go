// Package rag stores conversation chunks as vectors and retrieves the ones
// most relevant to a question. Milvus holds the vectors; any Embedder from
// pkg/vectordb produces them.
package rag

import (
	"context"

	"github.com/chatlens/chatlens/pkg/chunking"
)

// NoEmbeddingsSentinel is returned by BuildContext when an analysis has no
// vectors at all, so callers can distinguish "nothing indexed yet" from
// "nothing matched".
const NoEmbeddingsSentinel = "NO_EMBEDDINGS_FOUND"

// NoMatchesMessage is the context text when vectors exist but none matched.
const NoMatchesMessage = "No relevant messages found."

// SearchResult is one retrieved chunk with its similarity score.
type SearchResult struct {
	Content          string  `json:"content"`
	Sender           string  `json:"sender"`
	ChunkIndex       int     `json:"chunkIndex"`
	StartTimestampMs int64   `json:"startTimestampMs"`
	Similarity       float64 `json:"similarity"`
}

// StoredChunk pairs a chunk with its embedding for insertion.
type StoredChunk struct {
	AnalysisID string
	Chunk      chunking.Chunk
	Embedding  []float32
}

// VectorStore is the persistence boundary for chunk vectors. Implementations
// must make StoreBatch idempotent per analysis: re-running an analysis first
// removes its previous vectors.
type VectorStore interface {
	StoreBatch(ctx context.Context, chunks []StoredChunk) error
	Search(ctx context.Context, analysisID string, embedding []float32, limit int) ([]SearchResult, error)
	DeleteAll(ctx context.Context, analysisID string) error
	Exists(ctx context.Context, analysisID string) (bool, error)
	Count(ctx context.Context, analysisID string) (int, error)
	Close() error
}
