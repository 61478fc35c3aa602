package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/chatlens/chatlens/pkg/chunking"
	"github.com/chatlens/chatlens/pkg/config"
	"github.com/chatlens/chatlens/pkg/vectordb"
)

// Flusher is implemented by stores that buffer writes.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Service ties the embedder and the vector store together: it indexes chunk
// lists and answers retrieval queries over them.
type Service struct {
	store    VectorStore
	embedder vectordb.Embedder
	cfg      *config.Config
}

// NewService creates a retrieval service.
func NewService(store VectorStore, embedder vectordb.Embedder, cfg *config.Config) *Service {
	return &Service{store: store, embedder: embedder, cfg: cfg}
}

// EmbedAndStore replaces the analysis's vectors with embeddings of the given
// chunks. Old vectors are removed first so a re-run never leaves stale rows.
// Batches embed concurrently, bounded by embedding.concurrency.
func (s *Service) EmbedAndStore(ctx context.Context, analysisID string, chunks []chunking.Chunk) (int, error) {
	if err := s.store.DeleteAll(ctx, analysisID); err != nil {
		return 0, fmt.Errorf("clearing previous vectors: %w", err)
	}
	if len(chunks) == 0 {
		return 0, nil
	}

	batchSize := s.cfg.Embedding.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}
	concurrency := s.cfg.Embedding.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	var mu sync.Mutex
	stored := 0

	for start := 0; start < len(chunks); start += batchSize {
		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Content
			}
			embeddings, err := s.embedder.EmbedBatch(gctx, texts)
			if err != nil {
				return fmt.Errorf("embedding batch at chunk %d: %w", batch[0].ChunkIndex, err)
			}

			rows := make([]StoredChunk, len(batch))
			for i, c := range batch {
				rows[i] = StoredChunk{AnalysisID: analysisID, Chunk: c, Embedding: embeddings[i]}
			}
			if err := s.store.StoreBatch(gctx, rows); err != nil {
				return err
			}

			mu.Lock()
			stored += len(rows)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return stored, err
	}

	if f, ok := s.store.(Flusher); ok {
		if err := f.Flush(ctx); err != nil {
			log.Warn().Err(err).Str("analysis_id", analysisID).Msg("Failed to flush vector store")
		}
	}

	log.Info().Str("analysis_id", analysisID).Int("chunks", stored).Msg("Stored chunk embeddings")
	return stored, nil
}

// Retrieve embeds the query and returns the most similar chunks of the
// analysis, best first. limit <= 0 falls back to retrieval.limit.
func (s *Service) Retrieve(ctx context.Context, analysisID, query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = s.cfg.Retrieval.Limit
	}
	if limit <= 0 {
		limit = 5
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return s.store.Search(ctx, analysisID, embedding, limit)
}

// BuildContext formats retrieval results for a chat prompt. It returns
// NoEmbeddingsSentinel when the analysis has no vectors at all, and
// NoMatchesMessage when it has vectors but nothing matched.
func (s *Service) BuildContext(ctx context.Context, analysisID, query string, limit int) (string, error) {
	exists, err := s.store.Exists(ctx, analysisID)
	if err != nil {
		return "", fmt.Errorf("checking for vectors: %w", err)
	}
	if !exists {
		return NoEmbeddingsSentinel, nil
	}

	results, err := s.Retrieve(ctx, analysisID, query, limit)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return NoMatchesMessage, nil
	}

	sections := make([]string, len(results))
	for i, r := range results {
		sections[i] = fmt.Sprintf("[Relevant Conversation %d]\n%s", i+1, r.Content)
	}
	return strings.Join(sections, "\n\n---\n\n"), nil
}
