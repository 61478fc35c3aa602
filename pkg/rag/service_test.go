package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/chatlens/chatlens/pkg/chunking"
	"github.com/chatlens/chatlens/pkg/config"
)

// fakeStore is an in-memory VectorStore keyed by analysis ID.
type fakeStore struct {
	mu      sync.Mutex
	rows    map[string][]StoredChunk
	flushed int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string][]StoredChunk)}
}

func (f *fakeStore) StoreBatch(_ context.Context, chunks []StoredChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		f.rows[c.AnalysisID] = append(f.rows[c.AnalysisID], c)
	}
	return nil
}

func (f *fakeStore) Search(_ context.Context, analysisID string, embedding []float32, limit int) ([]SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SearchResult
	for _, c := range f.rows[analysisID] {
		out = append(out, SearchResult{
			Content:    c.Chunk.Content,
			Sender:     c.Chunk.Sender,
			ChunkIndex: c.Chunk.ChunkIndex,
			// Toy similarity: matching first components score higher.
			Similarity: 1 - abs32(c.Embedding[0]-embedding[0]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) DeleteAll(_ context.Context, analysisID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rows, analysisID)
	return nil
}

func (f *fakeStore) Exists(_ context.Context, analysisID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[analysisID]) > 0, nil
}

func (f *fakeStore) Count(_ context.Context, analysisID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows[analysisID]), nil
}

func (f *fakeStore) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
	return nil
}

func (f *fakeStore) Close() error { return nil }

func abs32(v float32) float64 {
	if v < 0 {
		return float64(-v)
	}
	return float64(v)
}

// fakeEmbedder maps each text to a deterministic 2-dim vector.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text) % 7), 1}, nil
}

func (e fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int { return 2 }

func (fakeEmbedder) IsAvailable(context.Context) bool { return true }

func testService(store VectorStore) *Service {
	cfg := config.Default()
	cfg.Embedding.BatchSize = 3
	cfg.Embedding.Concurrency = 2
	cfg.Retrieval.Limit = 5
	return NewService(store, fakeEmbedder{}, cfg)
}

func makeChunks(n int) []chunking.Chunk {
	out := make([]chunking.Chunk, n)
	for i := range out {
		out[i] = chunking.Chunk{
			Content:      fmt.Sprintf("chunk content %d", i),
			Sender:       "mixed",
			ChunkIndex:   i,
			MessageCount: 7,
		}
	}
	return out
}

func TestEmbedAndStoreCountMatchesChunks(t *testing.T) {
	store := newFakeStore()
	svc := testService(store)
	ctx := context.Background()

	stored, err := svc.EmbedAndStore(ctx, "analysis-1", makeChunks(10))
	if err != nil {
		t.Fatalf("EmbedAndStore: %v", err)
	}
	if stored != 10 {
		t.Errorf("stored = %d, want 10", stored)
	}
	count, err := store.Count(ctx, "analysis-1")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 10 {
		t.Errorf("store holds %d rows, want 10", count)
	}
	if store.flushed == 0 {
		t.Error("store was never flushed")
	}
}

func TestEmbedAndStoreIsIdempotentPerAnalysis(t *testing.T) {
	store := newFakeStore()
	svc := testService(store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.EmbedAndStore(ctx, "analysis-1", makeChunks(7)); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}

	count, _ := store.Count(ctx, "analysis-1")
	if count != 7 {
		t.Errorf("after re-run store holds %d rows, want 7", count)
	}
}

func TestEmbedAndStoreIsolatesAnalyses(t *testing.T) {
	store := newFakeStore()
	svc := testService(store)
	ctx := context.Background()

	if _, err := svc.EmbedAndStore(ctx, "analysis-1", makeChunks(4)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.EmbedAndStore(ctx, "analysis-2", makeChunks(6)); err != nil {
		t.Fatal(err)
	}

	c1, _ := store.Count(ctx, "analysis-1")
	c2, _ := store.Count(ctx, "analysis-2")
	if c1 != 4 || c2 != 6 {
		t.Errorf("counts = %d, %d, want 4, 6", c1, c2)
	}

	results, err := svc.Retrieve(ctx, "analysis-1", "question", 100)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 4 {
		t.Errorf("retrieved %d results from analysis-1, want 4", len(results))
	}
}

func TestRetrieveHonorsLimitAndOrder(t *testing.T) {
	store := newFakeStore()
	svc := testService(store)
	ctx := context.Background()

	if _, err := svc.EmbedAndStore(ctx, "analysis-1", makeChunks(10)); err != nil {
		t.Fatal(err)
	}

	results, err := svc.Retrieve(ctx, "analysis-1", "what happened", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results not sorted by similarity: %v", results)
		}
	}
}

func TestBuildContextSentinelWhenNoVectors(t *testing.T) {
	svc := testService(newFakeStore())

	got, err := svc.BuildContext(context.Background(), "missing", "anything", 5)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if got != NoEmbeddingsSentinel {
		t.Errorf("context = %q, want sentinel", got)
	}
}

func TestBuildContextFormatting(t *testing.T) {
	store := newFakeStore()
	svc := testService(store)
	ctx := context.Background()

	if _, err := svc.EmbedAndStore(ctx, "analysis-1", makeChunks(2)); err != nil {
		t.Fatal(err)
	}

	got, err := svc.BuildContext(ctx, "analysis-1", "question", 2)
	if err != nil {
		t.Fatalf("BuildContext: %v", err)
	}
	if !strings.HasPrefix(got, "[Relevant Conversation 1]\n") {
		t.Errorf("context missing first section header:\n%s", got)
	}
	if !strings.Contains(got, "\n\n---\n\n[Relevant Conversation 2]\n") {
		t.Errorf("context missing separator or second header:\n%s", got)
	}
}
