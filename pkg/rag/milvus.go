package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/rs/zerolog/log"

	"github.com/chatlens/chatlens/pkg/config"
	"github.com/chatlens/chatlens/pkg/util"
)

// MilvusStore keeps chunk vectors in a Milvus collection, one row per chunk,
// partitioned logically by analysis_id.
type MilvusStore struct {
	client     client.Client
	collection string
	cfg        *config.Config
}

// NewMilvusStore connects to Milvus and ensures the chunk collection exists,
// is indexed, and is loaded.
func NewMilvusStore(ctx context.Context, cfg *config.Config) (*MilvusStore, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: cfg.Milvus.Address,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to Milvus: %w", err)
	}
	needsClose := true
	defer func() {
		if needsClose {
			_ = c.Close()
		}
	}()

	s := &MilvusStore{
		client:     c,
		collection: cfg.Milvus.Collection,
		cfg:        cfg,
	}
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	needsClose = false
	return s, nil
}

func (s *MilvusStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("checking collection existence: %w", err)
	}

	if !exists {
		if err := s.createCollection(ctx); err != nil {
			return err
		}
		return nil
	}

	loaded, err := s.client.GetLoadState(ctx, s.collection, nil)
	if err != nil {
		return fmt.Errorf("checking collection load state: %w", err)
	}
	if loaded != entity.LoadStateLoaded {
		if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
			return fmt.Errorf("loading collection: %w", err)
		}
	}
	return nil
}

func (s *MilvusStore) createCollection(ctx context.Context) error {
	dim := s.cfg.Embedding.Dimension

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "Chat conversation chunks with embeddings",
		Fields: []*entity.Field{
			{
				Name:       "embedding_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "analysis_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "8192"},
			},
			{
				Name:       "sender",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "256"},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt32,
			},
			{
				Name:     "start_timestamp_ms",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "end_timestamp_ms",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "message_count",
				DataType: entity.FieldTypeInt32,
			},
			{
				Name:       "embedding",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", dim)},
			},
		},
	}

	if err := s.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(
		milvusMetric(s.cfg.Milvus.Index.Metric),
		s.cfg.Milvus.Index.M,
		s.cfg.Milvus.Index.EfConstruction,
	)
	if err != nil {
		return fmt.Errorf("creating index params: %w", err)
	}
	if err := s.client.CreateIndex(ctx, s.collection, "embedding", idx, false); err != nil {
		return fmt.Errorf("creating index: %w", err)
	}

	if err := s.client.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("loading collection: %w", err)
	}

	log.Info().
		Str("collection", s.collection).
		Int("dim", dim).
		Int("m", s.cfg.Milvus.Index.M).
		Int("ef_construction", s.cfg.Milvus.Index.EfConstruction).
		Msg("Created Milvus collection with HNSW index")
	return nil
}

// StoreBatch upserts chunk rows. Primary keys are analysis-scoped, so a
// re-run with the same analysis overwrites its own rows.
func (s *MilvusStore) StoreBatch(ctx context.Context, chunks []StoredChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	ids := make([]string, len(chunks))
	analysisIDs := make([]string, len(chunks))
	contents := make([]string, len(chunks))
	senders := make([]string, len(chunks))
	chunkIndexes := make([]int32, len(chunks))
	startTimestamps := make([]int64, len(chunks))
	endTimestamps := make([]int64, len(chunks))
	messageCounts := make([]int32, len(chunks))
	embeddings := make([][]float32, len(chunks))

	for i, c := range chunks {
		ids[i] = fmt.Sprintf("%s_%d", c.AnalysisID, c.Chunk.ChunkIndex)
		analysisIDs[i] = c.AnalysisID
		contents[i] = util.TruncateExact(c.Chunk.Content, 8191)
		senders[i] = util.TruncateExact(c.Chunk.Sender, 255)
		chunkIndexes[i] = int32(c.Chunk.ChunkIndex)
		startTimestamps[i] = c.Chunk.StartTimestampMs
		endTimestamps[i] = c.Chunk.EndTimestampMs
		messageCounts[i] = int32(c.Chunk.MessageCount)
		embeddings[i] = c.Embedding
	}

	cols := []entity.Column{
		entity.NewColumnVarChar("embedding_id", ids),
		entity.NewColumnVarChar("analysis_id", analysisIDs),
		entity.NewColumnVarChar("content", contents),
		entity.NewColumnVarChar("sender", senders),
		entity.NewColumnInt32("chunk_index", chunkIndexes),
		entity.NewColumnInt64("start_timestamp_ms", startTimestamps),
		entity.NewColumnInt64("end_timestamp_ms", endTimestamps),
		entity.NewColumnInt32("message_count", messageCounts),
		entity.NewColumnFloatVector("embedding", s.cfg.Embedding.Dimension, embeddings),
	}

	if _, err := s.client.Upsert(ctx, s.collection, "", cols...); err != nil {
		return fmt.Errorf("upserting %d chunks: %w", len(chunks), err)
	}
	return nil
}

// Search returns the limit most similar chunks of one analysis, best first.
func (s *MilvusStore) Search(ctx context.Context, analysisID string, embedding []float32, limit int) ([]SearchResult, error) {
	sp, err := entity.NewIndexHNSWSearchParam(s.cfg.Milvus.Search.Ef)
	if err != nil {
		return nil, fmt.Errorf("creating search params: %w", err)
	}

	results, err := s.client.Search(
		ctx,
		s.collection,
		nil,
		analysisExpr(analysisID),
		[]string{"content", "sender", "chunk_index", "start_timestamp_ms"},
		[]entity.Vector{entity.FloatVector(embedding)},
		"embedding",
		milvusMetric(s.cfg.Milvus.Index.Metric),
		limit,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("Milvus search: %w", err)
	}
	if len(results) == 0 {
		return []SearchResult{}, nil
	}

	hits := make([]SearchResult, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		hit := SearchResult{
			Similarity: float64(results[0].Scores[i]),
		}
		for _, field := range results[0].Fields {
			switch field.Name() {
			case "content":
				if col, ok := field.(*entity.ColumnVarChar); ok {
					val, err := col.ValueByIdx(i)
					if err != nil {
						return nil, fmt.Errorf("extracting content at idx %d: %w", i, err)
					}
					hit.Content = val
				}
			case "sender":
				if col, ok := field.(*entity.ColumnVarChar); ok {
					val, err := col.ValueByIdx(i)
					if err != nil {
						return nil, fmt.Errorf("extracting sender at idx %d: %w", i, err)
					}
					hit.Sender = val
				}
			case "chunk_index":
				if col, ok := field.(*entity.ColumnInt32); ok {
					val, err := col.ValueByIdx(i)
					if err != nil {
						return nil, fmt.Errorf("extracting chunk_index at idx %d: %w", i, err)
					}
					hit.ChunkIndex = int(val)
				}
			case "start_timestamp_ms":
				if col, ok := field.(*entity.ColumnInt64); ok {
					val, err := col.ValueByIdx(i)
					if err != nil {
						return nil, fmt.Errorf("extracting start_timestamp_ms at idx %d: %w", i, err)
					}
					hit.StartTimestampMs = val
				}
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteAll removes every vector belonging to one analysis. Rows are
// deleted by primary key: query the IDs first, then delete with an
// in-expression.
func (s *MilvusStore) DeleteAll(ctx context.Context, analysisID string) error {
	ids, err := s.queryIDs(ctx, analysisID, 0)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = fmt.Sprintf("%q", id)
	}
	expr := fmt.Sprintf("embedding_id in [%s]", strings.Join(quoted, ", "))
	if err := s.client.Delete(ctx, s.collection, "", expr); err != nil {
		return fmt.Errorf("deleting %d vectors: %w", len(ids), err)
	}

	log.Debug().Str("analysis_id", analysisID).Int("count", len(ids)).Msg("Deleted analysis vectors")
	return nil
}

// Exists reports whether the analysis has at least one vector.
func (s *MilvusStore) Exists(ctx context.Context, analysisID string) (bool, error) {
	ids, err := s.queryIDs(ctx, analysisID, 1)
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// Count returns the number of vectors stored for the analysis.
func (s *MilvusStore) Count(ctx context.Context, analysisID string) (int, error) {
	ids, err := s.queryIDs(ctx, analysisID, 0)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// Flush forces buffered inserts to become queryable.
func (s *MilvusStore) Flush(ctx context.Context) error {
	return s.client.Flush(ctx, s.collection, false)
}

// Close closes the Milvus connection.
func (s *MilvusStore) Close() error {
	return s.client.Close()
}

func (s *MilvusStore) queryIDs(ctx context.Context, analysisID string, limit int64) ([]string, error) {
	opts := []client.SearchQueryOptionFunc{client.WithSearchQueryConsistencyLevel(entity.ClStrong)}
	if limit > 0 {
		opts = append(opts, client.WithLimit(limit))
	}

	rs, err := s.client.Query(ctx, s.collection, nil, analysisExpr(analysisID), []string{"embedding_id"}, opts...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}

	for _, col := range rs {
		if col.Name() != "embedding_id" {
			continue
		}
		vc, ok := col.(*entity.ColumnVarChar)
		if !ok {
			return nil, fmt.Errorf("unexpected column type for embedding_id")
		}
		return vc.Data(), nil
	}
	return nil, nil
}

func analysisExpr(analysisID string) string {
	// IDs are UUIDs; anything else must not reach the filter expression verbatim.
	return fmt.Sprintf(`analysis_id == %q`, strings.ReplaceAll(analysisID, `"`, ""))
}

func milvusMetric(metric string) entity.MetricType {
	switch strings.ToUpper(strings.TrimSpace(metric)) {
	case "L2":
		return entity.L2
	case "IP", "INNER_PRODUCT":
		return entity.IP
	case "COSINE":
		return entity.COSINE
	default:
		return entity.COSINE
	}
}
