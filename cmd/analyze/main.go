// analyze runs a chat export through the full pipeline: parse, compute
// statistics, generate AI insights, and index the conversation in Milvus
// for retrieval. The result is stored on a new analysis row in SQLite.
//
// Usage:
//
//	analyze -file export.json -platform telegram
//	analyze -file chat.txt -platform whatsapp -name "Alice & Bob"
//	analyze -file messages.json -platform instagram -no-index
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatlens/chatlens/pkg/chatstats"
	"github.com/chatlens/chatlens/pkg/chunking"
	"github.com/chatlens/chatlens/pkg/config"
	"github.com/chatlens/chatlens/pkg/insights"
	"github.com/chatlens/chatlens/pkg/pipeline"
	"github.com/chatlens/chatlens/pkg/rag"
	"github.com/chatlens/chatlens/pkg/storage"
	"github.com/chatlens/chatlens/pkg/vectordb"
)

var (
	filePath = flag.String("file", "", "Path to the chat export file (required)")
	platform = flag.String("platform", "telegram", "Export platform: telegram, whatsapp or instagram")
	name     = flag.String("name", "", "Display name for the analysis (defaults to the file name)")
	dbPath   = flag.String("db", "", "Path to SQLite database (defaults to database.sqlite from config)")
	cfgPath  = flag.String("config", "", "Path to chatlens.yaml (auto-detected if not specified)")
	noIndex  = flag.Bool("no-index", false, "Skip embedding generation and Milvus indexing")
	withAI   = flag.Bool("insights", true, "Generate AI insights (needs GEMINI_API_KEY)")
	pretty   = flag.Bool("pretty", false, "Print the full stats JSON to stdout")
	debug    = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	_ = godotenv.Load()

	if *filePath == "" {
		flag.Usage()
		log.Fatal().Msg("-file is required")
	}
	pf := chatstats.Platform(*platform)
	switch pf {
	case chatstats.PlatformTelegram, chatstats.PlatformWhatsApp, chatstats.PlatformInstagram:
	default:
		log.Fatal().Str("platform", *platform).Msg("Unknown platform")
	}

	cfg, err := config.LoadFromFlagOrDir(*cfgPath, ".")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	sqlitePath := *dbPath
	if sqlitePath == "" {
		sqlitePath = cfg.Database.SQLite
	}
	if sqlitePath == "" {
		log.Fatal().Msg("SQLite database path is empty (set -db or database.sqlite in chatlens.yaml)")
	}

	store, err := storage.New(sqlitePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", sqlitePath).Msg("Failed to open SQLite database")
	}
	defer store.Close()

	ctx := context.Background()

	indexer, closeIndexer, err := buildIndexer(ctx, cfg, *noIndex)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up embedding pipeline")
	}
	defer closeIndexer()

	var augmenter insights.Augmenter
	if *withAI {
		augmenter = buildAugmenter(ctx, cfg)
	}
	if a, ok := augmenter.(*insights.GeminiAugmenter); ok {
		defer a.Close()
	}

	analysisName := *name
	if analysisName == "" {
		analysisName = *filePath
	}
	analysis, err := store.CreateAnalysis(ctx, pf, analysisName)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create analysis")
	}
	log.Info().Str("analysis_id", analysis.ID).Str("platform", string(pf)).Msg("Created analysis")

	// The export stays on disk; only the worker path deletes sources.
	p := pipeline.New(store, keepFiles{}, indexer, augmenter, cfg)
	if err := p.Process(ctx, pipeline.Trigger{
		AnalysisID:     analysis.ID,
		SourceLocation: *filePath,
		Platform:       pf,
	}); err != nil {
		if ferr := store.SetFailed(ctx, analysis.ID, err.Error()); ferr != nil {
			log.Error().Err(ferr).Msg("Failed to record failure")
		}
		log.Fatal().Err(err).Msg("Analysis failed")
	}

	stats, err := store.ReadyStats(ctx, analysis.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read back stats")
	}

	if *pretty {
		out, err := json.MarshalIndent(stats, "", "  ")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to encode stats")
		}
		fmt.Println(string(out))
		return
	}

	fmt.Printf("Analysis %s complete\n", analysis.ID)
	fmt.Printf("  Messages: %d (%d words, %d media)\n", stats.TotalMessages, stats.TotalWords, stats.MediaStats.Total)
	fmt.Printf("  Participants: %d\n", len(stats.MessagesByUser))
	if stats.AISummary != "" {
		fmt.Printf("  Summary: %s\n", stats.AISummary)
	}
}

// keepFiles reads local exports but never deletes them.
type keepFiles struct{}

func (keepFiles) Fetch(ctx context.Context, location string) ([]byte, error) {
	return pipeline.LocalSourceStore{}.Fetch(ctx, location)
}

func (keepFiles) Delete(context.Context, string) error { return nil }

// noopIndexer satisfies the pipeline when -no-index is set.
type noopIndexer struct{}

func (noopIndexer) EmbedAndStore(_ context.Context, _ string, chunks []chunking.Chunk) (int, error) {
	return len(chunks), nil
}

func buildIndexer(ctx context.Context, cfg *config.Config, skip bool) (pipeline.Indexer, func(), error) {
	if skip {
		return noopIndexer{}, func() {}, nil
	}

	embedder, err := vectordb.New(ctx, cfg.Embedding, embeddingKey(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedder: %w", err)
	}

	vectors, err := rag.NewMilvusStore(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to Milvus: %w", err)
	}
	log.Info().Str("address", cfg.Milvus.Address).Msg("Connected to Milvus")

	return rag.NewService(vectors, embedder, cfg), func() { vectors.Close() }, nil
}

func buildAugmenter(ctx context.Context, cfg *config.Config) insights.Augmenter {
	if !cfg.Insights.Enabled {
		return nil
	}
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		log.Warn().Msg("GEMINI_API_KEY not set, skipping AI insights")
		return nil
	}
	augmenter, err := insights.NewGeminiAugmenter(ctx, cfg.Insights, key)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create insights augmenter, continuing without")
		return nil
	}
	return augmenter
}

func embeddingKey(cfg *config.Config) string {
	if cfg.Embedding.Provider == "openai" {
		return os.Getenv("OPENAI_API_KEY")
	}
	return os.Getenv("GEMINI_API_KEY")
}
