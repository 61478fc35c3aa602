// process runs one analysis job the way a queue worker would: it fetches
// the source from a local path or URL, retries transient failures with
// backoff, and on terminal failure marks the analysis failed and deletes
// the source.
//
// Usage:
//
//	process -id <analysis-id> -source upload/export.json -platform telegram
//	process -source https://uploads.example.com/export.json -platform whatsapp -name "Alice & Bob"
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatlens/chatlens/pkg/chatstats"
	"github.com/chatlens/chatlens/pkg/config"
	"github.com/chatlens/chatlens/pkg/insights"
	"github.com/chatlens/chatlens/pkg/pipeline"
	"github.com/chatlens/chatlens/pkg/rag"
	"github.com/chatlens/chatlens/pkg/storage"
	"github.com/chatlens/chatlens/pkg/vectordb"
)

var (
	analysisID = flag.String("id", "", "Existing analysis ID to process (a new one is created if empty)")
	source     = flag.String("source", "", "Source location: local path or http(s) URL (required)")
	platform   = flag.String("platform", "telegram", "Export platform: telegram, whatsapp or instagram")
	name       = flag.String("name", "", "Display name when creating a new analysis")
	dbPath     = flag.String("db", "", "Path to SQLite database (defaults to database.sqlite from config)")
	cfgPath    = flag.String("config", "", "Path to chatlens.yaml (auto-detected if not specified)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
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

	if *source == "" {
		flag.Usage()
		log.Fatal().Msg("-source is required")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder, err := vectordb.New(ctx, cfg.Embedding, embeddingKey(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create embedder")
	}

	vectors, err := rag.NewMilvusStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Milvus")
	}
	defer vectors.Close()
	log.Info().Str("address", cfg.Milvus.Address).Msg("Connected to Milvus")

	var augmenter insights.Augmenter
	if cfg.Insights.Enabled {
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			g, err := insights.NewGeminiAugmenter(ctx, cfg.Insights, key)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to create insights augmenter, continuing without")
			} else {
				defer g.Close()
				augmenter = g
			}
		} else {
			log.Warn().Msg("GEMINI_API_KEY not set, skipping AI insights")
		}
	}

	id := *analysisID
	if id == "" {
		analysisName := *name
		if analysisName == "" {
			analysisName = *source
		}
		analysis, err := store.CreateAnalysis(ctx, pf, analysisName)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create analysis")
		}
		id = analysis.ID
		log.Info().Str("analysis_id", id).Msg("Created analysis")
	}

	p := pipeline.New(store, pipeline.StoreFor(*source), rag.NewService(vectors, embedder, cfg), augmenter, cfg)
	w := pipeline.NewWorker(p, cfg.Pipeline.Retries, time.Duration(cfg.Pipeline.BackoffSeconds)*time.Second)

	if err := w.Run(ctx, pipeline.Trigger{
		AnalysisID:     id,
		SourceLocation: *source,
		Platform:       pf,
	}); err != nil {
		log.Fatal().Err(err).Str("analysis_id", id).Msg("Job failed")
	}
	log.Info().Str("analysis_id", id).Msg("Job complete")
}

func embeddingKey(cfg *config.Config) string {
	if cfg.Embedding.Provider == "openai" {
		return os.Getenv("OPENAI_API_KEY")
	}
	return os.Getenv("GEMINI_API_KEY")
}
