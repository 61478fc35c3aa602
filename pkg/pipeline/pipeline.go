// Package pipeline runs the end-to-end analysis job: fetch the export,
// parse it into stats, persist them, index the conversation for retrieval,
// and clean up the source file.
package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatlens/chatlens/pkg/chatstats"
	"github.com/chatlens/chatlens/pkg/chunking"
	"github.com/chatlens/chatlens/pkg/config"
	"github.com/chatlens/chatlens/pkg/insights"
	"github.com/chatlens/chatlens/pkg/parser"
	"github.com/chatlens/chatlens/pkg/storage"
)

// Trigger describes one analysis job.
type Trigger struct {
	AnalysisID     string
	SourceLocation string
	Platform       chatstats.Platform
}

// Indexer stores chunk embeddings for retrieval. *rag.Service satisfies it.
type Indexer interface {
	EmbedAndStore(ctx context.Context, analysisID string, chunks []chunking.Chunk) (int, error)
}

// Pipeline executes analysis jobs. Augmenter may be nil, in which case the
// qualitative fields stay unset.
type Pipeline struct {
	store     *storage.Storage
	sources   SourceStore
	indexer   Indexer
	augmenter insights.Augmenter
	cfg       *config.Config
}

// New assembles a pipeline.
func New(store *storage.Storage, sources SourceStore, indexer Indexer, augmenter insights.Augmenter, cfg *config.Config) *Pipeline {
	return &Pipeline{
		store:     store,
		sources:   sources,
		indexer:   indexer,
		augmenter: augmenter,
		cfg:       cfg,
	}
}

// Process runs one job to completion. Every failure except source cleanup
// aborts the job; cleanup failures are only logged.
func (p *Pipeline) Process(ctx context.Context, trig Trigger) error {
	logger := log.With().Str("analysis_id", trig.AnalysisID).Str("platform", string(trig.Platform)).Logger()

	if err := p.store.SetStatus(ctx, trig.AnalysisID, storage.StatusProcessing); err != nil {
		return fmt.Errorf("mark-processing: %w", err)
	}

	stats, messages, err := p.fetchAndParse(ctx, trig)
	if err != nil {
		return fmt.Errorf("fetch-and-parse: %w", err)
	}
	logger.Info().Int("messages", stats.TotalMessages).Msg("Parsed export")

	p.augment(ctx, stats, messages, logger)

	if err := p.store.SaveStats(ctx, trig.AnalysisID, stats); err != nil {
		return fmt.Errorf("save-stats: %w", err)
	}

	if err := p.generateEmbeddings(ctx, trig.AnalysisID, messages, logger); err != nil {
		return fmt.Errorf("generate-embeddings: %w", err)
	}

	if err := p.store.SetStatus(ctx, trig.AnalysisID, storage.StatusReady); err != nil {
		return fmt.Errorf("mark-ready: %w", err)
	}

	// Source files are throwaway uploads. A failed delete never fails the job.
	if err := p.sources.Delete(ctx, trig.SourceLocation); err != nil {
		logger.Warn().Err(err).Str("source", trig.SourceLocation).Msg("Failed to delete source")
	}

	logger.Info().Msg("Analysis complete")
	return nil
}

func (p *Pipeline) fetchAndParse(ctx context.Context, trig Trigger) (*chatstats.ChatStats, []chatstats.NormalizedMessage, error) {
	raw, err := p.sources.Fetch(ctx, trig.SourceLocation)
	if err != nil {
		return nil, nil, fmt.Errorf("fetching source: %w", err)
	}

	pl, err := parser.ForPlatform(trig.Platform,
		parser.WithSystemPhrases(p.cfg.Parser.SystemPhrases),
		parser.WithApologyPhrases(p.cfg.Parser.ApologyPhrases),
	)
	if err != nil {
		return nil, nil, err
	}
	return pl.Parse(raw)
}

// augment fills the qualitative fields. Failures leave the stats untouched.
func (p *Pipeline) augment(ctx context.Context, stats *chatstats.ChatStats, messages []chatstats.NormalizedMessage, logger zerolog.Logger) {
	if p.augmenter == nil || !p.cfg.Insights.Enabled || stats.TotalMessages == 0 {
		return
	}

	sample := insights.Sample(messages, p.cfg.Insights.SampleSize)
	ins, err := p.augmenter.Augment(ctx, stats, sample)
	if err != nil {
		logger.Warn().Err(err).Msg("Insights generation failed, continuing without")
		return
	}
	insights.Apply(stats, ins)
	logger.Info().Msg("Applied AI insights")
}

func (p *Pipeline) generateEmbeddings(ctx context.Context, analysisID string, messages []chatstats.NormalizedMessage, logger zerolog.Logger) error {
	chunks, err := chunking.Split(messages, p.cfg.Chunking.Size, p.cfg.Chunking.Overlap)
	if err != nil {
		return fmt.Errorf("splitting messages: %w", err)
	}

	stored, err := p.indexer.EmbedAndStore(ctx, analysisID, chunks)
	if err != nil {
		return err
	}
	logger.Info().Int("chunks", stored).Msg("Indexed conversation")
	return nil
}
