package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Worker retries failed jobs with exponential backoff and, when a job is
// out of attempts, marks the analysis failed and discards its source.
type Worker struct {
	pipeline *Pipeline
	retries  int
	backoff  time.Duration
}

// NewWorker wraps a pipeline with retry handling.
func NewWorker(p *Pipeline, retries int, backoff time.Duration) *Worker {
	if retries < 0 {
		retries = 0
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Worker{pipeline: p, retries: retries, backoff: backoff}
}

// Run executes the job, retrying up to the configured attempt count. The
// returned error is the last attempt's failure, already recorded on the
// analysis row.
func (w *Worker) Run(ctx context.Context, trig Trigger) error {
	var lastErr error
	for attempt := 0; attempt <= w.retries; attempt++ {
		if attempt > 0 {
			wait := w.backoff * time.Duration(1<<(attempt-1))
			log.Warn().
				Err(lastErr).
				Str("analysis_id", trig.AnalysisID).
				Int("attempt", attempt).
				Dur("backoff", wait).
				Msg("Retrying analysis job")
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				w.fail(trig, ctx.Err())
				return ctx.Err()
			}
		}

		lastErr = w.pipeline.Process(ctx, trig)
		if lastErr == nil {
			return nil
		}
	}

	w.fail(trig, lastErr)
	return fmt.Errorf("analysis job exhausted %d attempts: %w", w.retries+1, lastErr)
}

// fail marks the analysis failed and removes the source file so a broken
// upload cannot be retried against forever.
func (w *Worker) fail(trig Trigger, cause error) {
	// The job context may already be dead; give cleanup its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := w.pipeline.store.SetFailed(ctx, trig.AnalysisID, cause.Error()); err != nil {
		log.Error().Err(err).Str("analysis_id", trig.AnalysisID).Msg("Failed to mark analysis as failed")
	}
	if err := w.pipeline.sources.Delete(ctx, trig.SourceLocation); err != nil {
		log.Warn().Err(err).Str("source", trig.SourceLocation).Msg("Failed to delete source after terminal failure")
	}

	log.Error().Err(cause).Str("analysis_id", trig.AnalysisID).Msg("Analysis job failed terminally")
}
