package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"voiceforge/internal/domain/model"
	"voiceforge/internal/domain/ports/adapter"
	"voiceforge/internal/domain/ports/repository"
	"voiceforge/internal/infra/metrics"
)

// RetentionWorker periodically deletes jobs older than the retention
// window, artifacts first. A zero window disables sweeping; the worker
// still participates in process lifecycle so startup and shutdown stay
// uniform.
type RetentionWorker struct {
	interval  time.Duration
	window    time.Duration
	jobs      repository.JobRepository
	artifacts adapter.ArtifactStore
	log       *zerolog.Logger
}

func NewRetentionWorker(interval, window time.Duration, jobs repository.JobRepository, artifacts adapter.ArtifactStore, logger *zerolog.Logger) *RetentionWorker {
	l := logger.With().Str("component", "RetentionWorker").Logger()
	return &RetentionWorker{
		interval:  interval,
		window:    window,
		jobs:      jobs,
		artifacts: artifacts,
		log:       &l,
	}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	if w.window <= 0 {
		w.log.Info().Msg("retention disabled, sweeper idle")
		<-ctx.Done()
		return ctx.Err()
	}

	w.log.Info().Dur("interval", w.interval).Dur("window", w.window).Msg("starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.SweepOnce(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("retention sweep error")
			}
			if n > 0 {
				metrics.IncSweeperDeleted(n)
				w.log.Info().Int("count", n).Msg("expired jobs removed")
			}
		}
	}
}

// SweepOnce removes every job created before now-window. Each job is
// handled independently: one failed artifact delete is logged and the
// sweep moves on.
func (w *RetentionWorker) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-w.window)
	old, err := w.jobs.FindOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, job := range old {
		w.removeArtifacts(ctx, job)
		if err := w.jobs.Delete(ctx, job.ID); err != nil {
			w.log.Warn().Err(err).Str("job_id", job.ID).Msg("failed to delete expired job")
			continue
		}
		deleted++
	}
	return deleted, nil
}

func (w *RetentionWorker) removeArtifacts(ctx context.Context, job *model.Job) {
	refs := []string{job.ResultRef, job.Params.PromptAudioRef, job.Params.EmoAudioRef}
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := w.artifacts.Delete(ctx, ref); err != nil {
			w.log.Warn().Err(err).Str("job_id", job.ID).Str("ref", ref).Msg("failed to delete artifact")
		}
	}
}
