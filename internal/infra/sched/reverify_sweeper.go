// File: internal/infra/sched/reverify_sweeper.go
package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"student-offer-automation/internal/domain/model"
	"student-offer-automation/internal/domain/ports/repository"
)

// ReverifySweeper periodically scans for jobs stuck in link_ready and
// re-queues them as pending_check. This covers runs that were stopped or
// crashed between link extraction and verification: the next batch picks the
// job up from the detect stage again instead of leaving it parked forever.
type ReverifySweeper struct {
	jobs       repository.JobRepository
	interval   time.Duration // how often to scan
	staleAfter time.Duration // how old a link_ready job must be to re-queue
	log        *zerolog.Logger
}

func NewReverifySweeper(jobs repository.JobRepository, interval, staleAfter time.Duration, logger *zerolog.Logger) *ReverifySweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = time.Hour
	}
	return &ReverifySweeper{jobs: jobs, interval: interval, staleAfter: staleAfter, log: logger}
}

func (w *ReverifySweeper) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *ReverifySweeper) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	stuck, err := w.jobs.FindByStatus(ctx, model.JobStatusLinkReady)
	if err != nil {
		w.log.Error().Err(err).Msg("reverify sweeper: list failed")
		return
	}
	requeued := 0
	for _, job := range stuck {
		if job.UpdatedAt.After(cutoff) {
			continue
		}
		patch := model.StatusPatch(model.JobStatusPendingCheck, "re-queued after stale verification")
		if err := w.jobs.Upsert(ctx, nil, job.Email, patch); err != nil {
			w.log.Warn().Err(err).Str("job", job.Email).Msg("reverify sweeper: re-queue failed")
			continue
		}
		requeued++
	}
	if requeued > 0 {
		w.log.Info().Int("requeued", requeued).Msg("reverify sweeper: stale jobs re-queued")
	}
}
