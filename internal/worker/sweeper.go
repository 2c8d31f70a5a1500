package worker

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"go.uber.org/zap"

	"github.com/tenderhub/extraction-pipeline/internal/config"
	"github.com/tenderhub/extraction-pipeline/internal/store"
	"github.com/tenderhub/extraction-pipeline/pkg/metrics"
)

// Sweeper is the safety net behind the finalizer: on a jittered interval
// it looks for batches whose files all resolved but whose finalizing
// message-path never ran (or crashed), and finalizes them. It runs
// independently of message arrival.
type Sweeper struct {
	store     store.Store
	finalizer *Finalizer

	interval time.Duration
	grace    time.Duration
	limit    int
}

func NewSweeper(cfg *config.Config, s store.Store, finalizer *Finalizer) *Sweeper {
	return &Sweeper{
		store:     s,
		finalizer: finalizer,
		interval:  cfg.Worker.SweepInterval,
		grace:     cfg.Worker.SweepGraceWindow,
		limit:     cfg.Worker.SweepBatchLimit,
	}
}

func (s *Sweeper) Run(ctx context.Context) error {
	logger := zap.S().Named("sweeper")
	logger.Infow("sweeper started", "interval", s.interval, "grace", s.grace, "limit", s.limit)
	defer logger.Info("sweeper stopped")

	ticker := jitterbug.New(s.interval, &jitterbug.Norm{Stdev: 500 * time.Millisecond})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// sweep finalizes each stuck batch independently: one failure never blocks
// the others.
func (s *Sweeper) sweep(ctx context.Context) {
	logger := zap.S().Named("sweeper")
	metrics.IncreaseSweeperRunsMetric()

	stuck, err := s.store.Batch().Stuck(ctx, time.Now().UTC().Add(-s.grace), s.limit)
	if err != nil {
		logger.Errorw("failed to query stuck batches", "error", err)
		return
	}

	for i := range stuck {
		if !stuck[i].Complete() {
			continue
		}
		logger.Warnw("finalizing stuck batch", "batch_id", stuck[i].BatchID,
			"success_files", stuck[i].SuccessFiles, "failed_files", stuck[i].FailedFiles)
		if err := s.finalizer.MaybeFinalize(ctx, stuck[i].BatchID); err != nil {
			logger.Errorw("failed to finalize stuck batch", "batch_id", stuck[i].BatchID, "error", err)
		}
	}
}
