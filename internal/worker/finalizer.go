package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/tenderhub/extraction-pipeline/internal/events"
	"github.com/tenderhub/extraction-pipeline/internal/queue"
	"github.com/tenderhub/extraction-pipeline/internal/store"
	"github.com/tenderhub/extraction-pipeline/internal/store/model"
	"github.com/tenderhub/extraction-pipeline/pkg/metrics"
)

// Aggregator merges a batch's successful extractions into its RunSummary.
type Aggregator interface {
	Aggregate(ctx context.Context, batchID string) (*model.RunSummary, error)
}

// Finalizer decides when a batch is done and seals it exactly once. It is
// state-driven and idempotent: invoking it redundantly (once per file
// completion, once per sweep, concurrently from two consumers) is safe.
type Finalizer struct {
	store      store.Store
	queue      queue.Queue
	aggregator Aggregator
	producer   *events.EventProducer

	maxRetryAttempts int
	retryBaseDelay   time.Duration
}

func NewFinalizer(s store.Store, q queue.Queue, aggregator Aggregator, producer *events.EventProducer, maxRetryAttempts int, retryBaseDelay time.Duration) *Finalizer {
	return &Finalizer{
		store:            s,
		queue:            q,
		aggregator:       aggregator,
		producer:         producer,
		maxRetryAttempts: maxRetryAttempts,
		retryBaseDelay:   retryBaseDelay,
	}
}

// MaybeFinalize re-evaluates the batch's completion state and, when every
// file has resolved, seals the terminal status and triggers aggregation.
// The status write is committed before aggregation starts: losing the
// summary is recoverable, losing the terminal status is not.
func (f *Finalizer) MaybeFinalize(ctx context.Context, batchID string) error {
	logger := zap.S().Named("finalizer")

	batch, err := f.store.Batch().Get(ctx, batchID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			// a file referenced a batch that was never registered. Data
			// inconsistency, not a crash.
			logger.Warnw("batch not found, skipping finalization", "batch_id", batchID)
			return nil
		}
		return err
	}

	if batch.Finalized() || batch.Status == model.BatchStatusFailed {
		return nil
	}

	counts, err := f.resolveCounts(ctx, batch)
	if err != nil {
		return err
	}

	total := int64(batch.TotalFiles)
	if total == 0 && counts.Total > 0 {
		// backfill the denominator for batches registered before their
		// file rows.
		if err := f.store.Batch().SetTotalFiles(ctx, batchID, int(counts.Total)); err != nil {
			return err
		}
		total = counts.Total
	}

	if counts.Complete(total) {
		return f.seal(ctx, batch, counts, total)
	}

	if counts.Pending > 0 && counts.Processing == 0 {
		// files in limbo with nothing claimed: self-healing re-dispatch,
		// not an error condition.
		return f.redispatchPending(ctx, batch)
	}

	// processed < total: wait for more completions.
	return nil
}

// resolveCounts prefers the precomputed batch_status_summary view; on a
// miss it falls back to direct aggregation against the effective run id,
// retrying with the batch id itself when that yields nothing (the aliasing
// fallback).
func (f *Finalizer) resolveCounts(ctx context.Context, batch *model.Batch) (model.FileStateCounts, error) {
	summary, err := f.store.Batch().StatusSummary(ctx, batch.BatchID)
	if err == nil {
		return model.FileStateCounts{
			Total:      summary.FileCount,
			Pending:    summary.PendingFiles,
			Processing: summary.ProcessingFiles,
			Success:    summary.SuccessFiles,
			Failed:     summary.FailedFiles,
		}, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		zap.S().Named("finalizer").Warnw("summary view unavailable, falling back to direct counts",
			"batch_id", batch.BatchID, "error", err)
	}

	counts, err := f.store.File().CountsForRun(ctx, batch.EffectiveRunID())
	if err != nil {
		return model.FileStateCounts{}, err
	}
	if counts.Total == 0 && batch.EffectiveRunID() != batch.BatchID {
		return f.store.File().CountsForRun(ctx, batch.BatchID)
	}
	return counts, nil
}

func (f *Finalizer) seal(ctx context.Context, batch *model.Batch, counts model.FileStateCounts, total int64) error {
	logger := zap.S().Named("finalizer")

	status := model.BatchStatusCompleted
	if counts.Failed > 0 {
		status = model.BatchStatusCompletedWithErrors
	}

	now := time.Now().UTC()
	if err := f.store.Batch().UpdateStatus(ctx, batch.BatchID, status, &now); err != nil {
		return err
	}

	logger.Infow("batch finalized",
		"batch_id", batch.BatchID,
		"status", status,
		"total", total,
		"success", counts.Success,
		"failed", counts.Failed,
	)
	metrics.IncreaseBatchesFinalizedMetric(status)

	// the terminal status is committed; an aggregation failure must never
	// undo it.
	if _, err := f.aggregator.Aggregate(ctx, batch.BatchID); err != nil {
		logger.Errorw("aggregation failed after batch was sealed",
			"batch_id", batch.BatchID, "error", err)
	}

	f.emitFinalized(ctx, batch, status, counts, total)
	return nil
}

func (f *Finalizer) redispatchPending(ctx context.Context, batch *model.Batch) error {
	docIDs, err := f.store.File().PendingDocIDs(ctx, batch.EffectiveRunID())
	if err != nil {
		return err
	}
	if len(docIDs) == 0 && batch.EffectiveRunID() != batch.BatchID {
		docIDs, err = f.store.File().PendingDocIDs(ctx, batch.BatchID)
		if err != nil {
			return err
		}
	}

	for _, docID := range docIDs {
		msg := queue.NewProcessFileMessage(docID, batch.BatchID, f.maxRetryAttempts, f.retryBaseDelay)
		if err := f.queue.Enqueue(ctx, msg); err != nil {
			return err
		}
	}

	if len(docIDs) > 0 {
		zap.S().Named("finalizer").Infow("re-dispatched pending files",
			"batch_id", batch.BatchID, "count", len(docIDs))
	}
	return nil
}

func (f *Finalizer) emitFinalized(ctx context.Context, batch *model.Batch, status string, counts model.FileStateCounts, total int64) {
	if f.producer == nil {
		return
	}

	data, err := json.Marshal(events.BatchFinalizedEvent{
		BatchID: batch.BatchID,
		RunID:   batch.EffectiveRunID(),
		Status:  status,
		Total:   total,
		Success: counts.Success,
		Failed:  counts.Failed,
	})
	if err != nil {
		zap.S().Named("finalizer").Errorw("failed to encode finalized event", "error", err)
		return
	}

	if err := f.producer.Write(ctx, events.BatchFinalizedKind, bytes.NewReader(data)); err != nil {
		zap.S().Named("finalizer").Errorw("failed to emit finalized event", "error", err)
	}
}
