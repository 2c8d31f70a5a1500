package extraction

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tenderhub/extraction-pipeline/internal/store"
	"github.com/tenderhub/extraction-pipeline/internal/store/model"
)

// Aggregator merges every successful extraction of a batch's run into one
// RunSummary. The summary is written by upsert keyed on run id, which makes
// re-aggregation (manual re-drives, concurrent finalizers) idempotent.
type Aggregator struct {
	store store.Store
}

func NewAggregator(s store.Store) *Aggregator {
	return &Aggregator{store: s}
}

func (a *Aggregator) Aggregate(ctx context.Context, batchID string) (*model.RunSummary, error) {
	runID := batchID
	batch, err := a.store.Batch().Get(ctx, batchID)
	if err == nil {
		runID = batch.EffectiveRunID()
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	files, err := a.store.File().List(ctx, store.NewFileQueryFilter().ByRunID(runID))
	if err != nil {
		return nil, err
	}
	// run-id/batch-id aliasing: older records may be keyed by the batch id
	// even when the batch carries a run id.
	if len(files) == 0 && runID != batchID {
		runID = batchID
		files, err = a.store.File().List(ctx, store.NewFileQueryFilter().ByRunID(batchID))
		if err != nil {
			return nil, err
		}
	}

	payloads := make([]map[string]any, 0, len(files))
	success, failed := 0, 0
	for i := range files {
		switch files[i].Status {
		case model.FileStatusSuccess:
			success++
			payloads = append(payloads, files[i].Payload())
		case model.FileStatusFailed:
			failed++
		}
	}

	merged := MergePayloads(payloads)

	status := model.RunSummaryStatusCompleted
	if success == 0 {
		status = model.RunSummaryStatusFailed
	}

	summary := model.RunSummary{
		RunID:  runID,
		UIData: model.MakeJSONField(merged),
		SummaryData: model.MakeJSONField(map[string]any{
			"total_files":   len(files),
			"success_files": success,
			"failed_files":  failed,
		}),
		Status:       status,
		TotalFiles:   len(files),
		SuccessFiles: success,
		FailedFiles:  failed,
	}

	txCtx, err := a.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}

	stored, err := a.store.Summary().Upsert(txCtx, summary)
	if err != nil {
		if _, rerr := store.Rollback(txCtx); rerr != nil {
			zap.S().Named("aggregator").Errorw("rollback failed", "run_id", runID, "error", rerr)
		}
		return nil, err
	}

	if _, err := store.Commit(txCtx); err != nil {
		return nil, err
	}

	zap.S().Named("aggregator").Infow("run summary aggregated",
		"run_id", runID, "total", len(files), "success", success, "failed", failed)
	return stored, nil
}
