package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tenderhub/extraction-pipeline/internal/config"
	"github.com/tenderhub/extraction-pipeline/internal/queue"
	"github.com/tenderhub/extraction-pipeline/internal/store"
	"github.com/tenderhub/extraction-pipeline/internal/store/model"
)

// BatchService is the producer side of the pipeline: it registers batches
// and their file rows, and enqueues the jobs the worker consumes.
type BatchService struct {
	store store.Store
	queue queue.Queue

	maxRetryAttempts int
	retryBaseDelay   time.Duration
}

func NewBatchService(cfg *config.Config, s store.Store, q queue.Queue) *BatchService {
	return &BatchService{
		store:            s,
		queue:            q,
		maxRetryAttempts: cfg.Worker.MaxRetryAttempts,
		retryBaseDelay:   cfg.Worker.RetryBaseDelay,
	}
}

type CreateBatchForm struct {
	BatchID    string
	RunID      string
	UploadedBy string
	Files      []CreateFileForm
}

type CreateFileForm struct {
	DocID    string
	Filename string
	FileType string
	Path     string
}

// CreateBatch registers the batch and its pending file rows in one
// transaction, then enqueues one process_file message per file. File rows
// are create-or-fetch, so re-submitting a batch never duplicates them.
func (s *BatchService) CreateBatch(ctx context.Context, form CreateBatchForm) (*model.Batch, error) {
	if len(form.Files) == 0 {
		return nil, NewErrInvalidRequest("batch has no files")
	}

	batchID := form.BatchID
	if batchID == "" {
		batchID = uuid.NewString()
	}

	batch := model.Batch{
		ID:         uuid.New(),
		BatchID:    batchID,
		RunID:      form.RunID,
		TotalFiles: len(form.Files),
		UploadedBy: form.UploadedBy,
		Status:     model.BatchStatusQueued,
	}
	runID := batch.EffectiveRunID()

	txCtx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}

	created, err := s.store.Batch().Create(txCtx, batch)
	if err != nil {
		if _, rerr := store.Rollback(txCtx); rerr != nil {
			zap.S().Named("service").Errorw("rollback failed", "batch_id", batchID, "error", rerr)
		}
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, NewErrBatchAlreadyExists(batchID)
		}
		return nil, err
	}

	for _, f := range form.Files {
		file := model.FileExtraction{
			ID:       uuid.New(),
			DocID:    f.DocID,
			RunID:    runID,
			Filename: f.Filename,
			FileType: f.FileType,
			FilePath: f.Path,
			Source:   "upload",
			Status:   model.FileStatusPending,
		}
		if _, _, err := s.store.File().GetOrCreate(txCtx, file); err != nil {
			if _, rerr := store.Rollback(txCtx); rerr != nil {
				zap.S().Named("service").Errorw("rollback failed", "batch_id", batchID, "error", rerr)
			}
			return nil, err
		}
	}

	if _, err := store.Commit(txCtx); err != nil {
		return nil, err
	}

	// enqueue after commit: a consumer must never pick up a message whose
	// rows are not visible yet.
	for _, f := range form.Files {
		msg := queue.NewProcessFileMessage(f.DocID, batchID, s.maxRetryAttempts, s.retryBaseDelay)
		if err := s.queue.Enqueue(ctx, msg); err != nil {
			zap.S().Named("service").Errorw("failed to enqueue file", "doc_id", f.DocID, "error", err)
		}
	}

	zap.S().Named("service").Infow("batch created", "batch_id", batchID, "files", len(form.Files))
	return created, nil
}

type BatchStatus struct {
	Batch           *model.Batch
	Counts          model.FileStateCounts
	Total           int64
	ProgressPercent int
	Terminal        bool
}

// GetBatchStatus reads the batch and its per-state counts, preferring the
// summary view and falling back to direct aggregation with the
// run-id/batch-id alias.
func (s *BatchService) GetBatchStatus(ctx context.Context, batchID string) (*BatchStatus, error) {
	batch, err := s.store.Batch().Get(ctx, batchID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrBatchNotFound(batchID)
		}
		return nil, err
	}

	var counts model.FileStateCounts
	summary, err := s.store.Batch().StatusSummary(ctx, batchID)
	if err == nil {
		counts = model.FileStateCounts{
			Total:      summary.FileCount,
			Pending:    summary.PendingFiles,
			Processing: summary.ProcessingFiles,
			Success:    summary.SuccessFiles,
			Failed:     summary.FailedFiles,
		}
	} else {
		counts, err = s.store.File().CountsForRun(ctx, batch.EffectiveRunID())
		if err != nil {
			return nil, err
		}
		if counts.Total == 0 && batch.EffectiveRunID() != batch.BatchID {
			counts, err = s.store.File().CountsForRun(ctx, batch.BatchID)
			if err != nil {
				return nil, err
			}
		}
	}

	total := int64(batch.TotalFiles)
	if total == 0 {
		total = counts.Total
	}

	progress := 0
	if total > 0 {
		progress = int(counts.Processed() * 100 / total)
	}

	return &BatchStatus{
		Batch:           batch,
		Counts:          counts,
		Total:           total,
		ProgressPercent: progress,
		Terminal:        batch.Finalized() || batch.Status == model.BatchStatusFailed,
	}, nil
}

// EnqueueFileProcessing schedules a fresh process_file message for an
// already-registered file.
func (s *BatchService) EnqueueFileProcessing(ctx context.Context, docID string) error {
	file, err := s.store.File().Get(ctx, docID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrFileNotFound(docID)
		}
		return err
	}

	msg := queue.NewProcessFileMessage(file.DocID, file.RunID, s.maxRetryAttempts, s.retryBaseDelay)
	return s.queue.Enqueue(ctx, msg)
}

// EnqueueAggregation schedules a manual re-aggregation of the batch.
func (s *BatchService) EnqueueAggregation(ctx context.Context, batchID string) error {
	if _, err := s.store.Batch().Get(ctx, batchID); err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return NewErrBatchNotFound(batchID)
		}
		return err
	}

	msg := queue.NewAggregateBatchMessage(batchID, s.maxRetryAttempts, s.retryBaseDelay)
	return s.queue.Enqueue(ctx, msg)
}

// GetRunSummary returns the stored aggregation result for a run id,
// falling back through the batch's effective run id when the caller passed
// a batch id.
func (s *BatchService) GetRunSummary(ctx context.Context, runID string) (*model.RunSummary, error) {
	summary, err := s.store.Summary().Get(ctx, runID)
	if err == nil {
		return summary, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	batch, berr := s.store.Batch().Get(ctx, runID)
	if berr == nil && batch.EffectiveRunID() != runID {
		summary, err = s.store.Summary().Get(ctx, batch.EffectiveRunID())
		if err == nil {
			return summary, nil
		}
	}
	return nil, NewErrRunSummaryNotFound(runID)
}

type HealthStatus struct {
	Database   bool
	Queue      bool
	QueueDepth int64
}

func (s *BatchService) Health(ctx context.Context) HealthStatus {
	status := HealthStatus{}

	if err := s.store.Ping(ctx); err == nil {
		status.Database = true
	}
	if err := s.queue.Ping(ctx); err == nil {
		status.Queue = true
		if depth, err := s.queue.Depth(ctx); err == nil {
			status.QueueDepth = depth
		}
	}
	return status
}
