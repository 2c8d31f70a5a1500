package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tenderhub/extraction-pipeline/internal/store/model"
)

type Batch interface {
	List(ctx context.Context, filter *BatchQueryFilter) (model.BatchList, error)
	Get(ctx context.Context, batchID string) (*model.Batch, error)
	Create(ctx context.Context, batch model.Batch) (*model.Batch, error)
	Update(ctx context.Context, batch model.Batch) (*model.Batch, error)
	UpdateStatus(ctx context.Context, batchID string, status string, completedAt *time.Time) error
	SetTotalFiles(ctx context.Context, batchID string, total int) error
	StatusSummary(ctx context.Context, batchID string) (*model.BatchStatusSummary, error)
	Stuck(ctx context.Context, olderThan time.Time, limit int) ([]model.BatchStatusSummary, error)
}

type BatchStore struct {
	db *gorm.DB
}

// Make sure we conform to Batch interface
var _ Batch = (*BatchStore)(nil)

func NewBatchStore(db *gorm.DB) Batch {
	return &BatchStore{db: db}
}

func (b *BatchStore) List(ctx context.Context, filter *BatchQueryFilter) (model.BatchList, error) {
	var batches model.BatchList
	tx := b.getDB(ctx).Model(&batches).Order("created_at DESC")

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&batches).Error; err != nil {
		return nil, err
	}
	return batches, nil
}

func (b *BatchStore) Get(ctx context.Context, batchID string) (*model.Batch, error) {
	var batch model.Batch
	result := b.getDB(ctx).First(&batch, "batch_id = ?", batchID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &batch, nil
}

func (b *BatchStore) Create(ctx context.Context, batch model.Batch) (*model.Batch, error) {
	result := b.getDB(ctx).Clauses(clause.Returning{}).Create(&batch)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return &batch, nil
}

func (b *BatchStore) Update(ctx context.Context, batch model.Batch) (*model.Batch, error) {
	if err := b.getDB(ctx).Model(&batch).Where("batch_id = ?", batch.BatchID).Updates(&batch).Error; err != nil {
		return nil, err
	}
	return b.Get(ctx, batch.BatchID)
}

// UpdateStatus seals the batch status. The write goes through the current
// transaction context if one exists; finalization relies on this being
// committed before aggregation starts.
func (b *BatchStore) UpdateStatus(ctx context.Context, batchID string, status string, completedAt *time.Time) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if completedAt != nil {
		updates["completed_at"] = completedAt
	}

	result := b.getDB(ctx).Model(&model.Batch{}).Where("batch_id = ?", batchID).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// SetTotalFiles backfills the completion denominator for batches created
// before their file rows were registered.
func (b *BatchStore) SetTotalFiles(ctx context.Context, batchID string, total int) error {
	return b.getDB(ctx).Model(&model.Batch{}).
		Where("batch_id = ?", batchID).
		Update("total_files", total).Error
}

func (b *BatchStore) StatusSummary(ctx context.Context, batchID string) (*model.BatchStatusSummary, error) {
	var summary model.BatchStatusSummary
	result := b.getDB(ctx).Table("batch_status_summary").First(&summary, "batch_id = ?", batchID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &summary, nil
}

// Stuck returns summary rows for batches not yet terminal whose files have
// all resolved and whose last completion is older than the threshold,
// oldest first. Any non-terminal status qualifies: a batch whose finalize
// call crashed is typically still in the status its producer created it
// with. Callers evaluate the completion predicate on the returned counts.
func (b *BatchStore) Stuck(ctx context.Context, olderThan time.Time, limit int) ([]model.BatchStatusSummary, error) {
	terminal := []string{
		model.BatchStatusCompleted,
		model.BatchStatusCompletedWithErrors,
		model.BatchStatusFailed,
	}

	var summaries []model.BatchStatusSummary
	err := b.getDB(ctx).Table("batch_status_summary").
		Where("batch_status NOT IN ?", terminal).
		Where("pending_files = 0 AND processing_files = 0").
		Where("last_file_completed_at IS NOT NULL AND last_file_completed_at < ?", olderThan).
		Order("last_file_completed_at ASC").
		Limit(limit).
		Find(&summaries).Error
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (b *BatchStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return b.db
}
