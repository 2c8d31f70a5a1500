package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tenderhub/extraction-pipeline/internal/store/model"
)

type File interface {
	List(ctx context.Context, filter *FileQueryFilter) (model.FileExtractionList, error)
	Get(ctx context.Context, docID string) (*model.FileExtraction, error)
	GetOrCreate(ctx context.Context, file model.FileExtraction) (*model.FileExtraction, bool, error)
	MarkProcessing(ctx context.Context, docID string) (*model.FileExtraction, error)
	MarkSuccess(ctx context.Context, docID string, payload map[string]any) error
	MarkFailed(ctx context.Context, docID string, kind string, message string) error
	IncrementRetryCount(ctx context.Context, docID string) (int, error)
	CountsForRun(ctx context.Context, runID string) (model.FileStateCounts, error)
	PendingDocIDs(ctx context.Context, runID string) ([]string, error)
}

type FileStore struct {
	db *gorm.DB
}

// Make sure we conform to File interface
var _ File = (*FileStore)(nil)

func NewFileStore(db *gorm.DB) File {
	return &FileStore{db: db}
}

func (f *FileStore) List(ctx context.Context, filter *FileQueryFilter) (model.FileExtractionList, error) {
	var files model.FileExtractionList
	tx := f.getDB(ctx).Model(&files).Order("created_at ASC")

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (f *FileStore) Get(ctx context.Context, docID string) (*model.FileExtraction, error) {
	var file model.FileExtraction
	result := f.getDB(ctx).First(&file, "doc_id = ?", docID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &file, nil
}

// GetOrCreate fetches the extraction record for file.DocID, inserting it
// when absent. Losing the insert race to a concurrent creator is not an
// error: the insert is DO NOTHING on conflict, so no duplicate-key failure
// is ever raised. Raising one would poison a caller-owned postgres
// transaction, which aborts wholesale on any statement error. The boolean
// reports whether this call created the record.
func (f *FileStore) GetOrCreate(ctx context.Context, file model.FileExtraction) (*model.FileExtraction, bool, error) {
	existing, err := f.Get(ctx, file.DocID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrRecordNotFound) {
		return nil, false, err
	}

	result := f.getDB(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "doc_id"}},
		DoNothing: true,
	}).Create(&file)
	if result.Error != nil {
		return nil, false, result.Error
	}
	if result.RowsAffected > 0 {
		return &file, true, nil
	}

	// lost the race: someone inserted the doc id between our fetch and
	// insert. Re-fetch the winner.
	existing, err = f.Get(ctx, file.DocID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// MarkProcessing transitions the file to processing and stamps the start
// time. The write is persisted immediately so concurrent finalizers observe
// the claim.
func (f *FileStore) MarkProcessing(ctx context.Context, docID string) (*model.FileExtraction, error) {
	now := time.Now().UTC()
	result := f.getDB(ctx).Model(&model.FileExtraction{}).
		Where("doc_id = ?", docID).
		Updates(map[string]any{
			"status":                model.FileStatusProcessing,
			"processing_started_at": now,
			"updated_at":            now,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRecordNotFound
	}
	return f.Get(ctx, docID)
}

func (f *FileStore) MarkSuccess(ctx context.Context, docID string, payload map[string]any) error {
	file, err := f.Get(ctx, docID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":                  model.FileStatusSuccess,
		"extracted":               model.MakeJSONField(payload),
		"error":                   "",
		"error_kind":              "",
		"processing_completed_at": now,
		"updated_at":              now,
	}
	if file.ProcessingStartedAt != nil {
		updates["processing_duration_ms"] = now.Sub(*file.ProcessingStartedAt).Milliseconds()
	}

	return f.getDB(ctx).Model(&model.FileExtraction{}).Where("doc_id = ?", docID).Updates(updates).Error
}

func (f *FileStore) MarkFailed(ctx context.Context, docID string, kind string, message string) error {
	file, err := f.Get(ctx, docID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	updates := map[string]any{
		"status":                  model.FileStatusFailed,
		"error":                   message,
		"error_kind":              kind,
		"processing_completed_at": now,
		"updated_at":              now,
	}
	if file.ProcessingStartedAt != nil {
		updates["processing_duration_ms"] = now.Sub(*file.ProcessingStartedAt).Milliseconds()
	}

	return f.getDB(ctx).Model(&model.FileExtraction{}).Where("doc_id = ?", docID).Updates(updates).Error
}

// IncrementRetryCount bumps the counter atomically in the database and
// returns the new value.
func (f *FileStore) IncrementRetryCount(ctx context.Context, docID string) (int, error) {
	result := f.getDB(ctx).Model(&model.FileExtraction{}).
		Where("doc_id = ?", docID).
		Update("retry_count", gorm.Expr("retry_count + 1"))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, ErrRecordNotFound
	}

	file, err := f.Get(ctx, docID)
	if err != nil {
		return 0, err
	}
	return file.RetryCount, nil
}

// CountsForRun aggregates per-status counts for one run id directly from
// the file rows. This is the fallback path when the batch_status_summary
// view cannot serve.
func (f *FileStore) CountsForRun(ctx context.Context, runID string) (model.FileStateCounts, error) {
	var rows []struct {
		Status string
		N      int64
	}
	err := f.getDB(ctx).Model(&model.FileExtraction{}).
		Select("status, COUNT(*) as n").
		Where("run_id = ?", runID).
		Group("status").
		Find(&rows).Error
	if err != nil {
		return model.FileStateCounts{}, err
	}

	var counts model.FileStateCounts
	for _, row := range rows {
		counts.Total += row.N
		switch row.Status {
		case model.FileStatusPending:
			counts.Pending += row.N
		case model.FileStatusProcessing:
			counts.Processing += row.N
		case model.FileStatusSuccess:
			counts.Success += row.N
		case model.FileStatusFailed:
			counts.Failed += row.N
		case model.FileStatusSkipped:
			counts.Skipped += row.N
		}
	}
	return counts, nil
}

func (f *FileStore) PendingDocIDs(ctx context.Context, runID string) ([]string, error) {
	var docIDs []string
	err := f.getDB(ctx).Model(&model.FileExtraction{}).
		Where("run_id = ? AND status = ?", runID, model.FileStatusPending).
		Order("created_at ASC").
		Pluck("doc_id", &docIDs).Error
	if err != nil {
		return nil, err
	}
	return docIDs, nil
}

func (f *FileStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return f.db
}
