package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tenderhub/extraction-pipeline/internal/store/model"
)

type Summary interface {
	Get(ctx context.Context, runID string) (*model.RunSummary, error)
	Upsert(ctx context.Context, summary model.RunSummary) (*model.RunSummary, error)
}

type SummaryStore struct {
	db *gorm.DB
}

// Make sure we conform to Summary interface
var _ Summary = (*SummaryStore)(nil)

func NewSummaryStore(db *gorm.DB) Summary {
	return &SummaryStore{db: db}
}

func (s *SummaryStore) Get(ctx context.Context, runID string) (*model.RunSummary, error) {
	var summary model.RunSummary
	result := s.getDB(ctx).First(&summary, "run_id = ?", runID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &summary, nil
}

// Upsert writes the summary keyed by run id. Re-running an aggregation
// overwrites the previous row instead of duplicating it, which is what
// absorbs concurrent double-finalization.
func (s *SummaryStore) Upsert(ctx context.Context, summary model.RunSummary) (*model.RunSummary, error) {
	err := s.getDB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "run_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"ui_data", "summary_data", "status", "total_files", "success_files", "failed_files", "updated_at",
		}),
	}).Create(&summary).Error
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, summary.RunID)
}

func (s *SummaryStore) getDB(ctx context.Context) *gorm.DB {
	tx := FromContext(ctx)
	if tx != nil {
		return tx
	}
	return s.db
}
