package store

import (
	"gorm.io/gorm"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type BatchQueryFilter BaseQuerier

func NewBatchQueryFilter() *BatchQueryFilter {
	return &BatchQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *BatchQueryFilter) ByStatus(status string) *BatchQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ?", status)
	})
	return qf
}

func (qf *BatchQueryFilter) ByUploadedBy(uploadedBy string) *BatchQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("uploaded_by = ?", uploadedBy)
	})
	return qf
}

type FileQueryFilter BaseQuerier

func NewFileQueryFilter() *FileQueryFilter {
	return &FileQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *FileQueryFilter) ByRunID(runID string) *FileQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("run_id = ?", runID)
	})
	return qf
}

func (qf *FileQueryFilter) ByStatus(status string) *FileQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ?", status)
	})
	return qf
}
