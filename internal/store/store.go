package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/tenderhub/extraction-pipeline/internal/store/model"
)

type Store interface {
	NewTransactionContext(ctx context.Context) (context.Context, error)
	Batch() Batch
	File() File
	Summary() Summary
	InitialMigration() error
	Ping(ctx context.Context) error
	Close() error
}

type DataStore struct {
	db      *gorm.DB
	batch   Batch
	file    File
	summary Summary
}

func NewStore(db *gorm.DB) Store {
	return &DataStore{
		db:      db,
		batch:   NewBatchStore(db),
		file:    NewFileStore(db),
		summary: NewSummaryStore(db),
	}
}

func (s *DataStore) NewTransactionContext(ctx context.Context) (context.Context, error) {
	return newTransactionContext(ctx, s.db)
}

func (s *DataStore) Batch() Batch {
	return s.batch
}

func (s *DataStore) File() File {
	return s.file
}

func (s *DataStore) Summary() Summary {
	return s.summary
}

// InitialMigration builds the schema from the models plus the
// batch_status_summary view. Production deployments run the goose SQL
// migrations instead; this path serves tests and sqlite setups.
func (s *DataStore) InitialMigration() error {
	if err := s.db.AutoMigrate(
		&model.Batch{},
		&model.FileExtraction{},
		&model.RunSummary{},
	); err != nil {
		return err
	}
	return s.db.Exec(batchStatusSummaryView).Error
}

func (s *DataStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *DataStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// The view joins the file states to their batch through the run-id/batch-id
// alias: files belong to the batch whose run id they carry, and batches
// without a run id are keyed by their batch id.
const batchStatusSummaryView = `
CREATE VIEW IF NOT EXISTS batch_status_summary AS
SELECT b.batch_id                                                        AS batch_id,
       b.status                                                          AS batch_status,
       b.total_files                                                     AS total_files,
       COUNT(f.id)                                                       AS file_count,
       COALESCE(SUM(CASE WHEN f.status = 'pending' THEN 1 ELSE 0 END), 0)    AS pending_files,
       COALESCE(SUM(CASE WHEN f.status = 'processing' THEN 1 ELSE 0 END), 0) AS processing_files,
       COALESCE(SUM(CASE WHEN f.status = 'SUCCESS' THEN 1 ELSE 0 END), 0)    AS success_files,
       COALESCE(SUM(CASE WHEN f.status = 'FAILED' THEN 1 ELSE 0 END), 0)     AS failed_files,
       MAX(f.processing_completed_at)                                    AS last_file_completed_at
FROM batches b
LEFT JOIN file_extractions f
       ON f.run_id = COALESCE(NULLIF(b.run_id, ''), b.batch_id)
GROUP BY b.batch_id, b.status, b.total_files
`
