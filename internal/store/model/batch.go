package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	BatchStatusPending             = "pending"
	BatchStatusQueued              = "queued"
	BatchStatusExtracting          = "extracting"
	BatchStatusProcessing          = "processing"
	BatchStatusCompleted           = "completed"
	BatchStatusCompletedWithErrors = "completed_with_errors"
	BatchStatusFailed              = "failed"
)

// Batch is one submission of files processed together. Files are grouped
// under the batch's run id; older batches have no run id and alias it to
// the batch id.
type Batch struct {
	ID           uuid.UUID `gorm:"primaryKey"`
	BatchID      string    `gorm:"uniqueIndex;not null"`
	RunID        string    `gorm:"index"`
	ArchivePath  string
	TotalFiles   int    `gorm:"not null;default:0"`
	UploadedBy   string
	Status       string `gorm:"not null;default:pending"`
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CompletedAt  *time.Time
}

type BatchList []Batch

func (b Batch) String() string {
	val, _ := json.Marshal(b)
	return string(val)
}

// EffectiveRunID is the id the batch's files are keyed under. Lookups must
// fall back from run id to batch id; callers that get zero rows for the
// effective run id retry with the batch id itself.
func (b *Batch) EffectiveRunID() string {
	if b.RunID != "" {
		return b.RunID
	}
	return b.BatchID
}

// Finalized reports whether the batch already reached a completed status
// and must not be finalized again.
func (b *Batch) Finalized() bool {
	return b.Status == BatchStatusCompleted || b.Status == BatchStatusCompletedWithErrors
}

// BatchStatusSummary is one row of the batch_status_summary view: per-batch
// file state counts precomputed by the database. total_files comes from the
// batches row, file_count from the matching extractions. The view also
// carries last_file_completed_at for the stuck-batch query; it is filtered
// on in SQL and deliberately not mapped here.
type BatchStatusSummary struct {
	BatchID         string
	BatchStatus     string
	TotalFiles      int64
	FileCount       int64
	PendingFiles    int64
	ProcessingFiles int64
	SuccessFiles    int64
	FailedFiles     int64
}

func (BatchStatusSummary) TableName() string {
	return "batch_status_summary"
}

// Total is the completion denominator: the recorded total when set, else
// the observed file count (the backfill case).
func (s *BatchStatusSummary) Total() int64 {
	if s.TotalFiles > 0 {
		return s.TotalFiles
	}
	return s.FileCount
}

// Complete evaluates the completion predicate on the summary counts.
func (s *BatchStatusSummary) Complete() bool {
	total := s.Total()
	return total > 0 &&
		s.PendingFiles == 0 &&
		s.ProcessingFiles == 0 &&
		s.SuccessFiles+s.FailedFiles >= total
}
