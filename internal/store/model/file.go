package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// File statuses. The terminal values are uppercase for compatibility with
// the records produced by earlier versions of the pipeline.
const (
	FileStatusPending    = "pending"
	FileStatusProcessing = "processing"
	FileStatusSuccess    = "SUCCESS"
	FileStatusFailed     = "FAILED"
	FileStatusSkipped    = "SKIPPED"
)

// FileExtraction is the per-file processing record. DocID is the global
// idempotency key: creation is always create-or-fetch.
type FileExtraction struct {
	ID                    uuid.UUID `gorm:"primaryKey"`
	DocID                 string    `gorm:"uniqueIndex;not null"`
	RunID                 string    `gorm:"index;not null"`
	Source                string    `gorm:"not null;default:upload"`
	Filename              string    `gorm:"not null"`
	FileType              string
	FilePath              string
	Extracted             *JSONField[map[string]any] `gorm:"type:jsonb"`
	Status                string                     `gorm:"not null;default:pending"`
	Error                 string
	ErrorKind             string
	RetryCount            int   `gorm:"not null;default:0"`
	ProcessingDurationMS  int64 `gorm:"column:processing_duration_ms;not null;default:0"`
	ProcessingStartedAt   *time.Time
	ProcessingCompletedAt *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

type FileExtractionList []FileExtraction

func (f FileExtraction) String() string {
	val, _ := json.Marshal(f)
	return string(val)
}

// Payload returns the extracted data, never nil.
func (f *FileExtraction) Payload() map[string]any {
	if f.Extracted == nil || f.Extracted.Data == nil {
		return map[string]any{}
	}
	return f.Extracted.Data
}

// FileStateCounts aggregates per-status file counts for one run id.
type FileStateCounts struct {
	Total      int64
	Pending    int64
	Processing int64
	Success    int64
	Failed     int64
	Skipped    int64
}

func (c FileStateCounts) Processed() int64 {
	return c.Success + c.Failed
}

// Complete evaluates the completion predicate against the given total,
// which may come from the batch record rather than the counts themselves.
func (c FileStateCounts) Complete(total int64) bool {
	return total > 0 &&
		c.Pending == 0 &&
		c.Processing == 0 &&
		c.Processed() >= total
}
