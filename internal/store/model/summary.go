package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	RunSummaryStatusPending    = "pending"
	RunSummaryStatusProcessing = "processing"
	RunSummaryStatusCompleted  = "completed"
	RunSummaryStatusFailed     = "failed"
)

// RunSummary holds the merged extraction output for a whole run plus the
// aggregation statistics. One row per run id, written by idempotent upsert.
type RunSummary struct {
	ID           uuid.UUID                  `gorm:"primaryKey"`
	RunID        string                     `gorm:"uniqueIndex;not null"`
	UIData       *JSONField[map[string]any] `gorm:"column:ui_data;type:jsonb"`
	SummaryData  *JSONField[map[string]any] `gorm:"column:summary_data;type:jsonb"`
	Status       string                     `gorm:"not null;default:pending"`
	TotalFiles   int                        `gorm:"not null;default:0"`
	SuccessFiles int                        `gorm:"not null;default:0"`
	FailedFiles  int                        `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (s RunSummary) String() string {
	val, _ := json.Marshal(s)
	return string(val)
}
