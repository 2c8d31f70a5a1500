package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobType string

const (
	JobTypeProcessFile    JobType = "process_file"
	JobTypeAggregateBatch JobType = "aggregate_batch"
)

// Message is the queue wire shape. Requeued copies carry the incremented
// attempt counter; everything else travels verbatim.
type Message struct {
	JobID        string    `json:"job_id"`
	Type         JobType   `json:"type"`
	DocID        string    `json:"doc_id,omitempty"`
	BatchID      string    `json:"batch_id,omitempty"`
	Attempt      int       `json:"attempt"`
	MaxAttempts  int       `json:"max_attempts"`
	RetryDelayMS int64     `json:"retry_delay_ms"`
	EnqueuedAt   time.Time `json:"enqueued_at"`
	RetryAt      int64     `json:"retry_at,omitempty"`
}

func NewProcessFileMessage(docID string, batchID string, maxAttempts int, retryDelay time.Duration) Message {
	return Message{
		JobID:        uuid.NewString(),
		Type:         JobTypeProcessFile,
		DocID:        docID,
		BatchID:      batchID,
		Attempt:      0,
		MaxAttempts:  maxAttempts,
		RetryDelayMS: retryDelay.Milliseconds(),
		EnqueuedAt:   time.Now().UTC(),
	}
}

func NewAggregateBatchMessage(batchID string, maxAttempts int, retryDelay time.Duration) Message {
	return Message{
		JobID:        uuid.NewString(),
		Type:         JobTypeAggregateBatch,
		BatchID:      batchID,
		Attempt:      0,
		MaxAttempts:  maxAttempts,
		RetryDelayMS: retryDelay.Milliseconds(),
		EnqueuedAt:   time.Now().UTC(),
	}
}

func (m Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, err
	}
	return m, nil
}

// RetryDelay is the queue-level backoff base, never below one second.
func (m Message) RetryDelay() time.Duration {
	if m.RetryDelayMS < 1000 {
		return time.Second
	}
	return time.Duration(m.RetryDelayMS) * time.Millisecond
}
