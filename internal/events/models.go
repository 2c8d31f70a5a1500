package events

// BatchFinalizedEvent is emitted after a batch is sealed into a terminal
// status and its aggregation ran.
type BatchFinalizedEvent struct {
	BatchID string `json:"batch_id"`
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Total   int64  `json:"total"`
	Success int64  `json:"success"`
	Failed  int64  `json:"failed"`
}
