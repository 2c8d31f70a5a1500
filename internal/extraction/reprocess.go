package extraction

import (
	"time"

	"github.com/tenderhub/extraction-pipeline/internal/fault"
	"github.com/tenderhub/extraction-pipeline/internal/store/model"
)

// DefaultStaleProcessing is how long a file may sit in pending/processing
// with a recorded start time before it is considered abandoned by a crashed
// worker and eligible for re-dispatch.
const DefaultStaleProcessing = 30 * time.Minute

// ShouldReprocess is the idempotency gate for re-dispatching a file:
// successes never run again, permanently failed files never run again,
// retryable failures run while budget remains, and claimed-but-unfinished
// files run again only once their claim has gone stale.
func ShouldReprocess(file *model.FileExtraction, maxRetryAttempts int, staleAfter time.Duration) bool {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleProcessing
	}

	switch file.Status {
	case model.FileStatusSuccess:
		return false
	case model.FileStatusFailed:
		if file.ErrorKind == string(fault.KindPermanent) {
			return false
		}
		return file.RetryCount < maxRetryAttempts
	case model.FileStatusPending, model.FileStatusProcessing:
		if file.ProcessingStartedAt == nil {
			return true
		}
		return time.Since(*file.ProcessingStartedAt) > staleAfter
	default:
		return false
	}
}
