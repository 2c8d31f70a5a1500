// Package queue implements the shared work queue over Redis: a durable
// list with blocking pop, a time-ordered delayed set for scheduled
// retries, a dead-letter list for exhausted messages and an advisory
// in-flight set for observability.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrEmpty is returned by Dequeue when the blocking pop times out with
// nothing to deliver. It is the consumer loop's scheduling point, not a
// failure.
var ErrEmpty = errors.New("queue: empty")

type Queue interface {
	// Enqueue pushes a message onto the live queue.
	Enqueue(ctx context.Context, msg Message) error
	// Dequeue blocks up to timeout for the next raw payload. Returns
	// ErrEmpty on timeout. Payloads are returned undecoded so malformed
	// entries can be dropped by the consumer.
	Dequeue(ctx context.Context, timeout time.Duration) ([]byte, error)
	// ScheduleRetry places the message into the delayed set, due at the
	// given time.
	ScheduleRetry(ctx context.Context, msg Message, due time.Time) error
	// DrainDelayed moves entries of the delayed set that are due into the
	// live queue, up to limit, and reports how many moved.
	DrainDelayed(ctx context.Context, now time.Time, limit int) (int, error)
	// DeadLetter moves the raw payload to the dead-letter list.
	DeadLetter(ctx context.Context, raw []byte) error
	// RequeueDead moves up to limit dead-lettered payloads back onto the
	// live queue, for manual re-drives.
	RequeueDead(ctx context.Context, limit int) (int, error)

	TrackInFlight(ctx context.Context, jobID string) error
	UntrackInFlight(ctx context.Context, jobID string) error

	Depth(ctx context.Context) (int64, error)
	DeadLetterSize(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}
