// Package retry implements the pipeline's backoff policy: exponential delay
// with additive jitter, a kind-based eligibility gate, and an executor for
// in-process retries. Queue-level re-enqueues use the same Backoff with an
// attempt counter carried on the message, independent of in-process attempts.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/thoas/go-funk"

	"github.com/tenderhub/extraction-pipeline/internal/fault"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// DefaultRetryableKinds lists the error kinds worth retrying. Permanent,
// parse and unknown failures are not.
var DefaultRetryableKinds = []fault.Kind{
	fault.KindRetryable,
	fault.KindTimeout,
	fault.KindRateLimit,
	fault.KindLLM,
}

type Config struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RetryableKinds []fault.Kind
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:    DefaultMaxAttempts,
		BaseDelay:      DefaultBaseDelay,
		MaxDelay:       DefaultMaxDelay,
		RetryableKinds: DefaultRetryableKinds,
	}
}

// Backoff computes the delay before the next try:
// base*2^attempt plus a jitter drawn uniformly from [0, base*2^(attempt-1)],
// clamped to max. Attempt counts from zero.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(base) * math.Pow(2, float64(attempt))
	jitterCap := float64(base) * math.Pow(2, math.Max(float64(attempt-1), 0))
	delay += rand.Float64() * jitterCap

	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}

// ShouldRetry reports whether a failure on the given attempt (counting from
// one) deserves another try: never once the attempt budget is spent, and
// only for kinds in the retryable set.
func (c Config) ShouldRetry(err error, attempt int) bool {
	if attempt >= c.MaxAttempts {
		return false
	}
	return funk.Contains(c.retryableKinds(), fault.Classify(err))
}

func (c Config) retryableKinds() []fault.Kind {
	if len(c.RetryableKinds) == 0 {
		return DefaultRetryableKinds
	}
	return c.RetryableKinds
}

// Do runs op, retrying per the config and sleeping the backoff delay between
// attempts. It returns the last error once retries are exhausted or the
// error is not retryable, and ctx.Err if the context is cancelled while
// waiting.
func Do(ctx context.Context, cfg Config, op func(context.Context) error) error {
	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !cfg.ShouldRetry(err, attempt+1) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(Backoff(attempt, cfg.BaseDelay, cfg.MaxDelay)):
		}
	}
}
