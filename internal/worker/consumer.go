// Package worker contains the pipeline's job engine: the queue consumer
// loop, the batch finalizer and the stuck-batch sweeper.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tenderhub/extraction-pipeline/internal/config"
	"github.com/tenderhub/extraction-pipeline/internal/extraction"
	"github.com/tenderhub/extraction-pipeline/internal/queue"
	"github.com/tenderhub/extraction-pipeline/internal/retry"
	"github.com/tenderhub/extraction-pipeline/internal/store"
	"github.com/tenderhub/extraction-pipeline/internal/store/model"
	"github.com/tenderhub/extraction-pipeline/pkg/metrics"
)

const dispatchErrorPause = time.Second

// TaskRunner processes one file and reports the outcome as data.
type TaskRunner interface {
	Run(ctx context.Context, file *model.FileExtraction) extraction.Result
}

// Consumer is one instance of the queue consumption loop. Several may run
// concurrently against the same queue; the queue's atomic pop hands each
// message to exactly one of them.
type Consumer struct {
	store      store.Store
	queue      queue.Queue
	task       TaskRunner
	aggregator Aggregator
	finalizer  *Finalizer

	dequeueTimeout   time.Duration
	maxRetryAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
	staleProcessing  time.Duration
	queueName        string
}

func NewConsumer(cfg *config.Config, s store.Store, q queue.Queue, task TaskRunner, aggregator Aggregator, finalizer *Finalizer) *Consumer {
	return &Consumer{
		store:            s,
		queue:            q,
		task:             task,
		aggregator:       aggregator,
		finalizer:        finalizer,
		dequeueTimeout:   cfg.Worker.DequeueTimeout,
		maxRetryAttempts: cfg.Worker.MaxRetryAttempts,
		retryBaseDelay:   cfg.Worker.RetryBaseDelay,
		retryMaxDelay:    cfg.Worker.RetryMaxDelay,
		staleProcessing:  cfg.Worker.StaleProcessing,
		queueName:        cfg.Queue.QueueName,
	}
}

// Run consumes messages until the context is cancelled. The loop outlives
// any single message: a dispatch failure is logged, the loop pauses
// briefly and continues.
func (c *Consumer) Run(ctx context.Context) error {
	logger := zap.S().Named("consumer")
	logger.Info("consumer loop started")
	defer logger.Info("consumer loop stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if _, err := c.queue.DrainDelayed(ctx, time.Now(), 0); err != nil {
			logger.Errorw("failed to drain delayed set", "error", err)
		}

		raw, err := c.queue.Dequeue(ctx, c.dequeueTimeout)
		if err != nil {
			if errors.Is(err, queue.ErrEmpty) {
				c.observeDepth(ctx)
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			logger.Errorw("dequeue failed", "error", err)
			c.pause(ctx)
			continue
		}

		msg, err := queue.DecodeMessage(raw)
		if err != nil {
			// malformed payloads are dropped, not retried.
			logger.Errorw("dropping malformed message", "error", err, "payload", string(raw))
			continue
		}

		if err := c.dispatch(ctx, msg, raw); err != nil {
			logger.Errorw("job dispatch failed", "job_id", msg.JobID, "type", msg.Type, "error", err)
			c.pause(ctx)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, msg queue.Message, raw []byte) error {
	if err := c.queue.TrackInFlight(ctx, msg.JobID); err != nil {
		zap.S().Named("consumer").Warnw("failed to track in-flight job", "job_id", msg.JobID, "error", err)
	}
	defer func() {
		if err := c.queue.UntrackInFlight(context.WithoutCancel(ctx), msg.JobID); err != nil {
			zap.S().Named("consumer").Warnw("failed to untrack in-flight job", "job_id", msg.JobID, "error", err)
		}
	}()

	switch msg.Type {
	case queue.JobTypeProcessFile:
		return c.handleProcessFile(ctx, msg, raw)
	case queue.JobTypeAggregateBatch:
		return c.handleAggregateBatch(ctx, msg, raw)
	default:
		zap.S().Named("consumer").Errorw("dropping message of unknown type", "job_id", msg.JobID, "type", msg.Type)
		return nil
	}
}

func (c *Consumer) handleProcessFile(ctx context.Context, msg queue.Message, raw []byte) error {
	logger := zap.S().Named("consumer")

	file, err := c.store.File().Get(ctx, msg.DocID)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			// invariant violation: the message references a record that was
			// never registered. Permanent, never retried.
			logger.Errorw("file record missing for message", "doc_id", msg.DocID, "job_id", msg.JobID)
			if msg.BatchID != "" {
				return c.finalizer.MaybeFinalize(ctx, msg.BatchID)
			}
			return nil
		}
		return err
	}

	batchID := msg.BatchID
	if batchID == "" {
		batchID = file.RunID
	}

	if !extraction.ShouldReprocess(file, c.maxRetryAttempts, c.staleProcessing) {
		logger.Infow("skipping file, not eligible for reprocessing",
			"doc_id", file.DocID, "status", file.Status, "retry_count", file.RetryCount)
		metrics.IncreaseJobsProcessedMetric(string(msg.Type), "skipped")
		return c.finalizer.MaybeFinalize(ctx, batchID)
	}

	// claim the file before any slow work so concurrent finalizers see the
	// transition.
	file, err = c.store.File().MarkProcessing(ctx, msg.DocID)
	if err != nil {
		return err
	}

	result := c.task.Run(ctx, file)
	if result.Failed() {
		if err := c.store.File().MarkFailed(ctx, file.DocID, string(result.Kind), result.Message); err != nil {
			return err
		}
	} else {
		if err := c.store.File().MarkSuccess(ctx, file.DocID, result.Payload); err != nil {
			return err
		}
	}

	// the retry decision is driven by the persisted state, not by an error
	// value: re-read what the store says happened.
	file, err = c.store.File().Get(ctx, msg.DocID)
	if err != nil {
		return err
	}

	outcome := "success"
	if file.Status == model.FileStatusFailed {
		outcome = "failed"
		if err := c.applyRetryPolicy(ctx, msg, raw, file); err != nil {
			return err
		}
	}
	metrics.IncreaseJobsProcessedMetric(string(msg.Type), outcome)
	metrics.ObserveProcessingDurationMetric(outcome, file.ProcessingDurationMS)

	// every file completion is a finalization trigger, success or not.
	return c.finalizer.MaybeFinalize(ctx, batchID)
}

func (c *Consumer) applyRetryPolicy(ctx context.Context, msg queue.Message, raw []byte, file *model.FileExtraction) error {
	logger := zap.S().Named("consumer")

	retryCount, err := c.store.File().IncrementRetryCount(ctx, file.DocID)
	if err != nil {
		return err
	}

	maxAttempts := msg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = c.maxRetryAttempts
	}

	if retryCount < maxAttempts {
		delay := retry.Backoff(msg.Attempt, msg.RetryDelay(), c.retryMaxDelay)
		msg.Attempt++
		logger.Infow("scheduling file retry",
			"doc_id", file.DocID, "retry_count", retryCount, "attempt", msg.Attempt, "delay", delay)
		return c.queue.ScheduleRetry(ctx, msg, time.Now().Add(delay))
	}

	logger.Warnw("retries exhausted, dead-lettering message",
		"doc_id", file.DocID, "retry_count", retryCount, "error_kind", file.ErrorKind, "error", file.Error)
	metrics.IncreaseDeadLetteredMetric(string(msg.Type))
	return c.queue.DeadLetter(ctx, raw)
}

func (c *Consumer) handleAggregateBatch(ctx context.Context, msg queue.Message, raw []byte) error {
	if msg.BatchID == "" {
		zap.S().Named("consumer").Errorw("dropping aggregate message without batch id", "job_id", msg.JobID)
		return nil
	}

	if _, err := c.aggregator.Aggregate(ctx, msg.BatchID); err != nil {
		metrics.IncreaseJobsProcessedMetric(string(msg.Type), "failed")
		if msg.Attempt+1 < msg.MaxAttempts {
			msg.Attempt++
			delay := retry.Backoff(msg.Attempt-1, msg.RetryDelay(), c.retryMaxDelay)
			if serr := c.queue.ScheduleRetry(ctx, msg, time.Now().Add(delay)); serr != nil {
				return fmt.Errorf("scheduling aggregation retry: %w (aggregation error: %v)", serr, err)
			}
		} else {
			metrics.IncreaseDeadLetteredMetric(string(msg.Type))
			if derr := c.queue.DeadLetter(ctx, raw); derr != nil {
				return fmt.Errorf("dead-lettering aggregation: %w (aggregation error: %v)", derr, err)
			}
		}
		// surface the failure so the loop logs it and pauses.
		return err
	}

	metrics.IncreaseJobsProcessedMetric(string(msg.Type), "success")
	return nil
}

func (c *Consumer) observeDepth(ctx context.Context) {
	depth, err := c.queue.Depth(ctx)
	if err != nil {
		return
	}
	metrics.UpdateQueueDepthMetric(c.queueName, depth)
}

func (c *Consumer) pause(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(dispatchErrorPause):
	}
}
