package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tenderhub/extraction-pipeline/internal/config"
)

const defaultDrainLimit = 20

type RedisQueue struct {
	client *redis.Client
	name   string
}

// Make sure we conform to Queue interface
var _ Queue = (*RedisQueue)(nil)

func NewRedisQueue(cfg *config.Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.Address,
		Password: cfg.Queue.Password,
		DB:       cfg.Queue.DB,
	})
	return &RedisQueue{client: client, name: cfg.Queue.QueueName}
}

func (q *RedisQueue) Enqueue(ctx context.Context, msg Message) error {
	raw, err := msg.Encode()
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.name, raw).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) ([]byte, error) {
	res, err := q.client.BRPop(ctx, timeout, q.name).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, err
	}
	// BRPOP returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected brpop reply of length %d", len(res))
	}
	return []byte(res[1]), nil
}

func (q *RedisQueue) ScheduleRetry(ctx context.Context, msg Message, due time.Time) error {
	msg.RetryAt = due.Unix()
	raw, err := msg.Encode()
	if err != nil {
		return err
	}
	return q.client.ZAdd(ctx, q.delayedKey(), redis.Z{
		Score:  float64(due.Unix()),
		Member: raw,
	}).Err()
}

func (q *RedisQueue) DrainDelayed(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = defaultDrainLimit
	}

	entries, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{
		Min:   "0",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, entry := range entries {
		// remove first: only the caller that wins the ZREM owns the entry,
		// so two draining consumers never enqueue it twice.
		removed, err := q.client.ZRem(ctx, q.delayedKey(), entry).Result()
		if err != nil {
			return moved, err
		}
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.name, entry).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func (q *RedisQueue) DeadLetter(ctx context.Context, raw []byte) error {
	return q.client.RPush(ctx, q.deadKey(), raw).Err()
}

func (q *RedisQueue) RequeueDead(ctx context.Context, limit int) (int, error) {
	moved := 0
	for moved < limit {
		raw, err := q.client.LPop(ctx, q.deadKey()).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return moved, err
		}
		if err := q.client.LPush(ctx, q.name, raw).Err(); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func (q *RedisQueue) TrackInFlight(ctx context.Context, jobID string) error {
	return q.client.SAdd(ctx, q.processingKey(), jobID).Err()
}

func (q *RedisQueue) UntrackInFlight(ctx context.Context, jobID string) error {
	return q.client.SRem(ctx, q.processingKey(), jobID).Err()
}

func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.name).Result()
}

func (q *RedisQueue) DeadLetterSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.deadKey()).Result()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) delayedKey() string {
	return q.name + ":delayed"
}

func (q *RedisQueue) deadKey() string {
	return q.name + ":dead"
}

func (q *RedisQueue) processingKey() string {
	return q.name + ":processing"
}
