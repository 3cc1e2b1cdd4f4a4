// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package queue implements the Work Queue (C3): three Redis-list priority
// queues with starvation avoidance, exponential backoff + jitter retry,
// per-kind max attempts, and a dead-letter list.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/northbound/cil/internal/model"
)

const backoffBaseSeconds = 5
const backoffCapSeconds = 600

// MaxAttempts returns the per-kind retry budget of §4.3. bulk_channel_index
// is unbounded-within-deadline; callers enforce the 1h deadline separately.
func MaxAttempts(kind model.WorkKind) int {
	switch kind {
	case model.WorkPurgeVector, model.WorkPurgeSessions:
		return 3
	case model.WorkSingleMessageIndex, model.WorkSessionIndex:
		return 5
	case model.WorkQueryAsk:
		return 3
	case model.WorkBulkChannelIndex:
		return -1 // unlimited within deadline
	default:
		return 5
	}
}

// NextBackoff computes min(base*2^attempt + rand[0,base), cap), per §4.3.
func NextBackoff(attempt int) time.Duration {
	backoff := float64(backoffBaseSeconds) * pow2(attempt)
	backoff += rand.Float64() * backoffBaseSeconds
	if backoff > backoffCapSeconds {
		backoff = backoffCapSeconds
	}
	return time.Duration(backoff * float64(time.Second))
}

func pow2(n int) float64 {
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// DeadLetterEntry is appended on permanent failure.
type DeadLetterEntry struct {
	Kind      model.WorkKind `json:"kind"`
	Payload   map[string]any `json:"payload"`
	Error     string         `json:"error"`
	Attempts  int            `json:"attempts"`
	FailedAt  time.Time      `json:"failed_at"`
	EnqueuedAt time.Time     `json:"first_enqueued_at"`
}

// Queue is the interface workers and producers depend on. Modeled as a
// process-external resource with at-least-once delivery (Design Note §9),
// never as an in-memory channel.
type Queue interface {
	Enqueue(ctx context.Context, item model.WorkItem) error
	// EnqueueDelayed schedules an item to become visible after delay (used
	// for retries with backoff).
	EnqueueDelayed(ctx context.Context, item model.WorkItem, delay time.Duration) error
	// Dequeue blocks until an item is available, polling high/default/low
	// in priority order with starvation avoidance.
	Dequeue(ctx context.Context) (model.WorkItem, error)
	DeadLetter(ctx context.Context, entry DeadLetterEntry) error
	DeadLetterList(ctx context.Context, limit int64) ([]DeadLetterEntry, error)
	DrainDeadLetter(ctx context.Context, limit int) (int, error)
	QueueDepth(ctx context.Context) (map[model.Priority]int64, error)
}

// RedisQueue implements Queue over three Redis lists, grounded on
// internal/queue/redis_queue.go's RPUSH/BLPOP shape, generalized to three
// named queues plus a delayed-retry sorted set and a dead-letter list.
type RedisQueue struct {
	client       *redis.Client
	keyPrefix    string
	highSince    int // count of consecutive high/default pulls since last forced low pull
	starvationN  int
}

func NewRedisQueue(client *redis.Client, keyPrefix string) (*RedisQueue, error) {
	if keyPrefix == "" {
		keyPrefix = "cil:work"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisQueue{client: client, keyPrefix: keyPrefix, starvationN: 10}, nil
}

func (q *RedisQueue) keyFor(p model.Priority) string { return q.keyPrefix + ":" + string(p) }
func (q *RedisQueue) delayedKey() string             { return q.keyPrefix + ":delayed" }
func (q *RedisQueue) deadLetterKey() string          { return q.keyPrefix + ":dead-letter" }

func (q *RedisQueue) Enqueue(ctx context.Context, item model.WorkItem) error {
	if item.FirstEnqueuedAt.IsZero() {
		item.FirstEnqueuedAt = time.Now()
	}
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}
	return q.client.RPush(ctx, q.keyFor(item.Priority), data).Err()
}

func (q *RedisQueue) EnqueueDelayed(ctx context.Context, item model.WorkItem, delay time.Duration) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal work item: %w", err)
	}
	score := float64(time.Now().Add(delay).Unix())
	return q.client.ZAdd(ctx, q.delayedKey(), redis.Z{Score: score, Member: data}).Err()
}

// promoteDueDelayed moves matured delayed items back onto their priority
// queues. Called opportunistically before each Dequeue poll.
func (q *RedisQueue) promoteDueDelayed(ctx context.Context) error {
	now := float64(time.Now().Unix())
	due, err := q.client.ZRangeByScore(ctx, q.delayedKey(), &redis.ZRangeBy{Min: "-inf", Max: fmt.Sprintf("%f", now)}).Result()
	if err != nil {
		return err
	}
	for _, raw := range due {
		var item model.WorkItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			q.client.ZRem(ctx, q.delayedKey(), raw)
			continue
		}
		if err := q.Enqueue(ctx, item); err != nil {
			continue
		}
		q.client.ZRem(ctx, q.delayedKey(), raw)
	}
	return nil
}

// Dequeue polls high, default, low in priority order with starvation
// avoidance: after starvationN high/default pulls, force one low pull.
func (q *RedisQueue) Dequeue(ctx context.Context) (model.WorkItem, error) {
	_ = q.promoteDueDelayed(ctx)

	order := []model.Priority{model.PriorityHigh, model.PriorityDefault, model.PriorityLow}
	if q.highSince >= q.starvationN {
		order = []model.Priority{model.PriorityLow, model.PriorityHigh, model.PriorityDefault}
	}

	keys := make([]string, 0, len(order))
	for _, p := range order {
		keys = append(keys, q.keyFor(p))
	}

	type result struct {
		val []string
		err error
	}
	resultChan := make(chan result, 1)
	go func() {
		val, err := q.client.BLPop(ctx, 2*time.Second, keys...).Result()
		resultChan <- result{val: val, err: err}
	}()

	select {
	case <-ctx.Done():
		return model.WorkItem{}, ctx.Err()
	case res := <-resultChan:
		if res.err != nil {
			if res.err == redis.Nil {
				return model.WorkItem{}, redis.Nil
			}
			return model.WorkItem{}, res.err
		}
		if len(res.val) < 2 {
			return model.WorkItem{}, fmt.Errorf("invalid BLPOP result")
		}
		var item model.WorkItem
		if err := json.Unmarshal([]byte(res.val[1]), &item); err != nil {
			return model.WorkItem{}, fmt.Errorf("unmarshal work item: %w", err)
		}
		if res.val[0] == q.keyFor(model.PriorityLow) {
			q.highSince = 0
		} else {
			q.highSince++
		}
		return item, nil
	}
}

func (q *RedisQueue) DeadLetter(ctx context.Context, entry DeadLetterEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dead letter entry: %w", err)
	}
	return q.client.RPush(ctx, q.deadLetterKey(), data).Err()
}

func (q *RedisQueue) DeadLetterList(ctx context.Context, limit int64) ([]DeadLetterEntry, error) {
	raws, err := q.client.LRange(ctx, q.deadLetterKey(), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]DeadLetterEntry, 0, len(raws))
	for _, raw := range raws {
		var e DeadLetterEntry
		if err := json.Unmarshal([]byte(raw), &e); err == nil {
			out = append(out, e)
		}
	}
	return out, nil
}

// DrainDeadLetter re-enqueues up to limit dead-lettered items at default
// priority with attempt reset to 0, per SPEC_FULL.md's operator endpoint.
func (q *RedisQueue) DrainDeadLetter(ctx context.Context, limit int) (int, error) {
	drained := 0
	for i := 0; i < limit; i++ {
		raw, err := q.client.LPop(ctx, q.deadLetterKey()).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return drained, err
		}
		var entry DeadLetterEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			continue
		}
		item := model.WorkItem{
			Kind:            entry.Kind,
			Payload:         entry.Payload,
			Priority:        model.PriorityDefault,
			Attempt:         0,
			FirstEnqueuedAt: entry.EnqueuedAt,
		}
		if err := q.Enqueue(ctx, item); err != nil {
			return drained, err
		}
		drained++
	}
	return drained, nil
}

func (q *RedisQueue) QueueDepth(ctx context.Context) (map[model.Priority]int64, error) {
	out := map[model.Priority]int64{}
	for _, p := range []model.Priority{model.PriorityHigh, model.PriorityDefault, model.PriorityLow} {
		n, err := q.client.LLen(ctx, q.keyFor(p)).Result()
		if err != nil {
			return nil, err
		}
		out[p] = n
	}
	n, err := q.client.LLen(ctx, q.deadLetterKey()).Result()
	if err == nil {
		out["dead_letter"] = n
	}
	return out, nil
}
