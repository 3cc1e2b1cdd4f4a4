// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package worker implements the C3 Work Queue's consumer side: a pool of
// goroutines pulling from queue.Queue and dispatching by model.WorkKind,
// grounded on the teacher's internal/worker/worker.go (StartWorkers/
// workerLoop shape), generalized from a single HandlerFunc to a per-kind
// dispatch table with retry/backoff, dead-lettering, and soft/hard
// per-kind deadlines.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/northbound/cil/internal/logger"
	"github.com/northbound/cil/internal/model"
	"github.com/northbound/cil/internal/queue"
)

// Handler processes one work item. A returned error causes the item to be
// retried (if attempts remain) or dead-lettered.
type Handler func(ctx context.Context, item model.WorkItem) error

// Pool runs a fixed number of worker goroutines against a shared Queue,
// dispatching each dequeued item to the Handler registered for its Kind.
type Pool struct {
	Queue       queue.Queue
	Handlers    map[model.WorkKind]Handler
	Concurrency int
}

func NewPool(q queue.Queue, handlers map[model.WorkKind]Handler, concurrency int) *Pool {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{Queue: q, Handlers: handlers, Concurrency: concurrency}
}

// Run starts the pool and blocks until ctx is cancelled and every worker
// goroutine has returned, mirroring StartWorkers' wg.Wait() shutdown shape.
func (p *Pool) Run(ctx context.Context) {
	logger.Printf("worker.Pool: starting %d workers", p.Concurrency)

	var wg sync.WaitGroup
	wg.Add(p.Concurrency)
	for i := 0; i < p.Concurrency; i++ {
		id := i + 1
		go func() {
			defer wg.Done()
			p.loop(ctx, id)
		}()
	}
	wg.Wait()
	logger.Printf("worker.Pool: all workers stopped")
}

func (p *Pool) loop(ctx context.Context, workerID int) {
	logger.Printf("worker.Pool: worker %d started", workerID)
	for {
		select {
		case <-ctx.Done():
			logger.Printf("worker.Pool: worker %d stopping (context cancelled)", workerID)
			return
		default:
		}

		item, err := p.Queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}

		p.process(ctx, item, workerID)
	}
}

// process runs the handler for item's kind under the kind's soft/hard
// deadlines, then settles the item: ack on success, retry-with-backoff or
// dead-letter on failure.
func (p *Pool) process(ctx context.Context, item model.WorkItem, workerID int) {
	handler, ok := p.Handlers[item.Kind]
	if !ok {
		logger.Errorf("worker.Pool: worker %d has no handler for kind=%s, dead-lettering", workerID, item.Kind)
		p.deadLetter(ctx, item, "no handler registered")
		return
	}

	soft, hard := Deadlines(item.Kind)
	hardCtx, cancel := context.WithTimeout(ctx, hard)
	defer cancel()

	// Soft deadline is advisory: handlers that check ctx.Err() against the
	// parent see it via softCtx's earlier cancellation and can wind down
	// gracefully before the hard kill. Go has no way to force-terminate a
	// running goroutine, so "hard kill" here means the pool stops waiting
	// and requeues the item; the abandoned handler goroutine may still be
	// running and is expected to notice ctx.Done() on its next I/O call.
	softCtx, softCancel := context.WithTimeout(hardCtx, soft)
	defer softCancel()

	done := make(chan error, 1)
	go func() {
		done <- handler(softCtx, item)
	}()

	select {
	case err := <-done:
		if err != nil {
			p.settle(ctx, item, err)
			return
		}
		logger.Printf("worker.Pool: worker %d completed kind=%s id=%s", workerID, item.Kind, item.ID)
	case <-hardCtx.Done():
		logger.Errorf("worker.Pool: worker %d hard deadline hit for kind=%s id=%s, requeueing", workerID, item.Kind, item.ID)
		p.settle(ctx, item, hardCtx.Err())
	}
}

// settle applies the retry policy of §4.3: increment attempt, dead-letter
// if the per-kind budget is exhausted, otherwise re-enqueue after
// queue.NextBackoff(attempt).
func (p *Pool) settle(ctx context.Context, item model.WorkItem, cause error) {
	item.Attempt++
	max := queue.MaxAttempts(item.Kind)
	if max > 0 && item.Attempt >= max {
		logger.Errorf("worker.Pool: kind=%s id=%s exhausted %d attempts: %v", item.Kind, item.ID, item.Attempt, cause)
		p.deadLetter(ctx, item, cause.Error())
		return
	}

	backoff := queue.NextBackoff(item.Attempt)
	logger.Printf("worker.Pool: kind=%s id=%s failed (attempt %d/%d), retrying in %s: %v", item.Kind, item.ID, item.Attempt, max, backoff, cause)
	if err := p.Queue.EnqueueDelayed(ctx, item, backoff); err != nil {
		logger.Errorf("worker.Pool: failed to requeue kind=%s id=%s: %v", item.Kind, item.ID, err)
	}
}

func (p *Pool) deadLetter(ctx context.Context, item model.WorkItem, errMsg string) {
	entry := queue.DeadLetterEntry{
		Kind:       item.Kind,
		Payload:    item.Payload,
		Error:      errMsg,
		Attempts:   item.Attempt,
		FailedAt:   time.Now(),
		EnqueuedAt: item.FirstEnqueuedAt,
	}
	if err := p.Queue.DeadLetter(ctx, entry); err != nil {
		logger.Errorf("worker.Pool: failed to dead-letter kind=%s id=%s: %v", item.Kind, item.ID, err)
	}
}

// Deadlines returns the soft and hard per-kind time limits of §4.3.
func Deadlines(kind model.WorkKind) (soft, hard time.Duration) {
	switch kind {
	case model.WorkAttachmentProcess:
		return 250 * time.Second, 300 * time.Second
	case model.WorkBulkChannelIndex:
		return 55 * time.Minute, time.Hour
	default:
		return 300 * time.Second, 600 * time.Second
	}
}
