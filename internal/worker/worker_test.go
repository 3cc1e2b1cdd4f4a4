// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/northbound/cil/internal/model"
	"github.com/northbound/cil/internal/queue"
)

// fakeQueue is an in-memory queue.Queue, grounded on the teacher's
// worker_test.go shape (a handler recording processed jobs) but swapping
// the real-Redis-or-skip pattern for a fake so retry/dead-letter behavior
// is testable without a live broker.
type fakeQueue struct {
	mu          sync.Mutex
	items       []model.WorkItem
	delayed     []model.WorkItem
	deadLetters []queue.DeadLetterEntry
}

func (q *fakeQueue) Enqueue(ctx context.Context, item model.WorkItem) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
	return nil
}

func (q *fakeQueue) EnqueueDelayed(ctx context.Context, item model.WorkItem, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.delayed = append(q.delayed, item)
	return nil
}

func (q *fakeQueue) Dequeue(ctx context.Context) (model.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return model.WorkItem{}, context.DeadlineExceeded
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}

func (q *fakeQueue) DeadLetter(ctx context.Context, entry queue.DeadLetterEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, entry)
	return nil
}

func (q *fakeQueue) DeadLetterList(ctx context.Context, limit int64) ([]queue.DeadLetterEntry, error) {
	return q.deadLetters, nil
}

func (q *fakeQueue) DrainDeadLetter(ctx context.Context, limit int) (int, error) { return 0, nil }

func (q *fakeQueue) QueueDepth(ctx context.Context) (map[model.Priority]int64, error) {
	return nil, nil
}

func TestDeadlines_PerKindOverrides(t *testing.T) {
	if soft, hard := Deadlines(model.WorkAttachmentProcess); soft >= hard {
		t.Fatalf("attachment soft deadline must be under hard, got soft=%s hard=%s", soft, hard)
	}
	if _, hard := Deadlines(model.WorkBulkChannelIndex); hard != time.Hour {
		t.Fatalf("expected bulk_channel_index hard deadline of 1h, got %s", hard)
	}
	if soft, hard := Deadlines(model.WorkSingleMessageIndex); soft != 300*time.Second || hard != 600*time.Second {
		t.Fatalf("expected default 300s/600s deadlines, got soft=%s hard=%s", soft, hard)
	}
}

func TestPool_SettleRetriesUnderAttemptBudget(t *testing.T) {
	q := &fakeQueue{}
	pool := NewPool(q, map[model.WorkKind]Handler{}, 1)

	item := model.WorkItem{ID: "1", Kind: model.WorkQueryAsk, Attempt: 0}
	pool.settle(context.Background(), item, errBoom)

	if len(q.delayed) != 1 {
		t.Fatalf("expected item to be requeued with backoff, got %d delayed items", len(q.delayed))
	}
	if q.delayed[0].Attempt != 1 {
		t.Fatalf("expected attempt to be incremented to 1, got %d", q.delayed[0].Attempt)
	}
	if len(q.deadLetters) != 0 {
		t.Fatalf("expected no dead letters while attempts remain")
	}
}

func TestPool_SettleDeadLettersOnExhaustion(t *testing.T) {
	q := &fakeQueue{}
	pool := NewPool(q, map[model.WorkKind]Handler{}, 1)

	// query_ask has a budget of 3 (queue.MaxAttempts); the third failure
	// (attempt becomes 3) must dead-letter rather than retry again.
	item := model.WorkItem{ID: "1", Kind: model.WorkQueryAsk, Attempt: 2}
	pool.settle(context.Background(), item, errBoom)

	if len(q.deadLetters) != 1 {
		t.Fatalf("expected item to be dead-lettered, got %d delayed / %d dead", len(q.delayed), len(q.deadLetters))
	}
	if q.deadLetters[0].Attempts != 3 {
		t.Fatalf("expected dead letter to record 3 attempts, got %d", q.deadLetters[0].Attempts)
	}
}

func TestPool_Process_HandlerSuccessDoesNotRequeue(t *testing.T) {
	q := &fakeQueue{}
	called := false
	handlers := map[model.WorkKind]Handler{
		model.WorkQueryAsk: func(ctx context.Context, item model.WorkItem) error {
			called = true
			return nil
		},
	}
	pool := NewPool(q, handlers, 1)
	pool.process(context.Background(), model.WorkItem{ID: "1", Kind: model.WorkQueryAsk}, 1)

	if !called {
		t.Fatal("expected handler to run")
	}
	if len(q.delayed) != 0 || len(q.deadLetters) != 0 {
		t.Fatalf("expected no retry or dead-letter on success, got delayed=%d dead=%d", len(q.delayed), len(q.deadLetters))
	}
}

func TestPool_Process_UnknownKindDeadLettersImmediately(t *testing.T) {
	q := &fakeQueue{}
	pool := NewPool(q, map[model.WorkKind]Handler{}, 1)
	pool.process(context.Background(), model.WorkItem{ID: "1", Kind: model.WorkKind("unknown")}, 1)

	if len(q.deadLetters) != 1 {
		t.Fatalf("expected unknown kind to dead-letter immediately, got %d", len(q.deadLetters))
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (e *boomError) Error() string { return "boom" }
