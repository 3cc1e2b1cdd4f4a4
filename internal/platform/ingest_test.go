// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package platform

import (
	"context"
	"testing"
	"time"

	"github.com/northbound/cil/internal/model"
	"github.com/northbound/cil/internal/queue"
	"github.com/northbound/cil/internal/store"
)

type recordingQueue struct {
	items []model.WorkItem
}

func (q *recordingQueue) Enqueue(ctx context.Context, item model.WorkItem) error {
	q.items = append(q.items, item)
	return nil
}
func (q *recordingQueue) EnqueueDelayed(ctx context.Context, item model.WorkItem, delay time.Duration) error {
	return q.Enqueue(ctx, item)
}
func (q *recordingQueue) Dequeue(ctx context.Context) (model.WorkItem, error) {
	return model.WorkItem{}, nil
}
func (q *recordingQueue) DeadLetter(ctx context.Context, entry queue.DeadLetterEntry) error { return nil }
func (q *recordingQueue) DeadLetterList(ctx context.Context, limit int64) ([]queue.DeadLetterEntry, error) {
	return nil, nil
}
func (q *recordingQueue) DrainDeadLetter(ctx context.Context, limit int) (int, error) { return 0, nil }
func (q *recordingQueue) QueueDepth(ctx context.Context) (map[model.Priority]int64, error) {
	return nil, nil
}

func newTestIngest(t *testing.T) (*Ingest, *recordingQueue) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.UpsertTenant(context.Background(), model.Tenant{ID: 1, Name: "acme"}); err != nil {
		t.Fatalf("UpsertTenant: %v", err)
	}
	q := &recordingQueue{}
	return New(st, q), q
}

func TestHandleMessageCreated_PersistsAndEnqueues(t *testing.T) {
	ig, q := newTestIngest(t)
	ev := MessageCreatedEvent{
		TenantID:   1,
		ChannelID:  10,
		AuthorID:   100,
		MessageID:  1000,
		Content:    "hello world",
		AuthoredAt: time.Now(),
	}
	if err := ig.HandleMessageCreated(context.Background(), ev); err != nil {
		t.Fatalf("HandleMessageCreated: %v", err)
	}

	msgs, err := ig.Store.GetMessagesByIDs(context.Background(), []int64{1000})
	if err != nil {
		t.Fatalf("GetMessagesByIDs: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello world" {
		t.Fatalf("expected message to be persisted, got %+v", msgs)
	}
	if len(q.items) != 1 || q.items[0].Kind != model.WorkSingleMessageIndex {
		t.Fatalf("expected one single_message_index work item, got %+v", q.items)
	}
}

func TestHandleMessageCreated_IdempotentOnDuplicateID(t *testing.T) {
	ig, q := newTestIngest(t)
	ev := MessageCreatedEvent{TenantID: 1, ChannelID: 10, AuthorID: 100, MessageID: 1000, Content: "a", AuthoredAt: time.Now()}
	if err := ig.HandleMessageCreated(context.Background(), ev); err != nil {
		t.Fatalf("first HandleMessageCreated: %v", err)
	}
	if err := ig.HandleMessageCreated(context.Background(), ev); err != nil {
		t.Fatalf("second HandleMessageCreated: %v", err)
	}

	msgs, err := ig.Store.GetMessagesByIDs(context.Background(), []int64{1000})
	if err != nil {
		t.Fatalf("GetMessagesByIDs: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one row for duplicate message id, got %d", len(msgs))
	}
	if len(q.items) != 2 {
		t.Fatalf("expected two enqueue attempts even though the row is a no-op, got %d", len(q.items))
	}
}

func TestHandleMessageCreated_RejectsMissingTenant(t *testing.T) {
	ig, _ := newTestIngest(t)
	err := ig.HandleMessageCreated(context.Background(), MessageCreatedEvent{MessageID: 1})
	if err == nil {
		t.Fatal("expected error for missing tenant_id")
	}
}

func TestHandleMessagesBulkDeleted_SoftDeletesAndQueuesPurge(t *testing.T) {
	ig, q := newTestIngest(t)
	ctx := context.Background()
	for _, id := range []int64{1, 2} {
		ev := MessageCreatedEvent{TenantID: 1, ChannelID: 10, AuthorID: 100, MessageID: id, Content: "secret token hunter2", AuthoredAt: time.Now()}
		if err := ig.HandleMessageCreated(ctx, ev); err != nil {
			t.Fatalf("HandleMessageCreated: %v", err)
		}
	}
	q.items = nil

	if err := ig.HandleMessagesBulkDeleted(ctx, MessagesBulkDeletedEvent{TenantID: 1, MessageIDs: []int64{1, 2}}); err != nil {
		t.Fatalf("HandleMessagesBulkDeleted: %v", err)
	}

	msgs, err := ig.Store.GetMessagesByIDs(ctx, []int64{1, 2})
	if err != nil {
		t.Fatalf("GetMessagesByIDs: %v", err)
	}
	for _, m := range msgs {
		if !m.Deleted || m.Content != model.DeletedSentinel {
			t.Fatalf("expected message %d to be soft-deleted, got %+v", m.ID, m)
		}
	}
	if len(q.items) != 1 || q.items[0].Kind != model.WorkPurgeSessions || q.items[0].Priority != model.PriorityHigh {
		t.Fatalf("expected one high-priority purge_sessions item, got %+v", q.items)
	}
}

func TestHandleAttachmentAdded_RecordsPendingAttachment(t *testing.T) {
	ig, q := newTestIngest(t)
	ctx := context.Background()
	ev := MessageCreatedEvent{TenantID: 1, ChannelID: 10, AuthorID: 100, MessageID: 5, Content: "see attached", AuthoredAt: time.Now()}
	if err := ig.HandleMessageCreated(ctx, ev); err != nil {
		t.Fatalf("HandleMessageCreated: %v", err)
	}
	q.items = nil

	err := ig.HandleAttachmentAdded(ctx, AttachmentAddedEvent{
		TenantID: 1, MessageID: 5, CDNURL: "https://cdn.example/file.pdf", Filename: "file.pdf", MIME: "application/pdf", ByteSize: 2048,
	})
	if err != nil {
		t.Fatalf("HandleAttachmentAdded: %v", err)
	}
	if len(q.items) != 1 || q.items[0].Kind != model.WorkAttachmentProcess {
		t.Fatalf("expected one attachment_process work item, got %+v", q.items)
	}
}

type fakeDeferrer struct{ called string }

func (f *fakeDeferrer) Defer(token string) error {
	f.called = token
	return nil
}

func TestHandleCommandInvoked_DefersBeforeEnqueue(t *testing.T) {
	ig, q := newTestIngest(t)
	ack := &fakeDeferrer{}
	err := ig.HandleCommandInvoked(context.Background(), CommandInvokedEvent{
		TenantID: 1, ChannelID: 10, UserID: 100, Command: "ask", Query: "what happened yesterday", InteractionToken: "tok-1",
	}, ack)
	if err != nil {
		t.Fatalf("HandleCommandInvoked: %v", err)
	}
	if ack.called != "tok-1" {
		t.Fatalf("expected interaction to be deferred with token tok-1, got %q", ack.called)
	}
	if len(q.items) != 1 || q.items[0].Kind != model.WorkQueryAsk {
		t.Fatalf("expected one query_ask work item, got %+v", q.items)
	}
}
