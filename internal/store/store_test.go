// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"testing"
	"time"

	"github.com/northbound/cil/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedIndexedChannel(t *testing.T, s *Store, ctx context.Context, tenantID, channelID int64) {
	t.Helper()
	if err := s.UpsertTenant(ctx, model.Tenant{ID: tenantID, Name: "acme"}); err != nil {
		t.Fatalf("UpsertTenant: %v", err)
	}
	if err := s.UpsertChannel(ctx, model.Channel{ID: channelID, TenantID: tenantID, Name: "general", Indexed: true}); err != nil {
		t.Fatalf("UpsertChannel: %v", err)
	}
}

func TestInsertMessage_IsIdempotentOnDuplicateID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedIndexedChannel(t, s, ctx, 1, 10)

	msg := model.Message{ID: 100, TenantID: 1, ChannelID: 10, AuthorID: 5, Content: "hello", AuthoredAt: time.Now()}
	if err := s.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("first InsertMessage: %v", err)
	}
	// Re-ingestion of the same id (at-least-once delivery, R1) must be a
	// no-op rather than erroring or overwriting.
	msg.Content = "hello again, different content"
	if err := s.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("second InsertMessage: %v", err)
	}

	unbound, err := s.FindUnbound(ctx, 1, 10)
	if err != nil {
		t.Fatalf("FindUnbound: %v", err)
	}
	if len(unbound) != 1 {
		t.Fatalf("expected exactly 1 message row after duplicate insert, got %d", len(unbound))
	}
	if unbound[0].Content != "hello" {
		t.Errorf("expected duplicate insert to be a no-op, content changed to %q", unbound[0].Content)
	}
}

func TestFindUnbound_ReturnsOnlyMessagesWithoutVectorPointID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedIndexedChannel(t, s, ctx, 1, 10)

	for i := int64(1); i <= 3; i++ {
		m := model.Message{ID: i, TenantID: 1, ChannelID: 10, AuthorID: 1, Content: "m", AuthoredAt: time.Now()}
		if err := s.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage %d: %v", i, err)
		}
	}
	if err := s.RecordVectorBinding(ctx, []int64{1}, "point-1"); err != nil {
		t.Fatalf("RecordVectorBinding: %v", err)
	}

	unbound, err := s.FindUnbound(ctx, 1, 10)
	if err != nil {
		t.Fatalf("FindUnbound: %v", err)
	}
	if len(unbound) != 2 {
		t.Fatalf("expected 2 unbound messages, got %d", len(unbound))
	}
	for _, m := range unbound {
		if m.ID == 1 {
			t.Errorf("bound message 1 should not appear in FindUnbound")
		}
	}
}

func TestFindStale_RequiresUpdatedAtPastIndexedAt(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedIndexedChannel(t, s, ctx, 1, 10)

	m := model.Message{ID: 1, TenantID: 1, ChannelID: 10, AuthorID: 1, Content: "original", AuthoredAt: time.Now()}
	if err := s.InsertMessage(ctx, m); err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}
	if err := s.RecordVectorBinding(ctx, []int64{1}, "point-1"); err != nil {
		t.Fatalf("RecordVectorBinding: %v", err)
	}

	stale, err := s.FindStale(ctx, 1, 10)
	if err != nil {
		t.Fatalf("FindStale: %v", err)
	}
	if len(stale) != 0 {
		t.Fatalf("expected no stale messages right after binding, got %d", len(stale))
	}

	time.Sleep(10 * time.Millisecond)
	if err := s.MarkMessageEdited(ctx, 1, "edited content"); err != nil {
		t.Fatalf("MarkMessageEdited: %v", err)
	}

	stale, err = s.FindStale(ctx, 1, 10)
	if err != nil {
		t.Fatalf("FindStale after edit: %v", err)
	}
	if len(stale) != 1 {
		t.Fatalf("expected 1 stale message after edit, got %d", len(stale))
	}
}

func TestMarkMessageDeleted_SetsSentinelAndClearsReplyReferences(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedIndexedChannel(t, s, ctx, 1, 10)

	parent := model.Message{ID: 1, TenantID: 1, ChannelID: 10, AuthorID: 1, Content: "parent", AuthoredAt: time.Now()}
	if err := s.InsertMessage(ctx, parent); err != nil {
		t.Fatalf("InsertMessage parent: %v", err)
	}
	parentID := int64(1)
	child := model.Message{ID: 2, TenantID: 1, ChannelID: 10, AuthorID: 2, Content: "child", AuthoredAt: time.Now(), ReplyToID: &parentID}
	if err := s.InsertMessage(ctx, child); err != nil {
		t.Fatalf("InsertMessage child: %v", err)
	}

	if err := s.MarkMessageDeleted(ctx, []int64{1}); err != nil {
		t.Fatalf("MarkMessageDeleted: %v", err)
	}

	unbound, err := s.FindUnbound(ctx, 1, 10)
	if err != nil {
		t.Fatalf("FindUnbound: %v", err)
	}

	var deletedParent, survivingChild *model.Message
	for i := range unbound {
		switch unbound[i].ID {
		case 1:
			deletedParent = &unbound[i]
		case 2:
			survivingChild = &unbound[i]
		}
	}
	if deletedParent == nil || !deletedParent.Deleted {
		t.Fatal("expected message 1 to be marked deleted")
	}
	if deletedParent.Content != model.DeletedSentinel {
		t.Errorf("expected deleted content to be the sentinel, got %q", deletedParent.Content)
	}
	if survivingChild == nil {
		t.Fatal("expected child message to still exist")
	}
	if survivingChild.ReplyToID != nil {
		t.Error("expected child's reply_to_id to be cleared after parent deletion")
	}
}

func TestSyncHealth_ComputesRatioAndTier(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedIndexedChannel(t, s, ctx, 1, 10)

	for i := int64(1); i <= 10; i++ {
		m := model.Message{ID: i, TenantID: 1, ChannelID: 10, AuthorID: 1, Content: "m", AuthoredAt: time.Now()}
		if err := s.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage %d: %v", i, err)
		}
	}
	bound := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	if err := s.RecordVectorBinding(ctx, bound, "point"); err != nil {
		t.Fatalf("RecordVectorBinding: %v", err)
	}

	health, err := s.SyncHealth(ctx, 1)
	if err != nil {
		t.Fatalf("SyncHealth: %v", err)
	}
	if health.Total != 10 || health.Bound != 9 || health.Unbound != 1 {
		t.Fatalf("unexpected health counters: %+v", health)
	}
	if health.Ratio != 0.9 {
		t.Errorf("expected ratio 0.9, got %f", health.Ratio)
	}
	if health.Tier != "degraded" {
		t.Errorf("expected tier degraded at ratio 0.9, got %q", health.Tier)
	}
}

func TestSyncHealth_EmptyTenantIsHealthy(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedIndexedChannel(t, s, ctx, 1, 10)

	health, err := s.SyncHealth(ctx, 1)
	if err != nil {
		t.Fatalf("SyncHealth: %v", err)
	}
	if health.Tier != "healthy" || health.Total != 0 {
		t.Fatalf("expected empty tenant to report healthy/0, got %+v", health)
	}
}

func TestResetVectorBindings_StaleOnlyLeavesFreshBindingsIntact(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedIndexedChannel(t, s, ctx, 1, 10)

	for i := int64(1); i <= 2; i++ {
		m := model.Message{ID: i, TenantID: 1, ChannelID: 10, AuthorID: 1, Content: "m", AuthoredAt: time.Now()}
		if err := s.InsertMessage(ctx, m); err != nil {
			t.Fatalf("InsertMessage %d: %v", i, err)
		}
	}
	if err := s.RecordVectorBinding(ctx, []int64{1, 2}, "point"); err != nil {
		t.Fatalf("RecordVectorBinding: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := s.MarkMessageEdited(ctx, 1, "edited"); err != nil {
		t.Fatalf("MarkMessageEdited: %v", err)
	}

	if err := s.ResetVectorBindings(ctx, 1, ResetStaleOnly); err != nil {
		t.Fatalf("ResetVectorBindings: %v", err)
	}

	unbound, err := s.FindUnbound(ctx, 1, 10)
	if err != nil {
		t.Fatalf("FindUnbound: %v", err)
	}
	if len(unbound) != 1 || unbound[0].ID != 1 {
		t.Fatalf("expected only the stale message reset to unbound, got %v", unbound)
	}
}
