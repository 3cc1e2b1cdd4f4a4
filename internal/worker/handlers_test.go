// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package worker

import (
	"context"
	"testing"
	"time"

	"github.com/northbound/cil/internal/consistency"
	"github.com/northbound/cil/internal/embeddings"
	"github.com/northbound/cil/internal/model"
	"github.com/northbound/cil/internal/router"
	"github.com/northbound/cil/internal/store"
	"github.com/northbound/cil/internal/vectordb"
)

func newTestHandlers(t *testing.T) (*Handlers, *store.Store, *fakeQueue) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	if err := st.UpsertTenant(ctx, model.Tenant{ID: 1, Name: "acme"}); err != nil {
		t.Fatalf("UpsertTenant: %v", err)
	}
	if err := st.UpsertChannel(ctx, model.Channel{ID: 10, TenantID: 1, Name: "general", Indexed: true}); err != nil {
		t.Fatalf("UpsertChannel: %v", err)
	}
	if err := st.UpsertMember(ctx, model.Member{ID: 100, TenantID: 1, Username: "alice", DisplayName: "Alice"}); err != nil {
		t.Fatalf("UpsertMember: %v", err)
	}

	db := vectordb.NewMockVectorDB()
	q := &fakeQueue{}
	rt := router.New(st, nil, nil, nil, nil, t.TempDir())

	h := &Handlers{
		Store:       st,
		Queue:       q,
		VectorDB:    db,
		Embedder:    embeddings.NewMockEmbedder(16),
		Sparse:      embeddings.NewBM25Scorer(),
		Consistency: consistency.New(st, db),
		Router:      rt,
	}
	return h, st, q
}

func TestIndexSingleMessage_UpsertsAndBindsVectorPoint(t *testing.T) {
	h, st, _ := newTestHandlers(t)
	ctx := context.Background()

	msg := model.Message{ID: 1000, TenantID: 1, ChannelID: 10, AuthorID: 100, Content: "hello world", AuthoredAt: time.Now()}
	if err := st.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}

	if err := h.indexSingleMessage(ctx, 1, 1000); err != nil {
		t.Fatalf("indexSingleMessage: %v", err)
	}

	msgs, err := st.GetMessagesByIDs(ctx, []int64{1000})
	if err != nil {
		t.Fatalf("GetMessagesByIDs: %v", err)
	}
	if msgs[0].VectorPointID == nil {
		t.Fatal("expected message to have a bound vector_point_id")
	}
}

func TestIndexSingleMessage_SkipsUnindexedChannel(t *testing.T) {
	h, st, _ := newTestHandlers(t)
	ctx := context.Background()
	if err := st.UpsertChannel(ctx, model.Channel{ID: 20, TenantID: 1, Name: "private", Indexed: false}); err != nil {
		t.Fatalf("UpsertChannel: %v", err)
	}
	msg := model.Message{ID: 2000, TenantID: 1, ChannelID: 20, AuthorID: 100, Content: "quiet", AuthoredAt: time.Now()}
	if err := st.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}

	if err := h.indexSingleMessage(ctx, 1, 2000); err != nil {
		t.Fatalf("indexSingleMessage: %v", err)
	}

	msgs, _ := st.GetMessagesByIDs(ctx, []int64{2000})
	if msgs[0].VectorPointID != nil {
		t.Fatal("expected unindexed channel's message to remain unbound")
	}
}

func TestIndexSession_ComposesEnrichedTextAndBindsSession(t *testing.T) {
	h, st, _ := newTestHandlers(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 15, 4, 0, 0, time.UTC)
	for i, id := range []int64{1, 2} {
		msg := model.Message{ID: id, TenantID: 1, ChannelID: 10, AuthorID: 100, Content: "message body", AuthoredAt: base.Add(time.Duration(i) * time.Minute)}
		if err := st.InsertMessage(ctx, msg); err != nil {
			t.Fatalf("InsertMessage: %v", err)
		}
	}

	if err := h.indexSession(ctx, 1, 10, []int64{1, 2}); err != nil {
		t.Fatalf("indexSession: %v", err)
	}

	ptIDs, err := st.GetSessionVectorPointIDs(ctx, mustSessionIDs(ctx, t, st, []int64{1, 2}))
	if err != nil {
		t.Fatalf("GetSessionVectorPointIDs: %v", err)
	}
	if len(ptIDs) != 1 {
		t.Fatalf("expected one bound session vector point, got %d", len(ptIDs))
	}
}

func mustSessionIDs(ctx context.Context, t *testing.T, st *store.Store, messageIDs []int64) []string {
	t.Helper()
	ids, err := st.GetSessionsContainingMessages(ctx, messageIDs)
	if err != nil {
		t.Fatalf("GetSessionsContainingMessages: %v", err)
	}
	return ids
}

func TestHandlePurgeVector_DeletesFromBothCollections(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	ctx := context.Background()
	point := vectordb.Point{ID: "p1", Payload: map[string]any{"tenant_id": int64(1)}}
	if err := h.VectorDB.Upsert(ctx, vectordb.CollectionHybrid, point); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := h.VectorDB.Upsert(ctx, vectordb.CollectionLegacy, point); err != nil {
		t.Fatalf("Upsert legacy: %v", err)
	}

	item := model.WorkItem{Payload: map[string]any{"vector_point_id": "p1"}}
	if err := h.handlePurgeVector(ctx, item); err != nil {
		t.Fatalf("handlePurgeVector: %v", err)
	}

	if _, found, _ := h.VectorDB.GetByID(ctx, vectordb.CollectionHybrid, "p1"); found {
		t.Fatal("expected vector point to be purged")
	}
	if _, found, _ := h.VectorDB.GetByID(ctx, vectordb.CollectionLegacy, "p1"); found {
		t.Fatal("expected legacy vector point to be purged")
	}
}

func TestHandleQueryAsk_DegradesGracefullyWithNoLLM(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	item := model.WorkItem{Payload: map[string]any{
		"tenant_id":         float64(1),
		"channel_id":        float64(10),
		"query":             "what is the capital of France",
		"interaction_token": "tok-1",
	}}
	if err := h.handleQueryAsk(context.Background(), item); err != nil {
		t.Fatalf("handleQueryAsk: %v", err)
	}
}

func TestHandleStaleSweep_RequeuesUnboundMessages(t *testing.T) {
	h, st, q := newTestHandlers(t)
	ctx := context.Background()
	msg := model.Message{ID: 3000, TenantID: 1, ChannelID: 10, AuthorID: 100, Content: "unbound", AuthoredAt: time.Now()}
	if err := st.InsertMessage(ctx, msg); err != nil {
		t.Fatalf("InsertMessage: %v", err)
	}

	item := model.WorkItem{Payload: map[string]any{"tenant_id": float64(1)}}
	if err := h.handleStaleSweep(ctx, item); err != nil {
		t.Fatalf("handleStaleSweep: %v", err)
	}

	if len(q.items) == 0 {
		t.Fatal("expected unbound message to be requeued for indexing")
	}
}

func TestHandleThematicRebuild_TooFewMessagesIsNoop(t *testing.T) {
	h, _, _ := newTestHandlers(t)
	item := model.WorkItem{Payload: map[string]any{"tenant_id": float64(1)}}
	if err := h.handleThematicRebuild(context.Background(), item); err != nil {
		t.Fatalf("handleThematicRebuild: %v", err)
	}
}
