// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import (
	"context"
	"testing"
)

func TestMockVectorDB_RequiresTenantID(t *testing.T) {
	db := NewMockVectorDB()
	_, err := db.SearchDense(context.Background(), CollectionHybrid, []float32{1, 0}, Filter{}, 5)
	if err == nil {
		t.Fatal("expected error when tenant_id is zero")
	}
}

func TestMockVectorDB_IsolatesTenants(t *testing.T) {
	db := NewMockVectorDB()
	ctx := context.Background()

	_ = db.Upsert(ctx, CollectionHybrid, Point{ID: "p1", Dense: []float32{1, 0}, Payload: map[string]any{"tenant_id": int64(1)}})
	_ = db.Upsert(ctx, CollectionHybrid, Point{ID: "p2", Dense: []float32{1, 0}, Payload: map[string]any{"tenant_id": int64(2)}})

	hits, err := db.SearchDense(ctx, CollectionHybrid, []float32{1, 0}, Filter{TenantID: 1}, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "p1" {
		t.Fatalf("expected only tenant 1's point, got %v", hits)
	}
}

func TestMockVectorDB_ChannelAnyOfFilter(t *testing.T) {
	db := NewMockVectorDB()
	ctx := context.Background()

	_ = db.Upsert(ctx, CollectionHybrid, Point{ID: "p1", Dense: []float32{1, 0}, Payload: map[string]any{"tenant_id": int64(1), "channel_id": int64(10)}})
	_ = db.Upsert(ctx, CollectionHybrid, Point{ID: "p2", Dense: []float32{1, 0}, Payload: map[string]any{"tenant_id": int64(1), "channel_id": int64(20)}})
	_ = db.Upsert(ctx, CollectionHybrid, Point{ID: "p3", Dense: []float32{1, 0}, Payload: map[string]any{"tenant_id": int64(1), "channel_id": int64(30)}})

	hits, err := db.SearchDense(ctx, CollectionHybrid, []float32{1, 0}, Filter{TenantID: 1, ChannelIDs: []int64{10, 30}}, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits for any-of channel filter, got %d", len(hits))
	}
}

func TestMockVectorDB_ScrollByFilterMatchesArrayContainment(t *testing.T) {
	db := NewMockVectorDB()
	ctx := context.Background()

	_ = db.Upsert(ctx, CollectionHybrid, Point{ID: "s1", Payload: map[string]any{"tenant_id": int64(1), "message_ids": []int64{100, 101}}})
	_ = db.Upsert(ctx, CollectionHybrid, Point{ID: "s2", Payload: map[string]any{"tenant_id": int64(1), "message_ids": []int64{200}}})

	ids, err := db.ScrollByFilter(ctx, CollectionHybrid, Filter{TenantID: 1}, "message_ids", []int64{101}, 100)
	if err != nil {
		t.Fatalf("scroll failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != "s1" {
		t.Fatalf("expected only s1 to match, got %v", ids)
	}
}

func TestMockVectorDB_DeleteRemovesPoint(t *testing.T) {
	db := NewMockVectorDB()
	ctx := context.Background()

	_ = db.Upsert(ctx, CollectionHybrid, Point{ID: "p1", Dense: []float32{1, 0}, Payload: map[string]any{"tenant_id": int64(1)}})
	_ = db.Delete(ctx, CollectionHybrid, []string{"p1"})

	hits, err := db.SearchDense(ctx, CollectionHybrid, []float32{1, 0}, Filter{TenantID: 1}, 10)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected point to be deleted, got %v", hits)
	}
}
