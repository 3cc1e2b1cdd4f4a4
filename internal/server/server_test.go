// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/northbound/cil/internal/config"
	"github.com/northbound/cil/internal/consistency"
	"github.com/northbound/cil/internal/model"
	"github.com/northbound/cil/internal/queue"
	"github.com/northbound/cil/internal/router"
	"github.com/northbound/cil/internal/store"
	"github.com/northbound/cil/internal/vectordb"
)

// fakeQueue is a minimal in-memory queue.Queue implementation for exercising
// the admin handlers without Redis.
type fakeQueue struct {
	depth       map[model.Priority]int64
	deadLetters []queue.DeadLetterEntry
	drained     int
}

func (f *fakeQueue) Enqueue(ctx context.Context, item model.WorkItem) error { return nil }
func (f *fakeQueue) EnqueueDelayed(ctx context.Context, item model.WorkItem, delay time.Duration) error {
	return nil
}
func (f *fakeQueue) Dequeue(ctx context.Context) (model.WorkItem, error) {
	return model.WorkItem{}, nil
}
func (f *fakeQueue) DeadLetter(ctx context.Context, entry queue.DeadLetterEntry) error {
	f.deadLetters = append(f.deadLetters, entry)
	return nil
}
func (f *fakeQueue) DeadLetterList(ctx context.Context, limit int64) ([]queue.DeadLetterEntry, error) {
	return f.deadLetters, nil
}
func (f *fakeQueue) DrainDeadLetter(ctx context.Context, limit int) (int, error) {
	n := len(f.deadLetters)
	if n > limit {
		n = limit
	}
	f.deadLetters = f.deadLetters[n:]
	f.drained += n
	return n, nil
}
func (f *fakeQueue) QueueDepth(ctx context.Context) (map[model.Priority]int64, error) {
	return f.depth, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	ctx := context.Background()
	if err := st.UpsertTenant(ctx, model.Tenant{ID: 1, Name: "acme", PersonalityDirective: "be helpful"}); err != nil {
		t.Fatalf("UpsertTenant: %v", err)
	}
	if err := st.UpsertChannel(ctx, model.Channel{ID: 10, TenantID: 1, Name: "general", Indexed: true}); err != nil {
		t.Fatalf("UpsertChannel: %v", err)
	}

	db := vectordb.NewMockVectorDB()
	cs := consistency.New(st, db)

	settingsPath := filepath.Join(t.TempDir(), "settings.json")
	settings, err := config.NewProviderSettingsStore(settingsPath)
	if err != nil {
		t.Fatalf("NewProviderSettingsStore: %v", err)
	}

	rt := router.New(st, nil, nil, nil, nil, t.TempDir())
	q := &fakeQueue{depth: map[model.Priority]int64{model.PriorityDefault: 0}}

	return New(st, rt, cs, q, settings, t.TempDir())
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestHandleListChannels_ReturnsSeededChannel(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/tenants/1/channels", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Channels []model.Channel `json:"channels"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Channels) != 1 || resp.Channels[0].ID != 10 {
		t.Fatalf("unexpected channels: %+v", resp.Channels)
	}
}

func TestHandleSetChannelIndexed_TogglesFlag(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPatch, "/tenants/1/channels/10/index", map[string]bool{"indexed": false})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	channels, err := s.Store.ListChannels(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListChannels: %v", err)
	}
	if channels[0].Indexed {
		t.Fatalf("expected channel to be un-indexed")
	}
}

func TestHandleTenantStats_CountsSeededMessage(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/tenants/1/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandlePersonalityDirective_RoundTrips(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/tenants/1/personality-directive", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodPut, "/tenants/1/personality-directive", map[string]string{"personality_directive": "be terse"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	tenant, err := s.Store.Tenant(context.Background(), 1)
	if err != nil {
		t.Fatalf("Tenant: %v", err)
	}
	if tenant.PersonalityDirective != "be terse" {
		t.Fatalf("expected directive to be updated, got %q", tenant.PersonalityDirective)
	}
}

func TestHandleSettingsProvider_MasksAPIKeys(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPut, "/settings/provider", map[string]any{
		"llm_provider":          "openai",
		"llm_model":             "gpt-4o",
		"api_keys_by_provider":  map[string]string{"openai": "sk-1234567890abcdef"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/settings/provider", nil)
	var resp config.ProviderSettings
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.APIKeysByProvider["openai"] == "sk-1234567890abcdef" {
		t.Fatalf("expected masked API key, got raw value")
	}
}

func TestHandleQueueStats_ReportsDepthAndDeadLetters(t *testing.T) {
	s := newTestServer(t)
	s.Queue.(*fakeQueue).deadLetters = []queue.DeadLetterEntry{{Kind: model.WorkSingleMessageIndex, Error: "boom"}}

	rec := doRequest(t, s, http.MethodGet, "/admin/queue/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleDeadLetterDrain_DrainsEntries(t *testing.T) {
	s := newTestServer(t)
	s.Queue.(*fakeQueue).deadLetters = []queue.DeadLetterEntry{
		{Kind: model.WorkSingleMessageIndex, Error: "boom"},
		{Kind: model.WorkSingleMessageIndex, Error: "boom2"},
	}

	rec := doRequest(t, s, http.MethodPost, "/admin/dead-letter/drain", map[string]int{"limit": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Drained int `json:"drained"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Drained != 1 {
		t.Fatalf("expected 1 drained, got %d", resp.Drained)
	}
}
