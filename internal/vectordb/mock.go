// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/northbound/cil/internal/embeddings"
)

// MockVectorDB is an in-memory VectorDB, generalized from the teacher's
// no-op mock into a functional cosine-search implementation so retrieval
// and isolation properties (P1-P3) are testable without a live Qdrant.
type MockVectorDB struct {
	mu     sync.RWMutex
	byColl map[string]map[string]Point
}

func NewMockVectorDB() *MockVectorDB {
	return &MockVectorDB{byColl: make(map[string]map[string]Point)}
}

func (m *MockVectorDB) EnsureCollections(ctx context.Context, dim int) error { return nil }

func (m *MockVectorDB) Upsert(ctx context.Context, collection string, point Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byColl[collection] == nil {
		m.byColl[collection] = make(map[string]Point)
	}
	m.byColl[collection][point.ID] = point
	return nil
}

func (m *MockVectorDB) matches(p Point, f Filter) bool {
	tenant, _ := p.Payload["tenant_id"].(int64)
	if tenant != f.TenantID {
		return false
	}
	if len(f.ChannelIDs) > 0 {
		channel, _ := p.Payload["channel_id"].(int64)
		found := false
		for _, c := range f.ChannelIDs {
			if c == channel {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.SourceTypes) > 0 {
		source, _ := p.Payload["source_type"].(string)
		found := false
		for _, s := range f.SourceTypes {
			if s == source {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (m *MockVectorDB) SearchDense(ctx context.Context, collection string, vector []float32, filter Filter, limit int) ([]ScoredPoint, error) {
	if filter.TenantID == 0 {
		return nil, errSecurityNoTenant()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var hits []ScoredPoint
	for _, p := range m.byColl[collection] {
		if !m.matches(p, filter) {
			continue
		}
		hits = append(hits, ScoredPoint{ID: p.ID, Score: cosine(vector, p.Dense), Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MockVectorDB) SearchSparse(ctx context.Context, collection string, sparse embeddings.SparseVector, filter Filter, limit int) ([]ScoredPoint, error) {
	if filter.TenantID == 0 {
		return nil, errSecurityNoTenant()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	sparseMap := make(map[uint32]float32, len(sparse.Indices))
	for i, idx := range sparse.Indices {
		sparseMap[idx] = sparse.Values[i]
	}

	var hits []ScoredPoint
	for _, p := range m.byColl[collection] {
		if !m.matches(p, filter) {
			continue
		}
		var dot float32
		for i, idx := range p.Sparse.Indices {
			if v, ok := sparseMap[idx]; ok {
				dot += v * p.Sparse.Values[i]
			}
		}
		if dot == 0 {
			continue
		}
		hits = append(hits, ScoredPoint{ID: p.ID, Score: dot, Payload: p.Payload})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MockVectorDB) Delete(ctx context.Context, collection string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.byColl[collection], id)
	}
	return nil
}

func (m *MockVectorDB) ScrollByFilter(ctx context.Context, collection string, filter Filter, matchField string, matchValues []int64, batchSize int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[int64]bool, len(matchValues))
	for _, v := range matchValues {
		wanted[v] = true
	}

	var ids []string
	for _, p := range m.byColl[collection] {
		if !m.matches(p, filter) {
			continue
		}
		if matchField == "" {
			ids = append(ids, p.ID)
			continue
		}
		switch v := p.Payload[matchField].(type) {
		case int64:
			if wanted[v] {
				ids = append(ids, p.ID)
			}
		case []int64:
			for _, n := range v {
				if wanted[n] {
					ids = append(ids, p.ID)
					break
				}
			}
		}
	}
	return ids, nil
}

func (m *MockVectorDB) GetByID(ctx context.Context, collection string, id string) (ScoredPoint, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byColl[collection][id]
	if !ok {
		return ScoredPoint{}, false, nil
	}
	return ScoredPoint{ID: p.ID, Payload: p.Payload}, true, nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
