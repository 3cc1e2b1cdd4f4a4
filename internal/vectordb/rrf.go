// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import "sort"

// rrfConstant is the c in score(p) = sum 1 / (c + rank_v(p)), fixed at 60
// per the hybrid retrieval design (§4.4.2).
const rrfConstant = 60.0

// rerankWeight/fusionWeight blend an optional cross-encoder rerank score
// with the RRF fusion score when reranking is enabled (§4.4.3).
const (
	rerankWeight = 0.6
	fusionWeight = 0.4
)

// FusedResult is one point after reciprocal rank fusion across retrieval
// lists, before any optional reranking is applied.
type FusedResult struct {
	ID            string
	Payload       map[string]any
	FusionScore   float64
	RerankScore   float64
	FinalScore    float64
}

// Fuse combines any number of ranked result lists (e.g. dense and sparse
// hits from the hybrid collection) into a single RRF-ranked list,
// deduplicating by point ID. Each input list is assumed already sorted by
// descending relevance.
func Fuse(lists ...[]ScoredPoint) []FusedResult {
	scores := make(map[string]float64)
	payloads := make(map[string]map[string]any)
	order := make([]string, 0)

	for _, list := range lists {
		for rank, point := range list {
			if _, seen := scores[point.ID]; !seen {
				order = append(order, point.ID)
				payloads[point.ID] = point.Payload
			}
			scores[point.ID] += 1.0 / (rrfConstant + float64(rank+1))
		}
	}

	out := make([]FusedResult, 0, len(order))
	for _, id := range order {
		out = append(out, FusedResult{ID: id, Payload: payloads[id], FusionScore: scores[id], FinalScore: scores[id]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FusionScore > out[j].FusionScore })
	return out
}

// ApplyRerank blends externally computed rerank scores (already in [0,1],
// keyed by point ID) into the fused list's FinalScore and re-sorts.
// Points with no rerank score keep their fusion score as the final score,
// since a cross-encoder pass that skipped a candidate should not penalize
// it relative to unreranked retrieval.
func ApplyRerank(fused []FusedResult, rerankScores map[string]float64) []FusedResult {
	out := make([]FusedResult, len(fused))
	copy(out, fused)
	for i := range out {
		if score, ok := rerankScores[out[i].ID]; ok {
			out[i].RerankScore = score
			out[i].FinalScore = rerankWeight*score + fusionWeight*out[i].FusionScore
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FinalScore > out[j].FinalScore })
	return out
}

// TopK truncates a fused/reranked list to the first k entries.
func TopK(results []FusedResult, k int) []FusedResult {
	if k <= 0 || k >= len(results) {
		return results
	}
	return results[:k]
}
