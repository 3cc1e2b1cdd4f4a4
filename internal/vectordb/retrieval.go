// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import (
	"context"
	"regexp"
	"strings"

	"github.com/northbound/cil/internal/embeddings"
)

// denseOnlyCutoff is the §4.4.2 score floor applied when the hybrid path
// returns nothing and the search degrades to dense-only.
const denseOnlyCutoff = 0.2

var attachmentMarkerRE = regexp.MustCompile(`(?i)\[Attachments:[^\]]*\]`)

var documentKeywords = []string{"file", "document", "pdf", "attachment", "attached", "spreadsheet", "image", "picture", "screenshot"}

// rewriteQuery implements §4.4.4: strip attachment markers before embedding,
// and flag document bias when the cleaned query still references files or
// the stripped marker itself indicated an attachment was present.
func rewriteQuery(query string) (cleaned string, documentBias bool) {
	hadMarker := attachmentMarkerRE.MatchString(query)
	cleaned = strings.TrimSpace(attachmentMarkerRE.ReplaceAllString(query, ""))

	lower := strings.ToLower(cleaned)
	mentionsDocument := false
	for _, kw := range documentKeywords {
		if strings.Contains(lower, kw) {
			mentionsDocument = true
			break
		}
	}

	return cleaned, hadMarker || mentionsDocument
}

// Reranker scores a query against a candidate's stored text. Implementations
// live in internal/llm (cross-encoder or LLM-graded rerank); kept as an
// interface here so the retrieval engine does not import the LLM package
// directly.
type Reranker interface {
	Score(ctx context.Context, query string, candidates map[string]string) (map[string]float64, error)
}

// SearchRequest is the caller-facing query shape for C4's retrieval engine.
type SearchRequest struct {
	TenantID    int64
	ChannelIDs  []int64
	Query       string
	Limit       int
	// DocumentBias, when set, adds a dense search restricted to the given
	// source types as one more ranked list in the RRF fusion, per §4.4.4's
	// document-biased query rewriting (e.g. a question naming "the PDF"
	// lifts source_type=pdf chunks). Biased hits gain fusion score; they are
	// not placed ahead of the general results unconditionally.
	DocumentBias []string
	Rerank       bool
	// DisableHybrid forces the §4.4.2 dense-only degraded path, bypassing
	// sparse prefetch and RRF fusion entirely.
	DisableHybrid bool
}

// Retriever is the C4.4 orchestration: embed the query both densely and
// sparsely, search the hybrid collection on each, fuse by reciprocal rank,
// optionally rerank, and return the final ranked candidates.
type Retriever struct {
	DB       VectorDB
	Embedder embeddings.TextEmbedder
	Sparse   *embeddings.BM25Scorer
	Reranker Reranker
}

func NewRetriever(db VectorDB, embedder embeddings.TextEmbedder, sparse *embeddings.BM25Scorer, reranker Reranker) *Retriever {
	return &Retriever{DB: db, Embedder: embedder, Sparse: sparse, Reranker: reranker}
}

// Search runs the full hybrid retrieval pipeline against the hybrid
// collection and returns fused, optionally reranked results capped at
// req.Limit.
func (r *Retriever) Search(ctx context.Context, req SearchRequest) ([]FusedResult, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}
	filter := Filter{TenantID: req.TenantID, ChannelIDs: req.ChannelIDs}

	cleanedQuery, documentBias := rewriteQuery(req.Query)
	bias := req.DocumentBias
	if len(bias) == 0 && documentBias {
		bias = []string{"pdf", "markdown", "text", "image"}
	}

	denseVec, err := r.Embedder.EmbedOne(ctx, cleanedQuery)
	if err != nil {
		return nil, err
	}

	if req.DisableHybrid {
		return r.denseOnlySearch(ctx, filter, denseVec, limit)
	}

	sparseVec := r.Sparse.Encode(cleanedQuery)

	var lists [][]ScoredPoint

	if len(bias) > 0 {
		biasFilter := filter
		biasFilter.SourceTypes = bias
		biasHits, err := r.DB.SearchDense(ctx, CollectionHybrid, denseVec, biasFilter, limit*3)
		if err != nil {
			return nil, err
		}
		lists = append(lists, biasHits)
	}

	denseHits, err := r.DB.SearchDense(ctx, CollectionHybrid, denseVec, filter, limit*3)
	if err != nil {
		return nil, err
	}
	lists = append(lists, denseHits)

	sparseHits, err := r.DB.SearchSparse(ctx, CollectionHybrid, sparseVec, filter, limit*3)
	if err != nil {
		return nil, err
	}
	lists = append(lists, sparseHits)

	fused := Fuse(lists...)

	if len(fused) == 0 {
		return r.denseOnlySearch(ctx, filter, denseVec, limit)
	}

	if req.Rerank && r.Reranker != nil {
		top := TopK(fused, limit*2)
		candidates := make(map[string]string, len(top))
		for _, f := range top {
			if content, ok := f.Payload["content"].(string); ok {
				candidates[f.ID] = content
			}
		}
		scores, err := r.Reranker.Score(ctx, cleanedQuery, candidates)
		if err == nil {
			fused = ApplyRerank(top, scores)
		}
	}

	return TopK(fused, limit), nil
}

// denseOnlySearch implements §4.4.2's degraded path: dense search alone,
// filtered to a minimum similarity score, fused as a single-list RRF pass
// so callers still get a FusedResult shape.
func (r *Retriever) denseOnlySearch(ctx context.Context, filter Filter, denseVec []float32, limit int) ([]FusedResult, error) {
	hits, err := r.DB.SearchDense(ctx, CollectionHybrid, denseVec, filter, limit*3)
	if err != nil {
		return nil, err
	}
	kept := make([]ScoredPoint, 0, len(hits))
	for _, h := range hits {
		if h.Score >= denseOnlyCutoff {
			kept = append(kept, h)
		}
	}
	return TopK(Fuse(kept), limit), nil
}
