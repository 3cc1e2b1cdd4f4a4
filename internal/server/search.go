// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"net/http"

	"github.com/northbound/cil/internal/vectordb"
)

type searchRequestBody struct {
	TenantID  int64  `json:"tenant_id"`
	Query     string `json:"query"`
	ChannelID int64  `json:"channel_id,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type searchExcerpt struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Excerpt string  `json:"excerpt"`
	Channel int64   `json:"channel_id,omitempty"`
}

// handleSearch serves POST /search, a bare retrieval call with no LLM
// synthesis — the ranked excerpts themselves are the response, for callers
// building their own presentation layer.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req searchRequestBody
	if err := decodeJSON(r, &req); err != nil || req.TenantID == 0 || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id and query are required"})
		return
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if s.Router.Retriever == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "retrieval engine unavailable"})
		return
	}

	var channelIDs []int64
	if req.ChannelID != 0 {
		channelIDs = []int64{req.ChannelID}
	}

	results, err := s.Router.Retriever.Search(r.Context(), vectordb.SearchRequest{
		TenantID:   req.TenantID,
		ChannelIDs: channelIDs,
		Query:      req.Query,
		Limit:      req.Limit,
		Rerank:     true,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	excerpts := make([]searchExcerpt, 0, len(results))
	for _, res := range results {
		content, _ := res.Payload["content"].(string)
		channel, _ := res.Payload["channel_id"].(int64)
		excerpts = append(excerpts, searchExcerpt{ID: res.ID, Score: res.FinalScore, Excerpt: content, Channel: channel})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": excerpts})
}
