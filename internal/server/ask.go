// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"net/http"

	"github.com/northbound/cil/internal/router"
)

type askRequestBody struct {
	TenantID   int64   `json:"tenant_id"`
	Query      string  `json:"query"`
	ChannelID  *int64  `json:"channel_id,omitempty"`
	ChannelIDs []int64 `json:"channel_ids,omitempty"`
	Hybrid     bool    `json:"hybrid,omitempty"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req askRequestBody
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TenantID == 0 || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id and query are required"})
		return
	}

	channelIDs := req.ChannelIDs
	if req.ChannelID != nil {
		channelIDs = append(channelIDs, *req.ChannelID)
	}

	answer, err := s.Router.Ask(r.Context(), router.AskRequest{
		TenantID:   req.TenantID,
		Query:      req.Query,
		ChannelIDs: channelIDs,
		Hybrid:     req.Hybrid,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
