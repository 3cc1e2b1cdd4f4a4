// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import "net/http"

type chatRequestBody struct {
	UserID   int64  `json:"user_id"`
	Message  string `json:"message"`
	TenantID int64  `json:"tenant_id,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req chatRequestBody
	if err := decodeJSON(r, &req); err != nil || req.UserID == 0 || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id and message are required"})
		return
	}

	answer, err := s.Router.Chat(r.Context(), req.TenantID, req.UserID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
