// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"net/http"

	"github.com/northbound/cil/internal/router"
)

type classifyRequestBody struct {
	Query string `json:"query"`
}

func (s *Server) handleClassify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req classifyRequestBody
	if err := decodeJSON(r, &req); err != nil || req.Query == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	intent := router.ClassifyIntent(r.Context(), s.Router.LLM, req.Query)
	writeJSON(w, http.StatusOK, map[string]string{"intent": string(intent)})
}
