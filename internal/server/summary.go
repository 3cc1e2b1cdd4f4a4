// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/northbound/cil/internal/thematic"
)

type summaryRequestBody struct {
	TenantID  int64 `json:"tenant_id"`
	ChannelID int64 `json:"channel_id"`
	Hours     int   `json:"hours"`
}

type summaryResponse struct {
	Summary           string   `json:"summary"`
	TopKeywords       []string `json:"top_keywords"`
	ParticipantCount  int      `json:"participant_count"`
	MessageCount      int      `json:"message_count"`
}

// handleSummary serves POST /summary: a free-form recap of recent channel
// activity, without routing through the Answer Router's intent
// classification (a time-windowed channel recap has no ambiguity to
// resolve).
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var req summaryRequestBody
	if err := decodeJSON(r, &req); err != nil || req.TenantID == 0 || req.ChannelID == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tenant_id and channel_id are required"})
		return
	}
	if req.Hours <= 0 {
		req.Hours = 24
	}

	since := time.Now().Add(-time.Duration(req.Hours) * time.Hour)
	messages, err := s.Store.GetMessagesByChannel(r.Context(), req.TenantID, req.ChannelID, since)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(messages) == 0 {
		writeJSON(w, http.StatusOK, summaryResponse{Summary: "No activity in the requested window."})
		return
	}

	texts := make([]string, len(messages))
	participants := map[int64]bool{}
	for i, m := range messages {
		texts[i] = m.Content
		participants[m.AuthorID] = true
	}

	keywords := thematic.TopKeywords(texts, 10)

	var narrative string
	if s.Router != nil && s.Router.LLM != nil {
		prompt := fmt.Sprintf("Summarize the following %d chat messages from the last %d hours in 3-5 sentences:\n\n%s",
			len(messages), req.Hours, joinLines(texts, 200))
		if text, _, genErr := s.Router.LLM.Generate(r.Context(), "You are a concise channel activity summarizer.", prompt); genErr == nil {
			narrative = text
		}
	}
	if narrative == "" {
		narrative = fmt.Sprintf("%d messages from %d participants discussing: %s",
			len(messages), len(participants), joinCapped(keywords, 10))
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		Summary:          narrative,
		TopKeywords:      keywords,
		ParticipantCount: len(participants),
		MessageCount:     len(messages),
	})
}

func joinCapped(items []string, maxItems int) string {
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}

func joinLines(items []string, maxItems int) string {
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	out := ""
	for _, item := range items {
		out += item + "\n"
	}
	return out
}
