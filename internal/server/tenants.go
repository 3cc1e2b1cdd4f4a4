// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"net/http"
	"strconv"

	"github.com/northbound/cil/internal/thematic"
)

func pathInt64(r *http.Request, key string) (int64, bool) {
	v, err := strconv.ParseInt(r.PathValue(key), 10, 64)
	return v, err == nil
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathInt64(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		return
	}
	channels, err := s.Store.ListChannels(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

func (s *Server) handleSetChannelIndexed(w http.ResponseWriter, r *http.Request) {
	channelID, ok := pathInt64(r, "cid")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid channel id"})
		return
	}
	var body struct {
		Indexed bool `json:"indexed"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.Store.SetChannelIndexed(r.Context(), channelID, body.Indexed); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"indexed": body.Indexed})
}

func (s *Server) handleTenantStats(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathInt64(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		return
	}
	stats, err := s.Store.Stats(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	health, err := s.Consistency.SyncHealth(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats, "sync_health": health})
}

func (s *Server) handleStatsTimeseries(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathInt64(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		return
	}
	days := 7
	if d, err := strconv.Atoi(r.URL.Query().Get("days")); err == nil && d > 0 {
		days = d
	}
	series, err := s.Store.MessageTimeseries(r.Context(), tenantID, days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"series": series})
}

func (s *Server) handleTopChannels(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathInt64(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		return
	}
	limit := 10
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 {
		limit = l
	}
	channels, err := s.Store.TopChannels(r.Context(), tenantID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": channels})
}

// handleTopics serves the tenant's cached topic clusters (§4.4.5). When no
// cache file exists yet, it builds one from the 1000 most recent
// non-deleted messages longer than 20 characters; it takes no time-window
// parameter.
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathInt64(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		return
	}

	analyzer := thematic.NewAnalyzer(tenantID, s.ThematicCacheDir)
	clusters, err := analyzer.Load()
	if err != nil {
		writeError(w, err)
		return
	}
	if clusters == nil {
		samples, err := s.Store.GetSampleMessages(r.Context(), tenantID, 1000, 20)
		if err != nil {
			writeError(w, err)
			return
		}
		texts := make([]string, len(samples))
		for i, m := range samples {
			texts[i] = m.Content
		}
		clusters, err = analyzer.Fit(texts)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": clusters})
}

func (s *Server) handleGetPersonalityDirective(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathInt64(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		return
	}
	tenant, err := s.Store.Tenant(r.Context(), tenantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"personality_directive": tenant.PersonalityDirective})
}

func (s *Server) handleSetPersonalityDirective(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathInt64(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid tenant id"})
		return
	}
	var body struct {
		PersonalityDirective string `json:"personality_directive"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if err := s.Store.SetPersonalityDirective(r.Context(), tenantID, body.PersonalityDirective); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"personality_directive": body.PersonalityDirective})
}
