// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package server implements the HTTP API surface of §6: a dependency-
// injected service struct in the teacher's internal/server/hive_service.go
// style, with one handler file per feature group rather than one fat
// controller, routed with the standard library's http.ServeMux.
package server

import (
	"net/http"

	"github.com/northbound/cil/internal/config"
	"github.com/northbound/cil/internal/consistency"
	"github.com/northbound/cil/internal/logger"
	"github.com/northbound/cil/internal/queue"
	"github.com/northbound/cil/internal/router"
	"github.com/northbound/cil/internal/store"
)

const version = "0.1.0"

// Server wires every package the HTTP surface touches. Constructed once in
// main and passed by reference to every handler file.
type Server struct {
	Store       *store.Store
	Router      *router.Router
	Consistency *consistency.Service
	Queue       queue.Queue
	Settings    *config.ProviderSettingsStore
	ThematicCacheDir string
}

func New(st *store.Store, rt *router.Router, cs *consistency.Service, q queue.Queue, settings *config.ProviderSettingsStore, thematicCacheDir string) *Server {
	return &Server{Store: st, Router: rt, Consistency: cs, Queue: q, Settings: settings, ThematicCacheDir: thematicCacheDir}
}

// Routes builds the full mux, grounded on cmd/hive-server/main.go's routes()
// function (one mux, handlers registered by feature group).
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	mux.HandleFunc("/ask", s.handleAsk)
	mux.HandleFunc("/classify", s.handleClassify)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/search", s.handleSearch)
	mux.HandleFunc("/summary", s.handleSummary)

	mux.HandleFunc("GET /tenants/{id}/channels", s.handleListChannels)
	mux.HandleFunc("PATCH /tenants/{id}/channels/{cid}/index", s.handleSetChannelIndexed)
	mux.HandleFunc("GET /tenants/{id}/stats", s.handleTenantStats)
	mux.HandleFunc("GET /tenants/{id}/stats/timeseries", s.handleStatsTimeseries)
	mux.HandleFunc("GET /tenants/{id}/stats/top-channels", s.handleTopChannels)
	mux.HandleFunc("GET /tenants/{id}/topics", s.handleTopics)
	mux.HandleFunc("GET /tenants/{id}/personality-directive", s.handleGetPersonalityDirective)
	mux.HandleFunc("PUT /tenants/{id}/personality-directive", s.handleSetPersonalityDirective)

	mux.HandleFunc("/settings/provider", s.handleSettingsProvider)
	mux.HandleFunc("/settings/api-keys", s.handleSettingsAPIKeys)

	mux.HandleFunc("/admin/dead-letter/drain", s.handleDeadLetterDrain)
	mux.HandleFunc("/admin/queue/stats", s.handleQueueStats)

	mux.HandleFunc("/logs/stream", s.handleLogStream)

	return logRequests(mux)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.Printf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
