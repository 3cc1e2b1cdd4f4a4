// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"net/http"

	"github.com/northbound/cil/internal/config"
)

// handleSettingsProvider serves GET/PUT /settings/provider. GET always
// returns the masked view; PUT accepts the full (unmasked) settings and
// replaces the provider/model fields, leaving API keys untouched unless
// also supplied in the request body.
func (s *Server) handleSettingsProvider(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.Settings.Get().Masked())
	case http.MethodPut:
		current := s.Settings.Get()
		var body config.ProviderSettings
		body.APIKeysByProvider = current.APIKeysByProvider
		if err := decodeJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if len(body.APIKeysByProvider) == 0 {
			body.APIKeysByProvider = current.APIKeysByProvider
		}
		if err := s.Settings.Set(body); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s.Settings.Get().Masked())
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}

// handleSettingsAPIKeys serves GET/PUT /settings/api-keys in isolation from
// the rest of the provider settings, so a key rotation never risks
// clobbering the provider/model selection in the same request.
func (s *Server) handleSettingsAPIKeys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"api_keys_by_provider": s.Settings.Get().Masked().APIKeysByProvider})
	case http.MethodPut:
		var body struct {
			APIKeysByProvider map[string]string `json:"api_keys_by_provider"`
		}
		if err := decodeJSON(r, &body); err != nil || len(body.APIKeysByProvider) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "api_keys_by_provider is required"})
			return
		}
		current := s.Settings.Get()
		if current.APIKeysByProvider == nil {
			current.APIKeysByProvider = map[string]string{}
		}
		for provider, key := range body.APIKeysByProvider {
			current.APIKeysByProvider[provider] = key
		}
		if err := s.Settings.Set(current); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"api_keys_by_provider": s.Settings.Get().Masked().APIKeysByProvider})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	}
}
