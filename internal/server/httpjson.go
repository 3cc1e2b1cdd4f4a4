// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import (
	"encoding/json"
	"net/http"

	"github.com/northbound/cil/internal/apperror"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func writeError(w http.ResponseWriter, err error) {
	kind := apperror.KindOf(err)
	switch kind {
	case apperror.KindValidation:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case apperror.KindAuthorization:
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "forbidden"})
	case apperror.KindUpstreamUnavailable:
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream unavailable"})
	case apperror.KindResourceExhaustion:
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "resource exhausted"})
	case apperror.KindSecurity:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "request blocked"})
	case apperror.KindConsistency:
		writeJSON(w, http.StatusOK, map[string]string{"status": "degraded", "detail": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
