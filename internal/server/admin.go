// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package server

import "net/http"

// handleDeadLetterDrain serves POST /admin/dead-letter/drain: re-enqueues up
// to `limit` dead-lettered work items at default priority, per §4.3.4's
// manual-recovery path for items that exhausted their retry budget.
func (s *Server) handleDeadLetterDrain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var body struct {
		Limit int `json:"limit"`
	}
	if err := decodeJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if body.Limit <= 0 {
		body.Limit = 50
	}
	drained, err := s.Queue.DrainDeadLetter(r.Context(), body.Limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"drained": drained})
}

// handleQueueStats serves GET /admin/queue/stats: per-priority queue depth
// plus a bounded sample of the dead letter queue, for the operator dashboard
// in §4.3.4.
func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	depth, err := s.Queue.QueueDepth(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	deadLetters, err := s.Queue.DeadLetterList(r.Context(), 20)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_depth":       depth,
		"dead_letter_count": len(deadLetters),
		"dead_letters":      deadLetters,
	})
}
