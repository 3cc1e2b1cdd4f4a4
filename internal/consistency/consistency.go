// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package consistency implements the Store/vector-index reconciliation
// logic of §4.1/§4.2.2: sync-health reporting, orphan detection, deletion
// propagation, and reset_vector_bindings. Grounded on
// storage_service.py's SyncHealth/verify_qdrant_points/reset_sync_status
// and qdrant_service.py's delete_sessions_containing_messages, re-expressed
// as a service struct in the teacher's internal/server/hive_service.go
// style (dependencies injected via a constructor, one method per
// operation) rather than as free functions.
package consistency

import (
	"context"
	"fmt"

	"github.com/northbound/cil/internal/apperror"
	"github.com/northbound/cil/internal/logger"
	"github.com/northbound/cil/internal/model"
	"github.com/northbound/cil/internal/store"
	"github.com/northbound/cil/internal/vectordb"
)

// Service wires the Store and vector index together for consistency
// operations. Both dependencies are process-wide connection pools shared
// with the rest of the system (§5's "shared resources").
type Service struct {
	Store *store.Store
	DB    vectordb.VectorDB
}

func New(st *store.Store, db vectordb.VectorDB) *Service {
	return &Service{Store: st, DB: db}
}

// SyncHealth is a thin passthrough to the Store's four-counter projection;
// kept here rather than called directly so every consistency-aware caller
// (HTTP handler, worker sweep, CLI) goes through one surface.
func (s *Service) SyncHealth(ctx context.Context, tenantID int64) (store.SyncHealth, error) {
	return s.Store.SyncHealth(ctx, tenantID)
}

// EnqueueOutOfSyncMessages finds stale and unbound messages for a tenant,
// bounded by limit each, and returns them for the caller to enqueue as
// WorkSingleMessageIndex items (kept out of this package so it has no
// dependency on internal/queue; the worker runtime owns enqueue/backoff).
func (s *Service) EnqueueOutOfSyncMessages(ctx context.Context, tenantID int64, limit int) (stale, unbound []model.Message, err error) {
	stale, err = s.Store.FindStale(ctx, tenantID, limit)
	if err != nil {
		return nil, nil, err
	}
	unbound, err = s.Store.FindUnbound(ctx, tenantID, limit)
	if err != nil {
		return nil, nil, err
	}
	return stale, unbound, nil
}

// PurgeMessageVector removes a single message's vector point from both
// collections (legacy and hybrid — a message may have been indexed under
// either depending on when it was written). Missing points are not an
// error: the purge is idempotent, matching the queue's at-least-once
// delivery (a retried WorkPurgeVector item must not fail on its second
// attempt).
func (s *Service) PurgeMessageVector(ctx context.Context, vectorPointID string) error {
	if vectorPointID == "" {
		return nil
	}
	for _, collection := range []string{vectordb.CollectionLegacy, vectordb.CollectionHybrid} {
		if err := s.DB.Delete(ctx, collection, []string{vectorPointID}); err != nil {
			return apperror.Upstream("consistency.PurgeMessageVector", err)
		}
	}
	return nil
}

// PropagateMessageDeletion implements the "Right to be Forgotten" path:
// every session containing a deleted message has its vector point purged
// and its Store row removed, so the deleted content can never resurface in
// retrieval. Grounded on qdrant_service.py's
// delete_sessions_containing_messages, adapted to use the Store's
// sessions.vector_point_id binding instead of a full Qdrant scroll — the
// relational join is available here where the original schema had none.
func (s *Service) PropagateMessageDeletion(ctx context.Context, messageIDs []int64) (purgedSessions int, err error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}

	sessionIDs, err := s.Store.GetSessionsContainingMessages(ctx, messageIDs)
	if err != nil {
		return 0, err
	}
	if len(sessionIDs) == 0 {
		return 0, nil
	}

	pointIDs, err := s.Store.GetSessionVectorPointIDs(ctx, sessionIDs)
	if err != nil {
		return 0, err
	}
	if len(pointIDs) > 0 {
		for _, collection := range []string{vectordb.CollectionLegacy, vectordb.CollectionHybrid} {
			if err := s.DB.Delete(ctx, collection, pointIDs); err != nil {
				return 0, apperror.Upstream("consistency.PropagateMessageDeletion", err)
			}
		}
	}

	if err := s.Store.DeleteSessions(ctx, sessionIDs); err != nil {
		return 0, err
	}
	logger.Printf("consistency: purged %d sessions containing %d deleted messages", len(sessionIDs), len(messageIDs))
	return len(sessionIDs), nil
}

// FindOrphanedVectorPoints scrolls every point under a tenant's filter and
// returns the ids that reference no message or session in the Store —
// vector writes that succeeded while the corresponding Store write was
// lost or rolled back. Grounded on storage_service.py's
// verify_qdrant_points, generalized to scan the hybrid collection directly
// instead of taking a caller-supplied candidate list.
func (s *Service) FindOrphanedVectorPoints(ctx context.Context, tenantID int64, batchSize int) ([]string, error) {
	candidates, err := s.DB.ScrollByFilter(ctx, vectordb.CollectionHybrid, vectordb.Filter{TenantID: tenantID}, "", nil, batchSize)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	known, err := s.Store.FilterKnownVectorPointIDs(ctx, tenantID, candidates)
	if err != nil {
		return nil, err
	}

	var orphans []string
	for _, id := range candidates {
		if !known[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}

// PurgeOrphans deletes the given orphaned point ids from the hybrid
// collection and logs how many were removed.
func (s *Service) PurgeOrphans(ctx context.Context, orphanIDs []string) error {
	if len(orphanIDs) == 0 {
		return nil
	}
	if err := s.DB.Delete(ctx, vectordb.CollectionHybrid, orphanIDs); err != nil {
		return apperror.Upstream("consistency.PurgeOrphans", err)
	}
	logger.Printf("consistency: purged %d orphaned vector points", len(orphanIDs))
	return nil
}

// ResetVectorBindings clears the Store's vector_point_id/indexed_at
// tracking for stale-only or all rows, forcing the worker to re-embed them
// on the next sweep. This never touches the vector index directly: a reset
// message is re-upserted under the same point id, which the indexer derives
// from the message id (an idempotent overwrite).
func (s *Service) ResetVectorBindings(ctx context.Context, tenantID int64, mode store.ResetVectorBindingsMode) error {
	if err := s.Store.ResetVectorBindings(ctx, tenantID, mode); err != nil {
		return err
	}
	logger.Printf("consistency: reset vector bindings for tenant=%d mode=%s", tenantID, mode)
	return nil
}

// HealthSummary renders a human-readable one-liner for the sync-health
// tier, used by the /tenants/{id}/stats admin surface.
func HealthSummary(h store.SyncHealth) string {
	return fmt.Sprintf("%s (%d/%d bound, %d unbound, %d stale, %.1f%% coverage)",
		h.Tier, h.Bound, h.Total, h.Unbound, h.Stale, h.Ratio*100)
}
