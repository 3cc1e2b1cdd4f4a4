// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/northbound/cil/internal/apperror"
	"github.com/northbound/cil/internal/attachment"
	"github.com/northbound/cil/internal/consistency"
	"github.com/northbound/cil/internal/embeddings"
	"github.com/northbound/cil/internal/logger"
	"github.com/northbound/cil/internal/model"
	"github.com/northbound/cil/internal/queue"
	"github.com/northbound/cil/internal/router"
	"github.com/northbound/cil/internal/store"
	"github.com/northbound/cil/internal/thematic"
	"github.com/northbound/cil/internal/vectordb"
)

// AnswerPoster delivers a completed query_ask answer back to the chat
// platform interaction named by interactionToken. Left unset in
// deployments that only care about the answer landing in the Store/logs
// (e.g. the CLI rebuild tool).
type AnswerPoster interface {
	PostAnswer(ctx context.Context, interactionToken string, answer *router.Answer) error
}

// Handlers wires every subsystem a worker handler delegates to. Build()
// turns it into the dispatch table Pool.Run consumes.
type Handlers struct {
	Store              *store.Store
	Queue              queue.Queue
	VectorDB           vectordb.VectorDB
	Embedder           embeddings.TextEmbedder
	Sparse             *embeddings.BM25Scorer
	Consistency        *consistency.Service
	Router             *router.Router
	AttachmentPipeline *attachment.Pipeline
	ThematicCacheDir   string
	Poster             AnswerPoster
}

// Build returns the per-kind dispatch table for Pool.
func (h *Handlers) Build() map[model.WorkKind]Handler {
	return map[model.WorkKind]Handler{
		model.WorkSingleMessageIndex: h.handleSingleMessageIndex,
		model.WorkSessionIndex:       h.handleSessionIndex,
		model.WorkBulkChannelIndex:   h.handleBulkChannelIndex,
		model.WorkAttachmentProcess:  h.handleAttachmentProcess,
		model.WorkPurgeVector:        h.handlePurgeVector,
		model.WorkPurgeSessions:      h.handlePurgeSessions,
		model.WorkQueryAsk:           h.handleQueryAsk,
		model.WorkStaleSweep:         h.handleStaleSweep,
		model.WorkThematicRebuild:    h.handleThematicRebuild,
	}
}

func (h *Handlers) handleSingleMessageIndex(ctx context.Context, item model.WorkItem) error {
	tenantID, err := payloadInt64(item.Payload, "tenant_id")
	if err != nil {
		return apperror.Validation("worker.handleSingleMessageIndex", err)
	}
	messageID, err := payloadInt64(item.Payload, "message_id")
	if err != nil {
		return apperror.Validation("worker.handleSingleMessageIndex", err)
	}
	return h.indexSingleMessage(ctx, tenantID, messageID)
}

func (h *Handlers) handleSessionIndex(ctx context.Context, item model.WorkItem) error {
	tenantID, err := payloadInt64(item.Payload, "tenant_id")
	if err != nil {
		return apperror.Validation("worker.handleSessionIndex", err)
	}
	channelID, err := payloadInt64(item.Payload, "channel_id")
	if err != nil {
		return apperror.Validation("worker.handleSessionIndex", err)
	}
	messageIDs := payloadInt64Slice(item.Payload, "message_ids")
	if len(messageIDs) == 0 {
		return apperror.Validation("worker.handleSessionIndex", fmt.Errorf("message_ids is empty"))
	}
	return h.indexSession(ctx, tenantID, channelID, messageIDs)
}

func (h *Handlers) handleBulkChannelIndex(ctx context.Context, item model.WorkItem) error {
	tenantID, err := payloadInt64(item.Payload, "tenant_id")
	if err != nil {
		return apperror.Validation("worker.handleBulkChannelIndex", err)
	}
	channelID, err := payloadInt64(item.Payload, "channel_id")
	if err != nil {
		return apperror.Validation("worker.handleBulkChannelIndex", err)
	}
	return h.indexChannel(ctx, tenantID, channelID)
}

// handleAttachmentProcess runs the attachment extraction pipeline and
// embeds each resulting chunk. PDF sources require a scratch file because
// the pdf extractor reads from disk; every other source type works off
// the fetched bytes in memory.
func (h *Handlers) handleAttachmentProcess(ctx context.Context, item model.WorkItem) error {
	tenantID, err := payloadInt64(item.Payload, "tenant_id")
	if err != nil {
		return apperror.Validation("worker.handleAttachmentProcess", err)
	}
	attachmentID, err := payloadInt64(item.Payload, "attachment_id")
	if err != nil {
		return apperror.Validation("worker.handleAttachmentProcess", err)
	}

	att, err := h.Store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	if att.ProcessingState == model.ProcessingCompleted {
		return nil
	}

	scratchPath := ""
	if att.SourceType == model.SourcePDF {
		raw, ferr := h.AttachmentPipeline.Fetcher.Fetch(ctx, att.CDNURL)
		if ferr != nil {
			return apperror.Upstream("worker.handleAttachmentProcess", ferr)
		}
		f, cerr := os.CreateTemp("", "cil-attachment-*.pdf")
		if cerr != nil {
			return apperror.Upstream("worker.handleAttachmentProcess", cerr)
		}
		defer os.Remove(f.Name())
		if _, werr := f.Write(raw); werr != nil {
			f.Close()
			return apperror.Upstream("worker.handleAttachmentProcess", werr)
		}
		f.Close()
		scratchPath = f.Name()
	}

	chunks, err := h.AttachmentPipeline.Process(ctx, att, scratchPath)
	if err != nil {
		if serr := h.Store.UpdateAttachmentState(ctx, attachmentID, model.ProcessingFailed, "", ""); serr != nil {
			logger.Errorf("worker: failed to record attachment %d as failed: %v", attachmentID, serr)
		}
		return err
	}

	var extracted string
	for _, c := range chunks {
		dense, derr := h.Embedder.EmbedOne(ctx, c.Text)
		if derr != nil {
			return derr
		}
		h.Sparse.Index([]string{c.Text})
		sparse := h.Sparse.Encode(c.Text)
		payload := map[string]any{
			"tenant_id":     tenantID,
			"attachment_id": attachmentID,
			"chunk_index":   c.ChunkIndex,
			"chunk_kind":    string(c.Kind),
			"content":       c.Text,
			"source_type":   string(att.SourceType),
		}
		point := vectordb.Point{ID: uuid.NewString(), Dense: dense, Sparse: sparse, Payload: payload}
		if err := h.VectorDB.Upsert(ctx, vectordb.CollectionHybrid, point); err != nil {
			return err
		}
		extracted += c.Text + "\n"
	}

	return h.Store.UpdateAttachmentState(ctx, attachmentID, model.ProcessingCompleted, extracted, "")
}

func (h *Handlers) handlePurgeVector(ctx context.Context, item model.WorkItem) error {
	pointID := payloadString(item.Payload, "vector_point_id")
	return h.Consistency.PurgeMessageVector(ctx, pointID)
}

func (h *Handlers) handlePurgeSessions(ctx context.Context, item model.WorkItem) error {
	messageIDs := payloadInt64Slice(item.Payload, "message_ids")
	if len(messageIDs) == 0 {
		return nil
	}
	_, err := h.Consistency.PropagateMessageDeletion(ctx, messageIDs)
	return err
}

// handleQueryAsk fulfills a deferred command_invoked interaction by running
// the Answer Router and, if a poster is configured, delivering the result
// back to the platform within its 15-minute deferred-response window.
func (h *Handlers) handleQueryAsk(ctx context.Context, item model.WorkItem) error {
	tenantID, err := payloadInt64(item.Payload, "tenant_id")
	if err != nil {
		return apperror.Validation("worker.handleQueryAsk", err)
	}
	channelID, _ := payloadInt64(item.Payload, "channel_id")
	query := payloadString(item.Payload, "query")
	token := payloadString(item.Payload, "interaction_token")

	var channelIDs []int64
	if channelID != 0 {
		channelIDs = []int64{channelID}
	}

	answer, err := h.Router.Ask(ctx, router.AskRequest{TenantID: tenantID, Query: query, ChannelIDs: channelIDs})
	if err != nil {
		return err
	}

	if h.Poster == nil {
		logger.Printf("worker: query_ask answer ready for token=%s routed_to=%s", token, answer.RoutedTo)
		return nil
	}
	return h.Poster.PostAnswer(ctx, token, answer)
}

// handleStaleSweep re-enqueues every stale or unbound message for a tenant
// as a single_message_index item, per §4.1's periodic reconciliation.
func (h *Handlers) handleStaleSweep(ctx context.Context, item model.WorkItem) error {
	tenantID, err := payloadInt64(item.Payload, "tenant_id")
	if err != nil {
		return apperror.Validation("worker.handleStaleSweep", err)
	}
	limit := 200

	stale, unbound, err := h.Consistency.EnqueueOutOfSyncMessages(ctx, tenantID, limit)
	if err != nil {
		return err
	}

	requeued := 0
	for _, m := range append(stale, unbound...) {
		work := model.WorkItem{
			ID:              uuid.NewString(),
			Kind:            model.WorkSingleMessageIndex,
			Priority:        model.PriorityLow,
			FirstEnqueuedAt: item.FirstEnqueuedAt,
			Payload: map[string]any{
				"tenant_id":  m.TenantID,
				"message_id": m.ID,
			},
		}
		if err := h.Queue.Enqueue(ctx, work); err != nil {
			return err
		}
		requeued++
	}
	logger.Printf("worker: stale sweep requeued %d messages for tenant=%d", requeued, tenantID)
	return nil
}

func (h *Handlers) handleThematicRebuild(ctx context.Context, item model.WorkItem) error {
	tenantID, err := payloadInt64(item.Payload, "tenant_id")
	if err != nil {
		return apperror.Validation("worker.handleThematicRebuild", err)
	}
	msgs, err := h.Store.GetSampleMessages(ctx, tenantID, 5000, 20)
	if err != nil {
		return err
	}
	texts := make([]string, len(msgs))
	for i, m := range msgs {
		texts[i] = m.Content
	}
	analyzer := thematic.NewAnalyzer(tenantID, h.ThematicCacheDir)
	_, err = analyzer.Fit(texts)
	return err
}
