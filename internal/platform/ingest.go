// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/cil/internal/apperror"
	"github.com/northbound/cil/internal/attachment"
	"github.com/northbound/cil/internal/logger"
	"github.com/northbound/cil/internal/model"
	"github.com/northbound/cil/internal/queue"
	"github.com/northbound/cil/internal/store"
)

// Ingest is the C2 pipeline entry point: one method per event kind, each
// persisting to Store and enqueuing follow-on work without ever performing
// a file download or an embedding call inline.
type Ingest struct {
	Store *store.Store
	Queue queue.Queue
}

func New(st *store.Store, q queue.Queue) *Ingest {
	return &Ingest{Store: st, Queue: q}
}

func requireTenant(op string, tenantID int64) error {
	if tenantID == 0 {
		return apperror.Authorization(op, fmt.Errorf("missing tenant_id"))
	}
	return nil
}

func newWorkItem(kind model.WorkKind, priority model.Priority, payload map[string]any) model.WorkItem {
	return model.WorkItem{
		ID:              uuid.NewString(),
		Kind:            kind,
		Payload:         payload,
		Priority:        priority,
		FirstEnqueuedAt: time.Now(),
	}
}

// HandleMessageCreated persists the message, then enqueues a
// single_message_index work item at default priority (§4.2.2).
func (ig *Ingest) HandleMessageCreated(ctx context.Context, ev MessageCreatedEvent) error {
	if err := requireTenant("platform.HandleMessageCreated", ev.TenantID); err != nil {
		logger.SecurityEvent("missing_tenant_id", "message_created event rejected")
		return err
	}

	if err := ig.Store.UpsertChannel(ctx, model.Channel{ID: ev.ChannelID, TenantID: ev.TenantID, Name: ev.ChannelName}); err != nil {
		return err
	}
	if err := ig.Store.UpsertMember(ctx, model.Member{ID: ev.AuthorID, TenantID: ev.TenantID, Username: ev.AuthorUsername, DisplayName: ev.AuthorDisplay}); err != nil {
		return err
	}

	msg := model.Message{
		ID:              ev.MessageID,
		TenantID:        ev.TenantID,
		ChannelID:       ev.ChannelID,
		AuthorID:        ev.AuthorID,
		Content:         ev.Content,
		AuthoredAt:      ev.AuthoredAt,
		ReplyToID:       ev.ReplyToID,
		AttachmentCount: ev.AttachmentCount,
		EmbedCount:      ev.EmbedCount,
		MentionCount:    ev.MentionCount,
		FromBot:         ev.FromBot,
	}
	if err := ig.Store.InsertMessage(ctx, msg); err != nil {
		return err
	}

	item := newWorkItem(model.WorkSingleMessageIndex, model.PriorityDefault, map[string]any{
		"tenant_id":  ev.TenantID,
		"message_id": ev.MessageID,
	})
	return ig.Queue.Enqueue(ctx, item)
}

// HandleMessageEdited bumps content and updated_at; re-indexing is left to
// a stale_sweep work item rather than done inline (§4.2.2). Nothing in this
// module enqueues stale_sweep on a schedule.
func (ig *Ingest) HandleMessageEdited(ctx context.Context, ev MessageEditedEvent) error {
	if err := requireTenant("platform.HandleMessageEdited", ev.TenantID); err != nil {
		return err
	}
	return ig.Store.MarkMessageEdited(ctx, ev.MessageID, ev.NewContent)
}

// HandleMessageDeleted soft-deletes the message and enqueues a high-priority
// purge of any sessions containing it (§4.2.2, §4.1 right-to-be-forgotten).
func (ig *Ingest) HandleMessageDeleted(ctx context.Context, ev MessageDeletedEvent) error {
	return ig.HandleMessagesBulkDeleted(ctx, MessagesBulkDeletedEvent{TenantID: ev.TenantID, MessageIDs: []int64{ev.MessageID}})
}

// HandleMessagesBulkDeleted is the shared soft-delete path for both single
// and bulk deletion events.
func (ig *Ingest) HandleMessagesBulkDeleted(ctx context.Context, ev MessagesBulkDeletedEvent) error {
	if err := requireTenant("platform.HandleMessagesBulkDeleted", ev.TenantID); err != nil {
		return err
	}
	if len(ev.MessageIDs) == 0 {
		return nil
	}
	if err := ig.Store.MarkMessageDeleted(ctx, ev.MessageIDs); err != nil {
		return err
	}

	item := newWorkItem(model.WorkPurgeSessions, model.PriorityHigh, map[string]any{
		"tenant_id":   ev.TenantID,
		"message_ids": ev.MessageIDs,
	})
	logger.Printf("platform: queued purge_sessions for %d deleted messages (tenant=%d)", len(ev.MessageIDs), ev.TenantID)
	return ig.Queue.Enqueue(ctx, item)
}

// HandleAttachmentAdded records attachment metadata only; the worker that
// dequeues attachment_process fetches the CDN bytes and runs extraction,
// keeping this handler non-blocking (§4.2).
func (ig *Ingest) HandleAttachmentAdded(ctx context.Context, ev AttachmentAddedEvent) error {
	if err := requireTenant("platform.HandleAttachmentAdded", ev.TenantID); err != nil {
		return err
	}

	state := model.ProcessingPending
	if err := attachment.Gate(ev.Filename, ev.ByteSize); err != nil {
		state = model.ProcessingFailed
	}

	id, err := ig.Store.InsertAttachment(ctx, model.Attachment{
		MessageID:       ev.MessageID,
		TenantID:        ev.TenantID,
		CDNURL:          ev.CDNURL,
		Filename:        ev.Filename,
		MIME:            ev.MIME,
		ByteSize:        ev.ByteSize,
		SourceType:      model.AttachmentSourceType(attachment.SourceTypeFor(ev.Filename)),
		ProcessingState: state,
	})
	if err != nil {
		return err
	}
	if state == model.ProcessingFailed {
		logger.Printf("platform: attachment %q rejected by gate (tenant=%d, message=%d)", ev.Filename, ev.TenantID, ev.MessageID)
		return nil
	}

	item := newWorkItem(model.WorkAttachmentProcess, model.PriorityDefault, map[string]any{
		"tenant_id":     ev.TenantID,
		"attachment_id": id,
	})
	return ig.Queue.Enqueue(ctx, item)
}

// HandleCommandInvoked defers the interaction immediately (widening the
// platform's 3s response budget to the 15-minute window §6 describes), then
// enqueues a query_ask work item for async fulfillment by the Answer
// Router. Every query-returning command MUST defer before dispatch.
func (ig *Ingest) HandleCommandInvoked(ctx context.Context, ev CommandInvokedEvent, ack Deferrer) error {
	if err := requireTenant("platform.HandleCommandInvoked", ev.TenantID); err != nil {
		return err
	}
	if ack != nil {
		if err := ack.Defer(ev.InteractionToken); err != nil {
			return apperror.Upstream("platform.HandleCommandInvoked", err)
		}
	}

	item := newWorkItem(model.WorkQueryAsk, model.PriorityDefault, map[string]any{
		"tenant_id":          ev.TenantID,
		"channel_id":         ev.ChannelID,
		"user_id":            ev.UserID,
		"command":            ev.Command,
		"query":              ev.Query,
		"interaction_token":  ev.InteractionToken,
	})
	return ig.Queue.Enqueue(ctx, item)
}
