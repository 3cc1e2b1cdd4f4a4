// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package platform implements the C2 Ingest Pipeline: the inbound
// chat-platform event types and the handler that persists each event to the
// Store and enqueues the follow-on indexing work, grounded on the teacher's
// internal/server/ingest_handler.go (dependency-injected handler struct,
// persist-then-enqueue shape) generalized from a single file-upload endpoint
// to the six platform event kinds of SPEC_FULL.md §6.
package platform

import "time"

// EventKind enumerates the inbound chat-platform event types this system
// consumes. The platform event loop delivers these; Ingest must never block
// it with file downloads or embedding work.
type EventKind string

const (
	EventMessageCreated       EventKind = "message_created"
	EventMessageEdited        EventKind = "message_edited"
	EventMessageDeleted       EventKind = "message_deleted"
	EventMessagesBulkDeleted  EventKind = "messages_bulk_deleted"
	EventAttachmentAdded      EventKind = "attachment_added"
	EventCommandInvoked       EventKind = "command_invoked"
)

// MessageCreatedEvent carries everything Ingest needs to persist a new
// message without a second round trip to the platform.
type MessageCreatedEvent struct {
	TenantID        int64
	ChannelID       int64
	ChannelName     string
	AuthorID        int64
	AuthorUsername  string
	AuthorDisplay   string
	MessageID       int64
	Content         string
	AuthoredAt      time.Time
	ReplyToID       *int64
	AttachmentCount int
	EmbedCount      int
	MentionCount    int
	FromBot         bool
}

// MessageEditedEvent carries the raw (uncached-safe) new content of an
// edited message. Re-indexing is deferred to the periodic stale sweep, not
// performed inline.
type MessageEditedEvent struct {
	TenantID   int64
	MessageID  int64
	NewContent string
}

// MessageDeletedEvent is a single-message deletion.
type MessageDeletedEvent struct {
	TenantID  int64
	MessageID int64
}

// MessagesBulkDeletedEvent is a platform-issued bulk purge (e.g. a
// moderator clearing a channel).
type MessagesBulkDeletedEvent struct {
	TenantID   int64
	MessageIDs []int64
}

// AttachmentAddedEvent carries only metadata; payload bytes are fetched
// later by a worker, never inline in the event handler.
type AttachmentAddedEvent struct {
	TenantID  int64
	MessageID int64
	CDNURL    string
	Filename  string
	MIME      string
	ByteSize  int64
}

// CommandInvokedEvent is a platform slash-command invocation. Per §6, the
// platform's response window is widened from 3s to 15 minutes by an
// immediate deferral acknowledgement; the actual answer is posted later via
// whatever callback the adapter's Defer implementation performs.
type CommandInvokedEvent struct {
	TenantID  int64
	ChannelID int64
	UserID    int64
	Command   string
	Query     string
	// InteractionToken identifies the deferred response for the eventual
	// follow-up post; opaque to Ingest, passed through to the async
	// query_ask work item's payload.
	InteractionToken string
}

// Deferrer acknowledges a command immediately so the platform does not
// time out the interaction while the Answer Router runs asynchronously.
// Implementations wrap the concrete chat-platform SDK; none is wired here
// since SPEC_FULL.md treats the adapter itself as external.
type Deferrer interface {
	Defer(interactionToken string) error
}
