// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package model

import "time"

// Tenant is the root isolation unit (a chat-platform server/guild).
type Tenant struct {
	ID                    int64  `json:"id" db:"id"`
	Name                  string `json:"name" db:"name"`
	PersonalityDirective  string `json:"personality_directive" db:"personality_directive"`
}

// Channel belongs to a Tenant. Only Indexed channels feed the vector store.
type Channel struct {
	ID       int64 `json:"id" db:"id"`
	TenantID int64 `json:"tenant_id" db:"tenant_id"`
	Name     string `json:"name" db:"name"`
	Indexed  bool  `json:"indexed" db:"indexed"`
}

// Member is a platform user record with a cached display name.
type Member struct {
	ID          int64  `json:"id" db:"id"`
	TenantID    int64  `json:"tenant_id" db:"tenant_id"`
	Username    string `json:"username" db:"username"`
	DisplayName string `json:"display_name" db:"display_name"`
}

// SyncState classifies a Message's relationship to the vector index.
type SyncState string

const (
	SyncBound   SyncState = "bound"
	SyncUnbound SyncState = "unbound"
	SyncStale   SyncState = "stale"
)

// DeletedSentinel replaces content on soft-delete, per §3 invariant.
const DeletedSentinel = "[deleted]"

// Message is authored text belonging to a Channel+Tenant+Member.
type Message struct {
	ID              int64      `json:"id" db:"id"`
	TenantID        int64      `json:"tenant_id" db:"tenant_id"`
	ChannelID       int64      `json:"channel_id" db:"channel_id"`
	AuthorID        int64      `json:"author_id" db:"author_id"`
	AuthorName      string     `json:"author_name" db:"-"`
	Content         string     `json:"content" db:"content"`
	AuthoredAt      time.Time  `json:"authored_at" db:"authored_at"`
	ReplyToID       *int64     `json:"reply_to_id,omitempty" db:"reply_to_id"`
	AttachmentCount int        `json:"attachment_count" db:"attachment_count"`
	EmbedCount      int        `json:"embed_count" db:"embed_count"`
	MentionCount    int        `json:"mention_count" db:"mention_count"`
	FromBot         bool       `json:"from_bot" db:"from_bot"`
	Deleted         bool       `json:"deleted" db:"deleted"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
	VectorPointID   *string    `json:"vector_point_id,omitempty" db:"vector_point_id"`
	IndexedAt       *time.Time `json:"indexed_at,omitempty" db:"indexed_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// SyncStateOf computes the message's relationship to the vector index.
// Mirrors the Store Layer's sync-health classification in §4.1.
func (m Message) SyncStateOf() SyncState {
	if m.VectorPointID == nil {
		return SyncUnbound
	}
	if m.IndexedAt != nil && m.UpdatedAt.After(*m.IndexedAt) {
		return SyncStale
	}
	return SyncBound
}

// AttachmentSourceType enumerates the kinds an attachment may be classified as.
type AttachmentSourceType string

const (
	SourcePDF      AttachmentSourceType = "pdf"
	SourceMarkdown AttachmentSourceType = "markdown"
	SourceText     AttachmentSourceType = "text"
	SourceImage    AttachmentSourceType = "image"
	SourceDocument AttachmentSourceType = "document"
)

type ProcessingState string

const (
	ProcessingPending    ProcessingState = "PENDING"
	ProcessingInProgress ProcessingState = "PROCESSING"
	ProcessingCompleted  ProcessingState = "COMPLETED"
	ProcessingFailed     ProcessingState = "FAILED"
)

// Attachment belongs to a Message.
type Attachment struct {
	ID              int64                `json:"id" db:"id"`
	MessageID       int64                `json:"message_id" db:"message_id"`
	TenantID        int64                `json:"tenant_id" db:"tenant_id"`
	CDNURL          string               `json:"cdn_url" db:"cdn_url"`
	Filename        string               `json:"filename" db:"filename"`
	MIME            string               `json:"mime" db:"mime"`
	ByteSize        int64                `json:"byte_size" db:"byte_size"`
	SourceType      AttachmentSourceType `json:"source_type" db:"source_type"`
	ProcessingState ProcessingState      `json:"processing_state" db:"processing_state"`
	ExtractedText   string               `json:"extracted_text,omitempty" db:"extracted_text"`
	Description     string               `json:"description,omitempty" db:"description"`
	VectorPointIDs  []string             `json:"vector_point_ids,omitempty" db:"-"`
}

// Session is a sessionizer-produced grouping of messages sharing one channel.
type Session struct {
	ID            string    `json:"id" db:"id"`
	TenantID      int64     `json:"tenant_id" db:"tenant_id"`
	ChannelID     int64     `json:"channel_id" db:"channel_id"`
	MessageIDs    []int64   `json:"message_ids" db:"-"`
	StartTime     time.Time `json:"start_time" db:"start_time"`
	EndTime       time.Time `json:"end_time" db:"end_time"`
	Participants  []int64   `json:"participants" db:"-"`
	Preview       string    `json:"preview" db:"preview"`
	VectorPointID *string   `json:"vector_point_id,omitempty" db:"vector_point_id"`
}

// DocumentChunkKind enumerates chunk provenance within an attachment.
type DocumentChunkKind string

const (
	ChunkParagraph     DocumentChunkKind = "paragraph"
	ChunkHeader        DocumentChunkKind = "header"
	ChunkImageCaption  DocumentChunkKind = "image_caption"
	ChunkText          DocumentChunkKind = "text"
)

// DocumentChunk belongs to an Attachment.
type DocumentChunk struct {
	ID             string            `json:"id" db:"id"`
	AttachmentID   int64             `json:"attachment_id" db:"attachment_id"`
	TenantID       int64             `json:"tenant_id" db:"tenant_id"`
	ChunkIndex     int               `json:"chunk_index" db:"chunk_index"`
	Text           string            `json:"text" db:"text"`
	Kind           DocumentChunkKind `json:"kind" db:"kind"`
	HeadingContext string            `json:"heading_context,omitempty" db:"heading_context"`
	VectorPointID  *string           `json:"vector_point_id,omitempty" db:"vector_point_id"`
}

// Priority is a work-queue priority tier.
type Priority string

const (
	PriorityHigh    Priority = "high"
	PriorityDefault Priority = "default"
	PriorityLow     Priority = "low"
)

// WorkKind enumerates the queued work item kinds, per SPEC_FULL.md §4.3.
type WorkKind string

const (
	WorkSingleMessageIndex WorkKind = "single_message_index"
	WorkSessionIndex       WorkKind = "session_index"
	WorkBulkChannelIndex   WorkKind = "bulk_channel_index"
	WorkAttachmentProcess  WorkKind = "attachment_process"
	WorkPurgeVector        WorkKind = "purge_vector"
	WorkPurgeSessions      WorkKind = "purge_sessions"
	WorkQueryAsk           WorkKind = "query_ask"
	WorkStaleSweep         WorkKind = "stale_sweep"
	WorkThematicRebuild    WorkKind = "thematic_rebuild"
)

// WorkItem is a unit of queued work.
type WorkItem struct {
	ID              string          `json:"id"`
	Kind            WorkKind        `json:"kind"`
	Payload         map[string]any  `json:"payload"`
	Priority        Priority        `json:"priority"`
	Attempt         int             `json:"attempt"`
	FirstEnqueuedAt time.Time       `json:"first_enqueued_at"`
}
