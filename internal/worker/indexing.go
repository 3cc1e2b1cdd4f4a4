// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package worker

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/northbound/cil/internal/model"
	"github.com/northbound/cil/internal/sessionize"
	"github.com/northbound/cil/internal/vectordb"
)

const sessionPreviewMaxChars = 1000

// indexSingleMessage embeds and upserts one message into the hybrid
// collection, and binds the resulting point id back onto the Store row.
// The point id is derived from the message id, so indexing the same
// message again overwrites its earlier point instead of adding one.
// Messages in an unindexed channel, or already deleted, are skipped
// without error (§4.4.2: only indexed channels feed the vector store).
func (h *Handlers) indexSingleMessage(ctx context.Context, tenantID, messageID int64) error {
	msgs, err := h.Store.GetMessagesByIDs(ctx, []int64{messageID})
	if err != nil {
		return err
	}
	if len(msgs) == 0 || msgs[0].Deleted {
		return nil
	}
	msg := msgs[0]

	ch, err := h.Store.Channel(ctx, msg.ChannelID)
	if err != nil {
		return err
	}
	if !ch.Indexed {
		return nil
	}

	dense, err := h.Embedder.EmbedOne(ctx, msg.Content)
	if err != nil {
		return err
	}
	h.Sparse.Index([]string{msg.Content})
	sparse := h.Sparse.Encode(msg.Content)

	pointID := uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("urn:cil:message:%d", messageID))).String()
	payload := map[string]any{
		"tenant_id":   tenantID,
		"channel_id":  msg.ChannelID,
		"message_id":  msg.ID,
		"author_id":   msg.AuthorID,
		"content":     msg.Content,
		"authored_at": msg.AuthoredAt,
		"source_type": "message",
	}
	if err := h.VectorDB.Upsert(ctx, vectordb.CollectionHybrid, vectordb.Point{ID: pointID, Dense: dense, Sparse: sparse, Payload: payload}); err != nil {
		return err
	}
	return h.Store.RecordVectorBinding(ctx, []int64{messageID}, pointID)
}

// indexSession composes the §4.4.5 enriched text for a set of message ids,
// embeds it, upserts a session point to the hybrid collection, and writes
// the Store binding only once the upsert has acknowledged success.
func (h *Handlers) indexSession(ctx context.Context, tenantID, channelID int64, messageIDs []int64) error {
	msgs, err := h.Store.GetMessagesByIDs(ctx, messageIDs)
	if err != nil {
		return err
	}
	var live []model.Message
	for _, m := range msgs {
		if !m.Deleted {
			live = append(live, m)
		}
	}
	if len(live) == 0 {
		return nil
	}
	sort.Slice(live, func(i, j int) bool { return live[i].AuthoredAt.Before(live[j].AuthoredAt) })

	ch, err := h.Store.Channel(ctx, channelID)
	if err != nil {
		return err
	}

	authorIDs := make([]int64, 0, len(live))
	seen := make(map[int64]bool, len(live))
	for _, m := range live {
		if !seen[m.AuthorID] {
			seen[m.AuthorID] = true
			authorIDs = append(authorIDs, m.AuthorID)
		}
	}
	names, err := h.Store.MemberDisplayNames(ctx, authorIDs)
	if err != nil {
		return err
	}

	var sb strings.Builder
	for _, m := range live {
		author := names[m.AuthorID]
		if author == "" {
			author = fmt.Sprintf("user%d", m.AuthorID)
		}
		content := resolveMentions(m.Content, names)
		fmt.Fprintf(&sb, "[%s in #%s @ %s]: %s\n", author, ch.Name, m.AuthoredAt.Format("2006-01-02 15:04"), content)
	}
	text := sb.String()

	dense, err := h.Embedder.EmbedOne(ctx, text)
	if err != nil {
		return err
	}
	h.Sparse.Index([]string{text})
	sparse := h.Sparse.Encode(text)

	sessionID := uuid.NewString()
	preview := text
	if len(preview) > sessionPreviewMaxChars {
		preview = preview[:sessionPreviewMaxChars]
	}

	live64 := make([]int64, len(live))
	for i, m := range live {
		live64[i] = m.ID
	}
	sess := model.Session{
		ID:           sessionID,
		TenantID:     tenantID,
		ChannelID:    channelID,
		MessageIDs:   live64,
		StartTime:    live[0].AuthoredAt,
		EndTime:      live[len(live)-1].AuthoredAt,
		Participants: authorIDs,
		Preview:      preview,
	}
	if err := h.Store.InsertSession(ctx, sess); err != nil {
		return err
	}

	payload := map[string]any{
		"tenant_id":   tenantID,
		"channel_id":  channelID,
		"session_id":  sessionID,
		"message_ids": live64,
		"start_time":  sess.StartTime,
		"end_time":    sess.EndTime,
		"preview":     preview,
		"source_type": "session",
	}
	point := vectordb.Point{ID: uuid.NewString(), Dense: dense, Sparse: sparse, Payload: payload}
	if err := h.VectorDB.Upsert(ctx, vectordb.CollectionHybrid, point); err != nil {
		return err
	}
	return h.Store.RecordSessionVectorBinding(ctx, sessionID, point.ID)
}

// indexChannel sessionizes a channel's full (non-deleted) message history
// and indexes each resulting session, for the bulk_channel_index kind's
// unlimited-attempts/1h-deadline reindex path (§4.3).
func (h *Handlers) indexChannel(ctx context.Context, tenantID, channelID int64) error {
	msgs, err := h.Store.GetMessagesByChannel(ctx, tenantID, channelID, time.Time{})
	if err != nil {
		return err
	}
	var live []model.Message
	for _, m := range msgs {
		if !m.Deleted {
			live = append(live, m)
		}
	}
	if len(live) == 0 {
		return nil
	}

	embedFn := func(texts []string) ([][]float32, error) { return h.Embedder.EmbedMany(ctx, texts) }
	sessions := sessionize.Sessionize(live, sessionize.Options{}, embedFn)

	for _, sess := range sessions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := h.indexSession(ctx, tenantID, channelID, sess.MessageIDs); err != nil {
			return err
		}
	}
	return nil
}
