// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/northbound/cil/internal/apperror"
	"github.com/northbound/cil/internal/model"
)

// GetRecentChannelMessages fetches the last limit non-deleted messages from
// a channel in chronological order, for VECTOR_RAG short-term memory
// (§4.5.3) and for the conversation-memory "what file" follow-up resolver.
// Grounded on original_source/.../conversation_memory.py get_recent_channel_messages.
func (s *Store) GetRecentChannelMessages(ctx context.Context, tenantID, channelID int64, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, channel_id, author_id, content, authored_at, reply_to_id,
			attachment_count, embed_count, mention_count, from_bot, deleted, deleted_at,
			vector_point_id, indexed_at, updated_at
		FROM messages
		WHERE tenant_id = ? AND channel_id = ? AND deleted = 0 AND LENGTH(content) > 0
		ORDER BY authored_at DESC
		LIMIT ?`, tenantID, channelID, limit)
	if err != nil {
		return nil, apperror.Upstream("store.GetRecentChannelMessages", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	// reverse to chronological order (oldest first)
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// GetMessagesByChannel returns all non-deleted messages for a channel in
// ascending time order, the sessionizer's input feed.
func (s *Store) GetMessagesByChannel(ctx context.Context, tenantID, channelID int64, since time.Time) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, channel_id, author_id, content, authored_at, reply_to_id,
			attachment_count, embed_count, mention_count, from_bot, deleted, deleted_at,
			vector_point_id, indexed_at, updated_at
		FROM messages
		WHERE tenant_id = ? AND channel_id = ? AND deleted = 0 AND authored_at >= ?
		ORDER BY authored_at ASC`, tenantID, channelID, since)
	if err != nil {
		return nil, apperror.Upstream("store.GetMessagesByChannel", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetMessagesByIDs returns the (possibly deleted) rows for a set of ids,
// preserving no particular order; used by the indexer to compose enriched
// session text and by consistency checks.
func (s *Store) GetMessagesByIDs(ctx context.Context, ids []int64) ([]model.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(ids)*2)
	args := make([]any, len(ids))
	for i, id := range ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT id, tenant_id, channel_id, author_id, content, authored_at, reply_to_id,
			attachment_count, embed_count, mention_count, from_bot, deleted, deleted_at,
			vector_point_id, indexed_at, updated_at
		FROM messages WHERE id IN (%s)`, string(placeholders))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperror.Upstream("store.GetMessagesByIDs", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetSampleMessages returns up to limit recent non-deleted messages with
// content longer than minLen, for the thematic analyzer's bounded sample.
func (s *Store) GetSampleMessages(ctx context.Context, tenantID int64, limit, minLen int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, channel_id, author_id, content, authored_at, reply_to_id,
			attachment_count, embed_count, mention_count, from_bot, deleted, deleted_at,
			vector_point_id, indexed_at, updated_at
		FROM messages
		WHERE tenant_id = ? AND deleted = 0 AND LENGTH(content) > ?
		ORDER BY authored_at DESC
		LIMIT ?`, tenantID, minLen, limit)
	if err != nil {
		return nil, apperror.Upstream("store.GetSampleMessages", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// InsertSession persists a session and its ordered message membership.
func (s *Store) InsertSession(ctx context.Context, sess model.Session) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Upstream("store.InsertSession", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, tenant_id, channel_id, start_time, end_time, preview)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET end_time = excluded.end_time, preview = excluded.preview`,
		sess.ID, sess.TenantID, sess.ChannelID, sess.StartTime, sess.EndTime, sess.Preview,
	)
	if err != nil {
		return apperror.Upstream("store.InsertSession", err)
	}

	for i, msgID := range sess.MessageIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO session_messages (session_id, message_id, position) VALUES (?, ?, ?)`,
			sess.ID, msgID, i,
		); err != nil {
			return apperror.Upstream("store.InsertSession", err)
		}
	}
	return tx.Commit()
}

// RecordSessionVectorBinding writes the session's vector_point_id.
func (s *Store) RecordSessionVectorBinding(ctx context.Context, sessionID, vectorPointID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET vector_point_id = ? WHERE id = ?`, vectorPointID, sessionID,
	); err != nil {
		return apperror.Upstream("store.RecordSessionVectorBinding", err)
	}
	return nil
}

// GetSessionMessageIDs returns the ordered message ids belonging to a session.
func (s *Store) GetSessionMessageIDs(ctx context.Context, sessionID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id FROM session_messages WHERE session_id = ? ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, apperror.Upstream("store.GetSessionMessageIDs", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperror.Upstream("store.GetSessionMessageIDs", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetSessionsContainingMessages returns session ids that include any of the
// given message ids, for the deletion-propagation's purge_sessions handler.
func (s *Store) GetSessionsContainingMessages(ctx context.Context, messageIDs []int64) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(messageIDs)*2)
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT DISTINCT session_id FROM session_messages WHERE message_id IN (%s)`, string(placeholders))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperror.Upstream("store.GetSessionsContainingMessages", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperror.Upstream("store.GetSessionsContainingMessages", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteSessions removes session rows and their membership, used once the
// corresponding vector points have been purged.
func (s *Store) DeleteSessions(ctx context.Context, sessionIDs []string) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Upstream("store.DeleteSessions", err)
	}
	defer tx.Rollback()
	for _, id := range sessionIDs {
		if _, err := tx.ExecContext(ctx, `DELETE FROM session_messages WHERE session_id = ?`, id); err != nil {
			return apperror.Upstream("store.DeleteSessions", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
			return apperror.Upstream("store.DeleteSessions", err)
		}
	}
	return tx.Commit()
}

// InsertAttachment persists attachment metadata, PENDING by default.
func (s *Store) InsertAttachment(ctx context.Context, a model.Attachment) (int64, error) {
	state := a.ProcessingState
	if state == "" {
		state = model.ProcessingPending
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO attachments (message_id, tenant_id, cdn_url, filename, mime, byte_size, source_type, processing_state)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.MessageID, a.TenantID, a.CDNURL, a.Filename, a.MIME, a.ByteSize, a.SourceType, state,
	)
	if err != nil {
		return 0, apperror.Upstream("store.InsertAttachment", err)
	}
	return res.LastInsertId()
}

func (s *Store) UpdateAttachmentState(ctx context.Context, attachmentID int64, state model.ProcessingState, extractedText, description string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE attachments SET processing_state = ?, extracted_text = ?, description = ? WHERE id = ?`,
		state, extractedText, description, attachmentID,
	); err != nil {
		return apperror.Upstream("store.UpdateAttachmentState", err)
	}
	return nil
}

func (s *Store) GetAttachment(ctx context.Context, attachmentID int64) (model.Attachment, error) {
	var a model.Attachment
	var extractedText, description sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, message_id, tenant_id, cdn_url, filename, mime, byte_size, source_type, processing_state, extracted_text, description
		 FROM attachments WHERE id = ?`, attachmentID,
	).Scan(&a.ID, &a.MessageID, &a.TenantID, &a.CDNURL, &a.Filename, &a.MIME, &a.ByteSize, &a.SourceType, &a.ProcessingState, &extractedText, &description)
	if err != nil {
		return a, apperror.Upstream("store.GetAttachment", err)
	}
	a.ExtractedText = extractedText.String
	a.Description = description.String
	return a, nil
}

// Tenant returns a tenant row, used to compose the personality directive
// into LLM system prompts.
func (s *Store) Tenant(ctx context.Context, tenantID int64) (model.Tenant, error) {
	var t model.Tenant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, personality_directive FROM tenants WHERE id = ?`, tenantID,
	).Scan(&t.ID, &t.Name, &t.PersonalityDirective)
	if err == sql.ErrNoRows {
		return model.Tenant{ID: tenantID}, nil
	}
	if err != nil {
		return t, apperror.Upstream("store.Tenant", err)
	}
	return t, nil
}

func (s *Store) SetPersonalityDirective(ctx context.Context, tenantID int64, directive string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET personality_directive = ? WHERE id = ?`, directive, tenantID,
	); err != nil {
		return apperror.Upstream("store.SetPersonalityDirective", err)
	}
	return nil
}

func (s *Store) ListChannels(ctx context.Context, tenantID int64) ([]model.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, tenant_id, name, indexed FROM channels WHERE tenant_id = ?`, tenantID)
	if err != nil {
		return nil, apperror.Upstream("store.ListChannels", err)
	}
	defer rows.Close()
	var out []model.Channel
	for rows.Next() {
		var c model.Channel
		if err := rows.Scan(&c.ID, &c.TenantID, &c.Name, &c.Indexed); err != nil {
			return nil, apperror.Upstream("store.ListChannels", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Channel returns a single channel row, for the indexer's enriched-text
// header and the worker pool's per-kind routing decisions.
func (s *Store) Channel(ctx context.Context, channelID int64) (model.Channel, error) {
	var c model.Channel
	err := s.db.QueryRowContext(ctx, `SELECT id, tenant_id, name, indexed FROM channels WHERE id = ?`, channelID).
		Scan(&c.ID, &c.TenantID, &c.Name, &c.Indexed)
	if err != nil {
		return c, apperror.Upstream("store.Channel", err)
	}
	return c, nil
}

// MemberDisplayNames resolves a set of member ids to display names, for
// composing the indexer's enriched session text and for mention-token
// resolution (§4.4.5). Members with no row are simply absent from the map.
func (s *Store) MemberDisplayNames(ctx context.Context, memberIDs []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(memberIDs))
	if len(memberIDs) == 0 {
		return out, nil
	}
	placeholders := make([]byte, 0, len(memberIDs)*2)
	args := make([]any, len(memberIDs))
	for i, id := range memberIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, display_name, username FROM members WHERE id IN (%s)`, string(placeholders))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperror.Upstream("store.MemberDisplayNames", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var display, username string
		if err := rows.Scan(&id, &display, &username); err != nil {
			return nil, apperror.Upstream("store.MemberDisplayNames", err)
		}
		if display != "" {
			out[id] = display
		} else {
			out[id] = username
		}
	}
	return out, rows.Err()
}

// GetSessionVectorPointIDs returns the non-null vector_point_id of each
// given session, for the deletion-propagation purge step.
func (s *Store) GetSessionVectorPointIDs(ctx context.Context, sessionIDs []string) ([]string, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(sessionIDs)*2)
	args := make([]any, len(sessionIDs))
	for i, id := range sessionIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT vector_point_id FROM sessions WHERE id IN (%s) AND vector_point_id IS NOT NULL`, string(placeholders))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperror.Upstream("store.GetSessionVectorPointIDs", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperror.Upstream("store.GetSessionVectorPointIDs", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FilterKnownVectorPointIDs returns the subset of candidateIDs that appear
// as a message's or session's vector_point_id for the tenant. The
// complement (candidateIDs minus this result) is the orphan set: points
// that exist in the vector index but reference nothing in the Store.
// Grounded on storage_service.py's verify_qdrant_points.
func (s *Store) FilterKnownVectorPointIDs(ctx context.Context, tenantID int64, candidateIDs []string) (map[string]bool, error) {
	known := make(map[string]bool, len(candidateIDs))
	if len(candidateIDs) == 0 {
		return known, nil
	}
	placeholders := make([]byte, 0, len(candidateIDs)*2)
	args := make([]any, 0, len(candidateIDs)+1)
	args = append(args, tenantID)
	for i, id := range candidateIDs {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}
	query := fmt.Sprintf(`
		SELECT vector_point_id FROM messages WHERE tenant_id = ? AND vector_point_id IN (%[1]s)
		UNION
		SELECT vector_point_id FROM sessions WHERE tenant_id = ? AND vector_point_id IN (%[1]s)`,
		string(placeholders))
	// The query references tenant_id and the id list twice; duplicate both argument groups.
	fullArgs := append(append([]any{}, args...), args...)
	rows, err := s.db.QueryContext(ctx, query, fullArgs...)
	if err != nil {
		return nil, apperror.Upstream("store.FilterKnownVectorPointIDs", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, apperror.Upstream("store.FilterKnownVectorPointIDs", err)
		}
		known[id] = true
	}
	return known, rows.Err()
}

// ExecReadOnlyQuery runs a SQL-guard-validated SELECT against the store and
// returns column names + rows as generic values, for ANALYTICS_DB dispatch.
func (s *Store) ExecReadOnlyQuery(ctx context.Context, query string) ([]string, [][]any, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, apperror.Upstream("store.ExecReadOnlyQuery", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, apperror.Upstream("store.ExecReadOnlyQuery", err)
	}

	var out [][]any
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, apperror.Upstream("store.ExecReadOnlyQuery", err)
		}
		out = append(out, raw)
	}
	return cols, out, rows.Err()
}

// TenantStats is the `/tenants/{id}/stats` summary.
type TenantStats struct {
	TotalMessages int `json:"total_messages"`
	ActiveChannels int `json:"active_channels"`
	ActiveMembers int `json:"active_members"`
	TotalSessions int `json:"total_sessions"`
}

// Stats aggregates the headline counters for a tenant's dashboard.
func (s *Store) Stats(ctx context.Context, tenantID int64) (TenantStats, error) {
	var st TenantStats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM messages WHERE tenant_id = ? AND deleted = 0),
			(SELECT COUNT(DISTINCT channel_id) FROM messages WHERE tenant_id = ? AND deleted = 0),
			(SELECT COUNT(DISTINCT author_id) FROM messages WHERE tenant_id = ? AND deleted = 0),
			(SELECT COUNT(*) FROM sessions WHERE tenant_id = ?)`,
		tenantID, tenantID, tenantID, tenantID)
	if err := row.Scan(&st.TotalMessages, &st.ActiveChannels, &st.ActiveMembers, &st.TotalSessions); err != nil {
		return st, apperror.Upstream("store.Stats", err)
	}
	return st, nil
}

// DayCount is one point of a `/stats/timeseries` response.
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// MessageTimeseries buckets non-deleted message counts by UTC day over the
// trailing `days` window.
func (s *Store) MessageTimeseries(ctx context.Context, tenantID int64, days int) ([]DayCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date(authored_at) AS d, COUNT(*) FROM messages
		WHERE tenant_id = ? AND deleted = 0 AND authored_at >= datetime('now', printf('-%d days', ?))
		GROUP BY d ORDER BY d ASC`, tenantID, days)
	if err != nil {
		return nil, apperror.Upstream("store.MessageTimeseries", err)
	}
	defer rows.Close()
	var out []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, apperror.Upstream("store.MessageTimeseries", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// ChannelCount is one row of a `/stats/top-channels` response.
type ChannelCount struct {
	ChannelID int64  `json:"channel_id"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
}

// TopChannels ranks channels by non-deleted message volume.
func (s *Store) TopChannels(ctx context.Context, tenantID int64, limit int) ([]ChannelCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.channel_id, c.name, COUNT(*) AS cnt
		FROM messages m JOIN channels c ON c.id = m.channel_id
		WHERE m.tenant_id = ? AND m.deleted = 0
		GROUP BY m.channel_id, c.name ORDER BY cnt DESC LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, apperror.Upstream("store.TopChannels", err)
	}
	defer rows.Close()
	var out []ChannelCount
	for rows.Next() {
		var cc ChannelCount
		if err := rows.Scan(&cc.ChannelID, &cc.Name, &cc.Count); err != nil {
			return nil, apperror.Upstream("store.TopChannels", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}
