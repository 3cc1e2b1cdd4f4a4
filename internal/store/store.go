// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package store implements the Store Layer (C1): the durable source of
// truth for tenants, channels, members, messages, attachments and
// sessions, plus the sync-health projection used by the consistency
// subsystem.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/northbound/cil/internal/apperror"
	"github.com/northbound/cil/internal/model"
)

// Store wraps a *sql.DB, following the teacher's internal/database/graph.go
// raw-SQL CRUD pattern rather than an ORM (none appears in the pack).
type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite3 driver is not safe for concurrent writers
	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS tenants (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		personality_directive TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS channels (
		id INTEGER PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		indexed INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_channels_tenant ON channels(tenant_id);

	CREATE TABLE IF NOT EXISTS members (
		id INTEGER PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		username TEXT NOT NULL,
		display_name TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_members_tenant ON members(tenant_id);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		channel_id INTEGER NOT NULL,
		author_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		authored_at DATETIME NOT NULL,
		reply_to_id INTEGER,
		attachment_count INTEGER NOT NULL DEFAULT 0,
		embed_count INTEGER NOT NULL DEFAULT 0,
		mention_count INTEGER NOT NULL DEFAULT 0,
		from_bot INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0,
		deleted_at DATETIME,
		vector_point_id TEXT,
		indexed_at DATETIME,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (reply_to_id) REFERENCES messages(id) ON DELETE SET NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id, authored_at);
	CREATE INDEX IF NOT EXISTS idx_messages_tenant ON messages(tenant_id);
	CREATE INDEX IF NOT EXISTS idx_messages_vector_point ON messages(vector_point_id);

	CREATE TABLE IF NOT EXISTS attachments (
		id INTEGER PRIMARY KEY,
		message_id INTEGER NOT NULL,
		tenant_id INTEGER NOT NULL,
		cdn_url TEXT NOT NULL,
		filename TEXT NOT NULL,
		mime TEXT NOT NULL,
		byte_size INTEGER NOT NULL,
		source_type TEXT NOT NULL,
		processing_state TEXT NOT NULL DEFAULT 'PENDING',
		extracted_text TEXT,
		description TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_attachments_message ON attachments(message_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		tenant_id INTEGER NOT NULL,
		channel_id INTEGER NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		preview TEXT,
		vector_point_id TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_channel ON sessions(channel_id);

	CREATE TABLE IF NOT EXISTS session_messages (
		session_id TEXT NOT NULL,
		message_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (session_id, message_id)
	);
	CREATE INDEX IF NOT EXISTS idx_session_messages_message ON session_messages(message_id);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tenant_id INTEGER NOT NULL,
		event_type TEXT NOT NULL,
		detail TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_tenant ON audit_log(tenant_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertTenant creates or updates a tenant record.
func (s *Store) UpsertTenant(ctx context.Context, t model.Tenant) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, personality_directive) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		t.ID, t.Name, t.PersonalityDirective,
	)
	if err != nil {
		return apperror.Upstream("store.UpsertTenant", err)
	}
	return nil
}

func (s *Store) UpsertChannel(ctx context.Context, c model.Channel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (id, tenant_id, name, indexed) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		c.ID, c.TenantID, c.Name, c.Indexed,
	)
	if err != nil {
		return apperror.Upstream("store.UpsertChannel", err)
	}
	return nil
}

func (s *Store) UpsertMember(ctx context.Context, m model.Member) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO members (id, tenant_id, username, display_name) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET username = excluded.username, display_name = excluded.display_name`,
		m.ID, m.TenantID, m.Username, m.DisplayName,
	)
	if err != nil {
		return apperror.Upstream("store.UpsertMember", err)
	}
	return nil
}

// SetChannelIndexed toggles whether a channel feeds the vector store.
func (s *Store) SetChannelIndexed(ctx context.Context, channelID int64, indexed bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE channels SET indexed = ? WHERE id = ?`, indexed, channelID)
	if err != nil {
		return apperror.Upstream("store.SetChannelIndexed", err)
	}
	return nil
}

func (s *Store) IsChannelIndexed(ctx context.Context, channelID int64) (bool, error) {
	var indexed bool
	err := s.db.QueryRowContext(ctx, `SELECT indexed FROM channels WHERE id = ?`, channelID).Scan(&indexed)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperror.Upstream("store.IsChannelIndexed", err)
	}
	return indexed, nil
}

// InsertMessage persists a message. Id collisions are a no-op (idempotent
// re-ingestion, R1), matching the platform's at-least-once delivery.
func (s *Store) InsertMessage(ctx context.Context, m model.Message) error {
	now := time.Now()
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = now
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, tenant_id, channel_id, author_id, content, authored_at, reply_to_id,
			attachment_count, embed_count, mention_count, from_bot, deleted, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
		 ON CONFLICT(id) DO NOTHING`,
		m.ID, m.TenantID, m.ChannelID, m.AuthorID, m.Content, m.AuthoredAt, nullableID(m.ReplyToID),
		m.AttachmentCount, m.EmbedCount, m.MentionCount, m.FromBot, m.UpdatedAt,
	)
	if err != nil {
		return apperror.Upstream("store.InsertMessage", err)
	}
	return nil
}

// MarkMessageEdited updates content and bumps updated_at, which the
// periodic STALE sweep later picks up (§4.2.2).
func (s *Store) MarkMessageEdited(ctx context.Context, messageID int64, newContent string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ?, updated_at = ? WHERE id = ? AND deleted = 0`,
		newContent, time.Now(), messageID,
	)
	if err != nil {
		return apperror.Upstream("store.MarkMessageEdited", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperror.Validation("store.MarkMessageEdited", fmt.Errorf("message %d not found or deleted", messageID))
	}
	return nil
}

// MarkMessageDeleted soft-deletes one or more messages: content is replaced
// with the deleted sentinel, the deleted flag set, and reply_to_id
// referential cleanup performed (referential cleanup, not cascade, per §4.1).
func (s *Store) MarkMessageDeleted(ctx context.Context, messageIDs []int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Upstream("store.MarkMessageDeleted", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, id := range messageIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET content = ?, deleted = 1, deleted_at = ?, updated_at = ? WHERE id = ?`,
			model.DeletedSentinel, now, now, id,
		); err != nil {
			return apperror.Upstream("store.MarkMessageDeleted", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET reply_to_id = NULL WHERE reply_to_id = ?`, id,
		); err != nil {
			return apperror.Upstream("store.MarkMessageDeleted", err)
		}
	}
	if err := s.appendAuditLocked(ctx, tx, 0, "message_deleted", fmt.Sprintf("ids=%v", messageIDs), now); err != nil {
		return err
	}
	return tx.Commit()
}

// RecordVectorBinding writes vector_point_id and indexed_at for the given
// messages, iff the corresponding vector-index upsert already acknowledged
// success (§4.4.5) — this call happens strictly after that acknowledgment,
// never before (dual-write ordering, §4.2.2/§5).
func (s *Store) RecordVectorBinding(ctx context.Context, messageIDs []int64, vectorPointID string) error {
	if len(messageIDs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperror.Upstream("store.RecordVectorBinding", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for _, id := range messageIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE messages SET vector_point_id = ?, indexed_at = ? WHERE id = ?`,
			vectorPointID, now, id,
		); err != nil {
			return apperror.Upstream("store.RecordVectorBinding", err)
		}
	}
	return tx.Commit()
}

// FindStale returns messages whose updated_at has moved past indexed_at in
// channels flagged indexed, up to limit rows, for the periodic sweep.
func (s *Store) FindStale(ctx context.Context, tenantID int64, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.tenant_id, m.channel_id, m.author_id, m.content, m.authored_at,
			m.reply_to_id, m.attachment_count, m.embed_count, m.mention_count, m.from_bot,
			m.deleted, m.deleted_at, m.vector_point_id, m.indexed_at, m.updated_at
		FROM messages m
		JOIN channels c ON c.id = m.channel_id
		WHERE m.tenant_id = ? AND c.indexed = 1 AND m.deleted = 0
			AND m.vector_point_id IS NOT NULL AND m.updated_at > m.indexed_at
		ORDER BY m.updated_at ASC
		LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, apperror.Upstream("store.FindStale", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// FindUnbound returns indexed-channel messages with no vector_point_id yet.
func (s *Store) FindUnbound(ctx context.Context, tenantID int64, limit int) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.tenant_id, m.channel_id, m.author_id, m.content, m.authored_at,
			m.reply_to_id, m.attachment_count, m.embed_count, m.mention_count, m.from_bot,
			m.deleted, m.deleted_at, m.vector_point_id, m.indexed_at, m.updated_at
		FROM messages m
		JOIN channels c ON c.id = m.channel_id
		WHERE m.tenant_id = ? AND c.indexed = 1 AND m.deleted = 0 AND m.vector_point_id IS NULL
		ORDER BY m.authored_at ASC
		LIMIT ?`, tenantID, limit)
	if err != nil {
		return nil, apperror.Upstream("store.FindUnbound", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// SyncHealth is the four-counter report of §4.1.
type SyncHealth struct {
	Total   int     `json:"total"`
	Bound   int     `json:"bound"`
	Unbound int     `json:"unbound"`
	Stale   int     `json:"stale"`
	Tier    string  `json:"tier"`
	Ratio   float64 `json:"bound_ratio"`
}

// SyncHealth computes the four-counter report over indexed channels only.
func (s *Store) SyncHealth(ctx context.Context, tenantID int64) (SyncHealth, error) {
	var health SyncHealth
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) AS total,
			SUM(CASE WHEN m.vector_point_id IS NOT NULL AND m.updated_at <= m.indexed_at THEN 1 ELSE 0 END) AS bound,
			SUM(CASE WHEN m.vector_point_id IS NULL THEN 1 ELSE 0 END) AS unbound,
			SUM(CASE WHEN m.vector_point_id IS NOT NULL AND m.updated_at > m.indexed_at THEN 1 ELSE 0 END) AS stale
		FROM messages m
		JOIN channels c ON c.id = m.channel_id
		WHERE m.tenant_id = ? AND c.indexed = 1 AND m.deleted = 0`, tenantID)

	if err := row.Scan(&health.Total, &health.Bound, &health.Unbound, &health.Stale); err != nil {
		return health, apperror.Upstream("store.SyncHealth", err)
	}

	if health.Total == 0 {
		health.Tier = "healthy"
		health.Ratio = 1.0
		return health, nil
	}

	health.Ratio = float64(health.Bound) / float64(health.Total)
	switch {
	case health.Ratio >= 0.95:
		health.Tier = "healthy"
	case health.Ratio >= 0.80:
		health.Tier = "degraded"
	default:
		health.Tier = "critical"
	}
	return health, nil
}

// ResetVectorBindingsMode selects which rows reset_vector_bindings clears.
type ResetVectorBindingsMode string

const (
	ResetStaleOnly ResetVectorBindingsMode = "stale_only"
	ResetAll       ResetVectorBindingsMode = "all"
)

// ResetVectorBindings clears vector_point_id/indexed_at so the indexer will
// re-process the affected rows (R3: sync-health converges to ≥ previous
// bound count afterward).
func (s *Store) ResetVectorBindings(ctx context.Context, tenantID int64, mode ResetVectorBindingsMode) error {
	query := `UPDATE messages SET vector_point_id = NULL, indexed_at = NULL
		WHERE tenant_id = ? AND vector_point_id IS NOT NULL`
	if mode == ResetStaleOnly {
		query += ` AND updated_at > indexed_at`
	}
	if _, err := s.db.ExecContext(ctx, query, tenantID); err != nil {
		return apperror.Upstream("store.ResetVectorBindings", err)
	}
	return nil
}

func (s *Store) appendAuditLocked(ctx context.Context, tx *sql.Tx, tenantID int64, eventType, detail string, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (tenant_id, event_type, detail, created_at) VALUES (?, ?, ?, ?)`,
		tenantID, eventType, detail, at,
	)
	if err != nil {
		return apperror.Upstream("store.appendAudit", err)
	}
	return nil
}

func scanMessages(rows *sql.Rows) ([]model.Message, error) {
	var out []model.Message
	for rows.Next() {
		var m model.Message
		var replyTo sql.NullInt64
		var deletedAt, indexedAt sql.NullTime
		var vectorPointID sql.NullString
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ChannelID, &m.AuthorID, &m.Content, &m.AuthoredAt,
			&replyTo, &m.AttachmentCount, &m.EmbedCount, &m.MentionCount, &m.FromBot,
			&m.Deleted, &deletedAt, &vectorPointID, &indexedAt, &m.UpdatedAt); err != nil {
			return nil, apperror.Upstream("store.scanMessages", err)
		}
		if replyTo.Valid {
			v := replyTo.Int64
			m.ReplyToID = &v
		}
		if deletedAt.Valid {
			v := deletedAt.Time
			m.DeletedAt = &v
		}
		if indexedAt.Valid {
			v := indexedAt.Time
			m.IndexedAt = &v
		}
		if vectorPointID.Valid {
			v := vectorPointID.String
			m.VectorPointID = &v
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullableID(id *int64) any {
	if id == nil {
		return nil
	}
	return *id
}
