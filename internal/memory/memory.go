// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package memory implements per-channel short-term conversation memory
// (§4.6), a direct port of conversation_memory.py's ConversationMemory /
// ConversationSession pair, generalized from Python's defaultdict-backed
// single-threaded store into a mutex-guarded Go map since multiple workers
// can touch the same channel concurrently.
package memory

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	maxExchanges   = 20
	expiryTimeout  = 30 * time.Minute
	defaultContext = 10
)

// Role distinguishes the speaker of a remembered exchange.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Exchange is a single turn in a channel's conversation.
type Exchange struct {
	Role       Role
	Content    string
	AuthorName string
	Timestamp  time.Time
}

type session struct {
	exchanges    []Exchange
	lastActivity time.Time
}

func (s *session) add(role Role, content, authorName string) {
	s.exchanges = append(s.exchanges, Exchange{Role: role, Content: content, AuthorName: authorName, Timestamp: time.Now()})
	s.lastActivity = time.Now()
	if len(s.exchanges) > maxExchanges {
		s.exchanges = s.exchanges[len(s.exchanges)-maxExchanges:]
	}
}

func (s *session) expired() bool {
	return time.Since(s.lastActivity) > expiryTimeout
}

func (s *session) context(maxMessages int) string {
	if len(s.exchanges) == 0 {
		return ""
	}
	recent := s.exchanges
	if len(recent) > maxMessages {
		recent = recent[len(recent)-maxMessages:]
	}
	lines := make([]string, 0, len(recent))
	for _, e := range recent {
		prefix := "Assistant"
		if e.Role == RoleUser {
			prefix = e.AuthorName
			if prefix == "" {
				prefix = "User"
			}
		}
		lines = append(lines, fmt.Sprintf("%s: %s", prefix, e.Content))
	}
	return strings.Join(lines, "\n")
}

// Memory is the single mutex-guarded entry point for all channel
// conversation state, per Design Note §9's "one map, one mutex" pattern.
type Memory struct {
	mu       sync.Mutex
	sessions map[int64]*session
}

func New() *Memory {
	return &Memory{sessions: make(map[int64]*session)}
}

func (m *Memory) AddUserMessage(channelID int64, content, authorName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupExpiredLocked()
	m.sessionForLocked(channelID).add(RoleUser, content, authorName)
}

func (m *Memory) AddAssistantMessage(channelID int64, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanupExpiredLocked()
	m.sessionForLocked(channelID).add(RoleAssistant, content, "Assistant")
}

// GetContext returns formatted recent conversation for a channel, or "" if
// there is no session or it has expired (and is evicted as a side effect).
func (m *Memory) GetContext(channelID int64, maxMessages int) string {
	if maxMessages <= 0 {
		maxMessages = defaultContext
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[channelID]
	if !ok {
		return ""
	}
	if s.expired() {
		delete(m.sessions, channelID)
		return ""
	}
	return s.context(maxMessages)
}

func (m *Memory) ClearChannel(channelID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, channelID)
}

func (m *Memory) sessionForLocked(channelID int64) *session {
	s, ok := m.sessions[channelID]
	if !ok {
		s = &session{lastActivity: time.Now()}
		m.sessions[channelID] = s
	}
	return s
}

func (m *Memory) cleanupExpiredLocked() {
	for id, s := range m.sessions {
		if s.expired() {
			delete(m.sessions, id)
		}
	}
}
