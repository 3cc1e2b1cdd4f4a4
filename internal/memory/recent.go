// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package memory

import (
	"fmt"
	"strings"

	"github.com/northbound/cil/internal/model"
)

// FormatRecentMessages renders store-fetched messages as LLM context,
// matching format_recent_messages_as_context's [HH:MM] author: content
// shape — used as a short-term-memory fallback so recency questions don't
// require a vector search round trip.
func FormatRecentMessages(messages []model.Message) string {
	if len(messages) == 0 {
		return ""
	}
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", msg.AuthoredAt.Format("15:04"), msg.AuthorName, msg.Content))
	}
	return strings.Join(lines, "\n")
}

// SearchRecentMessages filters messages by substring match, case-insensitive
// unless caseSensitive is set.
func SearchRecentMessages(messages []model.Message, query string, caseSensitive bool) []model.Message {
	if !caseSensitive {
		query = strings.ToLower(query)
	}
	var matches []model.Message
	for _, msg := range messages {
		content := msg.Content
		if !caseSensitive {
			content = strings.ToLower(content)
		}
		if strings.Contains(content, query) {
			matches = append(matches, msg)
		}
	}
	return matches
}
