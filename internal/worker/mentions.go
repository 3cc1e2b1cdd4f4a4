// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package worker

import (
	"regexp"
	"strconv"
)

var (
	userMentionRE = regexp.MustCompile(`<@!?(\d+)>`)
	roleMentionRE = regexp.MustCompile(`<@&\d+>`)
	chanMentionRE = regexp.MustCompile(`<#\d+>`)
)

// resolveMentions rewrites platform mention tokens into readable text for
// the embedded representation, grounded on enrichment_service.py's
// clean_discord_mentions: user mentions resolve to a display name via
// names, role and channel mentions collapse to a generic placeholder since
// the corpus has no role/channel-name lookup wired at index time.
func resolveMentions(content string, names map[int64]string) string {
	content = userMentionRE.ReplaceAllStringFunc(content, func(tok string) string {
		m := userMentionRE.FindStringSubmatch(tok)
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			return tok
		}
		if name, ok := names[id]; ok {
			return "@" + name
		}
		return "@user" + m[1]
	})
	content = roleMentionRE.ReplaceAllString(content, "@role")
	content = chanMentionRE.ReplaceAllString(content, "#channel")
	return content
}
