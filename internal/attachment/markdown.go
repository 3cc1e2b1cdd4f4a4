// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package attachment

import (
	"regexp"
	"strings"

	"github.com/northbound/cil/internal/model"
)

var headingPattern = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// ExtractMarkdown chunks a markdown document by heading sections, tagging
// each chunk with the nearest enclosing heading as HeadingContext (§4.4.6).
// A section still larger than chunkSize is recursively split the same way
// plain text is, so no chunk exceeds the shared size budget.
func ExtractMarkdown(raw []byte) ([]model.DocumentChunk, error) {
	text := decode(raw)

	locs := headingPattern.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		pieces := chunkRecursive(text, chunkSize, chunkOverlap)
		chunks := make([]model.DocumentChunk, 0, len(pieces))
		for i, p := range pieces {
			chunks = append(chunks, model.DocumentChunk{ChunkIndex: i, Text: p, Kind: model.ChunkText})
		}
		return chunks, nil
	}

	var chunks []model.DocumentChunk
	for i, loc := range locs {
		heading := strings.TrimSpace(text[loc[4]:loc[5]])
		sectionStart := loc[1]
		sectionEnd := len(text)
		if i+1 < len(locs) {
			sectionEnd = locs[i+1][0]
		}
		body := strings.TrimSpace(text[sectionStart:sectionEnd])
		if body == "" {
			continue
		}

		headingChunk := model.DocumentChunk{ChunkIndex: len(chunks), Text: heading, Kind: model.ChunkHeader, HeadingContext: heading}
		chunks = append(chunks, headingChunk)

		for _, p := range chunkRecursive(body, chunkSize, chunkOverlap) {
			chunks = append(chunks, model.DocumentChunk{
				ChunkIndex:     len(chunks),
				Text:           p,
				Kind:           model.ChunkParagraph,
				HeadingContext: heading,
			})
		}
	}
	return chunks, nil
}
