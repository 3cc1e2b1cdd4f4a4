// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package attachment

import (
	"strings"
	"unicode/utf8"

	"github.com/northbound/cil/internal/model"
)

const (
	chunkSize    = 1000
	chunkOverlap = 200
)

// ExtractText decodes a plain-text attachment (UTF-8, falling back to
// latin-1 when the bytes are not valid UTF-8) and recursively chunks it
// paragraph-by-paragraph, then sentence-by-sentence, then by raw character
// count as a last resort — generalizing the teacher's single
// sentence-boundary chunker (internal/processor/chunker.go) into the
// recursive splitter named in §4.4.6.
func ExtractText(raw []byte) ([]model.DocumentChunk, error) {
	text := decode(raw)
	pieces := chunkRecursive(text, chunkSize, chunkOverlap)

	chunks := make([]model.DocumentChunk, 0, len(pieces))
	for i, p := range pieces {
		chunks = append(chunks, model.DocumentChunk{ChunkIndex: i, Text: p, Kind: model.ChunkText})
	}
	return chunks, nil
}

func decode(raw []byte) string {
	if utf8.Valid(raw) {
		return string(raw)
	}
	// latin-1: every byte maps 1:1 to the matching Unicode code point.
	runes := make([]rune, len(raw))
	for i, b := range raw {
		runes[i] = rune(b)
	}
	return string(runes)
}

// chunkRecursive tries paragraph breaks first, then sentence boundaries,
// then falls back to a hard character cut — each level only engaged when
// the level above it leaves a piece still larger than size.
func chunkRecursive(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}

	paragraphs := splitKeepingOverlap(text, "\n\n", size, overlap)
	var out []string
	for _, p := range paragraphs {
		if len(p) <= size {
			out = append(out, p)
			continue
		}
		sentences := splitKeepingOverlap(p, ". ", size, overlap)
		for _, s := range sentences {
			if len(s) <= size {
				out = append(out, s)
				continue
			}
			out = append(out, hardSplit(s, size, overlap)...)
		}
	}
	return out
}

// splitKeepingOverlap joins units back together up to size, carrying
// overlap characters of trailing context into the next chunk.
func splitKeepingOverlap(text, sep string, size, overlap int) []string {
	units := strings.Split(text, sep)
	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() == 0 {
			return
		}
		chunks = append(chunks, strings.TrimSpace(current.String()))
	}

	for _, u := range units {
		candidate := u
		if current.Len() > 0 {
			candidate = sep
		}
		if current.Len()+len(candidate)+len(u) > size && current.Len() > 0 {
			flush()
			tail := current.String()
			current.Reset()
			if overlap > 0 && len(tail) > overlap {
				current.WriteString(tail[len(tail)-overlap:])
			}
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(u)
	}
	flush()
	return chunks
}

func hardSplit(text string, size, overlap int) []string {
	var chunks []string
	start := 0
	for start < len(text) {
		end := start + size
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, text[start:end])
		if end >= len(text) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}
