// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package attachment

import (
	"fmt"
	"strings"

	"github.com/gen2brain/go-fitz"

	"github.com/northbound/cil/internal/model"
)

// ExtractPDF pulls text page by page via go-fitz (MuPDF), matching the
// teacher's internal/parser/pdf.go, but keeps a DocumentChunk per page
// instead of flattening to one string so page provenance survives into
// the vector payload.
func ExtractPDF(path string) ([]model.DocumentChunk, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	var chunks []model.DocumentChunk
	numPages := doc.NumPage()
	for i := 0; i < numPages; i++ {
		pageText, err := doc.Text(i)
		if err != nil {
			continue // skip unreadable pages, keep the rest
		}
		pageText = strings.TrimSpace(pageText)
		if pageText == "" {
			continue
		}
		chunks = append(chunks, model.DocumentChunk{
			ChunkIndex:     len(chunks),
			Text:           pageText,
			Kind:           model.ChunkParagraph,
			HeadingContext: fmt.Sprintf("page %d", i+1),
		})
	}

	if len(chunks) == 0 {
		return nil, fmt.Errorf("no text extracted from pdf: %s", path)
	}
	return chunks, nil
}
