// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package attachment

import (
	"context"

	"github.com/northbound/cil/internal/model"
)

// Captioner describes an image to text, backed by a vision-capable LLM
// (internal/llm). Kept as an interface here so the attachment pipeline
// does not import the LLM package directly — the same capability-variant
// boundary used for vectordb.Reranker.
type Captioner interface {
	Caption(ctx context.Context, imageBytes []byte, mime string) (string, error)
}

// ExtractImage produces a single image_caption chunk describing the
// attachment, per §4.4.6's whitelist entry for image kinds.
func ExtractImage(ctx context.Context, captioner Captioner, imageBytes []byte, mime string) ([]model.DocumentChunk, error) {
	caption, err := captioner.Caption(ctx, imageBytes, mime)
	if err != nil {
		return nil, err
	}
	return []model.DocumentChunk{
		{ChunkIndex: 0, Text: caption, Kind: model.ChunkImageCaption},
	}, nil
}
