// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package embeddings implements the TextEmbedder capability variant of
// Design Note §9: a small interface with a handful of concrete
// implementations chosen once by a factory, never by reflection.
package embeddings

import (
	"context"
	"fmt"
)

// TextEmbedder generates dense vector embeddings from text.
type TextEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Config configures embedder construction.
type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	Dimension int
}

// New dispatches to a concrete TextEmbedder by kind, grounded on the
// teacher's internal/embeddings/embeddings.go factory.
func New(kind string, cfg Config) (TextEmbedder, error) {
	switch kind {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai embedder: api key is required")
		}
		model := cfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		return NewOpenAIEmbedder(cfg.APIKey, model), nil
	case "ollama":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaEmbedder(baseURL, model), nil
	case "mock", "":
		dim := cfg.Dimension
		if dim == 0 {
			dim = 384
		}
		return NewMockEmbedder(dim), nil
	default:
		return nil, fmt.Errorf("unknown embedder kind: %s", kind)
	}
}
