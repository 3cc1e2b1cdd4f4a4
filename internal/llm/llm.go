// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package llm implements the capability-variant LLM client (Design Note
// §9): a small interface plus a factory function switching on a provider
// enum, grounded on the teacher's internal/ai hand-rolled OpenAI HTTP
// client (no OpenAI SDK appears anywhere in the example pack).
package llm

import (
	"context"
	"fmt"
)

// Usage reports token accounting for one completion call.
type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
}

// ChatMessage is one turn in a conversation sent to the model.
type ChatMessage struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Client is the capability surface the Answer Router and attachment
// pipeline depend on.
type Client interface {
	// Generate produces a completion for a single prompt under an optional
	// system instruction.
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error)
	// GenerateWithHistory continues a conversation, prepending prior
	// exchanges as context. The router's dispatch paths call Generate, not
	// this method.
	GenerateWithHistory(ctx context.Context, systemPrompt string, history []ChatMessage, userPrompt string) (string, *Usage, error)
}

// VisionClient extends Client with image captioning, used by the
// attachment pipeline's image source type.
type VisionClient interface {
	Client
	Caption(ctx context.Context, imageBytes []byte, mime string) (string, error)
}

// Config configures a provider-backed client.
type Config struct {
	APIKey string
	Model  string
}

// New is the capability-variant factory: it switches on a provider enum
// and returns the matching Client, never a reflection-based registry
// (Design Note §9).
func New(provider string, cfg Config) (Client, error) {
	switch provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", provider)
	}
}

// NewVision is the vision-capable counterpart of New.
func NewVision(provider string, cfg Config) (VisionClient, error) {
	switch provider {
	case "openai":
		return NewOpenAIClient(cfg.APIKey, cfg.Model), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown vision provider: %q", provider)
	}
}
