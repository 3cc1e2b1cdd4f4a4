// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llm

import "context"

// MockClient answers deterministically without calling any provider, for
// development and tests (the "mock" llm_provider option of §6).
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (m *MockClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error) {
	return "mock response to: " + userPrompt, &Usage{Model: "mock"}, nil
}

func (m *MockClient) GenerateWithHistory(ctx context.Context, systemPrompt string, history []ChatMessage, userPrompt string) (string, *Usage, error) {
	return "mock response to: " + userPrompt, &Usage{Model: "mock"}, nil
}

func (m *MockClient) Caption(ctx context.Context, imageBytes []byte, mime string) (string, error) {
	return "a mock image description", nil
}
