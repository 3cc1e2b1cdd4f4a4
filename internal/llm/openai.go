// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const chatCompletionsURL = "https://api.openai.com/v1/chat/completions"

// OpenAIClient is a hand-rolled HTTP client over the Chat Completions API,
// continuing the teacher's own no-SDK approach (internal/ai/question.go).
type OpenAIClient struct {
	apiKey string
	model  string
	client *http.Client
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &OpenAIClient{apiKey: apiKey, model: model, client: &http.Client{Timeout: 60 * time.Second}}
}

type chatRequest struct {
	Model       string              `json:"model"`
	Messages    []openAIChatMessage `json:"messages"`
	Temperature float64             `json:"temperature,omitempty"`
}

type openAIChatMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
}

func (c *OpenAIClient) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, *Usage, error) {
	messages := []openAIChatMessage{{Role: "user", Content: userPrompt}}
	if systemPrompt != "" {
		messages = append([]openAIChatMessage{{Role: "system", Content: systemPrompt}}, messages...)
	}
	return c.complete(ctx, messages)
}

func (c *OpenAIClient) GenerateWithHistory(ctx context.Context, systemPrompt string, history []ChatMessage, userPrompt string) (string, *Usage, error) {
	var messages []openAIChatMessage
	if systemPrompt != "" {
		messages = append(messages, openAIChatMessage{Role: "system", Content: systemPrompt})
	}
	for _, h := range history {
		messages = append(messages, openAIChatMessage{Role: h.Role, Content: h.Content})
	}
	messages = append(messages, openAIChatMessage{Role: "user", Content: userPrompt})
	return c.complete(ctx, messages)
}

// Caption describes an image via a vision-capable chat completion,
// sending the image as a base64 data URL in a multi-part content array.
func (c *OpenAIClient) Caption(ctx context.Context, imageBytes []byte, mime string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(imageBytes)
	dataURL := fmt.Sprintf("data:%s;base64,%s", mime, encoded)

	content := []map[string]interface{}{
		{"type": "text", "text": "Describe this image concisely for search indexing."},
		{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
	}
	messages := []openAIChatMessage{{Role: "user", Content: content}}

	text, _, err := c.complete(ctx, messages)
	return text, err
}

func (c *OpenAIClient) complete(ctx context.Context, messages []openAIChatMessage) (string, *Usage, error) {
	if c.apiKey == "" {
		return "", nil, fmt.Errorf("openai api key not configured")
	}

	payload := chatRequest{Model: c.model, Messages: messages, Temperature: 0.3}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", nil, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, chatCompletionsURL, bytes.NewReader(body))
	if err != nil {
		return "", nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return "", nil, fmt.Errorf("openai api error (status %d): %s", resp.StatusCode, string(msg))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", nil, fmt.Errorf("decode chat response: %w", err)
	}
	if len(result.Choices) == 0 {
		return "", nil, fmt.Errorf("no response from openai")
	}

	usage := &Usage{
		Model:        result.Model,
		InputTokens:  result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
	}
	return strings.TrimSpace(result.Choices[0].Message.Content), usage, nil
}
