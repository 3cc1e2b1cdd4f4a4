// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OpenAIEmbedder calls OpenAI's embeddings API directly over HTTP, kept in
// the teacher's hand-rolled-client style (no OpenAI SDK appears anywhere in
// the example pack).
type OpenAIEmbedder struct {
	apiKey string
	model  string
	client *http.Client
	dim    int
}

func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	dim := 1536
	switch model {
	case "text-embedding-3-large":
		dim = 3072
	case "text-embedding-ada-002":
		dim = 1536
	}
	return &OpenAIEmbedder{apiKey: apiKey, model: model, client: &http.Client{Timeout: 30 * time.Second}, dim: dim}
}

func (e *OpenAIEmbedder) Dimension() int { return e.dim }

func (e *OpenAIEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *OpenAIEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	payload := struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}{Input: texts, Model: e.model}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding api error (status %d): %s", resp.StatusCode, string(msg))
	}

	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(out.Data))
	}

	result := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		result[i] = make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			result[i][j] = float32(v)
		}
	}
	return result, nil
}
