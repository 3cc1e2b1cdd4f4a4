// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Reranker grades retrieval candidates against a query using an LLM,
// implementing vectordb.Reranker without internal/vectordb importing this
// package (the capability-variant boundary runs the other way: llm
// depends on nothing here, vectordb only depends on the interface shape).
type Reranker struct {
	client Client
}

func NewReranker(client Client) *Reranker {
	return &Reranker{client: client}
}

// Score asks the model to grade each candidate's relevance to query on a
// 0-1 scale and returns the parsed scores. A candidate the response omits
// has no entry in the result; a response that does not parse as a JSON
// object of numeric scores fails the whole call.
func (r *Reranker) Score(ctx context.Context, query string, candidates map[string]string) (map[string]float64, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	var builder strings.Builder
	ids := make([]string, 0, len(candidates))
	for id, text := range candidates {
		ids = append(ids, id)
		fmt.Fprintf(&builder, "[%s] %s\n", id, truncateForPrompt(text, 500))
	}

	systemPrompt := "You grade how relevant each passage is to a query on a 0.0-1.0 scale. Respond with ONLY a JSON object mapping passage id to score, nothing else."
	userPrompt := fmt.Sprintf("Query: %s\n\nPassages:\n%s", query, builder.String())

	response, _, err := r.client.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}

	var scores map[string]float64
	if err := json.Unmarshal([]byte(extractJSONObject(response)), &scores); err != nil {
		return nil, fmt.Errorf("parse rerank scores: %w", err)
	}
	return scores, nil
}

func truncateForPrompt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "{}"
	}
	return s[start : end+1]
}
