// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package router implements the Answer Router (C5): input defense, intent
// classification, the six dispatch strategies, and the uniform answer
// shape returned to every caller. Grounded on
// original_source/apps/api/src/agents/router.py for the pattern tables and
// classification order, and on the teacher's internal/server handler shape
// (dependencies injected via a constructor, request struct in, response
// struct out) for how the dispatch is wired together.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/northbound/cil/internal/apperror"
	"github.com/northbound/cil/internal/llm"
	"github.com/northbound/cil/internal/logger"
	"github.com/northbound/cil/internal/memory"
	"github.com/northbound/cil/internal/security"
	"github.com/northbound/cil/internal/store"
	"github.com/northbound/cil/internal/thematic"
	"github.com/northbound/cil/internal/vectordb"
	"github.com/northbound/cil/internal/websearch"
)

const refusalMessage = "I can't help with that request."

// Source is one citation backing an answer, shape varying by routed_to.
type Source struct {
	Kind       string  `json:"kind"`
	Title      string  `json:"title,omitempty"`
	Excerpt    string  `json:"excerpt,omitempty"`
	URL        string  `json:"url,omitempty"`
	ChannelID  int64   `json:"channel_id,omitempty"`
	AuthorName string  `json:"author_name,omitempty"`
	Score      float64 `json:"score,omitempty"`
}

// Answer is the uniform shape of §4.5.3 populated by every dispatch path.
type Answer struct {
	Answer    string   `json:"answer"`
	Sources   []Source `json:"sources"`
	RoutedTo  string   `json:"routed_to"`
	ElapsedMs int64    `json:"elapsed_ms"`
}

// AskRequest is the caller-facing query for Router.Ask.
type AskRequest struct {
	TenantID   int64
	Query      string
	ChannelIDs []int64
	// Hybrid forces the combined vector+web dispatch of §4.5.3, bypassing
	// classification entirely (the HYBRID intent is never produced by the
	// classifier itself).
	Hybrid bool
}

// Router wires together every subsystem the Answer Router dispatches into.
type Router struct {
	Store     *store.Store
	Retriever *vectordb.Retriever
	LLM       llm.Client
	Search    websearch.Searcher
	Memory    *memory.Memory

	// ThematicCacheDir locates the per-tenant topic-cluster cache consulted
	// by GRAPH_RAG dispatch (§4.5.5); it is never rebuilt from a live request.
	ThematicCacheDir string

	// AugmentGeneralKnowledge enables GENERAL_KNOWLEDGE's optional
	// web-search augmentation (§4.5.3).
	AugmentGeneralKnowledge bool
}

func New(st *store.Store, retriever *vectordb.Retriever, llmClient llm.Client, searcher websearch.Searcher, mem *memory.Memory, thematicCacheDir string) *Router {
	return &Router{
		Store:            st,
		Retriever:        retriever,
		LLM:              llmClient,
		Search:           searcher,
		Memory:           mem,
		ThematicCacheDir: thematicCacheDir,
	}
}

// Ask runs the full input-defense -> classify -> dispatch -> output-validate
// pipeline and always returns a populated Answer, never a bare error, for
// any failure the taxonomy classifies as user-facing (security refusals,
// upstream unavailability get turned into a degraded answer instead of
// propagating — see §7's "no raw adapter errors cross the Answer Router
// boundary").
func (r *Router) Ask(ctx context.Context, req AskRequest) (*Answer, error) {
	start := time.Now()

	check := security.DetectPromptInjection(req.Query)
	if !check.IsSafe {
		logger.SecurityEvent("prompt_injection", "tenant=%d risk=%d patterns=%v", req.TenantID, check.RiskScore, check.BlockedPatterns)
		return &Answer{Answer: refusalMessage, RoutedTo: "BLOCKED", ElapsedMs: elapsedMs(start)}, nil
	}
	query := check.SanitizedInput

	var channelID int64
	if len(req.ChannelIDs) > 0 {
		channelID = req.ChannelIDs[0]
	}
	if r.Memory != nil && channelID != 0 {
		r.Memory.AddUserMessage(channelID, query, "")
	}

	intent := IntentHybrid
	if !req.Hybrid {
		intent = ClassifyIntent(ctx, r.LLM, query)
	}

	var (
		answerText string
		sources    []Source
		err        error
	)
	switch intent {
	case IntentAnalyticsDB:
		answerText, sources, err = r.dispatchAnalyticsDB(ctx, req.TenantID, query)
	case IntentVectorRAG:
		answerText, sources, err = r.dispatchVectorRAG(ctx, req.TenantID, channelID, req.ChannelIDs, query)
	case IntentGraphRAG:
		answerText, sources, err = r.dispatchGraphRAG(ctx, req.TenantID, query)
	case IntentWebSearch:
		answerText, sources, err = r.dispatchWebSearch(ctx, query)
	case IntentHybrid:
		answerText, sources, err = r.dispatchHybrid(ctx, req.TenantID, req.ChannelIDs, query)
	default:
		answerText, sources, err = r.dispatchGeneralKnowledge(ctx, req.TenantID, query)
	}
	if err != nil {
		if apperror.KindOf(err) == apperror.KindSecurity {
			logger.SecurityEvent("sql_guard_rejected", "tenant=%d err=%v", req.TenantID, err)
			return &Answer{Answer: refusalMessage, RoutedTo: "BLOCKED", ElapsedMs: elapsedMs(start)}, nil
		}
		return &Answer{
			Answer:    fmt.Sprintf("I couldn't complete that request (%s is temporarily unavailable).", strings.ToLower(string(intent))),
			RoutedTo:  string(intent),
			ElapsedMs: elapsedMs(start),
		}, nil
	}

	ok, validated := security.ValidateOutput(answerText)
	if !ok {
		logger.SecurityEvent("output_leak_blocked", "tenant=%d routed_to=%s", req.TenantID, intent)
	}

	if r.Memory != nil && channelID != 0 {
		r.Memory.AddAssistantMessage(channelID, validated)
	}

	return &Answer{
		Answer:    validated,
		Sources:   sources,
		RoutedTo:  string(intent),
		ElapsedMs: elapsedMs(start),
	}, nil
}

// dmChannelKey maps a direct-message user id into the same channel-keyed
// memory space used by guild conversations, without colliding with a real
// platform channel snowflake (those are always positive).
func dmChannelKey(userID int64) int64 { return -userID }

// Chat serves POST /chat: a direct-message conversation carried by the
// same per-channel short-term memory as guild answers, keyed on the DM
// user rather than a channel. Input defense and output validation run
// exactly as in Ask; there is no intent classification since a DM has no
// channel context to ground ANALYTICS_DB/VECTOR_RAG/GRAPH_RAG dispatch.
func (r *Router) Chat(ctx context.Context, tenantID, userID int64, message string) (*Answer, error) {
	start := time.Now()

	check := security.DetectPromptInjection(message)
	if !check.IsSafe {
		logger.SecurityEvent("prompt_injection", "user=%d risk=%d patterns=%v", userID, check.RiskScore, check.BlockedPatterns)
		return &Answer{Answer: refusalMessage, RoutedTo: "BLOCKED", ElapsedMs: elapsedMs(start)}, nil
	}
	message = check.SanitizedInput

	key := dmChannelKey(userID)
	var history string
	if r.Memory != nil {
		history = r.Memory.GetContext(key, 10)
		r.Memory.AddUserMessage(key, message, "")
	}

	directive, _ := r.personalityDirective(ctx, tenantID)
	systemPrompt := fmt.Sprintf("You are a helpful assistant in a direct message conversation.%s", directive)
	if history != "" {
		systemPrompt += "\n\nConversation so far:\n" + history
	}

	answer, err := r.generate(ctx, systemPrompt, message)
	if err != nil {
		return &Answer{
			Answer:    "I couldn't complete that request (chat is temporarily unavailable).",
			RoutedTo:  "CHAT",
			ElapsedMs: elapsedMs(start),
		}, nil
	}

	ok, validated := security.ValidateOutput(answer)
	if !ok {
		logger.SecurityEvent("output_leak_blocked", "user=%d routed_to=CHAT", userID)
	}
	if r.Memory != nil {
		r.Memory.AddAssistantMessage(key, validated)
	}

	return &Answer{Answer: validated, RoutedTo: "CHAT", ElapsedMs: elapsedMs(start)}, nil
}

func elapsedMs(start time.Time) int64 { return time.Since(start).Milliseconds() }

// dispatchAnalyticsDB translates the question to SQL, guards and executes
// it, and formats the result, per §4.5.3.
func (r *Router) dispatchAnalyticsDB(ctx context.Context, tenantID int64, query string) (string, []Source, error) {
	guarded, formatted, err := runAnalyticsQuery(ctx, r.LLM, r.Store, tenantID, query)
	if err != nil {
		return "", nil, err
	}
	return formatted, []Source{{Kind: "sql", Title: "Generated query", Excerpt: guarded}}, nil
}

// dispatchVectorRAG fetches short-term channel memory, runs hybrid
// retrieval, and composes an LLM prompt with recent messages first,
// retrieved context second, per §4.5.3.
func (r *Router) dispatchVectorRAG(ctx context.Context, tenantID, primaryChannelID int64, channelIDs []int64, query string) (string, []Source, error) {
	var recentBlock string
	if r.Store != nil && primaryChannelID != 0 {
		recent, err := r.Store.GetRecentChannelMessages(ctx, tenantID, primaryChannelID, 30)
		if err == nil {
			recentBlock = memory.FormatRecentMessages(recent)
		}
	}

	var sources []Source
	var retrievedBlock string
	if r.Retriever != nil {
		results, err := r.Retriever.Search(ctx, vectordb.SearchRequest{
			TenantID:   tenantID,
			ChannelIDs: channelIDs,
			Query:      query,
			Limit:      8,
			Rerank:     true,
		})
		if err != nil {
			return "", nil, err
		}
		var b strings.Builder
		for _, res := range results {
			content, _ := res.Payload["content"].(string)
			author, _ := res.Payload["author_name"].(string)
			channelID, _ := res.Payload["channel_id"].(int64)
			if content == "" {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s\n", author, content)
			sources = append(sources, Source{Kind: "vector", Title: author, Excerpt: content, ChannelID: channelID, AuthorName: author, Score: res.FinalScore})
		}
		retrievedBlock = b.String()
	}

	directive, _ := r.personalityDirective(ctx, tenantID)
	systemPrompt := "You answer questions about a chat community's message history using only the provided context. If the context doesn't contain the answer, say so plainly." + directive
	userPrompt := fmt.Sprintf("Recent messages:\n%s\n\nRelevant history:\n%s\n\nQuestion: %s", orNone(recentBlock), orNone(retrievedBlock), query)

	answer, err := r.generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", nil, err
	}
	return answer, sources, nil
}

// dispatchGraphRAG grounds a synthesized answer in the tenant's cached
// topic clusters, per §4.5.5.
func (r *Router) dispatchGraphRAG(ctx context.Context, tenantID int64, query string) (string, []Source, error) {
	analyzer := thematic.NewAnalyzer(tenantID, r.ThematicCacheDir)
	clusters, err := analyzer.Load()
	if err != nil {
		return "", nil, err
	}
	if len(clusters) == 0 {
		return "I don't have a topic analysis for this community yet.", nil, nil
	}

	summary := thematic.Summary(clusters)
	var sources []Source
	for _, c := range clusters {
		sources = append(sources, Source{Kind: "topic", Title: strings.Join(c.TopTerms, ", "), Excerpt: strings.Join(c.SampleMessages, " / ")})
	}

	directive, _ := r.personalityDirective(ctx, tenantID)
	systemPrompt := "You summarize the broad themes and topics a community discusses, grounded strictly in the clusters provided." + directive
	userPrompt := fmt.Sprintf("Topic clusters:\n%s\n\nQuestion: %s", summary, query)

	answer, err := r.generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", nil, err
	}
	return answer, sources, nil
}

// dispatchWebSearch calls the external search adapter and synthesizes via
// LLM, falling back to a formatted list when the LLM is unavailable, per
// §4.5.3's degraded path.
func (r *Router) dispatchWebSearch(ctx context.Context, query string) (string, []Source, error) {
	if r.Search == nil {
		return "", nil, apperror.Upstream("router.dispatchWebSearch", fmt.Errorf("no web search adapter configured"))
	}
	results, err := r.Search.Search(ctx, query, 5)
	if err != nil {
		return "", nil, err
	}

	sources := make([]Source, 0, len(results))
	for _, res := range results {
		sources = append(sources, Source{Kind: "web", Title: res.Title, Excerpt: res.Snippet, URL: res.URL})
	}

	if r.LLM == nil {
		return websearch.FormatAsSourceList(results), sources, nil
	}

	systemPrompt := "You answer questions using the provided web search results. Cite sources by title inline."
	userPrompt := fmt.Sprintf("Search results:\n%s\n\nQuestion: %s", websearch.FormatAsSourceList(results), query)
	answer, err := r.generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return websearch.FormatAsSourceList(results), sources, nil
	}
	return answer, sources, nil
}

// dispatchGeneralKnowledge answers directly from the model's own knowledge,
// optionally augmented with web search, per §4.5.3.
func (r *Router) dispatchGeneralKnowledge(ctx context.Context, tenantID int64, query string) (string, []Source, error) {
	directive, _ := r.personalityDirective(ctx, tenantID)
	systemPrompt := fmt.Sprintf("You are a helpful assistant. The current time is %s.%s", time.Now().UTC().Format(time.RFC3339), directive)

	var sources []Source
	if r.AugmentGeneralKnowledge && r.Search != nil {
		if results, err := r.Search.Search(ctx, query, 3); err == nil && len(results) > 0 {
			systemPrompt += "\n\nYou may use these supplementary web results if relevant:\n" + websearch.FormatAsSourceList(results)
			for _, res := range results {
				sources = append(sources, Source{Kind: "web", Title: res.Title, Excerpt: res.Snippet, URL: res.URL})
			}
		}
	}

	answer, err := r.generate(ctx, systemPrompt, query)
	if err != nil {
		return "", nil, err
	}
	return answer, sources, nil
}

// dispatchHybrid runs vector retrieval and web search concurrently, fuses
// both contexts, and asks the LLM once, per §4.5.3.
func (r *Router) dispatchHybrid(ctx context.Context, tenantID int64, channelIDs []int64, query string) (string, []Source, error) {
	var (
		wg                          sync.WaitGroup
		vectorBlock, webBlock       string
		vectorSources, webSources   []Source
		vectorErr, webErr           error
	)

	if r.Retriever != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := r.Retriever.Search(ctx, vectordb.SearchRequest{TenantID: tenantID, ChannelIDs: channelIDs, Query: query, Limit: 5})
			if err != nil {
				vectorErr = err
				return
			}
			var b strings.Builder
			for _, res := range results {
				content, _ := res.Payload["content"].(string)
				if content == "" {
					continue
				}
				fmt.Fprintf(&b, "- %s\n", content)
				vectorSources = append(vectorSources, Source{Kind: "vector", Excerpt: content, Score: res.FinalScore})
			}
			vectorBlock = b.String()
		}()
	}

	if r.Search != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results, err := r.Search.Search(ctx, query, 3)
			if err != nil {
				webErr = err
				return
			}
			webBlock = websearch.FormatAsSourceList(results)
			for _, res := range results {
				webSources = append(webSources, Source{Kind: "web", Title: res.Title, Excerpt: res.Snippet, URL: res.URL})
			}
		}()
	}

	wg.Wait()
	if vectorBlock == "" && webBlock == "" && vectorErr != nil && webErr != nil {
		return "", nil, vectorErr
	}

	directive, _ := r.personalityDirective(ctx, tenantID)
	systemPrompt := "You answer using both the community's own message history and current web context, whichever is relevant." + directive
	userPrompt := fmt.Sprintf("Community context:\n%s\n\nWeb context:\n%s\n\nQuestion: %s", orNone(vectorBlock), orNone(webBlock), query)

	answer, err := r.generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", nil, err
	}
	return answer, append(vectorSources, webSources...), nil
}

func (r *Router) generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if r.LLM == nil {
		return "", apperror.Upstream("router.generate", fmt.Errorf("no LLM configured"))
	}
	out, _, err := r.LLM.Generate(ctx, systemPrompt, userPrompt)
	if err != nil {
		return "", apperror.Upstream("router.generate", err)
	}
	return out, nil
}

// personalityDirective loads the tenant's free-text directive, if any, as
// a suffix to append to a system prompt.
func (r *Router) personalityDirective(ctx context.Context, tenantID int64) (string, error) {
	if r.Store == nil {
		return "", nil
	}
	t, err := r.Store.Tenant(ctx, tenantID)
	if err != nil || t.PersonalityDirective == "" {
		return "", err
	}
	return "\n\n" + t.PersonalityDirective, nil
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
