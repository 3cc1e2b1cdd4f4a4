// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package router

import (
	"context"
	"regexp"
	"strings"

	"github.com/northbound/cil/internal/llm"
)

// Intent is one of the six routing destinations of §4.5.2.
type Intent string

const (
	IntentAnalyticsDB     Intent = "ANALYTICS_DB"
	IntentVectorRAG       Intent = "VECTOR_RAG"
	IntentGraphRAG        Intent = "GRAPH_RAG"
	IntentWebSearch       Intent = "WEB_SEARCH"
	IntentGeneralKnowledge Intent = "GENERAL_KNOWLEDGE"
	IntentHybrid          Intent = "HYBRID"
)

// discordTerms mirrors router.py's DISCORD_TERMS group: queries must
// reference server activity, not just contain a bare counting word, to be
// routed to analytics.
const discordTerms = `(messages?|users?|members?|channels?|server|guild|activity|sent|posted|active)`

var analyticsPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(how many|count|total|number of)\b.*\b` + discordTerms + `\b`),
	regexp.MustCompile(`(?i)\b` + discordTerms + `\b.*\b(how many|count|total|number of)\b`),
	regexp.MustCompile(`(?i)\b(who spoke|most active|least active|top \d+|bottom \d+)\b`),
	regexp.MustCompile(`(?i)\b(most|least|highest|lowest|average|avg|sum|min|max)\b.*\b(messages?|users?|channels?)\b`),
	regexp.MustCompile(`(?i)\b(messages?|activity)\b.*\b(per|by|each)\b.*\b(day|week|month|hour|user|channel)\b`),
	regexp.MustCompile(`(?i)\b(between|from|since|until|last)\b.*\b(am|pm|\d{1,2}:\d{2}|week|month|day)\b.*\b` + discordTerms + `\b`),
	regexp.MustCompile(`(?i)\b(show|list|display|get)\b.*\b(count|stats|statistics|metrics)\b`),
	regexp.MustCompile(`(?i)\b(message counts?|user counts?|channel stats?)\b`),
}

var graphRAGPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(main|common|frequent|popular|major)\b.*\b(topics?|themes?|subjects?|discussions?)\b`),
	regexp.MustCompile(`(?i)\bwhat (do|does) (everyone|people|users?|members?) (talk|discuss|chat) about\b`),
	regexp.MustCompile(`(?i)\b(summarize|overview|summary of)\b.*\b(server|community|all)\b`),
	regexp.MustCompile(`(?i)\b(general|overall|common)\b.*\b(sentiment|opinion|feeling|mood)\b`),
	regexp.MustCompile(`(?i)\b(trends?|patterns?|themes?)\b.*\b(in|across|throughout)\b.*\b(server|community|channels?)\b`),
	regexp.MustCompile(`(?i)\bwhat are the\b.*\b(main|biggest|most common|top)\b.*\b(complaints?|issues?|concerns?|problems?)\b`),
	regexp.MustCompile(`(?i)\b(analyze|analysis of)\b.*\b(conversations?|discussions?|community)\b`),
}

var webSearchPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(latest|current|recent|today'?s?)\b.*\b(news|price|version|release)\b`),
	regexp.MustCompile(`(?i)\b(how (do|does|to|can)|what is the .* way to)\b.*\b(configure|setup|install|use)\b`),
	regexp.MustCompile(`(?i)\b(according to|based on|from the web|google|search for)\b`),
	regexp.MustCompile(`(?i)\b(nginx|docker|kubernetes|aws|gcp|azure)\b.*\b(how|configure|setup)\b`),
	regexp.MustCompile(`(?i)\b(price of|cost of|worth of)\b.*\b(bitcoin|eth|stock|crypto)\b`),
}

var vectorRAGPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(what (was|were|is|are)|summarize|summary of)\b.*\b(said|discussed|talked|mentioned)\b`),
	regexp.MustCompile(`(?i)\b(summarize|summary of)\b.*\b(discussion|conversation|chat|thread)\b`),
	regexp.MustCompile(`(?i)\b(find|search|look for)\b.*\b(messages?|discussions?|conversations?)\b.*\b(about|where|that)\b`),
	regexp.MustCompile(`(?i)\b(main|common|frequent)\b.*\b(complaints?|issues?|topics?|themes?|concerns?)\b`),
	regexp.MustCompile(`(?i)\b(what (do|does) .* think|opinions? (on|about)|sentiment)\b`),
	regexp.MustCompile(`(?i)\b(explain|describe|tell me about)\b.*\b(discussion|conversation|thread)\b`),
	regexp.MustCompile(`(?i)\b(what has been said|what did .* say)\b`),
}

// classifyByPattern applies the four pattern tables in the fixed order
// ANALYTICS -> GRAPH -> WEB -> VECTOR, first match wins. Returns "" when no
// pattern fires, signaling an LLM fallback is needed.
func classifyByPattern(query string) Intent {
	for _, p := range analyticsPatterns {
		if p.MatchString(query) {
			return IntentAnalyticsDB
		}
	}
	for _, p := range graphRAGPatterns {
		if p.MatchString(query) {
			return IntentGraphRAG
		}
	}
	for _, p := range webSearchPatterns {
		if p.MatchString(query) {
			return IntentWebSearch
		}
	}
	for _, p := range vectorRAGPatterns {
		if p.MatchString(query) {
			return IntentVectorRAG
		}
	}
	return ""
}

const classifierSystemPrompt = `You are a query intent classifier for a multi-tenant community analytics system.
Classify the user's query into exactly ONE of these categories:

- analytics_db: Statistical queries about THIS tenant's message counts, user activity, rankings, time-based metrics.
- vector_rag: Semantic content queries about what was discussed, finding specific discussions or what someone said.
- graph_rag: Broad thematic queries about overall topics, trends, or patterns across the ENTIRE tenant.
- web_search: Queries requiring external/current information that needs real-time web search.
- general_knowledge: Factual questions answerable from general knowledge, not about this tenant's data.

Respond with ONLY the category name, nothing else.`

// classifyWithLLM is the fallback path when no pattern matches. Any failure
// (unreachable client, empty/garbled label) defaults to GENERAL_KNOWLEDGE,
// the safe default for a query the router cannot place with confidence.
func classifyWithLLM(ctx context.Context, client llm.Client, query string) Intent {
	if client == nil {
		return IntentGeneralKnowledge
	}
	out, _, err := client.Generate(ctx, classifierSystemPrompt, query)
	if err != nil {
		return IntentGeneralKnowledge
	}
	label := strings.ToLower(strings.TrimSpace(out))
	switch {
	case strings.Contains(label, "analytics"):
		return IntentAnalyticsDB
	case strings.Contains(label, "graph"):
		return IntentGraphRAG
	case strings.Contains(label, "web"):
		return IntentWebSearch
	case strings.Contains(label, "general"):
		return IntentGeneralKnowledge
	case strings.Contains(label, "vector"):
		return IntentVectorRAG
	default:
		return IntentGeneralKnowledge
	}
}

// ClassifyIntent runs the pattern-then-LLM pipeline of §4.5.2.
func ClassifyIntent(ctx context.Context, client llm.Client, query string) Intent {
	if intent := classifyByPattern(query); intent != "" {
		return intent
	}
	return classifyWithLLM(ctx, client, query)
}
