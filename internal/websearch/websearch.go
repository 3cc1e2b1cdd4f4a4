// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package websearch implements the external web-search adapter for the
// WEB_SEARCH and augmented GENERAL_KNOWLEDGE routes (§4.5). No teacher
// equivalent exists; goquery is repurposed from the teacher's
// internal/parser/html.go (script/style stripping, text extraction) to
// parse a search-engine result page into structured hits.
package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/northbound/cil/internal/apperror"
)

// Result is one web search hit.
type Result struct {
	Title   string
	URL     string
	Snippet string
}

// Searcher is the capability surface the Answer Router depends on.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

// HTMLSearcher queries a search engine's lite HTML endpoint and parses
// results with goquery, avoiding a dependency on any paid search API for
// the default deployment (§6's web_search_api_key is optional; when unset
// this adapter is still functional).
type HTMLSearcher struct {
	Endpoint string
	APIKey   string
	client   *http.Client
}

func NewHTMLSearcher(endpoint, apiKey string) *HTMLSearcher {
	if endpoint == "" {
		endpoint = "https://html.duckduckgo.com/html/"
	}
	return &HTMLSearcher{Endpoint: endpoint, APIKey: apiKey, client: &http.Client{Timeout: 15 * time.Second}}
}

func (s *HTMLSearcher) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 5
	}

	reqURL := fmt.Sprintf("%s?q=%s", s.Endpoint, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.APIKey)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; cil-websearch/1.0)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, apperror.Upstream("websearch.Search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperror.Upstream("websearch.Search", fmt.Errorf("search endpoint returned status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, apperror.Upstream("websearch.Search", fmt.Errorf("parse search results: %w", err))
	}
	doc.Find("script, style, noscript").Each(func(i int, sel *goquery.Selection) { sel.Remove() })

	var results []Result
	doc.Find(".result").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		if len(results) >= limit {
			return false
		}
		title := strings.TrimSpace(sel.Find(".result__title").Text())
		link, _ := sel.Find(".result__a").Attr("href")
		snippet := strings.TrimSpace(sel.Find(".result__snippet").Text())
		if title == "" && snippet == "" {
			return true
		}
		results = append(results, Result{Title: title, URL: link, Snippet: snippet})
		return true
	})

	return results, nil
}

// FormatAsSourceList renders results as a numbered list suitable for a
// no-LLM fallback answer, per §4.5's WEB_SEARCH degraded path.
func FormatAsSourceList(results []Result) string {
	if len(results) == 0 {
		return "No web results found."
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s — %s\n   %s\n", i+1, r.Title, r.URL, r.Snippet)
	}
	return b.String()
}
