// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package security implements the prompt-injection filter and SQL guard of
// §4.5, re-expressing security_service.py's and sql_validator.py's
// pattern-matching algorithms as compiled Go regexp tables (Design Note §9:
// init-time compilation, not per-call parsing).
package security

import (
	"regexp"
	"strings"
)

// dangerousPatterns flags instruction-override, role-manipulation, system
// prompt extraction, jailbreak, and code-execution attempts. Each hit adds
// 20 to the risk score.
var dangerousPatterns = compileAll([]string{
	`(?i)ignore\s+(all\s+)?(previous|your|the)?\s*(instructions?|rules?|guidelines?)`,
	`(?i)disregard\s+(all\s+)?(previous|above|prior|your)`,
	`(?i)forget\s+(everything|all|what|your)`,
	`(?i)you\s+are\s+now\s+(in\s+)?developer\s+mode`,
	`(?i)pretend\s+(you'?re?|to\s+be)`,
	`(?i)act\s+as\s+(if|a|an|dan)`,
	`(?i)roleplay\s+as`,
	`(?i)you\s+are\s+now\s+a`,
	`(?i)reveal\s+(your\s+)?(system\s+)?prompt`,
	`(?i)show\s+(me\s+)?(your\s+)?instructions`,
	`(?i)what\s+(are|were)\s+your\s+(initial\s+)?instructions`,
	`(?i)repeat\s+(the\s+)?(system\s+)?prompt`,
	`(?i)your\s+initial\s+instructions`,
	`(?i)tell\s+me\s+your\s+(system\s+)?prompt`,
	`(?i)do\s+anything\s+now`,
	`(?i)\b(dan|devo?|developer)\s+mode`,
	`(?i)jailbreak`,
	`(?i)bypass\s+(safety|filter|restriction|your)`,
	`(?i)unlock\s+(your|the)\s+(full|hidden)`,
	`(?i)execute\s+(this\s+)?(code|command|script)`,
	`(?i)run\s+(this\s+)?(code|command)`,
	`(?i)override\s+(your|the|all)\s+(rules?|instructions?)`,
	`(?i)new\s+persona`,
	`(?i)enable\s+(admin|root|sudo)`,
})

// fuzzyKeywords are checked against every word via typoglycemia matching
// (same first/last letter, scrambled middle) to catch obfuscated attempts
// like "igrneo" for "ignore". Each hit adds 10 to the risk score.
var fuzzyKeywords = []string{
	"ignore", "bypass", "override", "reveal", "delete",
	"system", "prompt", "jailbreak", "execute",
}

var (
	wordPattern        = regexp.MustCompile(`\b\w+\b`)
	specialCharPattern = regexp.MustCompile(`[^\w\s]`)
	base64Pattern      = regexp.MustCompile(`[A-Za-z0-9+/]{40,}={0,2}`)
	controlCharPattern = regexp.MustCompile(`[\x00-\x1f\x7f-\x9f]`)
	whitespacePattern  = regexp.MustCompile(`\s+`)
)

const (
	riskThreshold       = 30
	defaultMaxLength    = 2000
	patternRiskPoints   = 20
	fuzzyRiskPoints     = 10
	specialCharRisk     = 15
	specialCharRatioMax = 0.3
	base64RiskPoints    = 10
)

func compileAll(patterns []string) []*regexp.Regexp {
	compiled := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		compiled[i] = regexp.MustCompile(p)
	}
	return compiled
}

// CheckResult is the outcome of a prompt-injection scan.
type CheckResult struct {
	IsSafe          bool
	RiskScore       int
	BlockedPatterns []string
	SanitizedInput  string
}

// DetectPromptInjection scans text for injection attempts and returns a
// risk-scored verdict. A score of 30 or higher is unsafe (§4.5).
func DetectPromptInjection(text string) CheckResult {
	var blocked []string
	risk := 0

	for _, p := range dangerousPatterns {
		if p.MatchString(text) {
			blocked = append(blocked, truncate(p.String(), 50))
			risk += patternRiskPoints
		}
	}

	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		for _, keyword := range fuzzyKeywords {
			if isTypoglycemiaMatch(word, keyword) {
				blocked = append(blocked, "fuzzy:"+keyword)
				risk += fuzzyRiskPoints
			}
		}
	}

	if len(text) > 0 {
		ratio := float64(len(specialCharPattern.FindAllString(text, -1))) / float64(len(text))
		if ratio > specialCharRatioMax {
			blocked = append(blocked, "high_special_char_ratio")
			risk += specialCharRisk
		}
	}

	if base64Pattern.MatchString(text) {
		blocked = append(blocked, "possible_base64")
		risk += base64RiskPoints
	}

	if risk > 100 {
		risk = 100
	}

	return CheckResult{
		IsSafe:          risk < riskThreshold,
		RiskScore:       risk,
		BlockedPatterns: blocked,
		SanitizedInput:  Sanitize(text, defaultMaxLength),
	}
}

// isTypoglycemiaMatch reports whether word is target with its interior
// letters scrambled: same length, same first and last letter, same
// multiset of middle letters.
func isTypoglycemiaMatch(word, target string) bool {
	if len(word) != len(target) || len(word) < 4 {
		return false
	}
	if !strings.EqualFold(word[:1], target[:1]) {
		return false
	}
	if !strings.EqualFold(word[len(word)-1:], target[len(target)-1:]) {
		return false
	}
	return sortedRunes(strings.ToLower(word[1:len(word)-1])) == sortedRunes(strings.ToLower(target[1:len(target)-1]))
}

func sortedRunes(s string) string {
	r := []rune(s)
	for i := 1; i < len(r); i++ {
		for j := i; j > 0 && r[j-1] > r[j]; j-- {
			r[j-1], r[j] = r[j], r[j-1]
		}
	}
	return string(r)
}

// Sanitize strips control characters, collapses whitespace, replaces
// dangerous patterns with [FILTERED], and truncates to maxLength.
func Sanitize(text string, maxLength int) string {
	text = controlCharPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(whitespacePattern.ReplaceAllString(text, " "))

	for _, p := range dangerousPatterns {
		text = p.ReplaceAllString(text, "[FILTERED]")
	}

	if len(text) > maxLength {
		text = text[:maxLength] + "..."
	}
	return text
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
