// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package thematic implements the C4.4.5-adjacent topic-clustering engine
// used by GraphRAG-style "what do people talk about" queries, a hand-rolled
// TF-IDF + K-Means port of thematic_analyzer.py. No Go library in the
// example pack covers TF-IDF vectorization or K-Means clustering, so this
// package is a justified stdlib implementation (see DESIGN.md).
package thematic

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

const (
	maxFeatures = 500
	minDocFreq  = 2
	maxDocFreq  = 0.8
)

var tokenPattern = regexp.MustCompile(`[a-zA-Z]{2,}`)

// englishStopwords mirrors scikit-learn's "english" stop list closely
// enough for this domain; trimmed to the high-frequency core since the
// corpus here is chat messages, not formal prose.
var englishStopwords = buildStopwordSet([]string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an",
	"and", "any", "are", "aren't", "as", "at", "be", "because", "been",
	"before", "being", "below", "between", "both", "but", "by", "can",
	"cant", "cannot", "could", "couldn't", "did", "didn't", "do", "does",
	"doesn't", "doing", "don", "don't", "down", "during", "each", "few",
	"for", "from", "further", "had", "hadn't", "has", "hasn't", "have",
	"haven't", "having", "he", "her", "here", "hers", "herself", "him",
	"himself", "his", "how", "i", "if", "in", "into", "is", "isn't", "it",
	"its", "itself", "just", "me", "more", "most", "my", "myself", "no",
	"nor", "not", "now", "of", "off", "on", "once", "only", "or", "other",
	"our", "ours", "ourselves", "out", "over", "own", "same", "she",
	"should", "shouldn't", "so", "some", "such", "than", "that", "thats",
	"the", "their", "theirs", "them", "themselves", "then", "there",
	"these", "they", "this", "those", "through", "to", "too", "under",
	"until", "up", "very", "was", "wasn't", "we", "were", "weren't",
	"what", "when", "where", "which", "while", "who", "whom", "why",
	"will", "with", "won't", "would", "wouldn't", "you", "your", "yours",
	"yourself", "yourselves", "im", "ive", "youre", "theyre", "its",
})

func buildStopwordSet(words []string) map[string]bool {
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

// tokenize lowercases, extracts alphabetic tokens, strips stopwords, and
// emits both unigrams and bigrams (ngram_range=(1,2)).
func tokenize(text string) []string {
	words := tokenPattern.FindAllString(strings.ToLower(text), -1)
	var kept []string
	for _, w := range words {
		if !englishStopwords[w] {
			kept = append(kept, w)
		}
	}

	tokens := make([]string, 0, len(kept)*2)
	tokens = append(tokens, kept...)
	for i := 0; i+1 < len(kept); i++ {
		tokens = append(tokens, kept[i]+" "+kept[i+1])
	}
	return tokens
}

// Vectorizer holds the fitted vocabulary and IDF weights for a corpus.
type Vectorizer struct {
	Vocabulary []string
	idf        map[string]float64
}

// Fit builds a vocabulary bounded to maxFeatures terms, applying min_df=2
// and max_df=0.8 document-frequency bounds, then computes IDF weights.
func Fit(documents []string) *Vectorizer {
	docFreq := map[string]int{}
	tokenized := make([][]string, len(documents))

	for i, doc := range documents {
		tokens := tokenize(doc)
		tokenized[i] = tokens
		seen := map[string]bool{}
		for _, t := range tokens {
			if !seen[t] {
				docFreq[t]++
				seen[t] = true
			}
		}
	}

	n := len(documents)
	maxDF := int(maxDocFreq * float64(n))

	type termCount struct {
		term string
		freq int
	}
	var candidates []termCount
	totalFreq := map[string]int{}
	for _, tokens := range tokenized {
		for _, t := range tokens {
			totalFreq[t]++
		}
	}
	for term, df := range docFreq {
		if df < minDocFreq || df > maxDF {
			continue
		}
		candidates = append(candidates, termCount{term, totalFreq[term]})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].freq != candidates[j].freq {
			return candidates[i].freq > candidates[j].freq
		}
		return candidates[i].term < candidates[j].term
	})
	if len(candidates) > maxFeatures {
		candidates = candidates[:maxFeatures]
	}

	vocab := make([]string, len(candidates))
	for i, c := range candidates {
		vocab[i] = c.term
	}
	sort.Strings(vocab)

	idf := make(map[string]float64, len(vocab))
	for _, term := range vocab {
		df := docFreq[term]
		idf[term] = math.Log(float64(n)/float64(df)) + 1
	}

	return &Vectorizer{Vocabulary: vocab, idf: idf}
}

// Transform maps documents to dense TF-IDF vectors over the fitted
// vocabulary, L2-normalized (scikit-learn's TfidfVectorizer default).
func (v *Vectorizer) Transform(documents []string) [][]float64 {
	index := make(map[string]int, len(v.Vocabulary))
	for i, term := range v.Vocabulary {
		index[term] = i
	}

	out := make([][]float64, len(documents))
	for d, doc := range documents {
		vector := make([]float64, len(v.Vocabulary))
		tf := map[string]int{}
		for _, t := range tokenize(doc) {
			tf[t]++
		}
		for term, count := range tf {
			idx, ok := index[term]
			if !ok {
				continue
			}
			vector[idx] = float64(count) * v.idf[term]
		}
		normalize(vector)
		out[d] = vector
	}
	return out
}

// TopKeywords ranks the n most frequent tokens across texts after
// tokenization and stopword removal, for the `/summary` endpoint's
// "top keywords" field — a simpler frequency ranking than the full
// TF-IDF vocabulary Fit builds for clustering.
func TopKeywords(texts []string, n int) []string {
	freq := map[string]int{}
	for _, t := range texts {
		for _, tok := range tokenize(t) {
			if !strings.Contains(tok, " ") { // unigrams only, bigrams are for clustering
				freq[tok]++
			}
		}
	}

	type termCount struct {
		term string
		freq int
	}
	ranked := make([]termCount, 0, len(freq))
	for term, count := range freq {
		ranked = append(ranked, termCount{term, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].freq != ranked[j].freq {
			return ranked[i].freq > ranked[j].freq
		}
		return ranked[i].term < ranked[j].term
	})
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]string, n)
	for i := 0; i < n; i++ {
		out[i] = ranked[i].term
	}
	return out
}

func normalize(v []float64) {
	var sumSq float64
	for _, x := range v {
		sumSq += x * x
	}
	if sumSq == 0 {
		return
	}
	norm := math.Sqrt(sumSq)
	for i := range v {
		v[i] /= norm
	}
}
