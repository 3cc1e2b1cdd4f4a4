// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"math"
	"regexp"
	"strings"
	"sync"
)

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

func tokenize(text string) []string {
	return tokenPattern.FindAllString(strings.ToLower(text), -1)
}

// SparseVector is a (indices, values) BM25 encoding, matching the shape the
// vector index expects for its named "sparse" vector (§4.4.1).
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// BM25Scorer maintains a corpus vocabulary and document-frequency table to
// produce BM25 sparse vectors, grounded on hybrid_embedding.py's FastEmbed
// usage — no Go BM25 library appears in the pack (see DESIGN.md), so this
// is a justified hand-rolled implementation of the same concern.
type BM25Scorer struct {
	mu       sync.RWMutex
	vocab    map[string]uint32
	docFreq  map[string]int
	docCount int
	avgDocLen float64
	k1       float64
	b        float64
}

func NewBM25Scorer() *BM25Scorer {
	return &BM25Scorer{
		vocab:   make(map[string]uint32),
		docFreq: make(map[string]int),
		k1:      1.5,
		b:       0.75,
	}
}

// Index folds a batch of documents into the corpus statistics. Call once
// per new document set (e.g. at upsert time); Encode skips any term not yet
// indexed, so a term contributes to an encoding only after Index has seen it.
func (s *BM25Scorer) Index(documents []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	totalLen := 0.0
	for _, doc := range documents {
		tokens := tokenize(doc)
		totalLen += float64(len(tokens))
		seen := map[string]bool{}
		for _, tok := range tokens {
			if _, ok := s.vocab[tok]; !ok {
				s.vocab[tok] = uint32(len(s.vocab))
			}
			if !seen[tok] {
				s.docFreq[tok]++
				seen[tok] = true
			}
		}
	}
	s.docCount += len(documents)
	if s.docCount > 0 {
		s.avgDocLen = (s.avgDocLen*float64(s.docCount-len(documents)) + totalLen) / float64(s.docCount)
	}
}

// Encode produces the sparse BM25 vector for a document or query, using
// term frequency weighted by BM25 saturation and inverse document
// frequency over the corpus seen so far via Index.
func (s *BM25Scorer) Encode(text string) SparseVector {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := tokenize(text)
	if len(tokens) == 0 {
		return SparseVector{}
	}

	tf := map[string]int{}
	for _, tok := range tokens {
		tf[tok]++
	}

	docLen := float64(len(tokens))
	avgLen := s.avgDocLen
	if avgLen == 0 {
		avgLen = docLen
	}

	var indices []uint32
	var values []float32
	for term, freq := range tf {
		idx, known := s.vocab[term]
		if !known {
			continue // unseen term: no sparse dimension allocated yet
		}
		df := s.docFreq[term]
		if df == 0 {
			df = 1
		}
		n := float64(s.docCount)
		if n < 1 {
			n = 1
		}
		idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
		numerator := float64(freq) * (s.k1 + 1)
		denominator := float64(freq) + s.k1*(1-s.b+s.b*docLen/avgLen)
		score := idf * numerator / denominator
		if score <= 0 {
			continue
		}
		indices = append(indices, idx)
		values = append(values, float32(score))
	}
	return SparseVector{Indices: indices, Values: values}
}
