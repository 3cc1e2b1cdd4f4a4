// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import "testing"

func TestBM25Scorer_EncodeBeforeIndexYieldsEmptyVector(t *testing.T) {
	s := NewBM25Scorer()

	vec := s.Encode("the quick brown fox")

	if len(vec.Indices) != 0 || len(vec.Values) != 0 {
		t.Fatalf("expected no sparse dimensions before Index, got %d indices", len(vec.Indices))
	}
}

func TestBM25Scorer_EncodeAfterIndexScoresKnownTerms(t *testing.T) {
	s := NewBM25Scorer()
	s.Index([]string{
		"the quick brown fox jumps over the lazy dog",
		"a completely unrelated sentence about databases",
	})

	vec := s.Encode("quick fox")

	if len(vec.Indices) == 0 {
		t.Fatal("expected sparse dimensions for terms seen during Index")
	}
	if len(vec.Indices) != len(vec.Values) {
		t.Fatalf("indices/values length mismatch: %d vs %d", len(vec.Indices), len(vec.Values))
	}
	for _, v := range vec.Values {
		if v <= 0 {
			t.Errorf("expected all retained scores to be positive, got %f", v)
		}
	}
}

func TestBM25Scorer_UnseenTermsAreSkipped(t *testing.T) {
	s := NewBM25Scorer()
	s.Index([]string{"alpha beta gamma"})

	vec := s.Encode("alpha zzzneverseen")

	for _, idx := range vec.Indices {
		if idx >= uint32(len(s.vocab)) {
			t.Errorf("encoded index %d outside known vocabulary size %d", idx, len(s.vocab))
		}
	}
	if len(vec.Indices) != 1 {
		t.Fatalf("expected only the known term 'alpha' to produce a dimension, got %d", len(vec.Indices))
	}
}

func TestBM25Scorer_RarerTermScoresHigherThanCommonTerm(t *testing.T) {
	s := NewBM25Scorer()
	s.Index([]string{
		"common appears in every document about topics",
		"common appears in every document about subjects",
		"common appears in every document about themes",
		"rare shows up only once across the whole corpus",
	})

	vec := s.Encode("common rare")
	scoreByIdx := make(map[uint32]float32, len(vec.Indices))
	for i, idx := range vec.Indices {
		scoreByIdx[idx] = vec.Values[i]
	}

	commonIdx, ok := s.vocab["common"]
	if !ok {
		t.Fatal("expected 'common' in vocabulary")
	}
	rareIdx, ok := s.vocab["rare"]
	if !ok {
		t.Fatal("expected 'rare' in vocabulary")
	}

	if scoreByIdx[rareIdx] <= scoreByIdx[commonIdx] {
		t.Errorf("expected rare term's IDF-weighted score (%f) to exceed common term's (%f)",
			scoreByIdx[rareIdx], scoreByIdx[commonIdx])
	}
}

func TestTokenize_LowercasesAndSplitsOnNonAlphanumeric(t *testing.T) {
	tokens := tokenize("Hello, World! 123-abc")
	want := []string{"hello", "world", "123", "abc"}

	if len(tokens) != len(want) {
		t.Fatalf("expected %d tokens, got %d: %v", len(want), len(tokens), tokens)
	}
	for i, tok := range tokens {
		if tok != want[i] {
			t.Errorf("token %d: expected %q, got %q", i, want[i], tok)
		}
	}
}
