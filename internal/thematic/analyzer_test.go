// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package thematic

import "testing"

func TestFit_TooFewMessagesYieldsEmptyVocabulary(t *testing.T) {
	docs := []string{"short one", "short two"}
	v := Fit(docs)
	if len(v.Vocabulary) != 0 {
		t.Errorf("expected empty vocabulary for tiny corpus, got %v", v.Vocabulary)
	}
}

func TestFit_BuildsVocabularyAndTransforms(t *testing.T) {
	docs := []string{
		"we should migrate the database to postgres soon",
		"the database migration to postgres is scheduled",
		"postgres database performance has been great",
		"our deployment pipeline needs better database testing",
		"the new feature release is going well this week",
		"feature flags make the release process safer",
		"release notes for this week mention new features",
		"the team shipped the release without major issues",
	}
	v := Fit(docs)
	if len(v.Vocabulary) == 0 {
		t.Fatal("expected non-empty vocabulary")
	}
	vectors := v.Transform(docs)
	if len(vectors) != len(docs) {
		t.Fatalf("expected one vector per document, got %d", len(vectors))
	}
	for _, vec := range vectors {
		if len(vec) != len(v.Vocabulary) {
			t.Errorf("expected vector length %d, got %d", len(v.Vocabulary), len(vec))
		}
	}
}

func TestKMeans_SeparatesDistinctClusters(t *testing.T) {
	vectors := [][]float64{
		{1, 0}, {0.9, 0.1}, {0.95, 0.05},
		{0, 1}, {0.1, 0.9}, {0.05, 0.95},
	}
	result := KMeans(vectors, 2)
	if len(result.Labels) != len(vectors) {
		t.Fatalf("expected a label per vector, got %d", len(result.Labels))
	}
	if result.Labels[0] != result.Labels[1] || result.Labels[1] != result.Labels[2] {
		t.Error("expected the first cluster's points to share a label")
	}
	if result.Labels[3] != result.Labels[4] || result.Labels[4] != result.Labels[5] {
		t.Error("expected the second cluster's points to share a label")
	}
	if result.Labels[0] == result.Labels[3] {
		t.Error("expected the two distinct clusters to receive different labels")
	}
}

func TestAnalyzer_FitAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	analyzer := NewAnalyzer(1, dir)

	messages := make([]string, 0, 40)
	for i := 0; i < 20; i++ {
		messages = append(messages, "discussing the database migration plan and postgres rollout timeline")
		messages = append(messages, "talking about the new feature release and deployment schedule")
	}

	clusters, err := analyzer.Fit(messages)
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if len(clusters) == 0 {
		t.Fatal("expected at least one cluster")
	}

	loaded, err := analyzer.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(loaded) != len(clusters) {
		t.Errorf("expected %d persisted clusters, got %d", len(clusters), len(loaded))
	}
}

func TestAnalyzer_LoadMissingCacheReturnsNil(t *testing.T) {
	analyzer := NewAnalyzer(99, t.TempDir())
	clusters, err := analyzer.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if clusters != nil {
		t.Errorf("expected nil for missing cache, got %v", clusters)
	}
}
