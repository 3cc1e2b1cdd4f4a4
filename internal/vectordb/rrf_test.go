// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package vectordb

import "testing"

func TestFuse_PrefersAgreement(t *testing.T) {
	dense := []ScoredPoint{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	sparse := []ScoredPoint{{ID: "b"}, {ID: "a"}, {ID: "d"}}

	fused := Fuse(dense, sparse)
	if len(fused) != 4 {
		t.Fatalf("expected 4 unique points, got %d", len(fused))
	}
	if fused[0].ID != "a" && fused[0].ID != "b" {
		t.Errorf("expected a or b to rank first (present in both lists), got %s", fused[0].ID)
	}
	if fused[0].ID == fused[1].ID {
		t.Errorf("duplicate top result: %s", fused[0].ID)
	}
}

func TestFuse_Dedup(t *testing.T) {
	list := []ScoredPoint{{ID: "a"}, {ID: "b"}}
	fused := Fuse(list, list, list)
	if len(fused) != 2 {
		t.Fatalf("expected dedup across repeated lists, got %d entries", len(fused))
	}
}

func TestApplyRerank_BlendsScores(t *testing.T) {
	fused := []FusedResult{
		{ID: "a", FusionScore: 0.5, FinalScore: 0.5},
		{ID: "b", FusionScore: 0.4, FinalScore: 0.4},
	}
	reranked := ApplyRerank(fused, map[string]float64{"b": 1.0})

	if reranked[0].ID != "b" {
		t.Errorf("expected rerank to promote b to first, got %s", reranked[0].ID)
	}
	want := rerankWeight*1.0 + fusionWeight*0.4
	if reranked[0].FinalScore != want {
		t.Errorf("expected blended score %f, got %f", want, reranked[0].FinalScore)
	}
}

func TestApplyRerank_UnscoredKeepsFusionScore(t *testing.T) {
	fused := []FusedResult{{ID: "a", FusionScore: 0.9, FinalScore: 0.9}}
	reranked := ApplyRerank(fused, map[string]float64{})
	if reranked[0].FinalScore != 0.9 {
		t.Errorf("expected unscored candidate to retain fusion score, got %f", reranked[0].FinalScore)
	}
}

func TestTopK(t *testing.T) {
	fused := []FusedResult{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	if got := TopK(fused, 2); len(got) != 2 {
		t.Errorf("expected 2 results, got %d", len(got))
	}
	if got := TopK(fused, 0); len(got) != 3 {
		t.Errorf("expected TopK(0) to be a no-op, got %d", len(got))
	}
}
