// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package queue

import (
	"testing"
	"time"

	"github.com/northbound/cil/internal/model"
)

func TestMaxAttempts_PerKindBudgets(t *testing.T) {
	cases := []struct {
		kind model.WorkKind
		want int
	}{
		{model.WorkPurgeVector, 3},
		{model.WorkPurgeSessions, 3},
		{model.WorkSingleMessageIndex, 5},
		{model.WorkSessionIndex, 5},
		{model.WorkQueryAsk, 3},
		{model.WorkBulkChannelIndex, -1},
		{model.WorkThematicRebuild, 5},
	}
	for _, c := range cases {
		if got := MaxAttempts(c.kind); got != c.want {
			t.Errorf("MaxAttempts(%s) = %d, want %d", c.kind, got, c.want)
		}
	}
}

func TestNextBackoff_GrowsWithAttemptAndRespectsCap(t *testing.T) {
	prevMax := time.Duration(0)
	for attempt := 0; attempt < 10; attempt++ {
		var observedMax time.Duration
		for i := 0; i < 20; i++ {
			d := NextBackoff(attempt)
			if d <= 0 {
				t.Fatalf("attempt %d: expected positive backoff, got %v", attempt, d)
			}
			if d > backoffCapSeconds*time.Second {
				t.Fatalf("attempt %d: backoff %v exceeds cap %v", attempt, d, backoffCapSeconds*time.Second)
			}
			if d > observedMax {
				observedMax = d
			}
		}
		if attempt > 0 && observedMax < prevMax && observedMax < backoffCapSeconds*time.Second {
			t.Errorf("attempt %d: expected backoff ceiling to grow past attempt %d's, got %v <= %v", attempt, attempt-1, observedMax, prevMax)
		}
		prevMax = observedMax
	}
}

func TestNextBackoff_NeverBelowBase(t *testing.T) {
	d := NextBackoff(0)
	if d < backoffBaseSeconds*time.Second {
		t.Errorf("expected backoff at attempt 0 to be at least the base %v, got %v", backoffBaseSeconds*time.Second, d)
	}
}
