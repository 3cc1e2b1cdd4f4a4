// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch

// Package sessionize implements the two-pass hybrid sessionizer of §4.2.1:
// a time/reply-chain-break pass followed by a percentile-based semantic
// refinement pass. Grounded on
// original_source/apps/bot/src/sessionizer.py and hybrid_sessionizer.py.
package sessionize

import (
	"sort"
	"time"

	"github.com/northbound/cil/internal/model"
)

const (
	DefaultTimeGap             = 15 * time.Minute
	DefaultSemanticThreshold   = 15 // session size that triggers semantic refinement
	DefaultSemanticPercentile  = 0.10
	DefaultMinSessionSize      = 2
	DefaultMaxSessionSize      = 30
)

// Options configures the sessionizer. Zero-value Options uses the spec's
// documented defaults.
type Options struct {
	TimeGap            time.Duration
	SemanticThreshold  int
	SemanticPercentile float64
	MinSessionSize     int
	MaxSessionSize     int
}

func (o Options) withDefaults() Options {
	if o.TimeGap == 0 {
		o.TimeGap = DefaultTimeGap
	}
	if o.SemanticThreshold == 0 {
		o.SemanticThreshold = DefaultSemanticThreshold
	}
	if o.SemanticPercentile == 0 {
		o.SemanticPercentile = DefaultSemanticPercentile
	}
	if o.MinSessionSize == 0 {
		o.MinSessionSize = DefaultMinSessionSize
	}
	if o.MaxSessionSize == 0 {
		o.MaxSessionSize = DefaultMaxSessionSize
	}
	return o
}

// draft is an in-progress session during the time-based pass.
type draft struct {
	channelID  int64
	messages   []model.Message
	idSet      map[int64]bool
}

// Sessionize groups messages (ascending authored_at, single channel per
// call) into Sessions. Embedder is used only for the semantic refinement
// pass and may be nil, in which case oversized sessions are hard-split
// evenly by size (matching hybrid_sessionizer.py's _split_by_size fallback).
func Sessionize(messages []model.Message, opts Options, embed func([]string) ([][]float32, error)) []model.Session {
	opts = opts.withDefaults()
	if len(messages) == 0 {
		return nil
	}

	sorted := make([]model.Message, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AuthoredAt.Before(sorted[j].AuthoredAt) })

	drafts := timeBasedPass(sorted, opts)

	var refined []draft
	for _, d := range drafts {
		refined = append(refined, semanticRefine(d, opts, embed)...)
	}
	refined = mergeUndersized(refined, opts.MinSessionSize)

	var sessions []model.Session
	for _, r := range refined {
		sessions = append(sessions, toSession(r))
	}
	return sessions
}

// timeBasedPass implements the first pass of §4.2.1: break on channel
// change, >15min gap, or reply-chain break (time break wins ties).
func timeBasedPass(sorted []model.Message, opts Options) []draft {
	var drafts []draft
	var current *draft

	for _, m := range sorted {
		breakSession := false

		if current == nil {
			breakSession = true
		} else {
			if m.ChannelID != current.channelID {
				breakSession = true
			} else {
				prev := current.messages[len(current.messages)-1]
				gap := m.AuthoredAt.Sub(prev.AuthoredAt)
				timeBreak := gap > opts.TimeGap
				replyBreak := m.ReplyToID != nil && !current.idSet[*m.ReplyToID]

				// Break-tie rule: time break takes precedence when both apply;
				// either alone is still a break.
				if timeBreak || replyBreak {
					breakSession = true
				}
			}
		}

		if breakSession {
			if current != nil {
				drafts = append(drafts, *current)
			}
			current = &draft{channelID: m.ChannelID, idSet: map[int64]bool{}}
		}

		current.messages = append(current.messages, m)
		current.idSet[m.ID] = true
	}
	if current != nil {
		drafts = append(drafts, *current)
	}
	return drafts
}

// semanticRefine applies the second pass of §4.2.1 to sessions larger than
// SemanticThreshold, then enforces min/max size bounds.
func semanticRefine(d draft, opts Options, embed func([]string) ([][]float32, error)) []draft {
	if len(d.messages) <= opts.SemanticThreshold || embed == nil {
		return enforceSize(d, opts)
	}

	texts := make([]string, len(d.messages))
	for i, m := range d.messages {
		texts[i] = m.Content
	}
	vectors, err := embed(texts)
	if err != nil || len(vectors) != len(texts) {
		// Degraded path: embedder unavailable, fall back to size-based split.
		return enforceSize(d, opts)
	}

	sims := make([]float64, len(vectors)-1)
	for i := 0; i < len(vectors)-1; i++ {
		sims[i] = cosineSimilarity(vectors[i], vectors[i+1])
	}

	cutoff := percentile(sims, opts.SemanticPercentile)

	var parts []draft
	startIdx := 0
	currentIdSet := map[int64]bool{}
	for i, m := range d.messages {
		currentIdSet[m.ID] = true
		isBreakpoint := i > startIdx && i-1 < len(sims) && sims[i-1] < cutoff
		if isBreakpoint {
			parts = append(parts, draft{
				channelID: d.channelID,
				messages:  d.messages[startIdx:i],
				idSet:     currentIdSet,
			})
			startIdx = i
			currentIdSet = map[int64]bool{}
			for _, mm := range d.messages[startIdx:i] {
				currentIdSet[mm.ID] = true
			}
		}
	}
	parts = append(parts, draft{
		channelID: d.channelID,
		messages:  d.messages[startIdx:],
		idSet:     currentIdSet,
	})

	var out []draft
	for _, p := range parts {
		out = append(out, enforceSize(p, opts)...)
	}
	return out
}

// enforceSize applies the max bound of §4.2.1: hard-split oversized sessions
// evenly (per hybrid_sessionizer.py's _split_by_size). The min bound is
// applied afterwards by mergeUndersized.
func enforceSize(d draft, opts Options) []draft {
	if len(d.messages) == 0 {
		return nil
	}

	if len(d.messages) > opts.MaxSessionSize {
		var out []draft
		n := len(d.messages)
		numParts := (n + opts.MaxSessionSize - 1) / opts.MaxSessionSize
		chunkSize := (n + numParts - 1) / numParts
		for start := 0; start < n; start += chunkSize {
			end := start + chunkSize
			if end > n {
				end = n
			}
			out = append(out, draft{channelID: d.channelID, messages: d.messages[start:end]})
		}
		return out
	}

	return []draft{d}
}

// mergeUndersized merges any trailing fragment smaller than min size into
// its predecessor within the same channel draft list, dropping it if it is
// the sole isolated fragment (B2).
func mergeUndersized(parts []draft, minSize int) []draft {
	if len(parts) == 0 {
		return parts
	}
	out := make([]draft, 0, len(parts))
	for _, p := range parts {
		if len(p.messages) < minSize && len(out) > 0 && out[len(out)-1].channelID == p.channelID {
			last := &out[len(out)-1]
			last.messages = append(last.messages, p.messages...)
			continue
		}
		out = append(out, p)
	}
	if len(out) == 1 && len(out[0].messages) < minSize {
		// sole isolated undersized fragment, no predecessor to merge into: drop it.
		return nil
	}
	return out
}

func toSession(d draft) model.Session {
	ids := make([]int64, len(d.messages))
	participants := map[int64]bool{}
	for i, m := range d.messages {
		ids[i] = m.ID
		participants[m.AuthorID] = true
	}
	participantList := make([]int64, 0, len(participants))
	for id := range participants {
		participantList = append(participantList, id)
	}
	sort.Slice(participantList, func(i, j int) bool { return participantList[i] < participantList[j] })

	preview := ""
	for i, m := range d.messages {
		if i > 3 {
			break
		}
		if preview != "" {
			preview += " / "
		}
		preview += m.Content
	}
	if len(preview) > 1000 {
		preview = preview[:1000]
	}

	return model.Session{
		TenantID:     d.messages[0].TenantID,
		ChannelID:    d.channelID,
		MessageIDs:   ids,
		StartTime:    d.messages[0].AuthoredAt,
		EndTime:      d.messages[len(d.messages)-1].AuthoredAt,
		Participants: participantList,
		Preview:      preview,
	}
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrt(normA) * sqrt(normB))
}

func sqrt(x float64) float64 {
	if x == 0 {
		return 0
	}
	z := x
	for i := 0; i < 32; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}

// percentile returns the value at the given fraction (0..1) of sorted
// values, linear-interpolated, matching numpy.percentile's default method
// closely enough for the sessionizer's breakpoint cutoff.
func percentile(values []float64, frac float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := frac * float64(len(sorted)-1)
	lo := int(rank)
	hi := lo + 1
	if hi >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	frac2 := rank - float64(lo)
	return sorted[lo]*(1-frac2) + sorted[hi]*frac2
}
