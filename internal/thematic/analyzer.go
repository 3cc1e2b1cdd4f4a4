// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package thematic

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/northbound/cil/internal/apperror"
)

const minMessagesToCluster = 10

// TopicCluster is one K-Means cluster of thematically related messages.
type TopicCluster struct {
	ID             int      `json:"id"`
	TopTerms       []string `json:"top_terms"`
	MessageCount   int      `json:"message_count"`
	SampleMessages []string `json:"sample_messages"`
}

type cacheFile struct {
	TenantID int64          `json:"tenant_id"`
	BuiltAt  time.Time      `json:"built_at"`
	Clusters []TopicCluster `json:"clusters"`
}

// Analyzer runs TF-IDF + K-Means clustering for one tenant and persists
// the result to disk so a thematic query doesn't re-cluster on every ask.
type Analyzer struct {
	TenantID int64
	CacheDir string
}

func NewAnalyzer(tenantID int64, cacheDir string) *Analyzer {
	return &Analyzer{TenantID: tenantID, CacheDir: cacheDir}
}

func (a *Analyzer) cachePath() string {
	return filepath.Join(a.CacheDir, fmt.Sprintf("tenant_%d_topics.json", a.TenantID))
}

// Fit clusters messages into topics, sized per §4.4.5's k = min(8, max(3,
// N/10)) rule, and persists the result. Too few messages yields no
// clusters rather than a forced, meaningless grouping.
func (a *Analyzer) Fit(messages []string) ([]TopicCluster, error) {
	if len(messages) < minMessagesToCluster {
		return nil, nil
	}

	k := len(messages) / 10
	if k < 3 {
		k = 3
	}
	if k > 8 {
		k = 8
	}

	var valid []string
	for _, m := range messages {
		if len(strings.TrimSpace(m)) > 20 {
			valid = append(valid, m)
		}
	}
	if len(valid) < k*2 {
		return nil, nil
	}

	vectorizer := Fit(valid)
	if len(vectorizer.Vocabulary) == 0 {
		return nil, nil
	}
	vectors := vectorizer.Transform(valid)

	result := KMeans(vectors, k)

	byCluster := make(map[int][]string, k)
	for i, label := range result.Labels {
		byCluster[label] = append(byCluster[label], valid[i])
	}

	clusters := make([]TopicCluster, 0, k)
	for c := 0; c < len(result.Centroids); c++ {
		topTerms := topTermsForCentroid(result.Centroids[c], vectorizer.Vocabulary, 6)
		samples := byCluster[c]
		sampleCount := 3
		if len(samples) < sampleCount {
			sampleCount = len(samples)
		}
		clusters = append(clusters, TopicCluster{
			ID:             c,
			TopTerms:       topTerms,
			MessageCount:   len(samples),
			SampleMessages: samples[:sampleCount],
		})
	}

	sort.Slice(clusters, func(i, j int) bool { return clusters[i].MessageCount > clusters[j].MessageCount })

	if err := a.save(clusters); err != nil {
		return clusters, apperror.Upstream("thematic.Analyzer.Fit", err)
	}
	return clusters, nil
}

func topTermsForCentroid(centroid []float64, vocab []string, n int) []string {
	type weighted struct {
		term   string
		weight float64
	}
	ranked := make([]weighted, len(vocab))
	for i, term := range vocab {
		ranked[i] = weighted{term, centroid[i]}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].weight > ranked[j].weight })

	if n > len(ranked) {
		n = len(ranked)
	}
	terms := make([]string, n)
	for i := 0; i < n; i++ {
		terms[i] = ranked[i].term
	}
	return terms
}

// save writes the cache via a temp file + rename in the same directory so
// a concurrent reader always sees either the previous snapshot or the
// complete new one, never a partial write (§5).
func (a *Analyzer) save(clusters []TopicCluster) error {
	if err := os.MkdirAll(a.CacheDir, 0o755); err != nil {
		return err
	}
	data := cacheFile{TenantID: a.TenantID, BuiltAt: time.Now(), Clusters: clusters}
	body, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(a.CacheDir, fmt.Sprintf("tenant_%d_topics.*.tmp", a.TenantID))
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, a.cachePath()); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// Load reads the persisted clusters, if any. Returns nil, nil when no
// cache file exists yet for this tenant.
func (a *Analyzer) Load() ([]TopicCluster, error) {
	body, err := os.ReadFile(a.cachePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.Upstream("thematic.Analyzer.Load", err)
	}
	var data cacheFile
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, apperror.Upstream("thematic.Analyzer.Load", err)
	}
	return data.Clusters, nil
}

// Summary renders the clusters as a numbered list of terms + message
// counts, the fallback answer shape when no LLM synthesis is available.
func Summary(clusters []TopicCluster) string {
	var lines []string
	for i, c := range clusters {
		terms := c.TopTerms
		if len(terms) > 4 {
			terms = terms[:4]
		}
		lines = append(lines, fmt.Sprintf("%d. **%s** (%d messages)", i+1, strings.Join(terms, ", "), c.MessageCount))
	}
	return strings.Join(lines, "\n")
}
