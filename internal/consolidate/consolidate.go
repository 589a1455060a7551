// Package consolidate implements the memory consolidation policy: semantic
// deduplication via single-link clustering over cosine similarity, time-based
// importance decay, and (optionally, when over a compression threshold)
// salience-ranked trimming.
//
// Ported from original_source/core/memory/policies/consolidation.py.
package consolidate

import (
	"crypto/md5"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/vasic-digital/memcore/internal/memcore"
)

// Config mirrors the reference's ConsolidationConfig.
type Config struct {
	SimilarityThreshold  float64
	UseSemanticDedup     bool
	EnableDecay          bool
	DecayHalfLifeDays    float64
	MinImportance        float64
	EnableCompression    bool
	CompressionThreshold int
	MaxMemoriesPerUser   int
}

// DefaultConfig matches the reference's dataclass defaults.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold:  0.92,
		UseSemanticDedup:     true,
		EnableDecay:          true,
		DecayHalfLifeDays:    30.0,
		MinImportance:        0.1,
		EnableCompression:    false,
		CompressionThreshold: 50,
		MaxMemoriesPerUser:   10000,
	}
}

// CosineSimilarity returns the cosine similarity of two vectors in [0, 1]
// for typical embeddings (negative values are possible for arbitrary
// vectors but not considered a duplicate match here, matching the
// reference's plain dot-product-over-norms formula). Mismatched lengths or
// empty vectors return 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
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
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// FindSemanticDuplicates performs greedy single-link clustering: for each
// unvisited record, it starts a new cluster and absorbs every later record
// whose similarity to the cluster's first member meets threshold. Records
// without embeddings are ignored entirely (they never join or seed a
// cluster, and are not returned). Clusters of size 1 are dropped.
func FindSemanticDuplicates(records []memcore.MemoryRecord, threshold float64) [][]memcore.MemoryRecord {
	var withEmbeddings []memcore.MemoryRecord
	for _, r := range records {
		if len(r.Embedding) > 0 {
			withEmbeddings = append(withEmbeddings, r)
		}
	}
	if len(withEmbeddings) < 2 {
		return nil
	}

	visited := make([]bool, len(withEmbeddings))
	var clusters [][]memcore.MemoryRecord

	for i := range withEmbeddings {
		if visited[i] {
			continue
		}
		cluster := []memcore.MemoryRecord{withEmbeddings[i]}
		visited[i] = true

		for j := i + 1; j < len(withEmbeddings); j++ {
			if visited[j] {
				continue
			}
			if CosineSimilarity(withEmbeddings[i].Embedding, withEmbeddings[j].Embedding) >= threshold {
				cluster = append(cluster, withEmbeddings[j])
				visited[j] = true
			}
		}

		if len(cluster) > 1 {
			clusters = append(clusters, cluster)
		}
	}
	return clusters
}

// MergeDuplicateRecords merges a cluster of duplicates into one record: the
// member with the highest salience (ties broken by most recent CreatedAt)
// becomes the base; tags union across the cluster; confidence is the mean
// of all members'; the merged ID is deterministic,
// "merged_" + md5(base.Text)[:12], so re-running consolidation on an
// already-merged set is idempotent.
func MergeDuplicateRecords(duplicates []memcore.MemoryRecord) (memcore.MemoryRecord, error) {
	if len(duplicates) == 0 {
		return memcore.MemoryRecord{}, fmt.Errorf("consolidate: cannot merge empty list")
	}
	if len(duplicates) == 1 {
		return duplicates[0], nil
	}

	sorted := append([]memcore.MemoryRecord(nil), duplicates...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Salience != sorted[j].Salience {
			return sorted[i].Salience > sorted[j].Salience
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	base := sorted[0]

	tagSet := make(map[string]bool)
	for _, t := range base.Tags {
		tagSet[t] = true
	}
	for _, r := range sorted[1:] {
		for _, t := range r.Tags {
			tagSet[t] = true
		}
	}
	allTags := make([]string, 0, len(tagSet))
	for t := range tagSet {
		allTags = append(allTags, t)
	}
	sort.Strings(allTags)

	mergedMetadata := make(map[string]interface{}, len(base.Metadata)+2)
	for k, v := range base.Metadata {
		mergedMetadata[k] = v
	}
	mergedFrom := make([]string, 0, len(sorted))
	for _, r := range sorted {
		if r.ID != "" {
			mergedFrom = append(mergedFrom, r.ID)
		}
	}
	mergedMetadata["merged_from"] = mergedFrom
	mergedMetadata["merge_count"] = len(sorted)

	var confidenceSum float64
	var confidenceCount int
	for _, r := range sorted {
		confidenceSum += r.Confidence
		confidenceCount++
	}
	avgConfidence := 0.7
	if confidenceCount > 0 {
		avgConfidence = confidenceSum / float64(confidenceCount)
	}

	sum := md5.Sum([]byte(base.Text))
	mergedID := fmt.Sprintf("merged_%x", sum)[:len("merged_")+12]

	return memcore.MemoryRecord{
		ID:         mergedID,
		UserID:     base.UserID,
		Type:       base.Type,
		Text:       base.Text,
		Embedding:  base.Embedding,
		Salience:   base.Salience,
		Confidence: avgConfidence,
		Source:     base.Source,
		Tags:       allTags,
		Metadata:   mergedMetadata,
		CreatedAt:  base.CreatedAt,
	}, nil
}

// CalculateDecay returns the exponential time-decay factor
// 0.5^(age_days/half_life_days), floored at minImportance. An age <= 0
// (future-dated or just-created record) yields 1.0.
func CalculateDecay(createdAt time.Time, halfLifeDays, minImportance float64, referenceTime time.Time) float64 {
	ageDays := referenceTime.Sub(createdAt).Hours() / 24.0
	if ageDays <= 0 {
		return 1.0
	}
	decay := math.Pow(0.5, ageDays/halfLifeDays)
	if decay < minImportance {
		return minImportance
	}
	return decay
}

// ApplyImportanceDecay mutates a copy of records' Salience in place per
// CalculateDecay, relative to now. Records with a zero CreatedAt are left
// unchanged.
func ApplyImportanceDecay(records []memcore.MemoryRecord, halfLifeDays, minImportance float64, now time.Time) []memcore.MemoryRecord {
	out := make([]memcore.MemoryRecord, len(records))
	for i, r := range records {
		if !r.CreatedAt.IsZero() {
			decay := CalculateDecay(r.CreatedAt, halfLifeDays, minImportance, now)
			newSalience := r.Salience * decay
			if newSalience < minImportance {
				newSalience = minImportance
			}
			r.Salience = newSalience
		}
		out[i] = r
	}
	return out
}

// Result reports what a Consolidate call did, mirroring the reference's
// ConsolidationResult/ConsolidateStats.
type Result struct {
	Deduplicated int
	Decayed      int
	Merged       int
	Compressed   int
	TotalBefore  int
	TotalAfter   int
	Clusters     [][]string
}

// Policy runs the consolidation pipeline: decay, then semantic dedup (or
// exact-text dedup as a fallback), then an optional salience-ranked
// compression pass.
type Policy struct {
	Config Config
	Now    func() time.Time
}

// NewPolicy constructs a Policy with cfg and time.Now as its clock.
func NewPolicy(cfg Config) *Policy {
	return &Policy{Config: cfg, Now: time.Now}
}

// Consolidate runs the full pipeline over records, optionally filtering to
// userID first (empty string means no filter).
func (p *Policy) Consolidate(records []memcore.MemoryRecord, userID string) ([]memcore.MemoryRecord, Result) {
	result := Result{TotalBefore: len(records)}

	if userID != "" {
		filtered := make([]memcore.MemoryRecord, 0, len(records))
		for _, r := range records {
			if r.UserID == userID {
				filtered = append(filtered, r)
			}
		}
		records = filtered
	}

	if len(records) == 0 {
		return nil, result
	}

	now := time.Now().UTC()
	if p.Now != nil {
		now = p.Now()
	}

	if p.Config.EnableDecay {
		records = ApplyImportanceDecay(records, p.Config.DecayHalfLifeDays, p.Config.MinImportance, now)
		result.Decayed = len(records)
	}

	var consolidated []memcore.MemoryRecord

	if p.Config.UseSemanticDedup {
		clusters := FindSemanticDuplicates(records, p.Config.SimilarityThreshold)

		clusteredIDs := make(map[string]bool)
		for _, cluster := range clusters {
			for _, r := range cluster {
				if r.ID != "" {
					clusteredIDs[r.ID] = true
				}
			}
		}

		for _, r := range records {
			if !clusteredIDs[r.ID] {
				consolidated = append(consolidated, r)
			}
		}

		for _, cluster := range clusters {
			merged, err := MergeDuplicateRecords(cluster)
			if err != nil {
				continue
			}
			consolidated = append(consolidated, merged)
			result.Merged += len(cluster) - 1

			ids := make([]string, len(cluster))
			for i, r := range cluster {
				ids[i] = r.ID
			}
			result.Clusters = append(result.Clusters, ids)
		}
		result.Deduplicated = result.Merged
	} else {
		type key struct {
			userID, typ, text string
		}
		seen := make(map[key]bool)
		for _, r := range records {
			k := key{r.UserID, string(r.Type), r.Text}
			if seen[k] {
				result.Deduplicated++
				continue
			}
			seen[k] = true
			consolidated = append(consolidated, r)
		}
	}

	if p.Config.EnableCompression && len(consolidated) > p.Config.CompressionThreshold {
		before := len(consolidated)
		consolidated = compressBySalience(consolidated, p.Config.MaxMemoriesPerUser)
		result.Compressed = before - len(consolidated)
	}

	result.TotalAfter = len(consolidated)
	return consolidated, result
}

// compressBySalience keeps the top maxRecords by salience, matching the
// reference's placeholder compression (real LLM-based summarization is not
// wired in since no pack dependency provides it).
func compressBySalience(records []memcore.MemoryRecord, maxRecords int) []memcore.MemoryRecord {
	sorted := append([]memcore.MemoryRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Salience > sorted[j].Salience })
	if maxRecords > 0 && len(sorted) > maxRecords {
		sorted = sorted[:maxRecords]
	}
	return sorted
}
