// Package fusion implements Reciprocal Rank Fusion, combining independently
// ranked result lists into one ranking without score calibration.
//
// Ported from the reference's fusion.py: RRF(d) = sum_i w_i / (k + rank_i(d)),
// rank_i 1-based, k=60 by default.
package fusion

import (
	"sort"

	"github.com/vasic-digital/memcore/internal/memcore/errs"
)

// DefaultK is the RRF smoothing constant used when the caller does not
// override it.
const DefaultK = 60

// Ranked is one (doc_id, score) entry in an input ranking. Score is carried
// through to FuseWithMetadata's first-occurrence metadata but does not
// affect the RRF computation itself, which is rank-based.
type Ranked struct {
	DocID string
	Score float64
}

// Fused is one entry of a fused ranking.
type Fused struct {
	DocID string
	Score float64
}

// Fuser computes Reciprocal Rank Fusion over an arbitrary number of input
// rankings.
type Fuser struct {
	K int
}

// NewFuser returns a Fuser using DefaultK.
func NewFuser() *Fuser {
	return &Fuser{K: DefaultK}
}

// Fuse combines rankings with the given weights (nil or empty means equal
// weight 1/n each) and returns results sorted by fused score descending,
// truncated to topK if topK > 0. Ties are broken by the lowest minimum rank
// across inputs, then by lexicographic doc id, so output order is
// deterministic for fixed inputs.
func (f *Fuser) Fuse(rankings [][]Ranked, weights []float64, topK int) ([]Fused, error) {
	k := f.K
	if k <= 0 {
		k = DefaultK
	}

	if len(weights) == 0 {
		weights = make([]float64, len(rankings))
		w := 1.0
		if len(rankings) > 0 {
			w = 1.0 / float64(len(rankings))
		}
		for i := range weights {
			weights[i] = w
		}
	}
	if len(weights) != len(rankings) {
		return nil, errs.Config("fusion: got %d weights for %d rankings", len(weights), len(rankings))
	}

	scores := make(map[string]float64)
	minRank := make(map[string]int)

	for i, ranking := range rankings {
		for rank, entry := range ranking {
			r := rank + 1 // 1-based
			scores[entry.DocID] += weights[i] / float64(k+r)
			if cur, ok := minRank[entry.DocID]; !ok || r < cur {
				minRank[entry.DocID] = r
			}
		}
	}

	out := make([]Fused, 0, len(scores))
	for id, score := range scores {
		out = append(out, Fused{DocID: id, Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if minRank[out[i].DocID] != minRank[out[j].DocID] {
			return minRank[out[i].DocID] < minRank[out[j].DocID]
		}
		return out[i].DocID < out[j].DocID
	})

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// FusedWithMetadata is a Fused entry carrying metadata from the first
// ranking that contained the document.
type FusedWithMetadata struct {
	DocID    string
	Score    float64
	Metadata interface{}
}

// RankedWithMetadata pairs a Ranked entry with arbitrary metadata.
type RankedWithMetadata struct {
	Ranked
	Metadata interface{}
}

// FuseWithMetadata behaves like Fuse but preserves metadata from the first
// ranking that contained each document.
func (f *Fuser) FuseWithMetadata(rankings [][]RankedWithMetadata, weights []float64, topK int) ([]FusedWithMetadata, error) {
	plain := make([][]Ranked, len(rankings))
	meta := make(map[string]interface{})
	for i, ranking := range rankings {
		plain[i] = make([]Ranked, len(ranking))
		for j, entry := range ranking {
			plain[i][j] = entry.Ranked
			if _, seen := meta[entry.DocID]; !seen {
				meta[entry.DocID] = entry.Metadata
			}
		}
	}

	fused, err := f.Fuse(plain, weights, topK)
	if err != nil {
		return nil, err
	}

	out := make([]FusedWithMetadata, len(fused))
	for i, entry := range fused {
		out[i] = FusedWithMetadata{DocID: entry.DocID, Score: entry.Score, Metadata: meta[entry.DocID]}
	}
	return out, nil
}
