// Package sparse implements Okapi BM25 keyword retrieval over an in-memory
// corpus. No Go dependency in the reference stack provides BM25, so the
// scoring math here is written directly from the Okapi formula, following
// the parameters and API shape of the reference's rank_bm25-backed
// BM25Retriever (sparse_retrieval.py): k1=1.5, b=0.75, default tokenizer
// lowercase+whitespace-split.
package sparse

import (
	"math"
	"sort"
	"strings"
	"sync"
)

const (
	defaultK1 = 1.5
	defaultB  = 0.75
)

// Tokenizer splits a document or query into terms. The default lowercases
// and splits on whitespace.
type Tokenizer func(text string) []string

// DefaultTokenizer lowercases and whitespace-splits text.
func DefaultTokenizer(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// Scored is a (document text, BM25 score) search result.
type Scored struct {
	Text  string
	Score float64
}

// Stats summarizes the current index.
type Stats struct {
	DocumentCount  int
	AvgDocLength   float64
	TotalTokens    int
}

// Retriever is a mutable, in-memory BM25 index. Writers (Build, UpdateIndex)
// must hold the exclusive lock; readers (Search, Stats) hold the shared
// lock, matching the reference's single-writer/many-reader discipline for
// an index that is rebuilt, not incrementally merged.
type Retriever struct {
	k1, b     float64
	tokenizer Tokenizer

	mu        sync.RWMutex
	documents []string
	tokenized [][]string
	docFreq   map[string]int
	avgLen    float64
}

// New creates an empty BM25 retriever with default k1/b and tokenizer.
func New() *Retriever {
	return &Retriever{k1: defaultK1, b: defaultB, tokenizer: DefaultTokenizer}
}

// WithTokenizer overrides the tokenizer used by Build/UpdateIndex/Search.
func (r *Retriever) WithTokenizer(t Tokenizer) *Retriever {
	r.tokenizer = t
	return r
}

// Build replaces the index with the given documents.
func (r *Retriever) Build(documents []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = append([]string(nil), documents...)
	r.rebuildLocked()
}

// UpdateIndex appends newDocs and rebuilds the index. Rebuild is O(N) and
// expected to run offline/out-of-band, as in the reference implementation.
func (r *Retriever) UpdateIndex(newDocs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.documents = append(r.documents, newDocs...)
	r.rebuildLocked()
}

func (r *Retriever) rebuildLocked() {
	r.tokenized = make([][]string, len(r.documents))
	r.docFreq = make(map[string]int)
	totalLen := 0

	for i, doc := range r.documents {
		terms := r.tokenizer(doc)
		r.tokenized[i] = terms
		totalLen += len(terms)

		seen := make(map[string]bool, len(terms))
		for _, t := range terms {
			if !seen[t] {
				r.docFreq[t]++
				seen[t] = true
			}
		}
	}

	if len(r.documents) > 0 {
		r.avgLen = float64(totalLen) / float64(len(r.documents))
	} else {
		r.avgLen = 0
	}
}

// Search returns the topK highest-scoring documents for query, descending by
// score. Zero-overlap queries return an empty (not nil-error) result.
func (r *Retriever) Search(query string, topK int) []Scored {
	r.mu.RLock()
	defer r.mu.RUnlock()

	queryTerms := r.tokenizer(query)
	if len(r.documents) == 0 || len(queryTerms) == 0 {
		return []Scored{}
	}

	n := float64(len(r.documents))
	scores := make([]Scored, 0, len(r.documents))

	for i, doc := range r.documents {
		score := 0.0
		terms := r.tokenized[i]
		termFreq := make(map[string]int, len(terms))
		for _, t := range terms {
			termFreq[t]++
		}
		docLen := float64(len(terms))

		for _, qt := range queryTerms {
			df := r.docFreq[qt]
			if df == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df)+0.5)/(float64(df)+0.5))
			tf := float64(termFreq[qt])
			denom := tf + r.k1*(1-r.b+r.b*docLen/maxFloat(r.avgLen, 1))
			if denom == 0 {
				continue
			}
			score += idf * (tf * (r.k1 + 1)) / denom
		}

		if score > 0 {
			scores = append(scores, Scored{Text: doc, Score: score})
		}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].Text < scores[j].Text
	})

	if topK > 0 && len(scores) > topK {
		scores = scores[:topK]
	}
	return scores
}

// Stats returns index-size statistics.
func (r *Retriever) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, terms := range r.tokenized {
		total += len(terms)
	}
	return Stats{
		DocumentCount: len(r.documents),
		AvgDocLength:  r.avgLen,
		TotalTokens:   total,
	}
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
