// Package rerank scores (query, candidate) pairs with a cross-encoder,
// applied as the final precision pass after hybrid fusion.
//
// Ported from original_source/core/rag/reranker.py's CrossEncoderReranker
// and HybridRetrieverWithReranking. The reference lazily loads a local
// HuggingFace model on first use; a Go process has no equivalent in-process
// model runtime, so Reranker here is an HTTP client to an external
// cross-encoder scoring service, with the same lazy-initialization shape
// (sync.Once) standing in for the reference's lazy model load.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/vasic-digital/memcore/internal/memcore/errs"
)

// DefaultRerankTopK is how many fusion candidates HybridRetrieverWithReranking
// sends to the cross-encoder before truncating to the caller's requested
// top_k, matching the reference's rerank_top_k=100 default.
const DefaultRerankTopK = 100

// Candidate is one (doc_id, initial_score, content) tuple from hybrid
// retrieval, the reranker's input shape.
type Candidate struct {
	DocID   string
	Score   float64
	Content string
}

// Reranked is a Candidate with its cross-encoder score, after sorting.
type Reranked struct {
	DocID   string
	Score   float64
	Content string
}

// Reranker scores query/document pairs with a cross-encoder.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Reranked, error)
}

// HTTPReranker calls an external cross-encoder scoring endpoint. The
// endpoint's connection is established lazily on first Rerank call via
// once, not at construction, mirroring the reference's _load_model pattern
// of paying initialization cost only when the reranker is actually used.
type HTTPReranker struct {
	baseURL   string
	batchSize int
	timeout   time.Duration

	once       sync.Once
	httpClient *http.Client
}

// NewHTTPReranker constructs an HTTPReranker. batchSize <= 0 defaults to 32
// (the reference's default), timeout <= 0 defaults to 10s.
func NewHTTPReranker(baseURL string, batchSize int, timeout time.Duration) *HTTPReranker {
	if batchSize <= 0 {
		batchSize = 32
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPReranker{baseURL: baseURL, batchSize: batchSize, timeout: timeout}
}

func (r *HTTPReranker) ensureClient() {
	r.once.Do(func() {
		r.httpClient = &http.Client{Timeout: r.timeout}
	})
}

type scoreRequest struct {
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank scores every candidate against query in batches of batchSize, sorts
// descending by score, and truncates to topK (topK <= 0 returns all).
func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Reranked, error) {
	if len(candidates) == 0 {
		return nil, nil
	}
	r.ensureClient()

	out := make([]Reranked, len(candidates))
	for start := 0; start < len(candidates); start += r.batchSize {
		end := start + r.batchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		docs := make([]string, len(batch))
		for i, c := range batch {
			docs[i] = c.Content
		}

		scores, err := r.scoreBatch(ctx, query, docs)
		if err != nil {
			return nil, err
		}
		for i, c := range batch {
			score := 0.0
			if i < len(scores) {
				score = scores[i]
			}
			out[start+i] = Reranked{DocID: c.DocID, Score: score, Content: c.Content}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

func (r *HTTPReranker) scoreBatch(ctx context.Context, query string, documents []string) ([]float64, error) {
	body, err := json.Marshal(scoreRequest{Query: query, Documents: documents})
	if err != nil {
		return nil, errs.Validation("marshal rerank request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, errs.Embedding("call rerank endpoint: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read rerank response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.Embedding("rerank endpoint returned %d: %s", resp.StatusCode, string(raw))
	}

	var parsed scoreResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return parsed.Scores, nil
}

// HybridRetrieverWithReranking composes a hybrid fusion search with a final
// cross-encoder reranking pass, ported from the reference class of the
// same name.
type HybridRetrieverWithReranking struct {
	Search     func(ctx context.Context, query string, topK int) ([]Candidate, error)
	Reranker   Reranker
	RerankTopK int
}

// NewHybridRetrieverWithReranking constructs the composition. rerankTopK
// <= 0 defaults to DefaultRerankTopK.
func NewHybridRetrieverWithReranking(search func(ctx context.Context, query string, topK int) ([]Candidate, error), reranker Reranker, rerankTopK int) *HybridRetrieverWithReranking {
	if rerankTopK <= 0 {
		rerankTopK = DefaultRerankTopK
	}
	return &HybridRetrieverWithReranking{Search: search, Reranker: reranker, RerankTopK: rerankTopK}
}

// Query over-retrieves RerankTopK fusion candidates, then reranks and
// truncates to topK.
func (h *HybridRetrieverWithReranking) Query(ctx context.Context, query string, topK int) ([]Reranked, error) {
	candidates, err := h.Search(ctx, query, h.RerankTopK)
	if err != nil {
		return nil, err
	}
	return h.Reranker.Rerank(ctx, query, candidates, topK)
}
