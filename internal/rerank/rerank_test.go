package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRerankSortsDescendingByScore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		scores := make([]float64, len(req.Documents))
		for i, d := range req.Documents {
			if d == "relevant" {
				scores[i] = 0.95
			} else {
				scores[i] = 0.1
			}
		}
		_ = json.NewEncoder(w).Encode(scoreResponse{Scores: scores})
	}))
	defer server.Close()

	rr := NewHTTPReranker(server.URL, 0, 0)
	out, err := rr.Rerank(context.Background(), "q", []Candidate{
		{DocID: "a", Content: "irrelevant"},
		{DocID: "b", Content: "relevant"},
	}, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].DocID)
}

func TestRerankRespectsTopK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		scores := make([]float64, len(req.Documents))
		_ = json.NewEncoder(w).Encode(scoreResponse{Scores: scores})
	}))
	defer server.Close()

	rr := NewHTTPReranker(server.URL, 0, 0)
	out, err := rr.Rerank(context.Background(), "q", []Candidate{
		{DocID: "a"}, {DocID: "b"}, {DocID: "c"},
	}, 2)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestRerankEmptyCandidatesReturnsNil(t *testing.T) {
	rr := NewHTTPReranker("http://unused.invalid", 0, 0)
	out, err := rr.Rerank(context.Background(), "q", nil, 10)
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestRerankBatchesAcrossMultipleRequests(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req scoreRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		scores := make([]float64, len(req.Documents))
		_ = json.NewEncoder(w).Encode(scoreResponse{Scores: scores})
	}))
	defer server.Close()

	rr := NewHTTPReranker(server.URL, 2, 0)
	candidates := make([]Candidate, 5)
	for i := range candidates {
		candidates[i] = Candidate{DocID: "d"}
	}
	_, err := rr.Rerank(context.Background(), "q", candidates, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestHybridRetrieverWithRerankingOverRetrievesThenReranks(t *testing.T) {
	search := func(ctx context.Context, query string, topK int) ([]Candidate, error) {
		assert.Equal(t, DefaultRerankTopK, topK)
		return []Candidate{{DocID: "a", Content: "x"}, {DocID: "b", Content: "y"}}, nil
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scoreRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		scores := make([]float64, len(req.Documents))
		for i := range scores {
			scores[i] = float64(len(scores) - i)
		}
		_ = json.NewEncoder(w).Encode(scoreResponse{Scores: scores})
	}))
	defer server.Close()

	h := NewHybridRetrieverWithReranking(search, NewHTTPReranker(server.URL, 0, 0), 0)
	out, err := h.Query(context.Background(), "q", 1)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "a", out[0].DocID)
}
