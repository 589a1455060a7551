package embedclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbedQueryEmptyTextSkipsNetwork(t *testing.T) {
	c := New(Config{BaseURL: "http://unused.invalid", Model: "test-model", Dimension: 4})
	out, err := c.EmbedQuery(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 0, 0, 0}, out)
}

func TestEmbedDocumentsParsesDataField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := embeddingResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, embeddingDatum{Embedding: []float32{float32(i), float32(i) + 1}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Model: "test-model", Dimension: 2})
	out, err := c.EmbedDocuments(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []float32{0, 1}, out[0])
	assert.Equal(t, []float32{1, 2}, out[1])
}

func TestEmbedDocumentsChunksIntoBatches(t *testing.T) {
	var callCount int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&callCount, 1)
		var req embeddingRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := embeddingResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, embeddingDatum{Embedding: []float32{1}, Index: i})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	texts := make([]string, MaxBatchSize+5)
	for i := range texts {
		texts[i] = "doc"
	}

	c := New(Config{BaseURL: server.URL, Model: "test-model", Dimension: 1})
	out, err := c.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, out, len(texts))
	assert.Equal(t, int64(2), atomic.LoadInt64(&callCount))
}

func TestEmbedBatchRetriesOnFailureThenSucceeds(t *testing.T) {
	var attempt int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&attempt, 1)
		if n < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		resp := embeddingResponse{Data: []embeddingDatum{{Embedding: []float32{9}, Index: 0}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Model: "m", Dimension: 1, BaseDelay: time.Millisecond})
	out, err := c.EmbedDocuments(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []float32{9}, out[0])
}

func TestEmbedBatchFailsAfterExhaustingRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Model: "m", Dimension: 1, MaxRetries: 1, BaseDelay: time.Millisecond})
	_, err := c.EmbedDocuments(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestEmbedBatchDoesNotRetryOn4xxExceptTooManyRequests(t *testing.T) {
	var calls int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Model: "m", Dimension: 1, MaxRetries: 3, BaseDelay: time.Millisecond})
	_, err := c.EmbedDocuments(context.Background(), []string{"x"})
	assert.Error(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls), "a 4xx other than 429 must not be retried")
}

func TestEmbedBatchRetriesOnTooManyRequests(t *testing.T) {
	var attempt int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt64(&attempt, 1)
		if n < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		resp := embeddingResponse{Data: []embeddingDatum{{Embedding: []float32{9}, Index: 0}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Model: "m", Dimension: 1, BaseDelay: time.Millisecond})
	out, err := c.EmbedDocuments(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, []float32{9}, out[0])
}

func TestDoRequestSetsBothAuthHeaders(t *testing.T) {
	var gotBearer, gotAPIKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBearer = r.Header.Get("Authorization")
		gotAPIKey = r.Header.Get("apikey")
		resp := embeddingResponse{Data: []embeddingDatum{{Embedding: []float32{1}, Index: 0}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, APIKey: "secret-key", Model: "m", Dimension: 1})
	_, err := c.EmbedDocuments(context.Background(), []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-key", gotBearer)
	assert.Equal(t, "secret-key", gotAPIKey)
}

func TestEmbedBatchRejectsDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{Data: []embeddingDatum{{Embedding: []float32{1, 2, 3}, Index: 0}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Model: "m", Dimension: 4, MaxRetries: 0})
	_, err := c.EmbedDocuments(context.Background(), []string{"x"})
	assert.Error(t, err)
}

func TestEmbedBatchRejectsResponseLengthMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := embeddingResponse{Data: []embeddingDatum{{Embedding: []float32{1}, Index: 0}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	c := New(Config{BaseURL: server.URL, Model: "m", Dimension: 1, MaxRetries: 0})
	_, err := c.EmbedDocuments(context.Background(), []string{"x", "y"})
	assert.Error(t, err)
}
