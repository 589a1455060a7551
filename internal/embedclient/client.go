// Package embedclient talks to an OpenAI-compatible embeddings endpoint,
// following the retry/backoff shape of Toolkit/Commons/http.Client (bounded
// attempts, exponential backoff from a base duration) adapted to the
// embeddings request/response shape instead of a generic JSON RPC.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vasic-digital/memcore/internal/memcore/errs"
)

// MaxBatchSize is the largest batch Client.EmbedDocuments will send in a
// single request; callers passing more are chunked automatically.
const MaxBatchSize = 64

// Client is an HTTP embeddings client.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	log        *logrus.Logger
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimension  int
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *logrus.Logger
}

// New constructs a Client from cfg, applying defaults for zero-valued
// fields (3 retries, 500ms base delay, 30s HTTP timeout).
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
		log:        cfg.Logger,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingDatum struct {
	Embedding []float32 `json:"embedding"`
	Vector    []float32 `json:"vector"`
	Index     int       `json:"index"`
}

type embeddingResponse struct {
	Data       []embeddingDatum `json:"data"`
	Embeddings []embeddingDatum `json:"embeddings"`
}

// EmbedQuery embeds a single piece of text. An empty string yields a
// zero-vector of the configured dimension without a network call.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return make([]float32, c.dimension), nil
	}
	out, err := c.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedDocuments embeds every text in texts, chunking into batches of at
// most MaxBatchSize and preserving input order in the result.
func (c *Client) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		copy(out[start:end], batch)
	}
	return out, nil
}

func (c *Client) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody, err := json.Marshal(embeddingRequest{Model: c.model, Input: texts})
	if err != nil {
		return nil, errs.Validation("marshal embedding request: %v", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay * time.Duration(1<<uint(attempt-1))
			if delay > 5*time.Second {
				delay = 5 * time.Second
			}
			delay += time.Duration(rand.Int63n(int64(c.baseDelay)))
			select {
			case <-ctx.Done():
				return nil, errs.Cancelled("embed batch: %v", ctx.Err())
			case <-time.After(delay):
			}
		}

		data, err := c.doRequest(ctx, reqBody, len(texts))
		if err == nil {
			return data, nil
		}
		lastErr = err
		if isFatalStatusError(err) {
			return nil, errs.Embedding("embed batch: %v", err)
		}
		c.log.WithFields(logrus.Fields{"attempt": attempt, "error": err}).Warn("embedclient.retry")
	}

	return nil, errs.Embedding("embed batch after %d attempts: %v", c.maxRetries+1, lastErr)
}

// statusError carries the HTTP status code of a failed embeddings call so
// the retry loop can distinguish a fatal client error from a transient one.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("embeddings endpoint returned %d: %s", e.status, e.body)
}

// isFatalStatusError reports whether err is a 4xx response other than 429
// (rate limited), which the embeddings provider never resolves by retrying
// the same request unchanged.
func isFatalStatusError(err error) bool {
	var se *statusError
	if !errors.As(err, &se) {
		return false
	}
	return se.status >= 400 && se.status < 500 && se.status != http.StatusTooManyRequests
}

func (c *Client) doRequest(ctx context.Context, body []byte, wantCount int) ([][]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embeddings endpoint: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embeddings response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{status: resp.StatusCode, body: string(raw)}
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode embeddings response: %w", err)
	}

	data := parsed.Data
	if len(data) == 0 {
		// embeddings[i].vector shape: position gives the index.
		data = parsed.Embeddings
		for i := range data {
			data[i].Index = i
			if len(data[i].Embedding) == 0 {
				data[i].Embedding = data[i].Vector
			}
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("embeddings response contained no data")
	}
	if len(data) != wantCount {
		return nil, fmt.Errorf("embeddings response returned %d vectors for %d inputs", len(data), wantCount)
	}

	out := make([][]float32, len(data))
	for _, d := range data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		if c.dimension > 0 && len(d.Embedding) != c.dimension {
			return nil, fmt.Errorf("embedding at index %d has dimension %d, expected %d", d.Index, len(d.Embedding), c.dimension)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
