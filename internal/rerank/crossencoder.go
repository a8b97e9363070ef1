// Package rerank provides second-pass relevance scorers for retrieved
// passages.
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// CrossEncoder calls a cross-encoder reranking service speaking the
// text-embeddings-inference /rerank protocol.
type CrossEncoder struct {
	url    string
	model  string
	http   *http.Client
	logger *slog.Logger
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
	Model string   `json:"model,omitempty"`
}

type rerankResult struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// NewCrossEncoder creates a client for the service at baseURL.
func NewCrossEncoder(baseURL, model string, logger *slog.Logger) *CrossEncoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &CrossEncoder{
		url:    strings.TrimRight(baseURL, "/") + "/rerank",
		model:  model,
		http:   &http.Client{Timeout: 60 * time.Second},
		logger: logger.With("component", "cross-encoder"),
	}
}

// Scores implements retrieval.Scorer.
func (c *CrossEncoder) Scores(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts, Model: c.model})
	if err != nil {
		return nil, err
	}

	var results []rerankResult
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			c.logger.Warn("rerank request failed, retrying", "status", resp.StatusCode)
			return fmt.Errorf("rerank service returned %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("rerank service returned %s: %s", resp.Status, bytes.TrimSpace(msg)))
		}
		return backoff.Permanent(json.NewDecoder(resp.Body).Decode(&results))
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	scores := make([]float64, len(texts))
	seen := make([]bool, len(texts))
	for _, r := range results {
		if r.Index < 0 || r.Index >= len(texts) {
			return nil, fmt.Errorf("rerank result index %d out of range", r.Index)
		}
		scores[r.Index] = r.Score
		seen[r.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("rerank result missing index %d", i)
		}
	}
	return scores, nil
}
