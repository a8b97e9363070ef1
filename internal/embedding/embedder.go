package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/openai/openai-go"
	"github.com/panjf2000/ants/v2"
)

const (
	// DefaultModel is used when no embedding model is configured.
	DefaultModel = "text-embedding-3-small"

	// DefaultBatchSize balances requests-per-minute vs tokens-per-minute rate limits.
	// OpenAI supports up to 2048 texts per batch, but smaller batches reduce TPM pressure.
	DefaultBatchSize = 500

	// DefaultConcurrency is the number of batches in flight at once.
	DefaultConcurrency = 4
)

// ErrEmptyEmbedding is returned when the provider answers with fewer vectors
// than inputs.
var ErrEmptyEmbedding = errors.New("embedding response incomplete")

// Options configures an Embedder. Zero values select the defaults.
type Options struct {
	Model       string
	BatchSize   int
	Concurrency int
	Logger      *slog.Logger
}

// Embedder generates embeddings through an OpenAI-compatible endpoint.
// Batches run concurrently on a bounded worker pool and retry with
// exponential backoff on rate limit errors.
type Embedder struct {
	client    *Client
	model     string
	batchSize int
	pool      *ants.Pool
	logger    *slog.Logger
}

// NewEmbedder creates an Embedder. Call Release when done.
func NewEmbedder(client *Client, opts Options) (*Embedder, error) {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	pool, err := ants.NewPool(opts.Concurrency)
	if err != nil {
		return nil, fmt.Errorf("create embedding pool: %w", err)
	}

	return &Embedder{
		client:    client,
		model:     opts.Model,
		batchSize: opts.BatchSize,
		pool:      pool,
		logger:    opts.Logger.With("component", "embedder"),
	}, nil
}

// Release stops the worker pool.
func (e *Embedder) Release() {
	e.pool.Release()
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.model
}

// GenerateEmbeddings returns one vector per text, in input order.
func (e *Embedder) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := make([][]float32, len(texts))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i := 0; i < len(texts); i += e.batchSize {
		start, end := i, min(i+e.batchSize, len(texts))
		wg.Add(1)
		err := e.pool.Submit(func() {
			defer wg.Done()
			vectors, err := e.embedBatchWithRetry(ctx, texts[start:end])
			if err != nil {
				fail(fmt.Errorf("batch %d-%d: %w", start, end, err))
				return
			}
			copy(out[start:end], vectors)
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("submit batch %d-%d: %w", start, end, err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	e.logger.Debug("generated embeddings", "count", len(out), "model", e.model)
	return out, nil
}

// EmbedQuery embeds a single query string.
func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embedBatchWithRetry(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatchWithRetry generates embeddings for a single batch with retry logic.
// Retries with exponential backoff on rate limit errors (HTTP 429).
// Other errors are treated as permanent and fail immediately.
func (e *Embedder) embedBatchWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32

	operation := func() error {
		resp, err := e.client.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{
				OfArrayOfStrings: texts,
			},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			if isRateLimitError(err) {
				e.logger.Warn("embedding rate limited, retrying", "batch", len(texts))
				return err
			}
			return backoff.Permanent(err)
		}
		if len(resp.Data) != len(texts) {
			return backoff.Permanent(fmt.Errorf("%w: got %d vectors for %d texts",
				ErrEmptyEmbedding, len(resp.Data), len(texts)))
		}

		// Results carry their input index; do not rely on response order.
		embeddings = make([][]float32, len(texts))
		for _, data := range resp.Data {
			idx := int(data.Index)
			if idx < 0 || idx >= len(texts) {
				return backoff.Permanent(fmt.Errorf("%w: index %d out of range", ErrEmptyEmbedding, idx))
			}
			embeddings[idx] = toFloat32(data.Embedding)
		}
		for i, v := range embeddings {
			if len(v) == 0 {
				return backoff.Permanent(fmt.Errorf("%w: missing vector %d", ErrEmptyEmbedding, i))
			}
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(operation, backoff.WithContext(b, ctx))
	return embeddings, err
}

// isRateLimitError checks if the error is a rate limit error (HTTP 429).
func isRateLimitError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429
	}
	return false
}

// toFloat32 converts []float64 to []float32.
// OpenAI API returns float64, but storage uses float32 for memory efficiency.
func toFloat32(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}
