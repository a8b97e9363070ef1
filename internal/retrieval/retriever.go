// Package retrieval answers a question with ranked source nodes drawn from
// one or more named indexes.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/bull/docrag/internal/chunking"
	"github.com/bull/docrag/internal/storage"
)

// DefaultTopK is the number of hits kept when a query does not set one.
const DefaultTopK = 12

var (
	ErrEmptyQuestion = errors.New("question must not be empty")
	ErrNoIndexes     = errors.New("at least one index name is required")
	ErrInvalidTopK   = errors.New("similarity_top_k must be positive")
)

// Query is one retrieval request.
type Query struct {
	Question   string
	IndexNames []string
	TopK       int // 0 selects DefaultTopK
}

// SourceNode is a retrieved chunk with its relevance score.
type SourceNode struct {
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Score     float64           `json:"score"`
	IndexName string            `json:"index_name"`
	DocPath   string            `json:"doc_path"`
	Position  int               `json:"position"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	parentID string
}

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Scorer assigns a relevance score to each text for query. Higher is better.
type Scorer interface {
	Scores(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Options tunes post-processing. Zero values select the defaults.
type Options struct {
	// MergeRatio is the share of a parent's children that must be retrieved
	// before they are replaced by the parent. Defaults to 1 (all siblings).
	MergeRatio float64
	// Scorer, when set, reranks the merged candidates.
	Scorer Scorer
	// RerankTopN truncates reranked results; 0 keeps all.
	RerankTopN int
	Logger     *slog.Logger
}

// Retriever runs queries against the vector store.
type Retriever struct {
	embedder QueryEmbedder
	opener   storage.Opener
	docs     *storage.DocStore
	opts     Options
	logger   *slog.Logger
}

// New creates a Retriever.
func New(embedder QueryEmbedder, opener storage.Opener, docs *storage.DocStore, opts Options) *Retriever {
	if opts.MergeRatio <= 0 || opts.MergeRatio > 1 {
		opts.MergeRatio = 1
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		opener:   opener,
		docs:     docs,
		opts:     opts,
		logger:   opts.Logger.With("component", "retriever"),
	}
}

// Retrieve returns at most TopK source nodes (or RerankTopN after
// reranking), highest score first. Unknown indexes fail with
// storage.ErrIndexNotFound before the question is embedded.
func (r *Retriever) Retrieve(ctx context.Context, q Query) ([]SourceNode, error) {
	names, topK, err := validate(q)
	if err != nil {
		return nil, err
	}

	store, err := r.opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	manifests := make(map[string]*storage.IndexManifest, len(names))
	for _, name := range names {
		exists, err := store.CollectionExists(ctx, name)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: %s", storage.ErrIndexNotFound, name)
		}
		m, err := r.docs.Manifest(ctx, name)
		switch {
		case errors.Is(err, storage.ErrManifestNotFound):
			m = &storage.IndexManifest{Name: name, Strategy: string(chunking.StrategyBasic)}
		case err != nil:
			return nil, err
		}
		manifests[name] = m
	}

	vector, err := r.embedder.EmbedQuery(ctx, q.Question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	var results []SourceNode
	for _, name := range names {
		hits, err := store.Search(ctx, name, vector, topK)
		if err != nil {
			return nil, err
		}
		nodes := make([]SourceNode, len(hits))
		for i, h := range hits {
			nodes[i] = SourceNode{
				ID:        h.ID,
				Text:      h.Text,
				Score:     h.Score,
				IndexName: name,
				DocPath:   h.DocPath,
				Position:  h.Position,
				Metadata:  h.Metadata,
				parentID:  h.ParentID,
			}
		}

		m := manifests[name]
		switch chunking.Strategy(m.Strategy) {
		case chunking.StrategyAutoMerging:
			nodes, err = r.autoMerge(ctx, name, nodes, len(m.ChunkSizes))
			if err != nil {
				return nil, err
			}
		case chunking.StrategySentenceWindow:
			replaceWithWindow(nodes)
		}
		r.logger.Debug("searched index", "index", name, "strategy", m.Strategy, "hits", len(hits), "nodes", len(nodes))
		results = append(results, nodes...)
	}

	sortByScore(results)
	if len(results) > topK {
		results = results[:topK]
	}

	if r.opts.Scorer != nil && len(results) > 0 {
		if results, err = r.rerank(ctx, q.Question, results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func validate(q Query) ([]string, int, error) {
	if strings.TrimSpace(q.Question) == "" {
		return nil, 0, ErrEmptyQuestion
	}
	topK := q.TopK
	switch {
	case topK == 0:
		topK = DefaultTopK
	case topK < 0:
		return nil, 0, fmt.Errorf("%w: %d", ErrInvalidTopK, topK)
	}

	seen := make(map[string]bool, len(q.IndexNames))
	var names []string
	for _, name := range q.IndexNames {
		if seen[name] {
			continue
		}
		if err := storage.ValidateIndexName(name); err != nil {
			return nil, 0, err
		}
		seen[name] = true
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, 0, ErrNoIndexes
	}
	return names, topK, nil
}

// replaceWithWindow swaps each sentence for its stored surrounding window.
func replaceWithWindow(nodes []SourceNode) {
	for i := range nodes {
		if w := nodes[i].Metadata[chunking.MetaWindow]; w != "" {
			nodes[i].Text = w
		}
	}
}

func (r *Retriever) rerank(ctx context.Context, question string, nodes []SourceNode) ([]SourceNode, error) {
	texts := make([]string, len(nodes))
	for i := range nodes {
		texts[i] = nodes[i].Text
	}
	scores, err := r.opts.Scorer.Scores(ctx, question, texts)
	if err != nil {
		return nil, fmt.Errorf("rerank: %w", err)
	}
	if len(scores) != len(nodes) {
		return nil, fmt.Errorf("rerank: got %d scores for %d nodes", len(scores), len(nodes))
	}
	for i := range nodes {
		nodes[i].Score = scores[i]
	}
	sortByScore(nodes)
	if n := r.opts.RerankTopN; n > 0 && len(nodes) > n {
		nodes = nodes[:n]
	}
	return nodes, nil
}

func sortByScore(nodes []SourceNode) {
	sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Score > nodes[j].Score })
}
