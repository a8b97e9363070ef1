// Package indexer builds and removes named indexes: a vector-store
// collection holding embedded nodes plus a manifest (and, for auto-merging
// indexes, the full node hierarchy) in the document store.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bull/docrag/internal/chunking"
	"github.com/bull/docrag/internal/loader"
	"github.com/bull/docrag/internal/storage"
)

var (
	// ErrIndexExists is returned when the target collection exists and the
	// request does not allow overwriting it.
	ErrIndexExists = errors.New("index already exists")

	// ErrNoContent is returned when the inputs split into zero nodes.
	ErrNoContent = errors.New("input files contain no indexable text")
)

// Embedder generates one vector per input text, in order.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Request describes one index build.
type Request struct {
	Input     loader.Input
	IndexName string
	// IndexType is one of basic, automerging or sentence_window.
	IndexType string

	ChunkSize    int   // basic; 0 selects chunking.DefaultChunkSize
	ChunkOverlap int   // basic
	ChunkSizes   []int // automerging; empty selects chunking.DefaultChunkSizes
	WindowSize   int   // sentence_window; 0 selects chunking.DefaultWindowSize

	// Overwrite allows replacing an existing index of the same name.
	Overwrite bool
}

// Result contains statistics about a build.
type Result struct {
	IndexName   string
	Strategy    chunking.Strategy
	NumFiles    int
	NumNodes    int
	NumEmbedded int
	Replaced    bool
	Duration    time.Duration
}

// Builder orchestrates load, split, embed and store.
type Builder struct {
	loader   *loader.Loader
	embedder Embedder
	opener   storage.Opener
	docs     *storage.DocStore
	logger   *slog.Logger
}

// NewBuilder creates a Builder with the given components.
func NewBuilder(
	ld *loader.Loader,
	embedder Embedder,
	opener storage.Opener,
	docs *storage.DocStore,
	logger *slog.Logger,
) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		loader:   ld,
		embedder: embedder,
		opener:   opener,
		docs:     docs,
		logger:   logger.With("component", "indexer"),
	}
}

// Build creates or replaces the index named by req. Validation failures,
// an empty input set and a refused overwrite all return before anything is
// mutated. Once the old index is dropped there is no rollback.
func (b *Builder) Build(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()

	strategy, err := chunking.ParseStrategy(req.IndexType)
	if err != nil {
		return nil, err
	}
	if err := storage.ValidateIndexName(req.IndexName); err != nil {
		return nil, err
	}
	splitter, manifest, err := newSplitter(strategy, req)
	if err != nil {
		return nil, err
	}

	files, err := b.loader.Resolve(ctx, req.Input)
	if err != nil {
		return nil, err
	}

	store, err := b.opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	exists, err := store.CollectionExists(ctx, req.IndexName)
	if err != nil {
		return nil, err
	}
	if exists && !req.Overwrite {
		return nil, fmt.Errorf("%w: %s (set overwrite to replace it)", ErrIndexExists, req.IndexName)
	}

	b.logger.Info("Starting index build",
		"index", req.IndexName, "strategy", strategy, "files", len(files))

	docs, err := b.loader.Load(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}

	nodes, err := splitter.Split(docs)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	embedded := nodes
	if strategy == chunking.StrategyAutoMerging {
		embedded = chunking.Leaves(nodes)
	}
	if len(embedded) == 0 {
		return nil, ErrNoContent
	}
	b.logger.Debug("Split documents", "nodes", len(nodes), "embedded", len(embedded))

	texts := make([]string, len(embedded))
	for i := range embedded {
		texts[i] = embeddingText(&embedded[i])
	}
	vectors, err := b.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(vectors) != len(embedded) {
		return nil, fmt.Errorf("embeddings: got %d vectors for %d nodes", len(vectors), len(embedded))
	}

	if exists {
		if err := store.DropCollection(ctx, req.IndexName); err != nil {
			return nil, fmt.Errorf("drop existing index: %w", err)
		}
		b.logger.Info("Dropped existing index", "index", req.IndexName)
	}
	if err := store.CreateCollection(ctx, req.IndexName, len(vectors[0])); err != nil {
		return nil, err
	}

	points := make([]*storage.Point, len(embedded))
	for i := range embedded {
		n := &embedded[i]
		points[i] = &storage.Point{
			ID:       n.ID,
			Vector:   vectors[i],
			Text:     n.Text,
			DocPath:  n.DocPath,
			ParentID: n.ParentID,
			Position: n.Position,
			Metadata: n.Metadata,
		}
	}
	if err := store.UpsertPoints(ctx, req.IndexName, points); err != nil {
		return nil, fmt.Errorf("store nodes: %w", err)
	}

	manifest.Name = req.IndexName
	manifest.Dimension = len(vectors[0])
	manifest.NumFiles = len(files)
	manifest.NumNodes = len(nodes)
	manifest.NumEmbedded = len(embedded)
	manifest.BuiltAt = time.Now().UTC()

	var hierarchy []chunking.Node
	if strategy == chunking.StrategyAutoMerging {
		hierarchy = nodes
	}
	if err := b.docs.ReplaceIndex(ctx, manifest, hierarchy); err != nil {
		return nil, fmt.Errorf("store manifest: %w", err)
	}

	result := &Result{
		IndexName:   req.IndexName,
		Strategy:    strategy,
		NumFiles:    len(files),
		NumNodes:    len(nodes),
		NumEmbedded: len(embedded),
		Replaced:    exists,
		Duration:    time.Since(start),
	}
	b.logger.Info("Index build complete",
		"index", result.IndexName,
		"files", result.NumFiles,
		"nodes", result.NumNodes,
		"embedded", result.NumEmbedded,
		"duration", result.Duration,
	)
	return result, nil
}

// newSplitter returns the splitter for strategy and a manifest pre-filled
// with its parameters.
func newSplitter(strategy chunking.Strategy, req Request) (chunking.Splitter, *storage.IndexManifest, error) {
	manifest := &storage.IndexManifest{Strategy: string(strategy)}

	switch strategy {
	case chunking.StrategyAutoMerging:
		s, err := chunking.NewHierarchicalSplitter(req.ChunkSizes)
		if err != nil {
			return nil, nil, err
		}
		manifest.ChunkSizes = s.Sizes()
		return s, manifest, nil

	case chunking.StrategySentenceWindow:
		s := chunking.NewSentenceWindowSplitter(req.WindowSize)
		manifest.WindowSize = s.Window()
		return s, manifest, nil

	default:
		size := req.ChunkSize
		if size == 0 {
			size = chunking.DefaultChunkSize
		}
		s, err := chunking.NewFixedSizeSplitter(size, req.ChunkOverlap)
		if err != nil {
			return nil, nil, err
		}
		manifest.ChunkSize = size
		manifest.ChunkOverlap = req.ChunkOverlap
		return s, manifest, nil
	}
}

// embeddingText prepends the markdown header path so chunks embed with
// their section context; the stored text stays raw.
func embeddingText(n *chunking.Node) string {
	if hp := n.Metadata[chunking.MetaHeaderPath]; hp != "" {
		return hp + "\n\n" + n.Text
	}
	return n.Text
}
