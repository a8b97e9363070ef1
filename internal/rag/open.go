package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bull/docrag/internal/config"
	"github.com/bull/docrag/internal/embedding"
	"github.com/bull/docrag/internal/github"
	"github.com/bull/docrag/internal/indexer"
	"github.com/bull/docrag/internal/llm"
	"github.com/bull/docrag/internal/loader"
	"github.com/bull/docrag/internal/record"
	"github.com/bull/docrag/internal/rerank"
	"github.com/bull/docrag/internal/retrieval"
	"github.com/bull/docrag/internal/storage"
)

// Open wires every component from cfg. The caller must Close the Service.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opener storage.Opener
	switch cfg.VectorStore.Type {
	case "memory":
		opener = storage.NewMemoryStore()
	default:
		opener = storage.QdrantDialer{
			Host:   cfg.VectorStore.Host,
			Port:   cfg.VectorStore.Port,
			APIKey: cfg.VectorStore.APIKey,
			UseTLS: cfg.VectorStore.UseTLS,
		}
	}

	// Fail fast when the vector store is unreachable.
	probe, err := opener.Open(ctx)
	if err != nil {
		return nil, err
	}
	probe.Close()

	docs, err := storage.OpenDocStore(cfg.DocStore.Dir, cfg.DocStore.InMemory, logger)
	if err != nil {
		return nil, err
	}

	embedClient, err := embedding.NewClient(cfg.Embedding.BaseURL, cfg.Embedding.APIKey)
	if err != nil {
		docs.Close()
		return nil, err
	}
	embedder, err := embedding.NewEmbedder(embedClient, embedding.Options{
		Model:       cfg.Embedding.Model,
		BatchSize:   cfg.Embedding.BatchSize,
		Concurrency: cfg.Embedding.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		docs.Close()
		return nil, err
	}

	ghClient, err := github.NewClient(cfg.GitHub.Token)
	if err != nil {
		embedder.Release()
		docs.Close()
		return nil, fmt.Errorf("create github client: %w", err)
	}

	chatClient := llm.NewClient(cfg.LLM.BaseURL, cfg.LLM.APIKey)

	var scorer retrieval.Scorer
	switch cfg.Rerank.Provider {
	case "cross-encoder":
		scorer = rerank.NewCrossEncoder(cfg.Rerank.URL, cfg.Rerank.Model, logger)
	case "llm":
		model := cfg.Rerank.Model
		if model == "" {
			model = cfg.LLM.Model
		}
		scorer = rerank.NewLLMScorer(chatClient, model, logger)
	}

	builder := indexer.NewBuilder(
		loader.New(github.NewFetcher(ghClient), logger),
		embedder,
		opener,
		docs,
		logger,
	)
	retriever := retrieval.New(embedder, opener, docs, retrieval.Options{
		MergeRatio: cfg.Retrieval.MergeRatio,
		Scorer:     scorer,
		RerankTopN: cfg.Rerank.TopN,
		Logger:     logger,
	})

	svc := NewService(
		builder,
		retriever,
		llm.NewGenerator(chatClient, cfg.LLM.Model, cfg.LLM.Temperature, logger),
		record.NewWriter(cfg.ChatRecordDir, logger),
		opener,
		logger,
	)
	svc.defaultTopK = cfg.Retrieval.TopK
	svc.defaultWindow = cfg.Retrieval.WindowSize
	svc.closers = append(svc.closers,
		docs.Close,
		func() error { embedder.Release(); return nil },
	)

	logger.Info("RAG service ready",
		"vector_store", cfg.VectorStore.Type,
		"embedding_model", cfg.Embedding.Model,
		"llm_model", cfg.LLM.Model,
		"rerank", cfg.Rerank.Provider,
	)
	return svc, nil
}
