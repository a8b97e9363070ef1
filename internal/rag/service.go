// Package rag is the application facade used by the HTTP server, the MCP
// tools and the CLI: it builds indexes, retrieves sources and streams
// answers that are recorded once complete.
package rag

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"

	"github.com/bull/docrag/internal/indexer"
	"github.com/bull/docrag/internal/llm"
	"github.com/bull/docrag/internal/record"
	"github.com/bull/docrag/internal/retrieval"
	"github.com/bull/docrag/internal/storage"
)

// Service exposes the build, retrieve and answer operations.
type Service struct {
	builder   *indexer.Builder
	retriever *retrieval.Retriever
	generator *llm.Generator
	records   *record.Writer
	opener    storage.Opener
	logger    *slog.Logger
	closers   []func() error

	// Applied when a request leaves the value at zero.
	defaultTopK   int
	defaultWindow int
}

// NewService assembles a Service from its components.
func NewService(
	builder *indexer.Builder,
	retriever *retrieval.Retriever,
	generator *llm.Generator,
	records *record.Writer,
	opener storage.Opener,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		builder:   builder,
		retriever: retriever,
		generator: generator,
		records:   records,
		opener:    opener,
		logger:    logger.With("component", "rag"),
	}
}

// Close releases resources acquired by Open.
func (s *Service) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Health checks the vector store.
func (s *Service) Health(ctx context.Context) error {
	store, err := s.opener.Open(ctx)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Health(ctx)
}

// BuildIndex creates or replaces an index.
func (s *Service) BuildIndex(ctx context.Context, req indexer.Request) (*indexer.Result, error) {
	if req.WindowSize == 0 {
		req.WindowSize = s.defaultWindow
	}
	return s.builder.Build(ctx, req)
}

// DeleteIndex removes an index.
func (s *Service) DeleteIndex(ctx context.Context, name string) error {
	return s.builder.Delete(ctx, name)
}

// IndexNames lists the indexes in the vector store.
func (s *Service) IndexNames(ctx context.Context) ([]string, error) {
	return s.builder.Names(ctx)
}

// Indexes lists the indexes with their manifests.
func (s *Service) Indexes(ctx context.Context) ([]indexer.IndexInfo, error) {
	return s.builder.List(ctx)
}

// Retrieve returns ranked source nodes for q.
func (s *Service) Retrieve(ctx context.Context, q retrieval.Query) ([]retrieval.SourceNode, error) {
	if q.TopK == 0 {
		q.TopK = s.defaultTopK
	}
	return s.retriever.Retrieve(ctx, q)
}

// Query retrieves sources for q and returns an answer streamed from the
// model with those sources as context. The transcript is written to
// recordDir (or the configured default) once the stream completes.
func (s *Service) Query(ctx context.Context, q retrieval.Query, recordDir string) (*Answer, error) {
	sources, err := s.Retrieve(ctx, q)
	if err != nil {
		return nil, err
	}

	contexts := make([]string, len(sources))
	for i, src := range sources {
		contexts[i] = src.Text
	}
	prompt, err := llm.BuildPrompt(q.Question, contexts)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Answering query", "indexes", q.IndexNames, "sources", len(sources))

	return s.answer(ctx, prompt, recordDir, record.Transcript{
		Kind:     record.KindQuery,
		Question: q.Question,
		Sources:  sources,
	}), nil
}

// Chat streams an answer to question without retrieval.
func (s *Service) Chat(ctx context.Context, question, recordDir string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, retrieval.ErrEmptyQuestion
	}
	s.logger.Info("Answering chat")
	return s.answer(ctx, question, recordDir, record.Transcript{
		Kind:     record.KindChat,
		Question: question,
	}), nil
}

func (s *Service) answer(ctx context.Context, prompt, recordDir string, t record.Transcript) *Answer {
	a := &Answer{Sources: t.Sources}
	upstream := s.generator.Stream(ctx, prompt)

	a.Stream = func(yield func(string, error) bool) {
		var full strings.Builder
		for frag, err := range upstream {
			if err != nil {
				yield("", err)
				return
			}
			full.WriteString(frag)
			if !yield(frag, nil) {
				s.logger.Info("Answer stream abandoned, transcript not written")
				return
			}
		}

		t.Answer = full.String()
		path, err := s.records.Write(recordDir, t)
		if err != nil {
			s.logger.Error("Failed to write transcript", "error", err)
			yield("", err)
			return
		}
		a.recordPath = path
	}
	return a
}

// Answer is a streamed model answer.
type Answer struct {
	// Sources are the retrieved nodes used as context; empty for chat.
	Sources []retrieval.SourceNode
	// Stream yields answer fragments. It can be consumed once. When it
	// finishes without error the transcript has been written.
	Stream iter.Seq2[string, error]

	recordPath string
}

// RecordPath is the transcript path once Stream has completed.
func (a *Answer) RecordPath() string {
	return a.recordPath
}

// Collect drains the stream into a single string.
func (a *Answer) Collect() (string, error) {
	var b strings.Builder
	for frag, err := range a.Stream {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(frag)
	}
	return b.String(), nil
}
