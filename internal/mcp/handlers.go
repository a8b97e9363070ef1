package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/bull/docrag/internal/rag"
	"github.com/bull/docrag/internal/retrieval"
)

func toResults(nodes []retrieval.SourceNode) []SearchResult {
	results := make([]SearchResult, len(nodes))
	for i, n := range nodes {
		results[i] = SearchResult{
			Index: n.IndexName,
			Path:  n.DocPath,
			Score: n.Score,
			Text:  n.Text,
		}
	}
	return results
}

// makeSearchHandler creates the search_index tool handler.
func makeSearchHandler(svc *rag.Service) func(
	context.Context, *mcp.CallToolRequest, SearchIndexInput,
) (*mcp.CallToolResult, SearchIndexOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input SearchIndexInput) (
		*mcp.CallToolResult, SearchIndexOutput, error,
	) {
		nodes, err := svc.Retrieve(ctx, retrieval.Query{
			Question:   input.Question,
			IndexNames: input.IndexNames,
			TopK:       input.TopK,
		})
		if err != nil {
			return nil, SearchIndexOutput{}, fmt.Errorf("search failed: %w", err)
		}

		if len(nodes) == 0 {
			return nil, SearchIndexOutput{
				Results: []SearchResult{},
				Message: "No matching passages found. Try broader search terms.",
			}, nil
		}

		return nil, SearchIndexOutput{Results: toResults(nodes)}, nil
	}
}

// makeAskHandler creates the ask tool handler. The streamed answer is
// collected before returning.
func makeAskHandler(svc *rag.Service) func(
	context.Context, *mcp.CallToolRequest, AskInput,
) (*mcp.CallToolResult, AskOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input AskInput) (
		*mcp.CallToolResult, AskOutput, error,
	) {
		var (
			answer *rag.Answer
			err    error
		)
		if len(input.IndexNames) == 0 {
			answer, err = svc.Chat(ctx, input.Question, "")
		} else {
			answer, err = svc.Query(ctx, retrieval.Query{
				Question:   input.Question,
				IndexNames: input.IndexNames,
				TopK:       input.TopK,
			}, "")
		}
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("ask failed: %w", err)
		}

		text, err := answer.Collect()
		if err != nil {
			return nil, AskOutput{}, fmt.Errorf("answer stream failed: %w", err)
		}

		return nil, AskOutput{
			Answer:  text,
			Sources: toResults(answer.Sources),
			Record:  answer.RecordPath(),
		}, nil
	}
}

// makeListHandler creates the list_indexes tool handler.
func makeListHandler(svc *rag.Service) func(
	context.Context, *mcp.CallToolRequest, ListIndexesInput,
) (*mcp.CallToolResult, ListIndexesOutput, error) {
	return func(ctx context.Context, req *mcp.CallToolRequest, input ListIndexesInput) (
		*mcp.CallToolResult, ListIndexesOutput, error,
	) {
		infos, err := svc.Indexes(ctx)
		if err != nil {
			return nil, ListIndexesOutput{}, fmt.Errorf("failed to list indexes: %w", err)
		}

		out := ListIndexesOutput{
			Indexes: make([]IndexSummary, len(infos)),
			Count:   len(infos),
		}
		for i, info := range infos {
			s := IndexSummary{Name: info.Name, Points: info.Points}
			if m := info.Manifest; m != nil {
				s.Strategy = m.Strategy
				s.Files = m.NumFiles
				builtAt := m.BuiltAt
				s.BuiltAt = &builtAt
			}
			out.Indexes[i] = s
		}
		return nil, out, nil
	}
}
