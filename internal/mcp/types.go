// Package mcp exposes the RAG service as Model Context Protocol tools.
package mcp

import "time"

// SearchIndexInput defines the input parameters for the search_index tool.
type SearchIndexInput struct {
	// Question is the natural-language query.
	Question string `json:"question" jsonschema:"the question to find relevant passages for"`
	// IndexNames lists the indexes to search.
	IndexNames []string `json:"index_names" jsonschema:"names of the indexes to search (see list_indexes)"`
	// TopK is the maximum number of passages to return.
	TopK int `json:"top_k,omitempty" jsonschema:"maximum number of passages to return (default 12)"`
}

// SearchIndexOutput contains the search results.
type SearchIndexOutput struct {
	// Results is the list of matching passages, best first.
	Results []SearchResult `json:"results"`
	// Message provides informational context (e.g., "No matching passages found").
	Message string `json:"message,omitempty"`
}

// SearchResult represents a single retrieved passage.
type SearchResult struct {
	// Index is the index the passage came from.
	Index string `json:"index"`
	// Path is the source document path.
	Path string `json:"path"`
	// Score is the relevance score.
	Score float64 `json:"score"`
	// Text is the passage (window or merged parent where applicable).
	Text string `json:"text"`
}

// AskInput defines the input parameters for the ask tool.
type AskInput struct {
	Question   string   `json:"question" jsonschema:"the question to answer"`
	IndexNames []string `json:"index_names,omitempty" jsonschema:"indexes to ground the answer in; empty means plain chat"`
	TopK       int      `json:"top_k,omitempty" jsonschema:"maximum number of passages used as context (default 12)"`
}

// AskOutput contains the generated answer.
type AskOutput struct {
	Answer  string         `json:"answer"`
	Sources []SearchResult `json:"sources,omitempty"`
	// Record is the transcript file written for this answer.
	Record string `json:"record,omitempty"`
}

// ListIndexesInput defines the input parameters for the list_indexes tool.
// This tool takes no parameters.
type ListIndexesInput struct{}

// ListIndexesOutput contains every index known to the vector store.
type ListIndexesOutput struct {
	Indexes []IndexSummary `json:"indexes"`
	Count   int            `json:"count"`
}

// IndexSummary describes one index.
type IndexSummary struct {
	Name     string     `json:"name"`
	Strategy string     `json:"strategy,omitempty"`
	Points   uint64     `json:"points"`
	Files    int        `json:"files,omitempty"`
	BuiltAt  *time.Time `json:"built_at,omitempty"`
}
