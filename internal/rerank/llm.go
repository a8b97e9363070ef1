package rerank

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
)

// DefaultMaxTokens is the maximum passage length before truncation (in tokens).
const DefaultMaxTokens = 2000

// LLMScorer asks a chat model to grade each passage's relevance.
type LLMScorer struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// relevanceResponse is the JSON object the model is asked to return.
type relevanceResponse struct {
	Scores []float64 `json:"scores"`
}

// NewLLMScorer creates a scorer using model on the given OpenAI client.
// Optional maxTokens parameter sets the per-passage truncation limit.
func NewLLMScorer(client *openai.Client, model string, logger *slog.Logger, maxTokens ...int) *LLMScorer {
	max := DefaultMaxTokens
	if len(maxTokens) > 0 && maxTokens[0] > 0 {
		max = maxTokens[0]
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLMScorer{
		client:    client,
		model:     model,
		maxTokens: max,
		logger:    logger.With("component", "llm-reranker"),
	}
}

// Scores implements retrieval.Scorer. Scores range from 0 to 10.
func (s *LLMScorer) Scores(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var b strings.Builder
	for i, text := range texts {
		fmt.Fprintf(&b, "[%d]\n%s\n\n", i, s.truncateContent(text))
	}

	prompt := fmt.Sprintf(`Rate how well each passage helps answer the question.
Use a score from 0 (irrelevant) to 10 (directly answers it).

Question: %s

Passages:
%s
Respond in JSON format with one score per passage, in passage order:
{"scores": [7, 0, 3]}`, query, b.String())

	resp, err := s.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(s.model),
		Temperature: openai.Float(0),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	return parseScores(resp.Choices[0].Message.Content, len(texts))
}

// parseScores decodes the model's answer and checks it has n scores.
func parseScores(content string, n int) ([]float64, error) {
	var parsed relevanceResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(parsed.Scores) != n {
		return nil, fmt.Errorf("expected %d scores, got %d", n, len(parsed.Scores))
	}
	return parsed.Scores, nil
}

// truncateContent truncates a passage to fit within token limits.
// Uses rough estimate of 4 characters per token.
func (s *LLMScorer) truncateContent(content string) string {
	// Rough estimate: 1 token ≈ 4 characters
	maxChars := s.maxTokens * 4

	if len(content) <= maxChars {
		return content
	}

	s.logger.Warn("Truncating passage",
		"from", len(content), "to", maxChars, "estimated_tokens", s.maxTokens)

	return content[:maxChars]
}
