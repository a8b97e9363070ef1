// Package llm streams answers from an OpenAI-compatible chat model.
package llm

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/tmc/langchaingo/prompts"
)

// ErrStreamConsumed is yielded when a stream is iterated a second time.
var ErrStreamConsumed = errors.New("answer stream already consumed")

// questionTemplate wraps retrieved context around the question.
var questionTemplate = prompts.PromptTemplate{
	Template:       "Use the following pieces of context to answer the question at the end.\n{context}\nQuestion: {question} ",
	InputVariables: []string{"context", "question"},
	TemplateFormat: prompts.TemplateFormatFString,
}

// BuildPrompt joins the context passages with newlines and places them
// ahead of the question.
func BuildPrompt(question string, contexts []string) (string, error) {
	return questionTemplate.Format(map[string]any{
		"context":  strings.Join(contexts, "\n"),
		"question": question,
	})
}

// NewClient creates an OpenAI client. A custom baseURL targets any
// OpenAI-compatible server.
func NewClient(baseURL, apiKey string) *openai.Client {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)
	return &client
}

// Generator streams chat completions.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float64
	logger      *slog.Logger
}

// NewGenerator creates a Generator for model.
func NewGenerator(client *openai.Client, model string, temperature float64, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		client:      client,
		model:       model,
		temperature: temperature,
		logger:      logger.With("component", "llm"),
	}
}

// Stream sends prompt as a single user message and yields answer fragments
// as they arrive. The sequence is lazy: no request is made until it is
// iterated. It may be iterated once; a failure ends the sequence with a
// non-nil error. Cancelling ctx aborts the request.
func (g *Generator) Stream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	var used atomic.Bool
	return func(yield func(string, error) bool) {
		if used.Swap(true) {
			yield("", ErrStreamConsumed)
			return
		}

		stream := g.client.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model:       openai.ChatModel(g.model),
			Temperature: openai.Float(g.temperature),
		})
		defer stream.Close()

		fragments := 0
		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			fragments++
			if !yield(delta, nil) {
				return
			}
		}
		if err := stream.Err(); err != nil {
			g.logger.Warn("answer stream failed", "fragments", fragments, "error", err)
			yield("", err)
			return
		}
		g.logger.Debug("answer stream complete", "fragments", fragments)
	}
}
