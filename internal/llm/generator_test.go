package llm

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docrag/internal/testutil"
)

func TestBuildPrompt(t *testing.T) {
	prompt, err := BuildPrompt("What is the capital of France?", []string{"Paris is the capital of France.", "It is large."})
	require.NoError(t, err)
	assert.Equal(t,
		"Use the following pieces of context to answer the question at the end.\n"+
			"Paris is the capital of France.\nIt is large.\n"+
			"Question: What is the capital of France? ",
		prompt)
}

func TestBuildPrompt_EmptyContext(t *testing.T) {
	prompt, err := BuildPrompt("hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "Use the following pieces of context to answer the question at the end.\n\nQuestion: hi ", prompt)
}

func TestStream(t *testing.T) {
	fake := testutil.NewFakeOpenAI(t)
	fake.SetAnswer(func(string) string { return "The capital is Paris." })
	g := NewGenerator(NewClient(fake.BaseURL(), "test-key"), "gpt-4o-mini", 0.6, nil)

	seq := g.Stream(context.Background(), "What is the capital of France?")

	var fragments []string
	for frag, err := range seq {
		require.NoError(t, err)
		fragments = append(fragments, frag)
	}
	assert.Greater(t, len(fragments), 1, "answer should arrive in pieces")
	assert.Equal(t, "The capital is Paris.", strings.Join(fragments, ""))
	assert.Equal(t, []string{"What is the capital of France?"}, fake.Prompts())

	for _, err := range seq {
		assert.ErrorIs(t, err, ErrStreamConsumed)
	}
}

func TestStream_Lazy(t *testing.T) {
	fake := testutil.NewFakeOpenAI(t)
	g := NewGenerator(NewClient(fake.BaseURL(), "test-key"), "m", 0, nil)

	_ = g.Stream(context.Background(), "never sent")
	assert.Empty(t, fake.Prompts())
}

func TestStream_UpstreamError(t *testing.T) {
	fake := testutil.NewFakeOpenAI(t)
	fake.FailChat(http.StatusBadRequest)
	g := NewGenerator(NewClient(fake.BaseURL(), "test-key"), "m", 0, nil)

	var errs []error
	for frag, err := range g.Stream(context.Background(), "q") {
		assert.Empty(t, frag)
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.Error(t, errs[0])
}
