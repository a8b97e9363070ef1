package rerank

import (
	"context"
	"strings"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/bull/docrag/internal/testutil"
)

// TestParseScores verifies JSON parsing of a valid response.
func TestParseScores(t *testing.T) {
	scores, err := parseScores(`{"scores": [7, 0, 3.5]}`, 3)
	if err != nil {
		t.Fatalf("Failed to parse valid JSON response: %v", err)
	}
	if scores[0] != 7 || scores[2] != 3.5 {
		t.Errorf("Unexpected scores %v", scores)
	}
}

// TestParseScores_CountMismatch verifies a short score list is rejected.
func TestParseScores_CountMismatch(t *testing.T) {
	if _, err := parseScores(`{"scores": [1]}`, 2); err == nil {
		t.Error("Expected error for missing scores")
	}
	if _, err := parseScores(`not json`, 1); err == nil {
		t.Error("Expected error for invalid JSON")
	}
}

// TestTruncateContent verifies truncation works correctly for very long passages.
func TestTruncateContent(t *testing.T) {
	s := NewLLMScorer(nil, "m", nil)

	// ~24k chars, well over 2k tokens
	longContent := strings.Repeat("This is a test content. ", 1000)

	truncated := s.truncateContent(longContent)

	expectedMaxChars := DefaultMaxTokens * 4
	if len(truncated) != expectedMaxChars {
		t.Errorf("Expected truncated length %d, got %d", expectedMaxChars, len(truncated))
	}
	if !strings.HasPrefix(longContent, truncated) {
		t.Error("Truncated content should be a prefix of original content")
	}
}

// TestTruncateContent_Short verifies short passages are not truncated.
func TestTruncateContent_Short(t *testing.T) {
	s := NewLLMScorer(nil, "m", nil)

	shortContent := strings.Repeat("Short. ", 140)
	if truncated := s.truncateContent(shortContent); truncated != shortContent {
		t.Error("Short content should not be truncated")
	}
}

// TestTruncateContent_CustomMaxTokens verifies custom max tokens setting.
func TestTruncateContent_CustomMaxTokens(t *testing.T) {
	s := NewLLMScorer(nil, "m", nil, 10)

	truncated := s.truncateContent(strings.Repeat("x", 100))
	if len(truncated) != 40 {
		t.Errorf("Expected truncated length 40, got %d", len(truncated))
	}
}

// TestLLMScorer_Scores runs a full request against the fake server.
func TestLLMScorer_Scores(t *testing.T) {
	fake := testutil.NewFakeOpenAI(t)
	fake.SetAnswer(func(prompt string) string {
		if !strings.Contains(prompt, "Question: capital of France") {
			return `{"scores": []}`
		}
		return `{"scores": [1, 9]}`
	})

	client := openai.NewClient(option.WithBaseURL(fake.BaseURL()), option.WithAPIKey("test-key"))
	s := NewLLMScorer(&client, "gpt-4o-mini", nil)

	scores, err := s.Scores(context.Background(), "capital of France", []string{"bananas", "Paris"})
	if err != nil {
		t.Fatalf("Scores failed: %v", err)
	}
	if len(scores) != 2 || scores[1] != 9 {
		t.Errorf("Unexpected scores %v", scores)
	}
}
