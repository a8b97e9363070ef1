// Package testutil provides an OpenAI-compatible fake server for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"unicode"
)

// EmbeddingDimension is the vector size returned by the fake server.
const EmbeddingDimension = 64

// FakeOpenAI serves /embeddings and /chat/completions.
type FakeOpenAI struct {
	*httptest.Server

	mu       sync.Mutex
	answer   func(prompt string) string
	failChat int
	prompts  []string
	embeds   int
}

// NewFakeOpenAI starts a fake server closed at test cleanup.
func NewFakeOpenAI(t *testing.T) *FakeOpenAI {
	t.Helper()
	f := &FakeOpenAI{
		answer: func(string) string { return "I do not know." },
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /embeddings", f.handleEmbeddings)
	mux.HandleFunc("POST /chat/completions", f.handleChat)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

// BaseURL is the value for option.WithBaseURL.
func (f *FakeOpenAI) BaseURL() string {
	return f.URL + "/"
}

// SetAnswer sets the function producing chat replies. The default always
// answers "I do not know."
func (f *FakeOpenAI) SetAnswer(fn func(prompt string) string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = fn
}

// FailChat makes /chat/completions fail with status; 0 restores success.
func (f *FakeOpenAI) FailChat(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failChat = status
}

// Prompts returns every chat prompt received so far.
func (f *FakeOpenAI) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// EmbeddingCalls returns how many embedding requests were served.
func (f *FakeOpenAI) EmbeddingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embeds
}

// Embed returns the deterministic vector the server produces for text:
// hashed bag of lowercase words, L2 normalised.
func Embed(text string) []float64 {
	v := make([]float64, EmbeddingDimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		v[h.Sum32()%EmbeddingDimension]++
	}
	var norm float64
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

func (f *FakeOpenAI) handleEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Input json.RawMessage `json:"input"`
		Model string          `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var inputs []string
	if err := json.Unmarshal(req.Input, &inputs); err != nil {
		var single string
		if err := json.Unmarshal(req.Input, &single); err != nil {
			http.Error(w, "unsupported input", http.StatusBadRequest)
			return
		}
		inputs = []string{single}
	}

	f.mu.Lock()
	f.embeds++
	f.mu.Unlock()

	data := make([]map[string]any, len(inputs))
	for i, in := range inputs {
		data[i] = map[string]any{"object": "embedding", "index": i, "embedding": Embed(in)}
	}
	writeJSON(w, map[string]any{
		"object": "list",
		"data":   data,
		"model":  req.Model,
		"usage":  map[string]any{"prompt_tokens": len(inputs), "total_tokens": len(inputs)},
	})
}

func (f *FakeOpenAI) handleChat(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	failChat := f.failChat
	f.mu.Unlock()
	if failChat != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(failChat)
		_, _ = io.WriteString(w, `{"error":{"message":"upstream unavailable","type":"server_error"}}`)
		return
	}

	var req struct {
		Model    string `json:"model"`
		Stream   bool   `json:"stream"`
		Messages []struct {
			Content json.RawMessage `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var prompt string
	if n := len(req.Messages); n > 0 {
		if err := json.Unmarshal(req.Messages[n-1].Content, &prompt); err != nil {
			prompt = string(req.Messages[n-1].Content)
		}
	}

	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	answer := f.answer
	f.mu.Unlock()
	reply := answer(prompt)

	if !req.Stream {
		writeJSON(w, map[string]any{
			"id": "chatcmpl-test", "object": "chat.completion", "created": 1, "model": req.Model,
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": reply},
				"finish_reason": "stop",
			}},
		})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, piece := range splitKeep(reply) {
		chunk, _ := json.Marshal(map[string]any{
			"id": "chatcmpl-test", "object": "chat.completion.chunk", "created": 1, "model": req.Model,
			"choices": []map[string]any{{
				"index": 0, "delta": map[string]any{"content": piece}, "finish_reason": nil,
			}},
		})
		fmt.Fprintf(w, "data: %s\n\n", chunk)
		if flusher != nil {
			flusher.Flush()
		}
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

// splitKeep splits s after each space so the pieces concatenate back to s.
func splitKeep(s string) []string {
	var out []string
	for s != "" {
		i := strings.IndexByte(s, ' ')
		if i < 0 {
			out = append(out, s)
			break
		}
		out = append(out, s[:i+1])
		s = s[i+1:]
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
