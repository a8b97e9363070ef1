package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/docrag/internal/config"
	"github.com/bull/docrag/internal/rag"
	"github.com/bull/docrag/internal/testutil"
)

type testEnv struct {
	server  *httptest.Server
	fake    *testutil.FakeOpenAI
	records string
	docs    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := testutil.NewFakeOpenAI(t)
	fake.SetAnswer(func(prompt string) string {
		if strings.Contains(prompt, "Paris is the capital of France.") {
			return "The capital of France is Paris."
		}
		return "I do not know."
	})

	records := t.TempDir()
	cfg := config.Default()
	cfg.VectorStore.Type = "memory"
	cfg.DocStore.InMemory = true
	cfg.Embedding.BaseURL = fake.BaseURL()
	cfg.Embedding.APIKey = "test-key"
	cfg.LLM.BaseURL = fake.BaseURL()
	cfg.LLM.APIKey = "test-key"
	cfg.ChatRecordDir = records

	svc, err := rag.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })

	docs := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(docs, "france.txt"),
		[]byte("Paris is the capital of France."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(docs, "notes.md"),
		[]byte("# Notes\n\nBerlin is the capital of Germany.\n"), 0o644))

	ts := httptest.NewServer(NewServer(svc, nil, nil).Handler())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, fake: fake, records: records, docs: docs}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.server.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (e *testEnv) buildGeo(t *testing.T) {
	t.Helper()
	resp := e.post(t, "/build-index", map[string]any{
		"input_path": e.docs,
		"index_name": "geo",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[BuildIndexResponse](t, resp)
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, 2, out.NumFiles)
	assert.Equal(t, "basic", out.IndexType)
}

func TestBuildIndex_InvalidType(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/build-index", map[string]any{
		"input_path": env.docs,
		"index_name": "geo",
		"index_type": "invalid",
	})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	out := decodeBody[ErrorResponse](t, resp)
	assert.Contains(t, out.Detail, "invalid")
}

func TestBuildIndex_FileList(t *testing.T) {
	env := newTestEnv(t)

	resp := env.post(t, "/build-index", map[string]any{
		"input_path": []string{filepath.Join(env.docs, "notes.md")},
		"index_name": "notes",
		"index_type": "sentence_window",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[BuildIndexResponse](t, resp)
	assert.Equal(t, 1, out.NumFiles)
	assert.Equal(t, "Index 'notes' built successfully", out.Message)
}

func TestBuildIndex_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		body       map[string]any
		wantDetail string
	}{
		{
			name:       "missing index name",
			body:       map[string]any{"input_path": env.docs},
			wantDetail: "index_name is required",
		},
		{
			name:       "missing input",
			body:       map[string]any{"index_name": "x"},
			wantDetail: "no valid input files found",
		},
		{
			name:       "extension filter matches nothing",
			body:       map[string]any{"input_path": env.docs, "index_name": "x", "file_extension": ".pdf"},
			wantDetail: "no valid input files found",
		},
		{
			name:       "bad input_path type",
			body:       map[string]any{"input_path": 42, "index_name": "x"},
			wantDetail: "input_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, "/build-index", tt.body)
			require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			out := decodeBody[ErrorResponse](t, resp)
			assert.Contains(t, out.Detail, tt.wantDetail)
		})
	}
}

func TestQuery_Streams(t *testing.T) {
	env := newTestEnv(t)
	env.buildGeo(t)

	resp := env.post(t, "/query", map[string]any{
		"question":         "What is the capital of France?",
		"index_names":      []string{"geo"},
		"similarity_top_k": 2,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "The capital of France is Paris.", string(body))

	entries, err := os.ReadDir(env.records)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), ".md"))
	assert.Contains(t, entries[0].Name(), "RAG-")
}

func TestQuery_Errors(t *testing.T) {
	env := newTestEnv(t)
	env.buildGeo(t)

	tests := []struct {
		name       string
		body       map[string]any
		wantDetail string
	}{
		{
			name:       "unknown index",
			body:       map[string]any{"question": "q", "index_names": []string{"missing"}},
			wantDetail: "missing",
		},
		{
			name:       "no indexes",
			body:       map[string]any{"question": "q", "index_names": []string{}},
			wantDetail: "index_names",
		},
		{
			name:       "empty question",
			body:       map[string]any{"index_names": []string{"geo"}},
			wantDetail: "question is required",
		},
		{
			name:       "zero top k",
			body:       map[string]any{"question": "q", "index_names": []string{"geo"}, "similarity_top_k": 0},
			wantDetail: "similarity_top_k",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.post(t, "/query", tt.body)
			require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
			out := decodeBody[ErrorResponse](t, resp)
			assert.Contains(t, out.Detail, tt.wantDetail)
		})
	}
	assert.Empty(t, env.fake.Prompts())
}

func TestChat_UpstreamFailureIs500(t *testing.T) {
	env := newTestEnv(t)
	env.fake.FailChat(http.StatusBadRequest)

	resp := env.post(t, "/chat", map[string]any{"question": "Hello?"})
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	out := decodeBody[ErrorResponse](t, resp)
	assert.NotEmpty(t, out.Detail)

	entries, err := os.ReadDir(env.records)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChat_CustomRecordDir(t *testing.T) {
	env := newTestEnv(t)
	dir := filepath.Join(t.TempDir(), "chats")

	resp := env.post(t, "/chat", map[string]any{"question": "Hello?", "chat_record_dir": dir})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "I do not know.", string(body))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "Chat-Hello")
}

func TestIndexNamesAndDelete(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Post(env.server.URL+"/get-index-names", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	empty := decodeBody[IndexNamesResponse](t, resp)
	assert.Equal(t, []string{}, empty.IndexNames)

	env.buildGeo(t)
	names := decodeBody[IndexNamesResponse](t, env.post(t, "/get-index-names", map[string]any{}))
	assert.Equal(t, []string{"geo"}, names.IndexNames)

	resp = env.post(t, "/delete-index", map[string]any{"index_name": "geo"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.post(t, "/delete-index", map[string]any{"index_name": "geo"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHealthAndCORS(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decodeBody[HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "connected", health.VectorStore)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	req, err := http.NewRequest(http.MethodOptions, env.server.URL+"/query", nil)
	require.NoError(t, err)
	pre, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer pre.Body.Close()
	assert.Equal(t, http.StatusOK, pre.StatusCode)
	assert.Equal(t, "*", pre.Header.Get("Access-Control-Allow-Origin"))
}

func TestInputPath_UnmarshalJSON(t *testing.T) {
	var p InputPath
	require.NoError(t, json.Unmarshal([]byte(`"docs"`), &p))
	assert.Equal(t, InputPath{Dir: "docs"}, p)

	require.NoError(t, json.Unmarshal([]byte(`["a.md","b.txt"]`), &p))
	assert.Equal(t, InputPath{Files: []string{"a.md", "b.txt"}}, p)

	assert.Error(t, json.Unmarshal([]byte(`{"dir":"x"}`), &p))
}
