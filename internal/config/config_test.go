package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("QDRANT_HOST", "")
	t.Setenv("PORT", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.VectorStore.Type)
	assert.Equal(t, "localhost", cfg.VectorStore.Host)
	assert.Equal(t, 6334, cfg.VectorStore.Port)
	assert.Equal(t, 12, cfg.Retrieval.TopK)
	assert.Equal(t, 1.0, cfg.Retrieval.MergeRatio)
	assert.Equal(t, "none", cfg.Rerank.Provider)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
vector_store:
  type: qdrant
  host: qdrant.internal
  port: 7000
llm:
  model: deepseek-r1
  temperature: 0.2
chat_record_dir: /tmp/records
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	t.Setenv("QDRANT_PORT", "6334")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("LLM_API_KEY", "sk-llm")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Host)
	assert.Equal(t, 6334, cfg.VectorStore.Port, "env overrides file")
	assert.Equal(t, "deepseek-r1", cfg.LLM.Model)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, "/tmp/records", cfg.ChatRecordDir)
	assert.Equal(t, "sk-test", cfg.Embedding.APIKey)
	assert.Equal(t, "sk-llm", cfg.LLM.APIKey, "specific key wins over OPENAI_API_KEY")
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("RERANK_PROVIDER", "cohere")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Provider")
}

func TestLoad_BadInteger(t *testing.T) {
	t.Setenv("QDRANT_PORT", "not-a-port")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QDRANT_PORT")
}

func TestValidate_CrossEncoderNeedsURL(t *testing.T) {
	cfg := Default()
	cfg.Rerank.Provider = "cross-encoder"
	assert.Error(t, cfg.Validate())

	cfg.Rerank.URL = "http://localhost:8080"
	assert.NoError(t, cfg.Validate())
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: "debug", Format: "json"}.NewLogger(&buf)
	logger.Debug("hello", "k", "v")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"k":"v"`)
}
