// Package config loads the process-wide configuration once at startup.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then environment variables (a local .env file is honoured). The
// resulting Config is passed explicitly to every component constructor.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	DocStore    DocStoreConfig    `yaml:"doc_store"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	LLM         LLMConfig         `yaml:"llm"`
	Rerank      RerankConfig      `yaml:"rerank"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	GitHub      GitHubConfig      `yaml:"github"`
	Log         LogConfig         `yaml:"log"`

	// ChatRecordDir is used when a request does not name a transcript directory.
	ChatRecordDir string `yaml:"chat_record_dir" validate:"required"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// VectorStoreConfig selects and configures the vector store.
type VectorStoreConfig struct {
	Type   string `yaml:"type" validate:"oneof=qdrant memory"`
	Host   string `yaml:"host" validate:"required_if=Type qdrant"`
	Port   int    `yaml:"port" validate:"required_if=Type qdrant,gte=0,lte=65535"`
	APIKey string `yaml:"api_key"`
	UseTLS bool   `yaml:"use_tls"`
}

// DocStoreConfig configures the badger document store holding index
// manifests and auto-merging node hierarchies.
type DocStoreConfig struct {
	Dir      string `yaml:"dir" validate:"required_without=InMemory"`
	InMemory bool   `yaml:"in_memory"`
}

// EmbeddingConfig configures the OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model" validate:"required"`
	BatchSize   int    `yaml:"batch_size" validate:"gte=0"`
	Concurrency int    `yaml:"concurrency" validate:"gte=0"`
}

// LLMConfig configures the OpenAI-compatible chat model used for answers.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model" validate:"required"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
}

// RerankConfig selects the optional second-pass scorer.
type RerankConfig struct {
	Provider string `yaml:"provider" validate:"oneof=none cross-encoder llm"`
	URL      string `yaml:"url" validate:"required_if=Provider cross-encoder"`
	Model    string `yaml:"model"`
	TopN     int    `yaml:"top_n" validate:"gte=0"`
}

// RetrievalConfig holds retrieval defaults.
type RetrievalConfig struct {
	TopK       int     `yaml:"top_k" validate:"gt=0"`
	MergeRatio float64 `yaml:"merge_ratio" validate:"gt=0,lte=1"`
	WindowSize int     `yaml:"window_size" validate:"gt=0"`
}

// GitHubConfig configures github:// input sources.
type GitHubConfig struct {
	Token string `yaml:"token"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: "0.0.0.0:8001"},
		VectorStore: VectorStoreConfig{
			Type: "qdrant",
			Host: "localhost",
			Port: 6334,
		},
		DocStore: DocStoreConfig{Dir: "./data/docstore"},
		Embedding: EmbeddingConfig{
			Model:       "text-embedding-3-small",
			BatchSize:   500,
			Concurrency: 4,
		},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.6,
		},
		Rerank: RerankConfig{
			Provider: "none",
			TopN:     2,
		},
		Retrieval: RetrievalConfig{
			TopK:       12,
			MergeRatio: 1.0,
			WindowSize: 3,
		},
		Log:           LogConfig{Level: "info", Format: "text"},
		ChatRecordDir: "./chatrecords",
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults and environment variables are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(fields, ", "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Addr, "RAG_ADDR")
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Addr = "0.0.0.0:" + port
	}

	setString(&cfg.VectorStore.Type, "VECTOR_STORE")
	setString(&cfg.VectorStore.Host, "QDRANT_HOST")
	setString(&cfg.VectorStore.APIKey, "QDRANT_API_KEY")
	if err := setInt(&cfg.VectorStore.Port, "QDRANT_PORT"); err != nil {
		return err
	}
	if err := setBool(&cfg.VectorStore.UseTLS, "QDRANT_USE_TLS"); err != nil {
		return err
	}

	setString(&cfg.DocStore.Dir, "DOCSTORE_DIR")
	if err := setBool(&cfg.DocStore.InMemory, "DOCSTORE_IN_MEMORY"); err != nil {
		return err
	}

	// OPENAI_API_KEY and OPENAI_BASE_URL seed both model endpoints; the
	// specific variables win.
	setString(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
	setString(&cfg.Embedding.BaseURL, "OPENAI_BASE_URL")
	setString(&cfg.LLM.APIKey, "OPENAI_API_KEY")
	setString(&cfg.LLM.BaseURL, "OPENAI_BASE_URL")

	setString(&cfg.Embedding.APIKey, "EMBEDDING_API_KEY")
	setString(&cfg.Embedding.BaseURL, "EMBEDDING_BASE_URL")
	setString(&cfg.Embedding.Model, "EMBEDDING_MODEL")
	if err := setInt(&cfg.Embedding.BatchSize, "EMBEDDING_BATCH_SIZE"); err != nil {
		return err
	}
	if err := setInt(&cfg.Embedding.Concurrency, "EMBEDDING_CONCURRENCY"); err != nil {
		return err
	}

	setString(&cfg.LLM.APIKey, "LLM_API_KEY")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	if err := setFloat(&cfg.LLM.Temperature, "LLM_TEMPERATURE"); err != nil {
		return err
	}

	setString(&cfg.Rerank.Provider, "RERANK_PROVIDER")
	setString(&cfg.Rerank.URL, "RERANK_URL")
	setString(&cfg.Rerank.Model, "RERANK_MODEL")
	if err := setInt(&cfg.Rerank.TopN, "RERANK_TOP_N"); err != nil {
		return err
	}

	if err := setInt(&cfg.Retrieval.TopK, "RETRIEVAL_TOP_K"); err != nil {
		return err
	}
	if err := setFloat(&cfg.Retrieval.MergeRatio, "RETRIEVAL_MERGE_RATIO"); err != nil {
		return err
	}
	if err := setInt(&cfg.Retrieval.WindowSize, "SENTENCE_WINDOW_SIZE"); err != nil {
		return err
	}

	setString(&cfg.GitHub.Token, "GITHUB_TOKEN")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.ChatRecordDir, "CHAT_RECORD_DIR")
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = i
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}
