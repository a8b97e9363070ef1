package embedding

import (
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrMissingAPIKey is returned when neither an API key nor a custom base URL
// is configured.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY not set")

// Client wraps the OpenAI client for embedding generation.
type Client struct {
	client *openai.Client
}

// NewClient creates an OpenAI client for embeddings. A custom baseURL points
// it at any OpenAI-compatible server, in which case the key may be empty.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if apiKey == "" && baseURL == "" {
		return nil, ErrMissingAPIKey
	}

	client := openai.NewClient(clientOptions(baseURL, apiKey)...)
	return &Client{client: &client}, nil
}

func clientOptions(baseURL, apiKey string) []option.RequestOption {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return opts
}

// Client returns the underlying OpenAI client.
func (c *Client) Client() *openai.Client {
	return c.client
}
