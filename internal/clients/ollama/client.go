// Package ollama provides the local embedding provider. It targets an
// Ollama server on localhost and conforms to the same embedding port as the
// HTTP API client.
package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/hsn0918/deepqa/internal/clients/base"
	"github.com/hsn0918/deepqa/internal/config"
	"github.com/hsn0918/deepqa/internal/embedding"
)

const (
	DefaultTimeout = 60 * time.Second
	ServiceName    = "ollama"

	// DefaultBaseURL is the standard local Ollama endpoint.
	DefaultBaseURL = "http://localhost:11434"
)

// Client embeds text with a locally served model. One request is issued per
// text; local inference gains nothing from provider-side batching.
type Client struct {
	httpClient *base.HTTPClient
	cfg        config.EmbeddingConfig
	template   embedding.PromptTemplate
	tokenizer  *embedding.LazyTokenizer
}

// Compile-time check to ensure Client implements the embedding port
var _ embedding.Embedder = (*Client)(nil)

// NewClient creates a local embedding client. Dimension must be configured
// explicitly; Ollama models do not advertise it.
func NewClient(cfg config.EmbeddingConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension is required for the ollama provider", config.ErrInvalidConfig)
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 8192
	}

	return &Client{
		httpClient: base.NewHTTPClient(ServiceName, cfg.ServiceConfig, DefaultTimeout),
		cfg:        cfg,
		template:   embedding.PromptTemplate(cfg.PromptTemplate),
		// Token counts are an estimate: local models bring their own
		// tokenizers which are not exposed over the API.
		tokenizer: embedding.NewLazyTokenizer(""),
	}, nil
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates one unit-normalised vector per text.
func (c *Client) Embed(ctx context.Context, texts []string, instruction string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	for i, text := range texts {
		input := text
		if instruction != "" && c.template != "" {
			rendered, err := c.template.Render(instruction, text)
			if err != nil {
				return nil, err
			}
			input = rendered
		}

		var result embedResponse
		req := embedRequest{Model: c.cfg.Model, Prompt: input}
		if err := c.httpClient.Post(ctx, "/api/embeddings", req, &result); err != nil {
			return nil, err
		}
		if len(result.Embedding) != c.cfg.Dimension {
			return nil, base.NewClientError(ServiceName, "POST /api/embeddings",
				fmt.Errorf("expected dimension %d, got %d", c.cfg.Dimension, len(result.Embedding)))
		}

		vec := make([]float32, len(result.Embedding))
		for j, x := range result.Embedding {
			vec[j] = float32(x)
		}
		vectors[i] = embedding.Normalize(vec)
	}
	return vectors, nil
}

// Tokenize returns a byte-pair estimate of the model's token sequence.
func (c *Client) Tokenize(text string) []int {
	return c.tokenizer.Tokenize(text)
}

// Dimension returns the configured embedding dimension.
func (c *Client) Dimension() int { return c.cfg.Dimension }

// MaxTokens returns the model's input token limit.
func (c *Client) MaxTokens() int { return c.cfg.MaxTokens }

// Clone returns a shallow copy sharing the HTTP client and tokenizer.
func (c *Client) Clone() embedding.Embedder {
	clone := *c
	return &clone
}
