// Package embedding provides a client for embedding service operations.
// It speaks the OpenAI-compatible embeddings protocol and implements the
// embedding port, including batch operations and the query instruction
// template.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/hsn0918/deepqa/internal/clients/base"
	"github.com/hsn0918/deepqa/internal/config"
	"github.com/hsn0918/deepqa/internal/embedding"
)

// Default configuration constants
const (
	DefaultTimeout = 30 * time.Second
	ServiceName    = "embedding"
)

// Client provides embedding API operations using the standardized base
// client. A single Client is not safe for concurrent calls; fan-out workers
// take a Clone each.
type Client struct {
	httpClient *base.HTTPClient
	cfg        config.EmbeddingConfig
	template   embedding.PromptTemplate
	tokenizer  *embedding.LazyTokenizer
	lastUsage  Usage
}

// Compile-time check to ensure Client implements the embedding port
var _ embedding.Embedder = (*Client)(nil)

// NewClient creates a new embedding client with standardized configuration.
// Zero Dimension/MaxTokens values are filled from the model tables below.
func NewClient(cfg config.EmbeddingConfig) *Client {
	if cfg.Dimension == 0 {
		cfg.Dimension = GetDefaultDimensions(cfg.Model)
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = GetMaxTokens(cfg.Model)
	}

	return &Client{
		httpClient: base.NewHTTPClient(ServiceName, cfg.ServiceConfig, DefaultTimeout),
		cfg:        cfg,
		template:   embedding.PromptTemplate(cfg.PromptTemplate),
		tokenizer:  embedding.NewLazyTokenizer(cfg.Model),
	}
}

// Request represents an embedding generation request.
type Request struct {
	Model          string      `json:"model"`
	Input          interface{} `json:"input"`
	EncodingFormat string      `json:"encoding_format,omitempty"`
	Dimensions     int         `json:"dimensions,omitempty"`
}

// Data represents a single embedding result.
type Data struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

// Usage represents token usage information.
type Usage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response represents the complete embedding API response.
type Response struct {
	Object string `json:"object"`
	Model  string `json:"model"`
	Data   []Data `json:"data"`
	Usage  Usage  `json:"usage"`
}

// Embed generates one unit-normalised vector per text in a single API call.
// A non-empty instruction is rendered through the configured prompt
// template before embedding.
func (c *Client) Embed(ctx context.Context, texts []string, instruction string) ([][]float32, error) {
	inputs := texts
	if instruction != "" && c.template != "" {
		inputs = make([]string, len(texts))
		for i, text := range texts {
			rendered, err := c.template.Render(instruction, text)
			if err != nil {
				return nil, err
			}
			inputs[i] = rendered
		}
	}

	req := Request{
		Model:          c.cfg.Model,
		Input:          inputs,
		EncodingFormat: "float",
	}

	var result Response
	if err := c.httpClient.Post(ctx, "/embeddings", req, &result); err != nil {
		return nil, err
	}
	if len(result.Data) != len(texts) {
		return nil, base.NewClientError(ServiceName, "POST /embeddings",
			fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Data)))
	}

	c.lastUsage = result.Usage

	vectors := make([][]float32, len(texts))
	for _, d := range result.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, base.NewClientError(ServiceName, "POST /embeddings",
				fmt.Errorf("embedding index %d out of range", d.Index))
		}
		vec := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			vec[i] = float32(x)
		}
		vectors[d.Index] = embedding.Normalize(vec)
	}
	return vectors, nil
}

// Tokenize returns the token sequence of text under the model's encoding.
func (c *Client) Tokenize(text string) []int {
	return c.tokenizer.Tokenize(text)
}

// Dimension returns the embedding dimension.
func (c *Client) Dimension() int { return c.cfg.Dimension }

// MaxTokens returns the model's input token limit.
func (c *Client) MaxTokens() int { return c.cfg.MaxTokens }

// LastUsage returns token usage of the most recent call.
func (c *Client) LastUsage() Usage { return c.lastUsage }

// Clone returns a shallow copy sharing the HTTP client and tokenizer but
// with a private usage slot.
func (c *Client) Clone() embedding.Embedder {
	clone := *c
	clone.lastUsage = Usage{}
	return &clone
}

// Supported embedding models organized by provider
const (
	// BGE models - Bilingual General Embedding
	ModelBGELargeZhV15 = "BAAI/bge-large-zh-v1.5"
	ModelBGELargeEnV15 = "BAAI/bge-large-en-v1.5"
	ModelBGEM3         = "BAAI/bge-m3"

	// Qwen models - Qwen embedding series
	ModelQwen3Embedding8B  = "Qwen/Qwen3-Embedding-8B"
	ModelQwen3Embedding4B  = "Qwen/Qwen3-Embedding-4B"
	ModelQwen3Embedding06B = "Qwen/Qwen3-Embedding-0.6B"
)

// Model token limits for context window management
const (
	MaxTokensBGELarge = 512
	MaxTokensBGEM3    = 8192
	MaxTokensQwen3    = 32768
)

// GetMaxTokens returns the maximum token limit for the specified model.
// This helps with input text chunking and validation.
func GetMaxTokens(model string) int {
	switch model {
	case ModelBGELargeZhV15, ModelBGELargeEnV15:
		return MaxTokensBGELarge
	case ModelBGEM3:
		return MaxTokensBGEM3
	case ModelQwen3Embedding8B, ModelQwen3Embedding4B, ModelQwen3Embedding06B:
		return MaxTokensQwen3
	default:
		return MaxTokensBGELarge
	}
}

// GetDefaultDimensions returns the default embedding dimension for the model.
// This is typically the highest quality dimension setting available.
func GetDefaultDimensions(model string) int {
	switch model {
	case ModelQwen3Embedding8B:
		return 4096
	case ModelQwen3Embedding4B:
		return 2048
	case ModelQwen3Embedding06B:
		return 1024
	case ModelBGELargeZhV15, ModelBGELargeEnV15, ModelBGEM3:
		return 1024
	default:
		return 1536 // Conservative fallback dimension
	}
}
