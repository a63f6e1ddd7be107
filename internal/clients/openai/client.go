// Package openai provides a client for OpenAI-compatible API operations.
// It supports chat completions with plain text, image inputs and strict
// JSON-schema constrained responses.
package openai

import (
	"context"
	"time"

	"github.com/hsn0918/deepqa/internal/clients/base"
	"github.com/hsn0918/deepqa/internal/config"
)

// Default configuration constants
const (
	DefaultTimeout     = 120 * time.Second
	DefaultMaxTokens   = 4096
	DefaultTemperature = 0.7
	ServiceName        = "openai"
)

// ChatCompleter defines the interface for chat completion operations.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// Client provides OpenAI API operations using standardized base client.
// It handles chat completions and maintains service configuration.
type Client struct {
	httpClient *base.HTTPClient
	config     config.ServiceConfig
}

// Compile-time check to ensure Client implements ChatCompleter interface
var _ ChatCompleter = (*Client)(nil)

// NewClient creates a new OpenAI client with standardized configuration.
// It uses the base HTTP client for consistent error handling and retry logic.
func NewClient(cfg config.ServiceConfig) *Client {
	httpClient := base.NewHTTPClient(ServiceName, cfg, DefaultTimeout)

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Message represents a single chat message. Content is either a plain
// string or a []ContentPart when the message carries images.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ContentPart is one element of a multi-part user message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by URL.
type ImageURL struct {
	URL string `json:"url"`
}

// JSONSchema names a schema for structured output. Strict instructs the
// provider to enforce it server-side.
type JSONSchema struct {
	Name   string      `json:"name"`
	Strict bool        `json:"strict"`
	Schema interface{} `json:"schema"`
}

// ResponseFormat defines the format constraints for model responses.
type ResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// ChatRequest represents a chat completion request with all parameters.
type ChatRequest struct {
	// Required fields
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`

	// Optional behavior settings
	Stream         bool            `json:"stream,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`

	// Sampling parameters
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// Choice represents a single completion choice from the model.
type Choice struct {
	Index        int     `json:"index"`
	Message      struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// Usage represents token usage information for the request.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse represents the complete chat completion API response.
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// CreateChatCompletion generates a chat completion for the given request.
// It returns the complete response with choices and usage information.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var result ChatResponse
	if err := c.httpClient.Post(ctx, "/chat/completions", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
