// Package llm defines the language-model port: free-form or schema
// constrained generation with per-call token usage and cost reporting, plus
// the bundle of agent roles used by the research loop.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"

	"github.com/hsn0918/deepqa/internal/clients/base"
	"github.com/hsn0918/deepqa/internal/clients/openai"
	"github.com/hsn0918/deepqa/internal/config"
)

// ErrSchemaViolation reports a model response that does not conform to the
// requested schema. Callers treat it as a provider failure; responses are
// never silently coerced.
var ErrSchemaViolation = errors.New("llm: response violates requested schema")

// Generator is the language-model port. A single instance is not safe for
// concurrent calls because of the per-call usage slot; fan-out workers take
// a Clone each.
type Generator interface {
	// Generate produces free-form text for prompt. Images, when given, are
	// attached as URL references.
	Generate(ctx context.Context, prompt string, images ...string) (string, error)

	// GenerateStructured produces a value conforming to schema and decodes
	// it into out. The response is validated client-side regardless of
	// provider-side enforcement.
	GenerateStructured(ctx context.Context, prompt string, schema Schema, out any) error

	// LastUsage reports token usage of the most recent call.
	LastUsage() openai.Usage

	// Cost returns the cost of the most recent call in the configured
	// currency.
	Cost() float64

	// Clone returns a copy sharing the HTTP client but with a private
	// usage slot.
	Clone() Generator
}

// Model implements Generator against an OpenAI-compatible chat-completions
// endpoint.
type Model struct {
	name           string
	systemPrompt   string
	inputCostPerM  float64
	outputCostPerM float64
	client         openai.ChatCompleter
	lastUsage      openai.Usage
}

// Compile-time check to ensure Model implements Generator
var _ Generator = (*Model)(nil)

// NewModel creates a model bound to the endpoint in cfg with a fixed system
// prompt.
func NewModel(cfg config.LLMConfig, systemPrompt string) *Model {
	return NewModelWithClient(cfg, systemPrompt, openai.NewClient(cfg.ServiceConfig))
}

// NewModelWithClient is NewModel with an injected wire client, used by
// tests.
func NewModelWithClient(cfg config.LLMConfig, systemPrompt string, client openai.ChatCompleter) *Model {
	return &Model{
		name:           cfg.Model,
		systemPrompt:   systemPrompt,
		inputCostPerM:  cfg.InputCostPerM,
		outputCostPerM: cfg.OutputCostPerM,
		client:         client,
	}
}

// Generate produces free-form text for prompt.
func (m *Model) Generate(ctx context.Context, prompt string, images ...string) (string, error) {
	return m.complete(ctx, openai.ChatRequest{
		Model:    m.name,
		Messages: m.messages(prompt, images),
	})
}

// GenerateStructured requests a strict JSON-schema constrained response,
// validates it client-side and decodes it into out.
func (m *Model) GenerateStructured(ctx context.Context, prompt string, schema Schema, out any) error {
	content, err := m.complete(ctx, openai.ChatRequest{
		Model:    m.name,
		Messages: m.messages(prompt, nil),
		ResponseFormat: &openai.ResponseFormat{
			Type: "json_schema",
			JSONSchema: &openai.JSONSchema{
				Name:   schema.Name,
				Strict: true,
				Schema: schema.Definition(),
			},
		},
	})
	if err != nil {
		return err
	}

	if err := schema.Validate(content); err != nil {
		return err
	}
	if err := sonic.Unmarshal([]byte(content), out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

func (m *Model) complete(ctx context.Context, req openai.ChatRequest) (string, error) {
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", base.NewClientError(openai.ServiceName, "chat completion",
			errors.New("response contains no choices"))
	}

	m.lastUsage = resp.Usage
	return resp.Choices[0].Message.Content, nil
}

func (m *Model) messages(prompt string, images []string) []openai.Message {
	var messages []openai.Message
	if m.systemPrompt != "" {
		messages = append(messages, openai.Message{Role: "system", Content: m.systemPrompt})
	}

	if len(images) == 0 {
		return append(messages, openai.Message{Role: "user", Content: prompt})
	}

	parts := []openai.ContentPart{{Type: "text", Text: prompt}}
	for _, url := range images {
		parts = append(parts, openai.ContentPart{Type: "image_url", ImageURL: &openai.ImageURL{URL: url}})
	}
	return append(messages, openai.Message{Role: "user", Content: parts})
}

// LastUsage reports token usage of the most recent call.
func (m *Model) LastUsage() openai.Usage { return m.lastUsage }

// Cost prices the most recent call from the configured per-million rates.
func (m *Model) Cost() float64 {
	return float64(m.lastUsage.PromptTokens)/1e6*m.inputCostPerM +
		float64(m.lastUsage.CompletionTokens)/1e6*m.outputCostPerM
}

// Clone returns a copy sharing the wire client with a fresh usage slot.
func (m *Model) Clone() Generator {
	clone := *m
	clone.lastUsage = openai.Usage{}
	return &clone
}
