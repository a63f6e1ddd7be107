// Package embedding defines the embedding port: the capability to turn
// batches of text into unit-length vectors of a fixed dimension. Two
// providers implement it, an OpenAI-compatible embeddings API and a local
// Ollama model; both live under internal/clients.
package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
)

// ErrMissingQueryPlaceholder reports a prompt template without a {query}
// placeholder; such a template can never carry the text to embed.
var ErrMissingQueryPlaceholder = errors.New("embedding: prompt template must contain {query}")

// Embedder is the embedding port. Implementations are not safe for
// concurrent use of a single instance; callers that fan out take a Clone per
// worker so per-call usage state stays private.
type Embedder interface {
	// Embed returns one unit-normalised vector per input text, aligned by
	// index. A non-empty instruction is rendered through the configured
	// prompt template, when one exists.
	Embed(ctx context.Context, texts []string, instruction string) ([][]float32, error)

	// Tokenize returns the token sequence of text under the model's
	// tokenizer (or a byte-pair estimate for providers without one).
	Tokenize(text string) []int

	// Dimension is the fixed length of every returned vector.
	Dimension() int

	// MaxTokens is the model's input budget.
	MaxTokens() int

	// Clone returns a shallow copy sharing the underlying HTTP client but
	// with private per-call state.
	Clone() Embedder
}

// PromptTemplate renders query text for retrieval-oriented embedding. The
// template must contain {query}; {instruction} is optional.
type PromptTemplate string

// Render substitutes the placeholders. An empty template returns the query
// unchanged; a template without {query} is a configuration error.
func (t PromptTemplate) Render(instruction, query string) (string, error) {
	if t == "" {
		return query, nil
	}
	if !strings.Contains(string(t), "{query}") {
		return "", ErrMissingQueryPlaceholder
	}
	out := strings.ReplaceAll(string(t), "{query}", query)
	out = strings.ReplaceAll(out, "{instruction}", instruction)
	return out, nil
}

// Normalize scales v to unit length in place and returns it. Zero vectors
// are returned unchanged.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
