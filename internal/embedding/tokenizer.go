package embedding

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// LazyTokenizer defers loading the byte-pair encoding until first use, so
// constructing a client never touches the encoding registry. Clones of a
// client share the same instance.
type LazyTokenizer struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewLazyTokenizer creates a tokenizer for the given model name. When the
// model is unknown the cl100k_base encoding is used.
func NewLazyTokenizer(model string) *LazyTokenizer {
	return &LazyTokenizer{model: model}
}

// Tokenize returns the token sequence of text. If no encoding can be
// loaded, a whitespace-split estimate keeps token budgeting functional.
func (t *LazyTokenizer) Tokenize(text string) []int {
	t.once.Do(func() {
		if t.model != "" {
			if enc, err := tiktoken.EncodingForModel(t.model); err == nil {
				t.enc = enc
				return
			}
		}
		t.enc, _ = tiktoken.GetEncoding("cl100k_base")
	})

	if t.enc == nil {
		return make([]int, len(strings.Fields(text)))
	}
	return t.enc.Encode(text, nil, nil)
}
