package chunking

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is the byte-pair encoding substituted when the caller
// supplies no tokenizer. Counts are an estimate for non-OpenAI embedding
// models, hence the 0.9x budget shrink applied by New.
const fallbackEncoding = "cl100k_base"

func fallbackTokenizer() (TokenizeFunc, error) {
	enc, err := tiktoken.GetEncoding(fallbackEncoding)
	if err != nil {
		return nil, fmt.Errorf("chunking: load %s encoding: %w", fallbackEncoding, err)
	}
	return func(text string) []int {
		return enc.Encode(text, nil, nil)
	}, nil
}
