package embedding_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/deepqa/internal/embedding"
)

func TestPromptTemplate_Render(t *testing.T) {
	tests := []struct {
		name        string
		template    embedding.PromptTemplate
		instruction string
		query       string
		want        string
		wantErr     error
	}{
		{
			name:  "empty template passes query through",
			query: "what is a merit",
			want:  "what is a merit",
		},
		{
			name:        "instruction and query substituted",
			template:    "Instruct: {instruction}\nQuery: {query}",
			instruction: "retrieve passages",
			query:       "what is a merit",
			want:        "Instruct: retrieve passages\nQuery: what is a merit",
		},
		{
			name:     "query placeholder only",
			template: "query: {query}",
			query:    "q",
			want:     "query: q",
		},
		{
			name:        "missing query placeholder fails",
			template:    "Instruct: {instruction}",
			instruction: "retrieve",
			query:       "q",
			wantErr:     embedding.ErrMissingQueryPlaceholder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.template.Render(tt.instruction, tt.query)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize(t *testing.T) {
	v := embedding.Normalize([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := embedding.Normalize([]float32{0, 0, 0})
	assert.Equal(t, []float32{0, 0, 0}, v)
}
