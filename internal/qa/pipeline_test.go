package qa_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hsn0918/deepqa/internal/clients/openai"
	"github.com/hsn0918/deepqa/internal/config"
	"github.com/hsn0918/deepqa/internal/embedding"
	"github.com/hsn0918/deepqa/internal/llm"
	"github.com/hsn0918/deepqa/internal/qa"
	"github.com/hsn0918/deepqa/internal/vectordb"
)

// counters are shared across clones so the test observes every call made
// through any copy of a stub.
type counters struct {
	mu         sync.Mutex
	generate   int
	structured int
}

type stubGenerator struct {
	counts   *counters
	cost     float64
	text     string
	decide   func(call int) llm.Decision
	generate func(prompt string) (string, error)
}

func (s *stubGenerator) Generate(_ context.Context, prompt string, _ ...string) (string, error) {
	s.counts.mu.Lock()
	s.counts.generate++
	s.counts.mu.Unlock()
	if s.generate != nil {
		return s.generate(prompt)
	}
	return s.text, nil
}

func (s *stubGenerator) GenerateStructured(_ context.Context, _ string, _ llm.Schema, out any) error {
	s.counts.mu.Lock()
	s.counts.structured++
	call := s.counts.structured
	s.counts.mu.Unlock()

	decision, ok := out.(*llm.Decision)
	if !ok {
		return errors.New("unexpected output type")
	}
	*decision = s.decide(call)
	return nil
}

func (s *stubGenerator) LastUsage() openai.Usage { return openai.Usage{} }
func (s *stubGenerator) Cost() float64           { return s.cost }
func (s *stubGenerator) Clone() llm.Generator    { clone := *s; return &clone }

type stubEmbedder struct {
	dim   int
	calls *counters
}

func (s *stubEmbedder) Embed(_ context.Context, texts []string, _ string) ([][]float32, error) {
	if s.calls != nil {
		s.calls.mu.Lock()
		s.calls.generate++
		s.calls.mu.Unlock()
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, s.dim)
		vec[0] = 1
		vectors[i] = vec
	}
	return vectors, nil
}

func (s *stubEmbedder) Tokenize(text string) []int  { return make([]int, len(text)) }
func (s *stubEmbedder) Dimension() int              { return s.dim }
func (s *stubEmbedder) MaxTokens() int              { return 512 }
func (s *stubEmbedder) Clone() embedding.Embedder   { clone := *s; return &clone }

type stubStore struct {
	rows []vectordb.Vector
}

func (s *stubStore) Query(_ context.Context, _ []float32, k int, _ vectordb.Distance) ([]vectordb.Vector, error) {
	if k > len(s.rows) {
		k = len(s.rows)
	}
	return s.rows[:k], nil
}

func testAgents(researcher, query, main *stubGenerator) *llm.Agents {
	return &llm.Agents{
		Main:            main,
		Researcher:      researcher,
		QueryResearcher: query,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func unsatisfied(questions ...string) llm.Decision {
	decision := llm.Decision{
		SatisfiedReason: "gaps remain",
		Reasoning:       "need definitions",
	}
	for _, q := range questions {
		decision.Questions = append(decision.Questions, llm.SubQuestion{
			QuestionText: q,
			Keywords:     []string{"kw"},
		})
	}
	return decision
}

func TestRun_IterationCap(t *testing.T) {
	researcherCounts := &counters{}
	queryCounts := &counters{}
	mainCounts := &counters{}

	researcher := &stubGenerator{
		counts: researcherCounts,
		cost:   0.5,
		decide: func(int) llm.Decision { return unsatisfied("q one", "q two") },
	}
	query := &stubGenerator{counts: queryCounts, cost: 0.25, text: "  partial answer  "}
	main := &stubGenerator{counts: mainCounts, cost: 1.0, text: "final answer"}

	store := &stubStore{rows: []vectordb.Vector{
		{ID: 1, FileName: "a.md", Content: "alpha"},
		{ID: 2, FileName: "b.md", Content: "beta"},
	}}

	pipeline := qa.New(testAgents(researcher, query, main), &stubEmbedder{dim: 4}, store,
		config.QAConfig{MaxIterations: 1, TopK: 10, Parallelism: 2}, testLogger())

	result, err := pipeline.Run(context.Background(), "original question")
	require.NoError(t, err)

	assert.Equal(t, 1, researcherCounts.structured, "exactly one researcher call")
	assert.Equal(t, 2, queryCounts.generate, "one fan-out over two sub-questions")
	assert.Equal(t, 1, mainCounts.generate, "exactly one synthesizer call")

	assert.Equal(t, 1, result.Iterations)
	assert.Len(t, result.Satisfactions, 1)
	assert.Len(t, result.Questions, 2)
	assert.Equal(t, "partial answer", result.Questions["q one"])
	assert.Equal(t, "final answer", result.FinalAnswer)

	// Every fan-out extends provenance with the retrieved rows.
	assert.Len(t, result.UsedContext, 4)

	// Cost additivity: researcher + two query-researchers + main.
	assert.InDelta(t, 0.5+2*0.25+1.0, result.Cost, 1e-9)
}

func TestRun_EarlySatisfaction(t *testing.T) {
	researcherCounts := &counters{}
	queryCounts := &counters{}
	mainCounts := &counters{}

	researcher := &stubGenerator{
		counts: researcherCounts,
		cost:   0.5,
		decide: func(int) llm.Decision {
			return llm.Decision{SatisfiedReason: "complete", Satisfied: true}
		},
	}
	query := &stubGenerator{counts: queryCounts, text: "unused"}
	main := &stubGenerator{counts: mainCounts, cost: 1.0, text: "direct answer"}

	pipeline := qa.New(testAgents(researcher, query, main), &stubEmbedder{dim: 4}, &stubStore{},
		config.QAConfig{MaxIterations: 5, TopK: 10, Parallelism: 2}, testLogger())

	result, err := pipeline.Run(context.Background(), "easy question")
	require.NoError(t, err)

	assert.Equal(t, 1, researcherCounts.structured)
	assert.Equal(t, 0, queryCounts.generate, "no fan-out when satisfied")
	assert.Equal(t, 1, mainCounts.generate)

	assert.Equal(t, 0, result.Iterations)
	assert.Len(t, result.Satisfactions, 1)
	assert.Empty(t, result.Questions)
	assert.NotEmpty(t, result.FinalAnswer)
	assert.InDelta(t, 1.5, result.Cost, 1e-9)
}

func TestRun_SatisfactionOnSecondIteration(t *testing.T) {
	researcherCounts := &counters{}

	researcher := &stubGenerator{
		counts: researcherCounts,
		decide: func(call int) llm.Decision {
			if call == 1 {
				return unsatisfied("q one")
			}
			return llm.Decision{SatisfiedReason: "now complete", Satisfied: true}
		},
	}
	query := &stubGenerator{counts: &counters{}, text: "found it"}
	main := &stubGenerator{counts: &counters{}, text: "final"}

	pipeline := qa.New(testAgents(researcher, query, main), &stubEmbedder{dim: 4},
		&stubStore{rows: []vectordb.Vector{{ID: 1, FileName: "a.md"}}},
		config.QAConfig{MaxIterations: 5, TopK: 10, Parallelism: 2}, testLogger())

	result, err := pipeline.Run(context.Background(), "question")
	require.NoError(t, err)

	assert.Equal(t, 2, researcherCounts.structured)
	assert.Equal(t, 1, result.Iterations, "only unsatisfied loops count")
	assert.Len(t, result.Satisfactions, 2)
}

func TestRun_SubQuestionFailureRecovered(t *testing.T) {
	researcher := &stubGenerator{
		counts: &counters{},
		decide: func(int) llm.Decision { return unsatisfied("good q", "bad q") },
	}
	query := &stubGenerator{
		counts: &counters{},
		generate: func(prompt string) (string, error) {
			if containsBad(prompt) {
				return "", errors.New("provider exploded")
			}
			return "good answer", nil
		},
	}
	main := &stubGenerator{counts: &counters{}, text: "final"}

	pipeline := qa.New(testAgents(researcher, query, main), &stubEmbedder{dim: 4},
		&stubStore{rows: []vectordb.Vector{{ID: 1, FileName: "a.md"}}},
		config.QAConfig{MaxIterations: 1, TopK: 10, Parallelism: 2}, testLogger())

	result, err := pipeline.Run(context.Background(), "question")
	require.NoError(t, err)

	// The failed sub-question is omitted; the run proceeds to synthesis.
	assert.Len(t, result.Questions, 1)
	assert.Equal(t, "good answer", result.Questions["good q"])
	assert.Equal(t, "final", result.FinalAnswer)
}

func containsBad(prompt string) bool {
	return strings.HasSuffix(prompt, "bad q")
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	researcher := &stubGenerator{
		counts: &counters{},
		decide: func(int) llm.Decision { return unsatisfied("q") },
	}
	query := &stubGenerator{
		counts: &counters{},
		generate: func(string) (string, error) { return "", context.Canceled },
	}
	main := &stubGenerator{counts: &counters{}, text: "never"}

	pipeline := qa.New(testAgents(researcher, query, main), &stubEmbedder{dim: 4},
		&stubStore{rows: []vectordb.Vector{{ID: 1}}},
		config.QAConfig{MaxIterations: 1, TopK: 10, Parallelism: 2}, testLogger())

	result, err := pipeline.Run(ctx, "question")
	require.Error(t, err)
	assert.Empty(t, result.FinalAnswer)
}

func TestRun_GlobalContextInResearcherPrompt(t *testing.T) {
	var gotPrompt string
	researcher := &stubGenerator{counts: &counters{}}
	researcher.decide = func(int) llm.Decision {
		return llm.Decision{Satisfied: true}
	}

	// Wrap GenerateStructured through a recording stub.
	recording := &promptRecorder{inner: researcher, prompt: &gotPrompt}

	main := &stubGenerator{counts: &counters{}, text: "final"}
	pipeline := qa.New(&llm.Agents{
		Main:            main,
		Researcher:      recording,
		QueryResearcher: &stubGenerator{counts: &counters{}},
	}, &stubEmbedder{dim: 4}, &stubStore{},
		config.QAConfig{MaxIterations: 1, TopK: 10, Parallelism: 2, GlobalContext: "Torn is a game"}, testLogger())

	_, err := pipeline.Run(context.Background(), "what is a merit?")
	require.NoError(t, err)

	assert.Contains(t, gotPrompt, "Global Context: Torn is a game")
	assert.Contains(t, gotPrompt, "original_user_question: what is a merit?")
}

type promptRecorder struct {
	inner  llm.Generator
	prompt *string
}

func (r *promptRecorder) Generate(ctx context.Context, prompt string, images ...string) (string, error) {
	return r.inner.Generate(ctx, prompt, images...)
}

func (r *promptRecorder) GenerateStructured(ctx context.Context, prompt string, schema llm.Schema, out any) error {
	*r.prompt = prompt
	return r.inner.GenerateStructured(ctx, prompt, schema, out)
}

func (r *promptRecorder) LastUsage() openai.Usage { return r.inner.LastUsage() }
func (r *promptRecorder) Cost() float64           { return r.inner.Cost() }
func (r *promptRecorder) Clone() llm.Generator    { return &promptRecorder{inner: r.inner.Clone(), prompt: r.prompt} }
