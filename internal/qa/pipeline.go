// Package qa runs the iterative research loop: a researcher model decides
// whether accumulated evidence answers the user's question; until it is
// satisfied, sub-questions fan out over retrieval and a query-researcher
// model, and a main model synthesizes the final answer from the transcript.
package qa

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hsn0918/deepqa/internal/config"
	"github.com/hsn0918/deepqa/internal/embedding"
	"github.com/hsn0918/deepqa/internal/llm"
	"github.com/hsn0918/deepqa/internal/vectordb"
)

// Defaults for the research loop.
const (
	DefaultTopK          = 10
	DefaultMaxIterations = 5
	DefaultParallelism   = 4
)

// embedInstruction is the retrieval instruction rendered through the
// embedding model's query template.
const embedInstruction = "Given user query and keywords, retrieve relevant passages that best answer asked question."

// Store is the read-only slice of the vector store the loop retrieves from.
type Store interface {
	Query(ctx context.Context, embedding []float32, k int, distance vectordb.Distance) ([]vectordb.Vector, error)
}

// Result collects everything a run produced: the final answer, the
// researcher's decisions, every answered sub-question, the retrieved rows
// backing them, and the summed provider cost. Readers see a consistent
// snapshot only after Run returns.
type Result struct {
	RunID         string            `json:"run_id"`
	Satisfactions []llm.Decision    `json:"satisfactions"`
	Questions     map[string]string `json:"questions"`
	UsedContext   []vectordb.Vector `json:"used_context"`
	Iterations    int               `json:"iterations"`
	Cost          float64           `json:"cost"`
	FinalAnswer   string            `json:"final_answer"`
}

// Pipeline is the QA orchestrator. It is safe for concurrent Run calls:
// every mutable handle is cloned per run and per fan-out worker.
type Pipeline struct {
	agents        *llm.Agents
	embedder      embedding.Embedder
	store         Store
	globalContext string
	maxIterations int
	topK          int
	parallelism   int
	logger        *slog.Logger
}

// New creates a pipeline. Values in cfg below their minimum (1 for max
// iterations and top-k, 2 for parallelism) are replaced by the package
// defaults.
func New(agents *llm.Agents, embedder embedding.Embedder, store Store, cfg config.QAConfig, logger *slog.Logger) *Pipeline {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.TopK < 1 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Parallelism < 2 {
		cfg.Parallelism = DefaultParallelism
	}

	return &Pipeline{
		agents:        agents,
		embedder:      embedder,
		store:         store,
		globalContext: cfg.GlobalContext,
		maxIterations: cfg.MaxIterations,
		topK:          cfg.TopK,
		parallelism:   cfg.Parallelism,
		logger:        logger,
	}
}

// Run answers userQuery. On cancellation or provider failure the partial
// result is returned alongside the error, with an empty final answer.
func (p *Pipeline) Run(ctx context.Context, userQuery string) (*Result, error) {
	result := &Result{
		RunID:     uuid.NewString(),
		Questions: make(map[string]string),
	}

	agents := p.agents.Clone()

	var transcript strings.Builder
	if p.globalContext != "" {
		transcript.WriteString("Global Context: " + p.globalContext + "\n\n")
	}

	for i := 0; i < p.maxIterations; i++ {
		var decision llm.Decision
		prompt := transcript.String() + "\noriginal_user_question: " + userQuery
		if err := agents.Researcher.GenerateStructured(ctx, prompt, llm.DecisionSchema, &decision); err != nil {
			return result, fmt.Errorf("qa: researcher decision: %w", err)
		}
		result.Cost += agents.Researcher.Cost()
		result.Satisfactions = append(result.Satisfactions, decision)

		if decision.Satisfied {
			p.logger.Info("researcher satisfied", "run_id", result.RunID, "iteration", i)
			break
		}
		result.Iterations++

		answers, err := p.research(ctx, agents, decision.Questions, result)
		if err != nil {
			return result, fmt.Errorf("qa: research fan-out: %w", err)
		}

		// The transcript grows in the researcher's question order so it
		// stays stable regardless of worker completion order.
		for _, q := range decision.Questions {
			if answer, ok := answers[q.QuestionText]; ok {
				fmt.Fprintf(&transcript, "---\nQuestion: %s\nAnswer: %s\n---\n\n", q.QuestionText, answer)
			}
		}
	}

	answer, err := agents.Main.Generate(ctx, transcript.String()+"\n\nUser Query: "+userQuery)
	if err != nil {
		return result, fmt.Errorf("qa: synthesize: %w", err)
	}
	result.Cost += agents.Main.Cost()
	result.FinalAnswer = strings.TrimSpace(answer)

	p.logger.Info("run complete",
		"run_id", result.RunID,
		"iterations", result.Iterations,
		"questions", len(result.Questions),
		"cost", result.Cost)
	return result, nil
}

// research answers every sub-question concurrently and returns this
// iteration's answers. A failed sub-question is logged and omitted — the
// researcher may re-ask it next iteration — but cancellation aborts the
// whole fan-out.
func (p *Pipeline) research(ctx context.Context, agents *llm.Agents, questions []llm.SubQuestion, result *Result) (map[string]string, error) {
	answers := make(map[string]string, len(questions))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.parallelism)

	var mu sync.Mutex
	for _, q := range questions {
		// Per-worker copies keep per-call usage state private.
		embedder := p.embedder.Clone()
		researcher := agents.QueryResearcher.Clone()

		g.Go(func() error {
			answer, docs, err := p.researchQuestion(ctx, q, embedder, researcher)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				p.logger.Warn("sub-question failed",
					"run_id", result.RunID, "question", q.QuestionText, "error", err)
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			answers[q.QuestionText] = answer
			result.Questions[q.QuestionText] = answer
			result.UsedContext = append(result.UsedContext, docs...)
			result.Cost += researcher.Cost()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return answers, err
	}
	return answers, nil
}

func (p *Pipeline) researchQuestion(ctx context.Context, q llm.SubQuestion, embedder embedding.Embedder, researcher llm.Generator) (string, []vectordb.Vector, error) {
	text := q.QuestionText
	if len(q.Keywords) > 0 {
		text += " " + strings.Join(q.Keywords, " ")
	}

	vectors, err := embedder.Embed(ctx, []string{text}, embedInstruction)
	if err != nil {
		return "", nil, err
	}

	docs, err := p.store.Query(ctx, vectors[0], p.topK, vectordb.DistanceCosine)
	if err != nil {
		return "", nil, err
	}

	blocks := make([]string, len(docs))
	for i, d := range docs {
		blocks[i] = "source:" + d.FileName + "\n" + d.Content
	}
	contextBlock := strings.Join(blocks, "\n")

	answer, err := researcher.Generate(ctx,
		"**Context:**\n"+contextBlock+"\n\nResearched Question: "+q.QuestionText)
	if err != nil {
		return "", nil, err
	}
	return strings.TrimSpace(answer), docs, nil
}
