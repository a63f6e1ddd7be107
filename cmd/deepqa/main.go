// Command deepqa is the CLI front end: it ingests a Markdown corpus into
// the vector store and answers questions against it with the research loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hsn0918/deepqa/internal/chunking"
	embclient "github.com/hsn0918/deepqa/internal/clients/embedding"
	"github.com/hsn0918/deepqa/internal/clients/ollama"
	"github.com/hsn0918/deepqa/internal/config"
	"github.com/hsn0918/deepqa/internal/embedding"
	"github.com/hsn0918/deepqa/internal/ingest"
	"github.com/hsn0918/deepqa/internal/llm"
	"github.com/hsn0918/deepqa/internal/qa"
	"github.com/hsn0918/deepqa/internal/vectordb"
	"github.com/hsn0918/deepqa/pkg/logger"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "deepqa",
		Short:         "Agentic question answering over a Markdown corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", ".", "directory containing config.yaml")
	root.AddCommand(newEmbedCmd(), newAskCmd())

	if err := root.Execute(); err != nil {
		logger.Get().Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newEmbedCmd() *cobra.Command {
	var (
		dataPath string
		mode     string
	)

	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Parse, chunk and embed a directory of Markdown files into the vector store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			parsedMode, err := ingest.ParseMode(mode)
			if err != nil {
				return err
			}

			env, err := setup(ctx)
			if err != nil {
				return err
			}
			defer env.store.Close()

			chunker, err := chunking.New(
				env.cfg.Chunking.ChunkSize,
				chunking.Strategy(env.cfg.Chunking.Strategy),
				env.embedder.Tokenize,
			)
			if err != nil {
				return err
			}

			routine := ingest.New(chunker, env.embedder, env.store, logger.Get())
			return routine.Run(ctx, dataPath, parsedMode)
		},
	}

	cmd.Flags().StringVar(&dataPath, "data", "", "directory of Markdown files to ingest")
	cmd.Flags().StringVar(&mode, "mode", string(ingest.ModeCreate), "create (wipe and rebuild) or update (mtime-gated)")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func newAskCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask [question]",
		Short: "Answer a question with the iterative research loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			env, err := setup(ctx)
			if err != nil {
				return err
			}
			defer env.store.Close()

			agents := llm.NewAgents(env.cfg.Services.LLM)
			pipeline := qa.New(agents, env.embedder, env.store, env.cfg.QA, logger.Get())

			result, err := pipeline.Run(ctx, args[0])
			if err != nil {
				return err
			}

			fmt.Println(result.FinalAnswer)
			fmt.Printf("\niterations: %d  questions: %d  cost: %.6f\n",
				result.Iterations, len(result.Questions), result.Cost)
			for _, source := range uniqueSources(result) {
				fmt.Println("source:", source)
			}
			return nil
		},
	}
}

// env bundles the handles every command needs.
type env struct {
	cfg      *config.Config
	embedder embedding.Embedder
	store    *vectordb.Storage
}

func setup(ctx context.Context) (*env, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		// Configuration errors are the CLI's defined failure mode.
		if errors.Is(err, config.ErrConfigNotFound) || errors.Is(err, config.ErrInvalidConfig) {
			logger.Get().Error("configuration error", "error", err)
			os.Exit(1)
		}
		return nil, err
	}

	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	store, err := vectordb.Open(ctx, cfg.DatabaseDSN(), cfg.Store.Table, embedder.Dimension())
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, embedder: embedder, store: store}, nil
}

func buildEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	switch cfg.Services.Embedding.Provider {
	case "ollama":
		return ollama.NewClient(cfg.Services.Embedding)
	default:
		return embclient.NewClient(cfg.Services.Embedding), nil
	}
}

func uniqueSources(result *qa.Result) []string {
	seen := make(map[string]bool)
	var sources []string
	for _, v := range result.UsedContext {
		if !seen[v.FileName] {
			seen[v.FileName] = true
			sources = append(sources, v.FileName)
		}
	}
	return sources
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
