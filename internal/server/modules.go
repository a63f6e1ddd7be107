package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"go.uber.org/fx"

	embclient "github.com/hsn0918/deepqa/internal/clients/embedding"
	"github.com/hsn0918/deepqa/internal/clients/ollama"
	"github.com/hsn0918/deepqa/internal/config"
	"github.com/hsn0918/deepqa/internal/embedding"
	"github.com/hsn0918/deepqa/internal/llm"
	"github.com/hsn0918/deepqa/internal/qa"
	"github.com/hsn0918/deepqa/internal/vectordb"
	"github.com/hsn0918/deepqa/pkg/logger"
	"github.com/hsn0918/deepqa/pkg/redis"
)

// Module is the main fx dependency injection module.
var Module = fx.Options(
	InfrastructureModule,
	ClientsModule,
	ServicesModule,
	HTTPServerModule,
	fx.Invoke(StartHTTPServer),
)

// InfrastructureModule provides configuration, logging, the vector store
// and the cache connection.
var InfrastructureModule = fx.Module("infrastructure",
	fx.Provide(
		NewAppConfig,
		NewAppLogger,
		NewVectorStorage,
		NewRedisClient,
		NewCacheService,
	),
)

// ClientsModule provides the external model clients.
var ClientsModule = fx.Module("clients",
	fx.Provide(
		NewEmbedder,
		NewAgents,
	),
)

// ServicesModule provides the QA pipeline.
var ServicesModule = fx.Module("services",
	fx.Provide(
		NewPipeline,
	),
)

// HTTPServerModule provides the API server.
var HTTPServerModule = fx.Module("http_server",
	fx.Provide(
		NewQAServer,
	),
)

// NewAppConfig loads the application configuration.
func NewAppConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// NewAppLogger initializes the application logger.
func NewAppLogger() (*slog.Logger, error) {
	if err := logger.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger.Get(), nil
}

// NewEmbedder builds the configured embedding provider.
func NewEmbedder(cfg *config.Config) (embedding.Embedder, error) {
	switch cfg.Services.Embedding.Provider {
	case "ollama":
		return ollama.NewClient(cfg.Services.Embedding)
	default:
		return embclient.NewClient(cfg.Services.Embedding), nil
	}
}

// NewAgents builds the agent bundle on the configured LLM endpoint.
func NewAgents(cfg *config.Config) *llm.Agents {
	return llm.NewAgents(cfg.Services.LLM)
}

// NewVectorStorage opens the vector collection with the embedding model's
// dimension.
func NewVectorStorage(lc fx.Lifecycle, cfg *config.Config, embedder embedding.Embedder, log *slog.Logger) (*vectordb.Storage, error) {
	log.Info("opening vector collection",
		"table", cfg.Store.Table,
		"dimension", embedder.Dimension())

	store, err := vectordb.Open(context.Background(), cfg.DatabaseDSN(), cfg.Store.Table, embedder.Dimension())
	if err != nil {
		return nil, fmt.Errorf("failed to open vector storage: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			store.Close()
			return nil
		},
	})
	return store, nil
}

// NewRedisClient connects to the cache backend.
func NewRedisClient(lc fx.Lifecycle, cfg *config.Config) (redis.RedisClient, error) {
	client, err := redis.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			client.Close()
			return nil
		},
	})
	return client, nil
}

// NewPipeline assembles the QA orchestrator.
func NewPipeline(agents *llm.Agents, embedder embedding.Embedder, store *vectordb.Storage, cfg *config.Config, log *slog.Logger) *qa.Pipeline {
	return qa.New(agents, embedder, store, cfg.QA, log)
}

// StartHTTPServer binds the API server to the fx lifecycle.
func StartHTTPServer(lc fx.Lifecycle, s *QAServer, cfg *config.Config, log *slog.Logger) {
	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler: s.Handler(),
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting http server", "addr", srv.Addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server failed", "error", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info("stopping http server")
			return srv.Shutdown(ctx)
		},
	})
}
