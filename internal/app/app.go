// Package app assembles the services shared by the API server and memoryctl.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/aiox-platform/usermemory/internal/config"
	"github.com/aiox-platform/usermemory/internal/database"
	"github.com/aiox-platform/usermemory/internal/extraction"
	"github.com/aiox-platform/usermemory/internal/extractor"
	"github.com/aiox-platform/usermemory/internal/llm"
	"github.com/aiox-platform/usermemory/internal/memory"
	"github.com/aiox-platform/usermemory/internal/metrics"
	"github.com/aiox-platform/usermemory/internal/orchestrator"
	iredis "github.com/aiox-platform/usermemory/internal/redis"
	"github.com/aiox-platform/usermemory/internal/topics"
	"github.com/aiox-platform/usermemory/internal/users"
)

// App holds the long-lived collaborators built from configuration.
type App struct {
	Config   *config.Config
	Pool     *pgxpool.Pool
	Redis    *redis.Client
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Topics     *topics.PostgresRepository
	Memories   *memory.Service
	Reembedder *memory.Reembedder
	Executor   *extraction.Executor

	closers []func()
}

// New connects to Postgres and Redis and builds the memory and extraction
// services. Callers must Close the returned App.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	pool, err := database.NewPostgresPool(ctx, cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	a.Pool = pool
	a.closers = append(a.closers, pool.Close)

	redisClient, err := iredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	a.Redis = redisClient
	a.closers = append(a.closers, func() { _ = redisClient.Close() })

	clients, err := llm.NewClients(cfg.LLM)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating llm clients: %w", err)
	}
	if cached, ok := clients.Embedder.(*llm.CachedEmbedder); ok {
		a.closers = append(a.closers, cached.Close)
	}

	prompts, err := extractor.LoadPrompts(cfg.Extraction.PromptsPath)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Registry = prometheus.NewRegistry()
	a.Metrics = metrics.New(a.Registry)

	repo := memory.NewPostgresRepository(pool)
	a.Memories = memory.NewService(repo, clients.Embedder, memory.NewRetriever(repo, clients.Embedder))
	a.Reembedder = memory.NewReembedder(repo, clients.Embedder, a.Metrics)
	a.Reembedder.DefaultConcurrency = cfg.Reembed.DefaultConcurrency

	gatekeeper := extractor.NewGatekeeper(extractor.Config{
		Generator: clients.Generator,
		Model:     cfg.LLM.GatekeeperModel,
		Prompts:   prompts,
	})
	layers := extractor.NewLayerExtractors(extractor.Config{
		Generator: clients.Generator,
		Model:     cfg.LLM.LayerModel,
		Prompts:   prompts,
	})
	for name, e := range layers {
		if err := e.EnsurePromptTemplate(); err != nil {
			a.Close()
			return nil, fmt.Errorf("compiling %s prompts: %w", name, err)
		}
	}
	orch, err := orchestrator.New(gatekeeper, layers, a.Metrics)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Topics = topics.NewPostgresRepository(pool)
	a.Executor = extraction.NewExecutor(extraction.Deps{
		Topics:   a.Topics,
		Memories: a.Memories,
		Runner:   orch,
		Locker:   iredis.NewLocker(redisClient, "usermemory:extraction:", cfg.Extraction.LockTTL),
		Profiles: users.NewService(users.NewRepository(pool)),
		Recorder: a.Metrics,
	}, extraction.Config{
		ContextLimit:          cfg.Extraction.ContextLimit,
		EmbeddingContextLimit: cfg.Extraction.EmbeddingContextLimit,
		TopK:                  cfg.Extraction.TopK,
		Language:              cfg.Extraction.GatekeeperLanguage,
		MemoryCategories:      memory.DefaultCategories,
	})

	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// SetupLogger installs the process-wide slog handler.
func SetupLogger(cfg config.LogConfig) {
	var handler slog.Handler

	opts := &slog.HandlerOptions{}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "info":
		opts.Level = slog.LevelInfo
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
