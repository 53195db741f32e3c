package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aiox-platform/usermemory/internal/api"
	"github.com/aiox-platform/usermemory/internal/app"
	"github.com/aiox-platform/usermemory/internal/auth"
	"github.com/aiox-platform/usermemory/internal/config"
	"github.com/aiox-platform/usermemory/internal/database"
	"github.com/aiox-platform/usermemory/internal/extraction"
	"github.com/aiox-platform/usermemory/internal/history"
	"github.com/aiox-platform/usermemory/internal/memory"
	mw "github.com/aiox-platform/usermemory/internal/middleware"
	inats "github.com/aiox-platform/usermemory/internal/nats"
	iredis "github.com/aiox-platform/usermemory/internal/redis"
	"github.com/aiox-platform/usermemory/internal/orchestrator"
	"github.com/aiox-platform/usermemory/internal/server"
	"github.com/aiox-platform/usermemory/migrations"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "error", err)
		os.Exit(1)
	}

	app.SetupLogger(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if err := database.RunMigrations(cfg.DB.DSN(), migrations.FS); err != nil {
		slog.Error("migrating database", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// PostgreSQL, Redis, models and services
	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("building services", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	// NATS
	natsClient, err := inats.NewClient(ctx, cfg.NATS)
	if err != nil {
		slog.Error("connecting to nats", "error", err)
		os.Exit(1)
	}
	defer natsClient.Close()
	publisher := inats.NewPublisher(natsClient.JetStream())
	consumerMgr := inats.NewConsumerManager(natsClient.JetStream())

	consumer := orchestrator.NewConsumer(
		consumerMgr,
		a.Executor,
		publisher,
		cfg.Extraction.ConsumerBatch,
	)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("extraction consumer stopped", "error", err)
		}
	}()

	// Extraction history
	runs := history.NewRepository(a.Pool)
	go func() {
		if err := history.NewConsumer(runs, consumerMgr).Start(ctx); err != nil {
			slog.Error("history consumer stopped", "error", err)
		}
	}()

	// Handlers
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenIssuer, cfg.Auth.TokenExpiry)
	memoryHandler := memory.NewHandler(a.Memories, a.Reembedder)
	extractionHandler := extraction.NewHandler(extraction.NewDispatcher(a.Topics, publisher))
	historyHandler := history.NewHandler(runs)

	routerCfg := api.RouterConfig{
		CORSAllowedOrigins: cfg.CORS.AllowedOrigins,
		Metrics:            a.Metrics,
		Gatherer:           a.Registry,
		RedisCheck: func(ctx context.Context) error {
			return iredis.HealthCheck(ctx, a.Redis)
		},
	}
	if cfg.RateLimit.Requests > 0 {
		limiter := mw.NewRateLimiter(a.Redis, cfg.RateLimit.Requests, int(cfg.RateLimit.Window.Seconds()),
			func(r *http.Request) string { return auth.GetUserID(r.Context()) })
		routerCfg.RateLimiter = limiter.Middleware
	}

	router := api.NewRouter(a.Pool, natsClient, routerCfg, api.HandlerSet{
		AddContext:     memoryHandler.AddContext,
		AddExperience:  memoryHandler.AddExperience,
		AddPreference:  memoryHandler.AddPreference,
		AddIdentity:    memoryHandler.AddIdentity,
		UpdateIdentity: memoryHandler.UpdateIdentity,
		RemoveIdentity: memoryHandler.RemoveIdentity,
		ListIdentities: memoryHandler.ListIdentities,
		SearchMemories: memoryHandler.Search,
		Reembed:        memoryHandler.Reembed,

		EnqueueExtraction: extractionHandler.Enqueue,
		ListExtractions:   historyHandler.List,

		AuthMiddleware:  auth.Middleware(tokens),
		ConsumerHealthy: consumer.Healthy,
	})

	// Start server
	srv := server.New(cfg.Server, router)
	if err := srv.Start(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
