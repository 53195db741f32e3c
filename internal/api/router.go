package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aiox-platform/usermemory/internal/database"
	"github.com/aiox-platform/usermemory/internal/metrics"
	mw "github.com/aiox-platform/usermemory/internal/middleware"
	inats "github.com/aiox-platform/usermemory/internal/nats"
)

// HandlerSet holds handler functions injected from main.go to avoid import cycles.
type HandlerSet struct {
	// Memory handlers
	AddContext     http.HandlerFunc
	AddExperience  http.HandlerFunc
	AddPreference  http.HandlerFunc
	AddIdentity    http.HandlerFunc
	UpdateIdentity http.HandlerFunc
	RemoveIdentity http.HandlerFunc
	ListIdentities http.HandlerFunc
	SearchMemories http.HandlerFunc
	Reembed        http.HandlerFunc

	// Extraction handlers
	EnqueueExtraction http.HandlerFunc
	ListExtractions   http.HandlerFunc

	// Auth middleware
	AuthMiddleware func(http.Handler) http.Handler

	// ConsumerHealthy reports whether the extraction consumer is running.
	ConsumerHealthy func() bool
}

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	CORSAllowedOrigins []string
	Metrics            *metrics.Metrics
	Gatherer           prometheus.Gatherer
	// RedisCheck reports Redis health in the readiness probe when set.
	RedisCheck func(ctx context.Context) error
	// RateLimiter guards the authenticated routes when set.
	RateLimiter func(http.Handler) http.Handler
}

func NewRouter(pool *pgxpool.Pool, natsClient *inats.Client, cfg RouterConfig, h HandlerSet) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.SecurityHeaders)
	r.Use(mw.Logging)
	r.Use(mw.Recovery)
	if cfg.Metrics != nil {
		r.Use(mw.Metrics(cfg.Metrics))
	}
	r.Use(cors.Handler(mw.CORS(cfg.CORSAllowedOrigins)))

	// Liveness probe, always 200 with no dependency checks
	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		JSON(w, http.StatusOK, map[string]string{"status": "alive"})
	})

	// Readiness probe checks DB, Redis, NATS and the extraction consumer
	readinessHandler := func(w http.ResponseWriter, r *http.Request) {
		health := map[string]string{
			"status":   "healthy",
			"database": "healthy",
			"redis":    "healthy",
			"nats":     "healthy",
			"consumer": "healthy",
		}

		status := http.StatusOK

		if err := database.HealthCheck(r.Context(), pool); err != nil {
			health["database"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		}

		if cfg.RedisCheck != nil {
			if err := cfg.RedisCheck(r.Context()); err != nil {
				health["redis"] = "unhealthy"
				health["status"] = "degraded"
				status = http.StatusServiceUnavailable
			}
		} else {
			health["redis"] = "not configured"
		}

		if natsClient != nil && !natsClient.Healthy() {
			health["nats"] = "unhealthy"
			health["status"] = "degraded"
			status = http.StatusServiceUnavailable
		} else if natsClient == nil {
			health["nats"] = "not configured"
		}

		if h.ConsumerHealthy != nil {
			if !h.ConsumerHealthy() {
				health["consumer"] = "stopped"
				health["status"] = "degraded"
			}
		} else {
			health["consumer"] = "not configured"
		}

		JSON(w, status, health)
	}

	r.Get("/health/ready", readinessHandler)
	r.Get("/health", readinessHandler)

	// Prometheus metrics
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	} else {
		r.Handle("/metrics", promhttp.Handler())
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)
			if cfg.RateLimiter != nil {
				r.Use(cfg.RateLimiter)
			}

			r.Route("/memories", func(r chi.Router) {
				r.Post("/contexts", h.AddContext)
				r.Post("/experiences", h.AddExperience)
				r.Post("/preferences", h.AddPreference)

				r.Route("/identities", func(r chi.Router) {
					r.Get("/", h.ListIdentities)
					r.Post("/", h.AddIdentity)
					r.Put("/{identityID}", h.UpdateIdentity)
					r.Delete("/{identityID}", h.RemoveIdentity)
				})

				r.Post("/search", h.SearchMemories)
				r.Post("/reembed", h.Reembed)
			})

			r.Post("/extractions", h.EnqueueExtraction)
			r.Get("/extractions", h.ListExtractions)
		})
	})

	return r
}
