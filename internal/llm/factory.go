package llm

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aiox-platform/usermemory/internal/config"
)

// Clients bundles the generator and embedder built from configuration.
type Clients struct {
	Generator Generator
	Embedder  Embedder
}

// NewClients creates the model clients for the configured provider.
func NewClients(cfg config.LLMConfig) (*Clients, error) {
	switch cfg.Provider {
	case "openai", "":
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}

	client := NewOpenAIClient(OpenAIConfig{
		BaseURL:           cfg.BaseURL,
		APIKey:            cfg.APIKey,
		Model:             cfg.LayerModel,
		EmbeddingModel:    cfg.EmbeddingModel,
		Dimensions:        cfg.EmbeddingDimensions,
		Timeout:           time.Duration(cfg.TimeoutSec) * time.Second,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		Breaker:           CircuitBreakerConfig{MaxFailures: cfg.BreakerFailures},
	})

	clients := &Clients{Generator: client, Embedder: client}
	if cfg.EmbeddingCacheSize > 0 {
		cached, err := NewCachedEmbedder(client, client.EmbeddingModel(), cfg.EmbeddingCacheSize)
		if err != nil {
			return nil, err
		}
		clients.Embedder = cached
	}

	slog.Info("llm clients ready",
		"provider", cfg.Provider,
		"base_url", cfg.BaseURL,
		"embedding_model", client.EmbeddingModel(),
		"embedding_cache", cfg.EmbeddingCacheSize,
	)
	return clients, nil
}
