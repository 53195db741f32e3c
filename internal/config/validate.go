package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	if len(c.Auth.JWTSecret) < 32 {
		errs = append(errs, "AUTH_JWT_SECRET must be at least 32 characters")
	}

	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1-65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1-65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1-65535, got %d", c.Redis.Port))
	}

	// Model provider
	if u, err := url.Parse(c.LLM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Sprintf("LLM_BASE_URL must be an absolute URL, got %q", c.LLM.BaseURL))
	}
	if c.LLM.EmbeddingDimensions != 1024 {
		errs = append(errs, fmt.Sprintf("LLM_EMBEDDING_DIMENSIONS must be 1024 to match the vector columns, got %d", c.LLM.EmbeddingDimensions))
	}
	if c.LLM.RequestsPerSecond < 0 {
		errs = append(errs, "LLM_REQUESTS_PER_SECOND must not be negative")
	}

	if c.Reembed.DefaultConcurrency < 1 || c.Reembed.DefaultConcurrency > 50 {
		errs = append(errs, fmt.Sprintf("REEMBED_DEFAULT_CONCURRENCY must be 1-50, got %d", c.Reembed.DefaultConcurrency))
	}
	if c.Extraction.TopK < 1 {
		errs = append(errs, fmt.Sprintf("EXTRACTION_TOP_K must be positive, got %d", c.Extraction.TopK))
	}

	// API key: warn only, local OpenAI-compatible servers often need none
	if c.LLM.APIKey == "" {
		slog.Warn("LLM_API_KEY is empty, model requests are sent unauthenticated")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
