package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "usermemory",
			Password: "secret", Name: "usermemory", SSLMode: "disable", MaxConns: 25,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth: AuthConfig{
			JWTSecret:   "jwt-secret-that-is-at-least-32-chars!!",
			TokenExpiry: time.Hour,
		},
		LLM: LLMConfig{APIKey: "sk-test"},
	}
	cfg.applyDefaults()
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_JWTSecretTooShort(t *testing.T) {
	cfg := validConfig()
	cfg.Auth.JWTSecret = "short"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "AUTH_JWT_SECRET") {
		t.Fatalf("expected AUTH_JWT_SECRET error, got: %v", err)
	}
}

func TestValidate_DBPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_EmbeddingDimensionsMustMatchColumns(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.EmbeddingDimensions = 1536
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "LLM_EMBEDDING_DIMENSIONS") {
		t.Fatalf("expected LLM_EMBEDDING_DIMENSIONS error, got: %v", err)
	}
}

func TestValidate_LLMBaseURL(t *testing.T) {
	cfg := validConfig()
	cfg.LLM.BaseURL = "not a url"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "LLM_BASE_URL") {
		t.Fatalf("expected LLM_BASE_URL error, got: %v", err)
	}
}

func TestValidate_ReembedConcurrencyBounds(t *testing.T) {
	cfg := validConfig()
	cfg.Reembed.DefaultConcurrency = 51
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "REEMBED_DEFAULT_CONCURRENCY") {
		t.Fatalf("expected REEMBED_DEFAULT_CONCURRENCY error, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0},
		DB:     DBConfig{Port: 5432},
		Redis:  RedisConfig{Port: 6379},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"AUTH_JWT_SECRET", "DB_PASSWORD", "SERVER_PORT", "LLM_BASE_URL", "REEMBED_DEFAULT_CONCURRENCY"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("LLM_BASE_URL", "http://localhost:11434/v1")
	t.Setenv("EXTRACTION_TOP_K", "7")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.Password != "pw" {
		t.Errorf("DB.Password = %q", cfg.DB.Password)
	}
	if cfg.LLM.BaseURL != "http://localhost:11434/v1" {
		t.Errorf("LLM.BaseURL = %q", cfg.LLM.BaseURL)
	}
	if cfg.Extraction.TopK != 7 {
		t.Errorf("Extraction.TopK = %d", cfg.Extraction.TopK)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("CORS.AllowedOrigins = %v", cfg.CORS.AllowedOrigins)
	}
	if cfg.LLM.EmbeddingDimensions != 1024 {
		t.Errorf("LLM.EmbeddingDimensions = %d", cfg.LLM.EmbeddingDimensions)
	}
	if cfg.Reembed.DefaultConcurrency != 10 {
		t.Errorf("Reembed.DefaultConcurrency = %d", cfg.Reembed.DefaultConcurrency)
	}
	if cfg.Auth.TokenExpiry != time.Hour {
		t.Errorf("Auth.TokenExpiry = %v", cfg.Auth.TokenExpiry)
	}
}
