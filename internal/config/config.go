package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Redis      RedisConfig
	NATS       NATSConfig
	Auth       AuthConfig
	CORS       CORSConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	LLM        LLMConfig
	Extraction ExtractionConfig
	Reembed    ReembedConfig
}

type ServerConfig struct {
	Host string
	Port int
	ReadTimeout time.Duration
	// WriteTimeout also bounds synchronous re-embeds.
	WriteTimeout time.Duration
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type NATSConfig struct {
	URL string
}

// AuthConfig configures bearer token validation. Tokens are issued elsewhere;
// TokenExpiry only applies to tokens minted by memoryctl.
type AuthConfig struct {
	JWTSecret   string
	TokenIssuer string
	TokenExpiry time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// LLMConfig configures the model provider.
type LLMConfig struct {
	Provider            string
	BaseURL             string
	APIKey              string
	GatekeeperModel     string
	LayerModel          string
	EmbeddingModel      string
	EmbeddingDimensions int
	TimeoutSec          int
	RequestsPerSecond   float64
	Burst               int
	BreakerFailures     uint32
	EmbeddingCacheSize  int64
}

// ExtractionConfig tunes topic extraction.
type ExtractionConfig struct {
	// ContextLimit is the token budget of the conversation sent to extractors.
	ContextLimit int
	// EmbeddingContextLimit is the token budget of the retrieval query text.
	EmbeddingContextLimit int
	TopK                  int
	GatekeeperLanguage    string
	PromptsPath           string
	LockTTL               time.Duration
	ConsumerBatch         int
}

type ReembedConfig struct {
	DefaultConcurrency int
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:         k.String("server.host"),
			Port:         k.Int("server.port"),
			ReadTimeout:  time.Duration(k.Int("server.read.timeout.sec")) * time.Second,
			WriteTimeout: time.Duration(k.Int("server.write.timeout.sec")) * time.Second,
		},
		DB: DBConfig{
			Host:     k.String("db.host"),
			Port:     k.Int("db.port"),
			User:     k.String("db.user"),
			Password: k.String("db.password"),
			Name:     k.String("db.name"),
			SSLMode:  k.String("db.sslmode"),
			MaxConns: int32(k.Int("db.max.conns")),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Auth: AuthConfig{
			JWTSecret:   k.String("auth.jwt.secret"),
			TokenIssuer: k.String("auth.token.issuer"),
		},
		RateLimit: RateLimitConfig{
			Requests: k.Int("ratelimit.requests"),
			Window:   time.Duration(k.Int("ratelimit.window.sec")) * time.Second,
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
		LLM: LLMConfig{
			Provider:            k.String("llm.provider"),
			BaseURL:             k.String("llm.base.url"),
			APIKey:              k.String("llm.api.key"),
			GatekeeperModel:     k.String("llm.gatekeeper.model"),
			LayerModel:          k.String("llm.layer.model"),
			EmbeddingModel:      k.String("llm.embedding.model"),
			EmbeddingDimensions: k.Int("llm.embedding.dimensions"),
			TimeoutSec:          k.Int("llm.timeout.sec"),
			RequestsPerSecond:   k.Float64("llm.requests.per.second"),
			Burst:               k.Int("llm.burst"),
			BreakerFailures:     uint32(k.Int("llm.breaker.failures")),
			EmbeddingCacheSize:  k.Int64("llm.embedding.cache.size"),
		},
		Extraction: ExtractionConfig{
			ContextLimit:          k.Int("extraction.context.limit"),
			EmbeddingContextLimit: k.Int("extraction.embedding.context.limit"),
			TopK:                  k.Int("extraction.top.k"),
			GatekeeperLanguage:    k.String("extraction.gatekeeper.language"),
			PromptsPath:           k.String("extraction.prompts.path"),
			LockTTL:               time.Duration(k.Int("extraction.lock.ttl.sec")) * time.Second,
			ConsumerBatch:         k.Int("extraction.consumer.batch"),
		},
		Reembed: ReembedConfig{
			DefaultConcurrency: k.Int("reembed.default.concurrency"),
		},
	}

	if origins := k.String("cors.allowed.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, o)
			}
		}
	}

	expiry := k.String("auth.token.expiry")
	if expiry == "" {
		expiry = "1h"
	}
	cfg.Auth.TokenExpiry, err = time.ParseDuration(expiry)
	if err != nil {
		return nil, fmt.Errorf("parsing auth token expiry: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 5 * time.Minute
	}
	if c.DB.Host == "" {
		c.DB.Host = "localhost"
	}
	if c.DB.Port == 0 {
		c.DB.Port = 5432
	}
	if c.DB.User == "" {
		c.DB.User = "usermemory"
	}
	if c.DB.Name == "" {
		c.DB.Name = "usermemory"
	}
	if c.DB.SSLMode == "" {
		c.DB.SSLMode = "disable"
	}
	if c.DB.MaxConns == 0 {
		c.DB.MaxConns = 25
	}
	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"http://localhost:3000"}
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 100
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.Log.Level == "" {
		c.Log.Level = "debug"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.GatekeeperModel == "" {
		c.LLM.GatekeeperModel = "gpt-4o-mini"
	}
	if c.LLM.LayerModel == "" {
		c.LLM.LayerModel = "gpt-4o-mini"
	}
	if c.LLM.EmbeddingModel == "" {
		c.LLM.EmbeddingModel = "text-embedding-3-small"
	}
	if c.LLM.EmbeddingDimensions == 0 {
		c.LLM.EmbeddingDimensions = 1024
	}
	if c.LLM.TimeoutSec == 0 {
		c.LLM.TimeoutSec = 60
	}
	if c.LLM.BreakerFailures == 0 {
		c.LLM.BreakerFailures = 5
	}
	if c.Extraction.ContextLimit == 0 {
		c.Extraction.ContextLimit = 12000
	}
	if c.Extraction.EmbeddingContextLimit == 0 {
		c.Extraction.EmbeddingContextLimit = 4000
	}
	if c.Extraction.TopK == 0 {
		c.Extraction.TopK = 10
	}
	if c.Extraction.GatekeeperLanguage == "" {
		c.Extraction.GatekeeperLanguage = "English"
	}
	if c.Extraction.LockTTL == 0 {
		c.Extraction.LockTTL = 10 * time.Minute
	}
	if c.Extraction.ConsumerBatch == 0 {
		c.Extraction.ConsumerBatch = 10
	}
	if c.Reembed.DefaultConcurrency == 0 {
		c.Reembed.DefaultConcurrency = 10
	}
}
