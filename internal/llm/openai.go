package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL        string        // default: https://api.openai.com/v1
	APIKey         string
	Model          string        // used when a Request names no model
	EmbeddingModel string        // default: text-embedding-3-small
	Dimensions     int           // default: 1024
	Timeout        time.Duration // default: 60s
	// RequestsPerSecond throttles outgoing calls; zero disables throttling.
	RequestsPerSecond float64
	Burst             int
	Breaker           CircuitBreakerConfig
}

// OpenAIClient implements Generator and Embedder over the chat completions
// and embeddings endpoints.
type OpenAIClient struct {
	cfg     OpenAIConfig
	http    *resty.Client
	limiter *rate.Limiter
	breaker *CircuitBreaker
}

var (
	_ Generator = (*OpenAIClient)(nil)
	_ Embedder  = (*OpenAIClient)(nil)
)

// NewOpenAIClient creates a client with the given configuration.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = 1024
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}

	return &OpenAIClient{
		cfg:     cfg,
		http:    client,
		limiter: limiter,
		breaker: NewCircuitBreaker(cfg.Breaker),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Tools          []chatTool      `json:"tools,omitempty"`
	ToolChoice     string          `json:"tool_choice,omitempty"`
}

type responseFormat struct {
	Type       string `json:"type"`
	JSONSchema any    `json:"json_schema"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	Strict      bool           `json:"strict,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   *string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Generate sends a chat completion. A Schema becomes a json_schema
// response_format; Tools are sent as function tools.
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	if model == "" {
		return nil, errors.New("llm: no model configured")
	}

	body := chatRequest{
		Model:       model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
	}
	if req.Schema != nil {
		name := req.Schema.Name
		if name == "" {
			name = "response"
		}
		body.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: map[string]any{
				"name":   name,
				"schema": req.Schema.Schema,
				"strict": req.Schema.Strict,
			},
		}
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, chatTool{
			Type:     "function",
			Function: chatFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters, Strict: t.Strict},
		})
	}
	if len(body.Tools) > 0 {
		body.ToolChoice = "auto"
	}

	var out chatResponse
	if err := c.post(ctx, "/chat/completions", body, &out); err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("chat completion: no choices returned")
	}

	msg := out.Choices[0].Message
	resp := &Response{Model: out.Model, Usage: out.Usage}
	if msg.Content != nil {
		resp.Content = *msg.Content
	}
	for _, tc := range msg.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return resp, nil
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed embeds all inputs with one request. Vectors are returned in input order.
func (c *OpenAIClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}

	var out embeddingResponse
	err := c.post(ctx, "/embeddings", embeddingRequest{
		Model:      c.cfg.EmbeddingModel,
		Input:      inputs,
		Dimensions: c.cfg.Dimensions,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	if len(out.Data) != len(inputs) {
		return nil, fmt.Errorf("embeddings: expected %d vectors, got %d", len(inputs), len(out.Data))
	}

	vectors := make([][]float32, len(inputs))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(inputs) || vectors[d.Index] != nil {
			return nil, fmt.Errorf("embeddings: unexpected index %d", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// EmbeddingModel returns the configured embedding model name.
func (c *OpenAIClient) EmbeddingModel() string {
	return c.cfg.EmbeddingModel
}

func (c *OpenAIClient) post(ctx context.Context, path string, body, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for rate limiter: %w", err)
	}

	_, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		var apiErr apiError
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(body).
			SetResult(result).
			SetError(&apiErr).
			Post(path)
		if err != nil {
			return nil, fmt.Errorf("sending request: %w", err)
		}
		if resp.IsError() {
			msg := apiErr.Error.Message
			if msg == "" {
				msg = resp.String()
			}
			return nil, fmt.Errorf("status %d: %s", resp.StatusCode(), msg)
		}
		return nil, nil
	})
	return err
}
