// Package llm is the model-calling capability: chat generation with structured
// output or tools, and text embeddings.
package llm

import (
	"context"
	"encoding/json"

	"github.com/aiox-platform/usermemory/internal/schema"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Tool is a function the model may call. Parameters is a JSON schema object.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	Strict      bool
}

// ToolCall is one function call emitted by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

// Request is a chat generation request. At most one of Schema or Tools is
// normally set.
type Request struct {
	Model       string
	Messages    []Message
	Schema      *schema.StructuredOutput
	Tools       []Tool
	Temperature *float64
}

// Usage reports token accounting for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the model answer. Content holds the JSON document for
// structured calls; ToolCalls holds calls for tool-based ones.
type Response struct {
	Model     string
	Content   string
	ToolCalls []ToolCall
	Usage     Usage
}

// Generator produces chat completions.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// Embedder turns texts into vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}
