package providers

import (
	"context"
	"time"

	"github.com/aiox-platform/usermemory/internal/memory"
)

// Source names the kind of evidence a job extracts from.
type Source string

const (
	SourceChatTopic       Source = "chat_topic"
	SourceBenchmarkLocomo Source = "benchmark_locomo"
	SourceObsidian        Source = "obsidian"
	SourceNotion          Source = "notion"
	SourceLark            Source = "lark"
)

var sources = map[Source]bool{
	SourceChatTopic:       true,
	SourceBenchmarkLocomo: true,
	SourceObsidian:        true,
	SourceNotion:          true,
	SourceLark:            true,
}

func (s Source) Valid() bool {
	return sources[s]
}

// Job is one extraction request. It is not mutated once a run starts.
type Job struct {
	Source          Source         `json:"source" validate:"required"`
	SourceID        string         `json:"sourceId" validate:"required"`
	UserID          string         `json:"userId" validate:"required"`
	Layers          []memory.Layer `json:"layers,omitempty"`
	Force           bool           `json:"force,omitempty"`
	SourceUpdatedAt time.Time      `json:"sourceUpdatedAt,omitempty"`
	TraceID         string         `json:"traceId,omitempty"`
}

// Message is one conversation turn handed to the extractors.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// PreparedContext is what a provider hands the orchestrator for one run.
type PreparedContext struct {
	Conversation []Message
	Metadata     map[string]any
	SourceID     string
	TopicID      string
	UserID       string
}

// MessageIDs returns the ids of the prepared conversation in order.
func (p *PreparedContext) MessageIDs() []string {
	ids := make([]string, 0, len(p.Conversation))
	for _, m := range p.Conversation {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// BuiltContext is the canonical text rendering of a source.
type BuiltContext struct {
	Context  string         `json:"context"`
	Metadata map[string]any `json:"metadata"`
	SourceID string         `json:"sourceId"`
	UserID   string         `json:"userId"`
}

// CompletionResult summarizes a finished run for the Complete hook.
type CompletionResult struct {
	ProcessedMemoryCount int
}

// Renderer turns a source into canonical text.
type Renderer interface {
	BuildContext(ctx context.Context, job Job) (*BuiltContext, error)
}

// Provider prepares a source for extraction. A nil PreparedContext with a nil
// error means there is nothing to extract.
type Provider interface {
	Renderer
	Prepare(ctx context.Context, job Job) (*PreparedContext, error)
}

// Completer is implemented by providers that record successful runs on the source.
type Completer interface {
	Complete(ctx context.Context, job Job, prepared *PreparedContext, result CompletionResult) error
}

// Failer is implemented by providers that record failed runs on the source.
type Failer interface {
	Fail(ctx context.Context, job Job, prepared *PreparedContext, cause error) error
}
