package topics

import (
	"encoding/json"
	"time"
)

const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Topic is a chat topic owned by a user.
type Topic struct {
	ID        string
	UserID    string
	Title     *string
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one chat message of a topic.
type Message struct {
	ID        string
	TopicID   string
	UserID    string
	Role      string
	Content   *string
	CreatedAt time.Time
}

// ExtractionState is the memory extraction bookkeeping stored on a topic under
// metadata.memoryExtraction.sources.chat_topic.
type ExtractionState struct {
	Digest               string     `json:"digest,omitempty"`
	Status               string     `json:"status"`
	LastRunAt            *time.Time `json:"lastRunAt,omitempty"`
	MessageCount         int        `json:"messageCount"`
	LastMessageAt        *time.Time `json:"lastMessageAt,omitempty"`
	ProcessedMemoryCount int        `json:"processedMemoryCount"`
	Error                string     `json:"error,omitempty"`
	TraceID              string     `json:"traceId,omitempty"`
}

// ExtractionState returns the stored extraction state, if any.
func (t *Topic) ExtractionState() (ExtractionState, bool) {
	var state ExtractionState
	me, ok := t.Metadata["memoryExtraction"].(map[string]any)
	if !ok {
		return state, false
	}
	sources, ok := me["sources"].(map[string]any)
	if !ok {
		return state, false
	}
	raw, ok := sources["chat_topic"]
	if !ok {
		return state, false
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return state, false
	}
	if err := json.Unmarshal(b, &state); err != nil {
		return state, false
	}
	return state, true
}

// Extracted reports whether a previous extraction of the topic completed.
func (t *Topic) Extracted() bool {
	state, ok := t.ExtractionState()
	return ok && state.Status == StatusCompleted && state.LastRunAt != nil
}
