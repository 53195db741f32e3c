package nats

import (
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamJobs   = "MEMORY_JOBS"
	StreamEvents = "MEMORY_EVENTS"
)

// Subject constants.
const (
	SubjectExtractionJob   = "memory.extraction.jobs"
	SubjectExtractionEvent = "memory.events.extraction"
)

// ExtractionJob asks a consumer to extract memories from one chat topic.
type ExtractionJob struct {
	UserID      string     `json:"user_id"`
	TopicID     string     `json:"topic_id"`
	Source      string     `json:"source"`
	Layers      []string   `json:"layers,omitempty"`
	ForceAll    bool       `json:"force_all,omitempty"`
	ForceTopics bool       `json:"force_topics,omitempty"`
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	TraceID     string     `json:"trace_id,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
}

// ExtractionEvent is published after a job finished. The run history and
// downstream consumers read it.
type ExtractionEvent struct {
	UserID    string         `json:"user_id"`
	Source    string         `json:"source"`
	SourceID  string         `json:"source_id"`
	Status    string         `json:"status"` // completed, skipped, failed
	Layers    map[string]int `json:"layers,omitempty"`
	Error     string         `json:"error,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
