package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// BenchmarkPart is one dialogue turn of a LoCoMo benchmark sample.
type BenchmarkPart struct {
	Speaker   string         `json:"speaker"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"createdAt"`
	SessionID string         `json:"sessionId"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// BenchmarkProvider renders a fixed benchmark transcript. Parts keep the
// order they were given in.
type BenchmarkProvider struct {
	sampleID string
	parts    []BenchmarkPart
}

var _ Provider = (*BenchmarkProvider)(nil)

func NewBenchmarkProvider(sampleID string, parts []BenchmarkPart) *BenchmarkProvider {
	return &BenchmarkProvider{sampleID: sampleID, parts: parts}
}

func (p *BenchmarkProvider) Prepare(_ context.Context, job Job) (*PreparedContext, error) {
	if len(p.parts) == 0 {
		return nil, nil
	}
	msgs := make([]Message, len(p.parts))
	for i, part := range p.parts {
		msgs[i] = Message{
			ID:        fmt.Sprintf("%s-%d", p.sampleID, i),
			Role:      "user",
			Content:   part.Speaker + ": " + part.Content,
			CreatedAt: part.CreatedAt,
		}
	}
	return &PreparedContext{
		Conversation: msgs,
		Metadata:     map[string]any{"sampleId": p.sampleID, "messageCount": len(msgs)},
		SourceID:     job.SourceID,
		UserID:       job.UserID,
	}, nil
}

func (p *BenchmarkProvider) BuildContext(_ context.Context, job Job) (*BuiltContext, error) {
	text, err := p.Render(job.SourceID, job.UserID)
	if err != nil {
		return nil, err
	}
	return &BuiltContext{
		Context:  text,
		Metadata: map[string]any{"sampleId": p.sampleID, "messageCount": len(p.parts)},
		SourceID: job.SourceID,
		UserID:   job.UserID,
	}, nil
}

// Render writes the transcript as a <benchmark_locomo> element.
func (p *BenchmarkProvider) Render(sourceID, userID string) (string, error) {
	var w xmlWriter
	w.open("benchmark_locomo",
		attr{"sample_id", p.sampleID},
		attr{"source_id", sourceID},
		attr{"user_id", userID},
	)
	w.newline()
	for i, part := range p.parts {
		content := part.Content
		if len(part.Metadata) > 0 {
			// encoding/json sorts map keys.
			meta, err := json.Marshal(part.Metadata)
			if err != nil {
				return "", fmt.Errorf("encoding metadata of part %d: %w", i, err)
			}
			content += "\n[metadata:" + string(meta) + "]"
		}
		w.element("message", content,
			attr{"index", strconv.Itoa(i)},
			attr{"speaker", part.Speaker},
			attr{"created_at", formatTime(part.CreatedAt)},
			attr{"session_id", part.SessionID},
		)
	}
	w.close("benchmark_locomo")
	return w.String(), nil
}
