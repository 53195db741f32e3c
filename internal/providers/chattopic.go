package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aiox-platform/usermemory/internal/topics"
)

// TopicStore is the subset of topics.Repository the chat topic provider needs.
type TopicStore interface {
	GetTopic(ctx context.Context, userID, topicID string) (*topics.Topic, error)
	ListMessages(ctx context.Context, userID, topicID string) ([]topics.Message, error)
	SaveExtractionState(ctx context.Context, userID, topicID string, state topics.ExtractionState) error
}

// ChatTopicProvider extracts from the messages of one chat topic.
type ChatTopicProvider struct {
	store TopicStore
	now   func() time.Time
}

var (
	_ Provider  = (*ChatTopicProvider)(nil)
	_ Completer = (*ChatTopicProvider)(nil)
	_ Failer    = (*ChatTopicProvider)(nil)
)

func NewChatTopicProvider(store TopicStore) *ChatTopicProvider {
	return &ChatTopicProvider{store: store, now: time.Now}
}

// Prepare returns nil when the topic has no usable messages, or when its
// digest matches the last completed run and the job is not forced.
func (p *ChatTopicProvider) Prepare(ctx context.Context, job Job) (*PreparedContext, error) {
	topic, msgs, err := p.load(ctx, job)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		slog.Debug("chat topic provider: no messages", "topic_id", job.SourceID, "user_id", job.UserID)
		return nil, nil
	}

	digest := Digest(msgs)
	if state, ok := topic.ExtractionState(); ok && !job.Force && state.Status == topics.StatusCompleted && state.Digest == digest {
		slog.Debug("chat topic provider: digest unchanged", "topic_id", job.SourceID, "digest", digest)
		return nil, nil
	}

	return &PreparedContext{
		Conversation: msgs,
		Metadata: map[string]any{
			"digest":       digest,
			"messageCount": len(msgs),
		},
		SourceID: job.SourceID,
		TopicID:  topic.ID,
		UserID:   job.UserID,
	}, nil
}

func (p *ChatTopicProvider) BuildContext(ctx context.Context, job Job) (*BuiltContext, error) {
	_, msgs, err := p.load(ctx, job)
	if err != nil {
		return nil, err
	}
	return &BuiltContext{
		Context: RenderChatTopic(job.SourceID, job.UserID, msgs),
		Metadata: map[string]any{
			"digest":       Digest(msgs),
			"messageCount": len(msgs),
		},
		SourceID: job.SourceID,
		UserID:   job.UserID,
	}, nil
}

func (p *ChatTopicProvider) Complete(ctx context.Context, job Job, prepared *PreparedContext, result CompletionResult) error {
	state := p.state(prepared, topics.StatusCompleted, job.TraceID)
	state.ProcessedMemoryCount = result.ProcessedMemoryCount
	return p.save(ctx, job, state)
}

func (p *ChatTopicProvider) Fail(ctx context.Context, job Job, prepared *PreparedContext, cause error) error {
	state := p.state(prepared, topics.StatusFailed, job.TraceID)
	if cause != nil {
		state.Error = cause.Error()
	}
	return p.save(ctx, job, state)
}

func (p *ChatTopicProvider) state(prepared *PreparedContext, status, traceID string) topics.ExtractionState {
	now := p.now().UTC()
	state := topics.ExtractionState{
		Status:    status,
		LastRunAt: &now,
		TraceID:   traceID,
	}
	if prepared != nil && len(prepared.Conversation) > 0 {
		last := prepared.Conversation[len(prepared.Conversation)-1].CreatedAt.UTC()
		state.Digest = Digest(prepared.Conversation)
		state.MessageCount = len(prepared.Conversation)
		state.LastMessageAt = &last
	}
	return state
}

func (p *ChatTopicProvider) save(ctx context.Context, job Job, state topics.ExtractionState) error {
	if err := p.store.SaveExtractionState(ctx, job.UserID, job.SourceID, state); err != nil {
		return fmt.Errorf("saving %s extraction state: %w", state.Status, err)
	}
	return nil
}

func (p *ChatTopicProvider) load(ctx context.Context, job Job) (*topics.Topic, []Message, error) {
	topic, err := p.store.GetTopic(ctx, job.UserID, job.SourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading topic %s: %w", job.SourceID, err)
	}
	rows, err := p.store.ListMessages(ctx, job.UserID, job.SourceID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading messages of topic %s: %w", job.SourceID, err)
	}

	msgs := make([]Message, 0, len(rows))
	for _, r := range rows {
		if r.Content == nil || strings.TrimSpace(*r.Content) == "" {
			continue
		}
		msgs = append(msgs, Message{ID: r.ID, Role: r.Role, Content: *r.Content, CreatedAt: r.CreatedAt})
	}
	return topic, msgs, nil
}

// Digest is a stable hash over the ordered role:content pairs of a conversation.
func Digest(msgs []Message) string {
	h := sha256.New()
	for _, m := range msgs {
		h.Write([]byte(m.Role))
		h.Write([]byte{':'})
		h.Write([]byte(m.Content))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RenderChatTopic renders a conversation as a <chat_topic> element.
func RenderChatTopic(topicID, userID string, msgs []Message) string {
	var w xmlWriter
	w.open("chat_topic",
		attr{"topic_id", topicID},
		attr{"user_id", userID},
		attr{"message_count", strconv.Itoa(len(msgs))},
	)
	w.newline()
	for i, m := range msgs {
		w.element("message", m.Content,
			attr{"index", strconv.Itoa(i)},
			attr{"role", m.Role},
			attr{"created_at", formatTime(m.CreatedAt)},
		)
	}
	w.close("chat_topic")
	return w.String()
}
