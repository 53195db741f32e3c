package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/aiox-platform/usermemory/internal/memory"
	inats "github.com/aiox-platform/usermemory/internal/nats"
)

const (
	consumerName = "memory-extractor"
	maxDeliver   = 5
	retryDelay   = 30 * time.Second
)

// ErrPartialExtraction marks a run that wrote only some of its memories.
// Redelivering it would duplicate what was written, so it is not retried.
var ErrPartialExtraction = errors.New("memory extraction encountered layer errors")

// TopicResult summarizes one topic extraction.
type TopicResult struct {
	Extracted bool                 `json:"extracted"`
	Layers    map[memory.Layer]int `json:"layers"`
	MemoryIDs []string             `json:"memoryIds"`
}

// TopicExtractor runs a topic job end to end. extraction.Executor implements it.
type TopicExtractor interface {
	ExtractTopic(ctx context.Context, job TopicJob) (*TopicResult, error)
}

// EventPublisher publishes job outcomes.
type EventPublisher interface {
	PublishExtractionEvent(ctx context.Context, event inats.ExtractionEvent) error
}

// Consumer pulls extraction jobs from JetStream and runs them one at a time.
type Consumer struct {
	consumerMgr *inats.ConsumerManager
	executor    TopicExtractor
	events      EventPublisher
	batch       int
	running     atomic.Bool
}

// NewConsumer creates a new Consumer. events may be nil.
func NewConsumer(consumerMgr *inats.ConsumerManager, executor TopicExtractor, events EventPublisher, batch int) *Consumer {
	if batch <= 0 {
		batch = 10
	}
	return &Consumer{
		consumerMgr: consumerMgr,
		executor:    executor,
		events:      events,
		batch:       batch,
	}
}

// Start runs the fetch loop until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamJobs, consumerName, inats.SubjectExtractionJob, maxDeliver)
	if err != nil {
		return err
	}

	slog.Info("extraction consumer started", "consumer", consumerName)
	c.running.Store(true)
	defer c.running.Store(false)

	for {
		msgs, err := consumer.Fetch(c.batch, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("fetching extraction jobs", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handle(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// Healthy reports whether the fetch loop is running.
func (c *Consumer) Healthy() bool {
	return c.running.Load()
}

// message is the part of jetstream.Msg the consumer uses.
type message interface {
	Data() []byte
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// handle acks done and skipped jobs, terms undecodable and partially written
// ones, and naks the rest so they are redelivered.
func (c *Consumer) handle(ctx context.Context, msg message) {
	var wire inats.ExtractionJob
	if err := json.Unmarshal(msg.Data(), &wire); err != nil {
		slog.Error("unmarshaling extraction job", "error", err)
		_ = msg.Term()
		return
	}
	job, err := TopicJobFromMessage(wire)
	if err != nil {
		slog.Error("invalid extraction job", "error", err, "topic_id", wire.TopicID)
		_ = msg.Term()
		return
	}

	res, err := c.executor.ExtractTopic(ctx, job)
	if err != nil {
		slog.Error("extracting topic", "error", err, "topic_id", job.TopicID, "user_id", job.UserID)
		c.publish(ctx, job, "failed", nil, err)
		if errors.Is(err, ErrPartialExtraction) {
			_ = msg.Term()
			return
		}
		if errors.Is(err, context.Canceled) {
			_ = msg.NakWithDelay(0)
			return
		}
		_ = msg.NakWithDelay(retryDelay)
		return
	}

	status := "skipped"
	if res != nil && res.Extracted {
		status = "completed"
	}
	c.publish(ctx, job, status, res, nil)
	_ = msg.Ack()
}

func (c *Consumer) publish(ctx context.Context, job TopicJob, status string, res *TopicResult, cause error) {
	if c.events == nil {
		return
	}
	event := inats.ExtractionEvent{
		UserID:    job.UserID,
		Source:    string(job.Source),
		SourceID:  job.TopicID,
		Status:    status,
		TraceID:   job.TraceID,
		Timestamp: time.Now().UTC(),
	}
	if res != nil && len(res.Layers) > 0 {
		event.Layers = make(map[string]int, len(res.Layers))
		for l, n := range res.Layers {
			event.Layers[string(l)] = n
		}
	}
	if cause != nil {
		event.Error = cause.Error()
	}
	if err := c.events.PublishExtractionEvent(ctx, event); err != nil {
		slog.Warn("publishing extraction event", "error", err)
	}
}
