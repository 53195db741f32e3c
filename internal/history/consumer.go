// Package history keeps a per-user log of finished extraction jobs, fed from
// the extraction event stream.
package history

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/aiox-platform/usermemory/internal/nats"
)

const (
	consumerName = "history-recorder"
	maxDeliver   = 5
	batchSize    = 10
)

// Store persists runs. *Repository implements it.
type Store interface {
	Insert(ctx context.Context, run *Run) error
}

// Consumer listens on the extraction event subject and persists each event as a run.
type Consumer struct {
	store       Store
	consumerMgr *inats.ConsumerManager
}

// NewConsumer creates a new history Consumer.
func NewConsumer(store Store, consumerMgr *inats.ConsumerManager) *Consumer {
	return &Consumer{
		store:       store,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, consumerName, inats.SubjectExtractionEvent, maxDeliver)
	if err != nil {
		return err
	}

	slog.Info("history consumer started", "consumer", consumerName)

	for {
		msgs, err := consumer.Fetch(batchSize, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("history consumer: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handleEvent(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// message is the part of jetstream.Msg the consumer uses.
type message interface {
	Data() []byte
	Ack() error
	Nak() error
	Term() error
}

func (c *Consumer) handleEvent(ctx context.Context, msg message) {
	var event inats.ExtractionEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("history consumer: unmarshaling event", "error", err)
		_ = msg.Term()
		return
	}

	run := RunFromEvent(event)
	if err := c.store.Insert(ctx, run); err != nil {
		slog.Error("history consumer: persisting run", "error", err, "source_id", event.SourceID)
		_ = msg.Nak()
		return
	}

	_ = msg.Ack()

	slog.Debug("history consumer: persisted run",
		"status", run.Status,
		"user_id", run.UserID,
		"source_id", run.SourceID,
	)
}

// RunFromEvent converts an extraction event into a run row.
func RunFromEvent(event inats.ExtractionEvent) *Run {
	run := &Run{
		ID:        uuid.New(),
		UserID:    event.UserID,
		Source:    event.Source,
		SourceID:  event.SourceID,
		Status:    event.Status,
		Layers:    event.Layers,
		Error:     event.Error,
		TraceID:   event.TraceID,
		CreatedAt: event.Timestamp,
	}
	if run.Layers == nil {
		run.Layers = map[string]int{}
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	return run
}
