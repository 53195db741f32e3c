package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher provides typed methods for publishing events to NATS JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishExtractionJob enqueues a topic extraction job.
func (p *Publisher) PublishExtractionJob(ctx context.Context, job ExtractionJob) error {
	return p.publish(ctx, SubjectExtractionJob, job)
}

// PublishExtractionEvent publishes the outcome of a finished job.
func (p *Publisher) PublishExtractionEvent(ctx context.Context, event ExtractionEvent) error {
	return p.publish(ctx, SubjectExtractionEvent, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling event for %s: %w", subject, err)
	}
	_, err = p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	return nil
}
