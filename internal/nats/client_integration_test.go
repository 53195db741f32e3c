//go:build integration

package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aiox-platform/usermemory/internal/config"
)

func setupNATSContainer(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"--jetstream", "--store_dir", "/data"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { natsContainer.Terminate(ctx) })

	host, _ := natsContainer.Host(ctx)
	port, _ := natsContainer.MappedPort(ctx, "4222")

	client, err := NewClient(ctx, config.NATSConfig{
		URL: fmt.Sprintf("nats://%s:%s", host, port.Port()),
	})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client
}

func fetchOne[T any](t *testing.T, consumer jetstream.Consumer) T {
	t.Helper()
	msgs, err := consumer.Fetch(1, jetstream.FetchMaxWait(5*time.Second))
	require.NoError(t, err)

	var received T
	n := 0
	for m := range msgs.Messages() {
		require.NoError(t, json.Unmarshal(m.Data(), &received))
		_ = m.Ack()
		n++
	}
	require.Equal(t, 1, n)
	return received
}

func TestNATSPublishConsume(t *testing.T) {
	client := setupNATSContainer(t)
	ctx := context.Background()

	publisher := NewPublisher(client.JetStream())
	consumerMgr := NewConsumerManager(client.JetStream())

	t.Run("extraction job round trip", func(t *testing.T) {
		job := ExtractionJob{
			UserID:      "user-1",
			TopicID:     "topic-1",
			Source:      "chat_topic",
			Layers:      []string{"identity"},
			ForceTopics: true,
			TraceID:     "req-1",
			EnqueuedAt:  time.Now().UTC(),
		}
		require.NoError(t, publisher.PublishExtractionJob(ctx, job))

		consumer, err := consumerMgr.EnsureConsumer(ctx, StreamJobs, "test-jobs", SubjectExtractionJob, 5)
		require.NoError(t, err)

		received := fetchOne[ExtractionJob](t, consumer)
		assert.Equal(t, "topic-1", received.TopicID)
		assert.Equal(t, []string{"identity"}, received.Layers)
		assert.True(t, received.ForceTopics)
	})

	t.Run("extraction event round trip", func(t *testing.T) {
		event := ExtractionEvent{
			UserID:    "user-1",
			Source:    "chat_topic",
			SourceID:  "topic-1",
			Status:    "completed",
			Layers:    map[string]int{"context": 2},
			Timestamp: time.Now().UTC(),
		}
		require.NoError(t, publisher.PublishExtractionEvent(ctx, event))

		consumer, err := consumerMgr.EnsureConsumer(ctx, StreamEvents, "test-events", SubjectExtractionEvent, 0)
		require.NoError(t, err)

		received := fetchOne[ExtractionEvent](t, consumer)
		assert.Equal(t, "completed", received.Status)
		assert.Equal(t, 2, received.Layers["context"])
	})

	t.Run("NATS client is healthy", func(t *testing.T) {
		assert.True(t, client.Healthy())
	})
}
