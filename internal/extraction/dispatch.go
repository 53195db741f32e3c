package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	inats "github.com/aiox-platform/usermemory/internal/nats"
	"github.com/aiox-platform/usermemory/internal/orchestrator"
	"github.com/aiox-platform/usermemory/internal/providers"
)

// ErrUnsupportedSource is returned when a payload names no source that can
// be extracted yet. Only chat topics are.
var ErrUnsupportedSource = errors.New("extraction currently supports chat_topic only")

// TopicLister finds the topics of a user. *topics.PostgresRepository implements it.
type TopicLister interface {
	ListTopicIDs(ctx context.Context, userID string, from, to *time.Time) ([]string, error)
}

// JobPublisher enqueues topic jobs. *inats.Publisher implements it.
type JobPublisher interface {
	PublishExtractionJob(ctx context.Context, job inats.ExtractionJob) error
}

// DispatchedJob identifies one enqueued topic job.
type DispatchedJob struct {
	UserID  string `json:"userId"`
	TopicID string `json:"topicId"`
}

// DispatchResult lists the enqueued jobs.
type DispatchResult struct {
	Enqueued int             `json:"enqueued"`
	Jobs     []DispatchedJob `json:"jobs"`
}

// Dispatcher turns a normalized payload into one queued job per topic.
type Dispatcher struct {
	topics TopicLister
	jobs   JobPublisher
}

func NewDispatcher(topics TopicLister, jobs JobPublisher) *Dispatcher {
	return &Dispatcher{topics: topics, jobs: jobs}
}

// Dispatch enqueues the payload's topics, or every topic of each user in the
// payload's date window when it names none.
func (d *Dispatcher) Dispatch(ctx context.Context, p *orchestrator.NormalizedPayload, traceID string) (*DispatchResult, error) {
	if !p.HasSource(providers.SourceChatTopic) {
		return nil, ErrUnsupportedSource
	}

	res := &DispatchResult{Jobs: []DispatchedJob{}}
	for _, userID := range p.UserIDs {
		topicIDs := p.TopicIDs
		if len(topicIDs) == 0 {
			ids, err := d.topics.ListTopicIDs(ctx, userID, p.From, p.To)
			if err != nil {
				return res, fmt.Errorf("listing topics of %s: %w", userID, err)
			}
			topicIDs = ids
		}

		for _, job := range p.TopicJobs(userID, topicIDs, traceID) {
			if err := d.jobs.PublishExtractionJob(ctx, job.Message()); err != nil {
				return res, err
			}
			res.Jobs = append(res.Jobs, DispatchedJob{UserID: job.UserID, TopicID: job.TopicID})
			res.Enqueued++
		}
	}

	slog.Info("extraction: jobs enqueued", "count", res.Enqueued, "users", len(p.UserIDs), "trace_id", traceID)
	return res, nil
}

// DirectResult is the outcome of one topic run in-process.
type DirectResult struct {
	orchestrator.TopicResult
	UserID  string `json:"userId"`
	TopicID string `json:"topicId"`
	Error   string `json:"error,omitempty"`
}

// RunDirect extracts the payload's topics in-process, one after another. It
// requires explicit topic ids. A failing topic is reported in its result and
// does not stop the others.
func (e *Executor) RunDirect(ctx context.Context, p *orchestrator.NormalizedPayload, traceID string) ([]DirectResult, error) {
	if !p.HasSource(providers.SourceChatTopic) {
		return nil, ErrUnsupportedSource
	}
	if len(p.TopicIDs) == 0 {
		return nil, errors.New("direct execution requires topic ids")
	}

	var results []DirectResult
	for _, userID := range p.UserIDs {
		for _, job := range p.TopicJobs(userID, p.TopicIDs, traceID) {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			r := DirectResult{UserID: userID, TopicID: job.TopicID}
			res, err := e.ExtractTopic(ctx, job)
			if err != nil {
				r.Error = err.Error()
			} else {
				r.TopicResult = *res
			}
			results = append(results, r)
		}
	}
	return results, nil
}
