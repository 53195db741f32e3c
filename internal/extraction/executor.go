// Package extraction runs memory extraction for chat topics end to end:
// loading, retrieval of what is already known, the gatekeeper and layer
// extractors, persistence and bookkeeping on the topic.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aiox-platform/usermemory/internal/memory"
	"github.com/aiox-platform/usermemory/internal/metrics"
	"github.com/aiox-platform/usermemory/internal/orchestrator"
	"github.com/aiox-platform/usermemory/internal/providers"
	iredis "github.com/aiox-platform/usermemory/internal/redis"
	"github.com/aiox-platform/usermemory/internal/topics"
	"github.com/aiox-platform/usermemory/internal/users"
)

// DefaultTopK is the per-layer number of memories retrieved as context.
const DefaultTopK = 10

// MemoryStore is memory.Service as the executor uses it.
type MemoryStore interface {
	MemoryWriter
	SearchMemory(ctx context.Context, userID string, in memory.SearchMemoryInput) *memory.SearchResult
	ListIdentities(ctx context.Context, userID string) ([]memory.IdentityDTO, error)
}

// Runner runs the gatekeeper and layer extractors. *orchestrator.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, job orchestrator.Job, provider providers.Provider, opts orchestrator.Options) (*orchestrator.Result, error)
}

// ProfileSource resolves the user's name and language. *users.Service implements it.
type ProfileSource interface {
	Profile(ctx context.Context, userID string) (users.Profile, error)
}

// Recorder receives job metrics. *metrics.Metrics implements it.
type Recorder interface {
	RecordSource(source, userID, outcome string, d time.Duration)
	RecordLayerEntries(layer, source, userID string, n int)
}

// Config tunes the executor. Zero limits disable trimming.
type Config struct {
	ContextLimit          int
	EmbeddingContextLimit int
	TopK                  int
	Language              string
	MemoryCategories      []string
}

// Deps are the collaborators of an Executor. Locker, Profiles and Recorder may be nil.
type Deps struct {
	Topics   providers.TopicStore
	Memories MemoryStore
	Runner   Runner
	Locker   *iredis.Locker
	Profiles ProfileSource
	Recorder Recorder
}

// Executor extracts memories from one chat topic at a time.
type Executor struct {
	deps      Deps
	persister *Persister
	cfg       Config
	now       func() time.Time
}

var _ orchestrator.TopicExtractor = (*Executor)(nil)

func NewExecutor(deps Deps, cfg Config) *Executor {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.EmbeddingContextLimit <= 0 {
		cfg.EmbeddingContextLimit = cfg.ContextLimit
	}
	return &Executor{
		deps:      deps,
		persister: NewPersister(deps.Memories),
		cfg:       cfg,
		now:       time.Now,
	}
}

func skipped() *orchestrator.TopicResult {
	return &orchestrator.TopicResult{Layers: map[memory.Layer]int{}, MemoryIDs: []string{}}
}

// ExtractTopic runs one topic job. A topic that is missing, outside the
// requested window, already extracted, unchanged or locked by another run is
// skipped with Extracted false and no error.
func (e *Executor) ExtractTopic(ctx context.Context, tj orchestrator.TopicJob) (*orchestrator.TopicResult, error) {
	log := slog.With("topic_id", tj.TopicID, "user_id", tj.UserID, "trace_id", tj.TraceID)

	topic, err := e.deps.Topics.GetTopic(ctx, tj.UserID, tj.TopicID)
	if errors.Is(err, topics.ErrNotFound) {
		log.Warn("extraction: topic not found")
		return skipped(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading topic: %w", err)
	}
	if (tj.From != nil && topic.CreatedAt.Before(*tj.From)) || (tj.To != nil && topic.CreatedAt.After(*tj.To)) {
		log.Debug("extraction: topic out of range")
		return skipped(), nil
	}
	if !tj.Force() && topic.Extracted() {
		log.Debug("extraction: topic already extracted")
		return skipped(), nil
	}

	if e.deps.Locker != nil {
		lock, err := e.deps.Locker.Acquire(ctx, tj.UserID+":"+tj.TopicID)
		if err != nil {
			return nil, err
		}
		if lock == nil {
			log.Info("extraction: topic is being extracted elsewhere")
			return skipped(), nil
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("extraction: releasing topic lock", "error", err)
			}
		}()
	}

	start := e.now()
	job := tj.Job(topic.UpdatedAt)
	res, err := e.run(ctx, job, topic, log)
	outcome := metrics.SourceCompleted
	if err != nil {
		outcome = metrics.SourceFailed
	}
	if e.deps.Recorder != nil {
		e.deps.Recorder.RecordSource(string(job.Source), job.UserID, outcome, e.now().Sub(start))
	}
	return res, err
}

func (e *Executor) run(ctx context.Context, job orchestrator.Job, topic *topics.Topic, log *slog.Logger) (*orchestrator.TopicResult, error) {
	provider := providers.NewChatTopicProvider(e.deps.Topics)
	prepared, err := provider.Prepare(ctx, job)
	if err != nil {
		return nil, err
	}
	if prepared == nil {
		return skipped(), nil
	}

	trimmed := *prepared
	trimmed.Conversation = TrimConversation(prepared.Conversation, e.cfg.ContextLimit)
	queryConv := TrimConversation(prepared.Conversation, e.cfg.EmbeddingContextLimit)
	query := memory.TrimTextToTokenLimit(QueryText(queryConv), e.cfg.EmbeddingContextLimit)

	fetchedAt := e.now()
	limits := memory.SearchLimits{Contexts: e.cfg.TopK, Experiences: e.cfg.TopK, Preferences: e.cfg.TopK}
	retrieved := e.deps.Memories.SearchMemory(ctx, job.UserID, memory.SearchMemoryInput{Query: query, TopK: &limits})
	identities, err := e.deps.Memories.ListIdentities(ctx, job.UserID)
	if err != nil {
		log.Warn("extraction: listing identities", "error", err)
	}

	retrievedContexts := []string{
		memory.TrimTextToTokenLimit(providers.RenderChatTopic(job.SourceID, job.UserID, trimmed.Conversation), e.cfg.ContextLimit),
		memory.TrimTextToTokenLimit(providers.NewRetrievalMemoryProvider(retrieved, fetchedAt).Render(), e.cfg.ContextLimit),
	}
	identitiesContext := memory.TrimTextToTokenLimit(
		providers.NewRetrievalIdentitiesProvider(identities, fetchedAt).Render(), e.cfg.ContextLimit)

	profile := e.profile(ctx, job.UserID, log)
	language := profile.Language
	if language == "" {
		language = e.cfg.Language
	}

	src := &preparedSource{ChatTopicProvider: provider, full: prepared, trimmed: &trimmed}
	result, err := e.deps.Runner.Run(ctx, job, src, orchestrator.Options{
		RetrievedContexts:          retrievedContexts,
		RetrievedIdentitiesContext: identitiesContext,
		MemoryCategories:           e.cfg.MemoryCategories,
		Language:                   language,
		Username:                   profile.Name,
		SessionDate:                topic.UpdatedAt,
		TopK:                       e.cfg.TopK,
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return skipped(), nil
	}

	persisted, errs := e.persister.Persist(ctx, job, trimmed.MessageIDs(), result)
	if e.deps.Recorder != nil {
		for layer, n := range persisted.Layers {
			e.deps.Recorder.RecordLayerEntries(string(layer), string(job.Source), job.UserID, n)
		}
	}
	if len(errs) > 0 {
		err := fmt.Errorf("%w: %w", orchestrator.ErrPartialExtraction, errors.Join(errs...))
		if ferr := provider.Fail(ctx, job, prepared, err); ferr != nil {
			log.Warn("extraction: recording failure on topic", "error", ferr)
		}
		return nil, err
	}

	if err := provider.Complete(ctx, job, prepared, providers.CompletionResult{ProcessedMemoryCount: len(persisted.MemoryIDs)}); err != nil {
		return nil, err
	}

	log.Info("extraction: topic extracted", "layers", persisted.Layers, "memories", len(persisted.MemoryIDs))
	return &orchestrator.TopicResult{Extracted: true, Layers: persisted.Layers, MemoryIDs: persisted.MemoryIDs}, nil
}

func (e *Executor) profile(ctx context.Context, userID string, log *slog.Logger) users.Profile {
	if e.deps.Profiles == nil {
		return users.Profile{Name: users.DefaultName}
	}
	p, err := e.deps.Profiles.Profile(ctx, userID)
	if err != nil {
		log.Warn("extraction: loading user profile", "error", err)
		return users.Profile{Name: users.DefaultName}
	}
	return p
}

// preparedSource hands the orchestrator an already prepared, trimmed context
// while topic bookkeeping keeps using the full conversation.
type preparedSource struct {
	*providers.ChatTopicProvider
	full    *providers.PreparedContext
	trimmed *providers.PreparedContext
}

func (s *preparedSource) Prepare(context.Context, providers.Job) (*providers.PreparedContext, error) {
	return s.trimmed, nil
}

func (s *preparedSource) Fail(ctx context.Context, job providers.Job, _ *providers.PreparedContext, cause error) error {
	return s.ChatTopicProvider.Fail(ctx, job, s.full, cause)
}
