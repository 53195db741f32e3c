package extraction

import (
	"context"
	"fmt"
	"time"

	"github.com/aiox-platform/usermemory/internal/memory"
	"github.com/aiox-platform/usermemory/internal/orchestrator"
	"github.com/aiox-platform/usermemory/internal/providers"
	"github.com/aiox-platform/usermemory/internal/topics"
	"github.com/aiox-platform/usermemory/internal/users"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

type fakeTopicStore struct {
	topic    *topics.Topic
	messages []topics.Message
	saved    []topics.ExtractionState
}

func (f *fakeTopicStore) GetTopic(_ context.Context, _, _ string) (*topics.Topic, error) {
	if f.topic == nil {
		return nil, topics.ErrNotFound
	}
	return f.topic, nil
}

func (f *fakeTopicStore) ListMessages(_ context.Context, _, _ string) ([]topics.Message, error) {
	return f.messages, nil
}

func (f *fakeTopicStore) SaveExtractionState(_ context.Context, _, _ string, state topics.ExtractionState) error {
	f.saved = append(f.saved, state)
	return nil
}

func seededTopics() *fakeTopicStore {
	return &fakeTopicStore{
		topic: &topics.Topic{
			ID: "topic-1", UserID: "user-1", Metadata: map[string]any{},
			CreatedAt: t0, UpdatedAt: t0.Add(time.Hour),
		},
		messages: []topics.Message{
			{ID: "m1", Role: "user", Content: strPtr("I just started working as a nurse"), CreatedAt: t0},
			{ID: "m2", Role: "assistant", Content: strPtr("Congratulations on the new job"), CreatedAt: t0.Add(time.Minute)},
		},
	}
}

type fakeMemories struct {
	n int

	contexts   []memory.ContextMemory
	identities []memory.IdentityMemory
	updates    []memory.UpdateIdentityInput
	removes    []memory.RemoveIdentityInput
	searches   []memory.SearchMemoryInput

	failContexts bool
	listErr      error
	existing     []memory.IdentityDTO
}

func (f *fakeMemories) saved() memory.MutationResult {
	f.n++
	return memory.MutationResult{Success: true, Message: "Memory saved successfully", MemoryID: fmt.Sprintf("mem-%d", f.n)}
}

func (f *fakeMemories) AddContextMemory(_ context.Context, _ string, in memory.ContextMemory) memory.MutationResult {
	if f.failContexts {
		return memory.MutationResult{Message: "Failed to save memory: db down"}
	}
	f.contexts = append(f.contexts, in)
	return f.saved()
}

func (f *fakeMemories) AddExperienceMemory(context.Context, string, memory.ExperienceMemory) memory.MutationResult {
	return f.saved()
}

func (f *fakeMemories) AddPreferenceMemory(context.Context, string, memory.PreferenceMemory) memory.MutationResult {
	return f.saved()
}

func (f *fakeMemories) AddIdentityMemory(_ context.Context, _ string, in memory.IdentityMemory) memory.MutationResult {
	f.identities = append(f.identities, in)
	return f.saved()
}

func (f *fakeMemories) UpdateIdentityMemory(_ context.Context, _ string, in memory.UpdateIdentityInput) memory.MutationResult {
	f.updates = append(f.updates, in)
	return memory.MutationResult{Success: true, Message: "Identity memory updated successfully", IdentityID: in.ID}
}

func (f *fakeMemories) RemoveIdentityMemory(_ context.Context, _ string, in memory.RemoveIdentityInput) memory.MutationResult {
	f.removes = append(f.removes, in)
	return memory.MutationResult{Message: "Identity memory not found"}
}

func (f *fakeMemories) SearchMemory(_ context.Context, _ string, in memory.SearchMemoryInput) *memory.SearchResult {
	f.searches = append(f.searches, in)
	return memory.EmptySearchResult()
}

func (f *fakeMemories) ListIdentities(context.Context, string) ([]memory.IdentityDTO, error) {
	return f.existing, f.listErr
}

// fakeRunner prepares through the given provider like the orchestrator does
// and returns a canned result.
type fakeRunner struct {
	result *orchestrator.Result
	err    error

	opts     []orchestrator.Options
	prepared *providers.PreparedContext
}

func (f *fakeRunner) Run(ctx context.Context, job orchestrator.Job, p providers.Provider, opts orchestrator.Options) (*orchestrator.Result, error) {
	f.opts = append(f.opts, opts)
	prepared, err := p.Prepare(ctx, job)
	if err != nil {
		return nil, err
	}
	f.prepared = prepared
	if f.err != nil {
		if failer, ok := p.(providers.Failer); ok {
			_ = failer.Fail(ctx, job, prepared, f.err)
		}
		return nil, f.err
	}
	return f.result, nil
}

type fakeProfiles struct {
	profile users.Profile
}

func (f fakeProfiles) Profile(context.Context, string) (users.Profile, error) {
	return f.profile, nil
}

type fakeRecorder struct {
	sources []string
	entries map[string]int
}

func (f *fakeRecorder) RecordSource(_, _, outcome string, _ time.Duration) {
	f.sources = append(f.sources, outcome)
}

func (f *fakeRecorder) RecordLayerEntries(layer, _, _ string, n int) {
	if f.entries == nil {
		f.entries = map[string]int{}
	}
	f.entries[layer] = n
}
