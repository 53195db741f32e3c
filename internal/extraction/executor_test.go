package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aiox-platform/usermemory/internal/memory"
	"github.com/aiox-platform/usermemory/internal/metrics"
	"github.com/aiox-platform/usermemory/internal/orchestrator"
	"github.com/aiox-platform/usermemory/internal/providers"
	iredis "github.com/aiox-platform/usermemory/internal/redis"
	"github.com/aiox-platform/usermemory/internal/topics"
	"github.com/aiox-platform/usermemory/internal/users"
)

type testEnv struct {
	topics   *fakeTopicStore
	memories *fakeMemories
	runner   *fakeRunner
	recorder *fakeRecorder
	locker   *iredis.Locker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return &testEnv{
		topics:   seededTopics(),
		memories: &fakeMemories{},
		runner: &fakeRunner{result: &orchestrator.Result{
			Layers: []memory.Layer{memory.LayerIdentity, memory.LayerContext},
			Outputs: map[memory.Layer]orchestrator.Outcome{
				memory.LayerIdentity: {Data: identityActions()},
				memory.LayerContext:  {Data: contextOutput()},
			},
			State: orchestrator.StateAggregated,
		}},
		recorder: &fakeRecorder{},
		locker:   iredis.NewLocker(client, "test:", time.Minute),
	}
}

func (e *testEnv) executor(cfg Config) *Executor {
	return NewExecutor(Deps{
		Topics:   e.topics,
		Memories: e.memories,
		Runner:   e.runner,
		Locker:   e.locker,
		Profiles: fakeProfiles{profile: users.Profile{Name: "Ana"}},
		Recorder: e.recorder,
	}, cfg)
}

func topicJob() orchestrator.TopicJob {
	return orchestrator.TopicJob{UserID: "user-1", TopicID: "topic-1", Source: providers.SourceChatTopic, TraceID: "req-1"}
}

func TestExecutor_ExtractTopic(t *testing.T) {
	env := newTestEnv(t)
	exec := env.executor(Config{Language: "English"})

	res, err := exec.ExtractTopic(context.Background(), topicJob())
	require.NoError(t, err)

	assert.True(t, res.Extracted)
	assert.Equal(t, map[memory.Layer]int{memory.LayerIdentity: 2, memory.LayerContext: 1}, res.Layers)
	assert.Len(t, res.MemoryIDs, 2)

	require.Len(t, env.memories.searches, 1)
	search := env.memories.searches[0]
	assert.Equal(t, "USER: I just started working as a nurse\n\nASSISTANT: Congratulations on the new job", search.Query)
	assert.Equal(t, &memory.SearchLimits{Contexts: 10, Experiences: 10, Preferences: 10}, search.TopK)

	require.Len(t, env.runner.opts, 1)
	opts := env.runner.opts[0]
	require.Len(t, opts.RetrievedContexts, 2)
	assert.True(t, strings.HasPrefix(opts.RetrievedContexts[0], "<chat_topic topic_id=\"topic-1\""))
	assert.True(t, strings.HasPrefix(opts.RetrievedContexts[1], "<user_memories"))
	assert.True(t, strings.HasPrefix(opts.RetrievedIdentitiesContext, "<user_identities"))
	assert.Equal(t, "Ana", opts.Username)
	assert.Equal(t, "English", opts.Language)
	assert.Equal(t, 10, opts.TopK)
	assert.Equal(t, t0.Add(time.Hour), opts.SessionDate)

	require.Len(t, env.topics.saved, 1)
	state := env.topics.saved[0]
	assert.Equal(t, topics.StatusCompleted, state.Status)
	assert.Equal(t, 2, state.ProcessedMemoryCount)
	assert.Equal(t, "req-1", state.TraceID)

	assert.Equal(t, []string{metrics.SourceCompleted}, env.recorder.sources)
	assert.Equal(t, map[string]int{"identity": 2, "context": 1}, env.recorder.entries)
}

func TestExecutor_Skips(t *testing.T) {
	from := t0.Add(24 * time.Hour)

	tests := []struct {
		name  string
		setup func(env *testEnv, job *orchestrator.TopicJob)
	}{
		{"topic not found", func(env *testEnv, _ *orchestrator.TopicJob) { env.topics.topic = nil }},
		{"created before window", func(_ *testEnv, job *orchestrator.TopicJob) { job.From = &from }},
		{"already extracted", func(env *testEnv, _ *orchestrator.TopicJob) {
			env.topics.topic.Metadata = map[string]any{"memoryExtraction": map[string]any{"sources": map[string]any{
				"chat_topic": map[string]any{"status": "completed", "lastRunAt": t0.Format(time.RFC3339)},
			}}}
		}},
		{"no usable messages", func(env *testEnv, _ *orchestrator.TopicJob) { env.topics.messages = nil }},
		{"locked elsewhere", func(env *testEnv, _ *orchestrator.TopicJob) {
			lock, err := env.locker.Acquire(context.Background(), "user-1:topic-1")
			require.NoError(t, err)
			require.NotNil(t, lock)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			job := topicJob()
			tt.setup(env, &job)

			res, err := env.executor(Config{}).ExtractTopic(context.Background(), job)
			require.NoError(t, err)
			assert.False(t, res.Extracted)
			assert.Empty(t, res.MemoryIDs)
			assert.Empty(t, env.runner.opts)
			assert.Empty(t, env.topics.saved)
		})
	}
}

func TestExecutor_ForceRerunsExtractedTopic(t *testing.T) {
	env := newTestEnv(t)
	env.topics.topic.Metadata = map[string]any{"memoryExtraction": map[string]any{"sources": map[string]any{
		"chat_topic": map[string]any{"status": "completed", "lastRunAt": t0.Format(time.RFC3339)},
	}}}
	job := topicJob()
	job.ForceTopics = true

	res, err := env.executor(Config{}).ExtractTopic(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, res.Extracted)
}

func TestExecutor_TrimsConversation(t *testing.T) {
	env := newTestEnv(t)
	exec := env.executor(Config{ContextLimit: 3})

	_, err := exec.ExtractTopic(context.Background(), topicJob())
	require.NoError(t, err)

	require.NotNil(t, env.runner.prepared)
	require.Len(t, env.runner.prepared.Conversation, 1)
	assert.Equal(t, "the new job", env.runner.prepared.Conversation[0].Content)

	// Bookkeeping covers the whole conversation, not the trimmed one.
	state := env.topics.saved[0]
	assert.Equal(t, 2, state.MessageCount)
	full := []providers.Message{
		{Role: "user", Content: "I just started working as a nurse"},
		{Role: "assistant", Content: "Congratulations on the new job"},
	}
	assert.Equal(t, providers.Digest(full), state.Digest)

	assert.Equal(t, []string{"m2"}, env.memories.contexts[0].Metadata["messageIds"])
	// The joined query is trimmed again, dropping the role prefix.
	assert.Equal(t, "the new job", env.memories.searches[0].Query)
}

func TestExecutor_PartialFailure(t *testing.T) {
	env := newTestEnv(t)
	env.memories.failContexts = true
	env.runner.result.Outputs[memory.LayerIdentity] = orchestrator.Outcome{Err: errors.New("tool call rejected")}

	res, err := env.executor(Config{}).ExtractTopic(context.Background(), topicJob())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, orchestrator.ErrPartialExtraction)
	assert.Contains(t, err.Error(), "memory extraction encountered layer errors: ")
	assert.Contains(t, err.Error(), "[extract] identities: tool call rejected")
	assert.Contains(t, err.Error(), "[persist] contexts: Failed to save memory: db down")

	require.Len(t, env.topics.saved, 1)
	assert.Equal(t, topics.StatusFailed, env.topics.saved[0].Status)
	assert.Equal(t, err.Error(), env.topics.saved[0].Error)
	assert.Equal(t, []string{metrics.SourceFailed}, env.recorder.sources)
}

func TestExecutor_RunnerFailure(t *testing.T) {
	env := newTestEnv(t)
	env.runner.err = errors.New("gatekeeper check: timeout")

	_, err := env.executor(Config{ContextLimit: 3}).ExtractTopic(context.Background(), topicJob())
	require.EqualError(t, err, "gatekeeper check: timeout")

	require.Len(t, env.topics.saved, 1)
	assert.Equal(t, topics.StatusFailed, env.topics.saved[0].Status)
	assert.Equal(t, 2, env.topics.saved[0].MessageCount)
	assert.Equal(t, []string{metrics.SourceFailed}, env.recorder.sources)

	// The lock is released even on failure.
	lock, err := env.locker.Acquire(context.Background(), "user-1:topic-1")
	require.NoError(t, err)
	assert.NotNil(t, lock)
}
