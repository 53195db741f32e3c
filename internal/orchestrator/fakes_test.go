package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/aiox-platform/usermemory/internal/extractor"
	"github.com/aiox-platform/usermemory/internal/llm"
	"github.com/aiox-platform/usermemory/internal/memory"
	"github.com/aiox-platform/usermemory/internal/providers"
	"github.com/aiox-platform/usermemory/internal/schema"
)

type fakeGatekeeper struct {
	decision extractor.Decision
	err      error
	opts     []extractor.Options
}

func (f *fakeGatekeeper) Check(_ context.Context, opts extractor.Options) (extractor.Decision, error) {
	f.opts = append(f.opts, opts)
	return f.decision, f.err
}

type countOutput int

func (c countOutput) ProcessedCount() int { return int(c) }

type fakeExtractor struct {
	layer memory.Layer
	out   extractor.Output
	err   error
	panic bool
	// barrier, when set, holds Extract until every sharing extractor arrived.
	barrier *sync.WaitGroup

	mu    sync.Mutex
	calls int
}

func (f *fakeExtractor) Layer() memory.Layer                               { return f.layer }
func (f *fakeExtractor) EnsurePromptTemplate() error                       { return nil }
func (f *fakeExtractor) Schema(extractor.Options) *schema.StructuredOutput { return nil }
func (f *fakeExtractor) Tools(extractor.Options) []llm.Tool                { return nil }
func (f *fakeExtractor) BuildUserPrompt(extractor.Options) (string, error) {
	return "", nil
}

func (f *fakeExtractor) Extract(context.Context, extractor.Options) (extractor.Output, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.barrier != nil {
		f.barrier.Done()
		f.barrier.Wait()
	}
	if f.panic {
		panic("extractor exploded")
	}
	return f.out, f.err
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func allExtractors() map[memory.Layer]*fakeExtractor {
	return map[memory.Layer]*fakeExtractor{
		memory.LayerIdentity:   {layer: memory.LayerIdentity, out: countOutput(1)},
		memory.LayerContext:    {layer: memory.LayerContext, out: countOutput(2)},
		memory.LayerPreference: {layer: memory.LayerPreference, out: countOutput(3)},
		memory.LayerExperience: {layer: memory.LayerExperience, out: countOutput(4)},
	}
}

func asExtractors(fakes map[memory.Layer]*fakeExtractor) map[memory.Layer]extractor.Extractor {
	out := make(map[memory.Layer]extractor.Extractor, len(fakes))
	for l, f := range fakes {
		out[l] = f
	}
	return out
}

type fakeProvider struct {
	prepared *providers.PreparedContext
	err      error
	failed   []error
}

func (f *fakeProvider) Prepare(context.Context, providers.Job) (*providers.PreparedContext, error) {
	return f.prepared, f.err
}

func (f *fakeProvider) BuildContext(context.Context, providers.Job) (*providers.BuiltContext, error) {
	return &providers.BuiltContext{}, nil
}

func (f *fakeProvider) Fail(_ context.Context, _ providers.Job, _ *providers.PreparedContext, cause error) error {
	f.failed = append(f.failed, cause)
	return nil
}

type fakeRecorder struct {
	mu         sync.Mutex
	gatekeeper []error
	layers     map[string]error
}

func (f *fakeRecorder) RecordGatekeeper(_, _ string, _ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gatekeeper = append(f.gatekeeper, err)
}

func (f *fakeRecorder) RecordLayer(layer, _, _ string, _ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.layers == nil {
		f.layers = map[string]error{}
	}
	f.layers[layer] = err
}

func decide(layers ...memory.Layer) extractor.Decision {
	d := extractor.Decision{}
	for _, l := range memory.LayerOrder {
		d[l] = extractor.LayerDecision{Reasoning: "r"}
	}
	for _, l := range layers {
		d[l] = extractor.LayerDecision{Reasoning: "r", ShouldExtract: true}
	}
	return d
}

func preparedContext() *providers.PreparedContext {
	return &providers.PreparedContext{
		Conversation: []providers.Message{
			{ID: "m1", Role: "user", Content: "I started a new job"},
			{ID: "m2", Role: "tool", Content: "lookup result"},
		},
		SourceID: "topic-1",
		UserID:   "user-1",
	}
}
