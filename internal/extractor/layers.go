package extractor

import (
	"context"

	"github.com/aiox-platform/usermemory/internal/llm"
	"github.com/aiox-platform/usermemory/internal/memory"
	"github.com/aiox-platform/usermemory/internal/schema"
)

// ContextOutput is the context layer result.
type ContextOutput struct {
	Memories []memory.ContextMemory `json:"memories" validate:"dive"`
}

func (o *ContextOutput) ProcessedCount() int { return len(o.Memories) }

// ExperienceOutput is the experience layer result.
type ExperienceOutput struct {
	Memories []memory.ExperienceMemory `json:"memories" validate:"dive"`
}

func (o *ExperienceOutput) ProcessedCount() int { return len(o.Memories) }

// PreferenceOutput is the preference layer result.
type PreferenceOutput struct {
	Memories []memory.PreferenceMemory `json:"memories" validate:"dive"`
}

func (o *PreferenceOutput) ProcessedCount() int { return len(o.Memories) }

type ContextExtractor struct {
	*base
}

var _ Extractor = (*ContextExtractor)(nil)

func NewContextExtractor(cfg Config) *ContextExtractor {
	return &ContextExtractor{base: newBase(string(memory.LayerContext), cfg)}
}

func (e *ContextExtractor) Layer() memory.Layer { return memory.LayerContext }

func (e *ContextExtractor) Schema(opts Options) *schema.StructuredOutput {
	out := schema.Build(ContextOutput{}, schema.Options{
		Name:        "context_memories",
		Description: "Context memories extracted from the conversation",
		TypeSchemas: envelopeSchemas(memory.LayerContext, opts),
	})
	return &out
}

func (e *ContextExtractor) Tools(Options) []llm.Tool { return nil }

func (e *ContextExtractor) Extract(ctx context.Context, opts Options) (Output, error) {
	resp, err := e.structuredCall(ctx, opts, e.Schema(opts), nil)
	if err != nil {
		return nil, err
	}
	var out ContextOutput
	if err := e.decodeStrict([]byte(resp.Content), &out); err != nil {
		return nil, err
	}
	for i := range out.Memories {
		if err := checkEnvelope(&out.Memories[i].MemoryEnvelope, memory.LayerContext, opts.categories()); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

type ExperienceExtractor struct {
	*base
}

var _ Extractor = (*ExperienceExtractor)(nil)

func NewExperienceExtractor(cfg Config) *ExperienceExtractor {
	return &ExperienceExtractor{base: newBase(string(memory.LayerExperience), cfg)}
}

func (e *ExperienceExtractor) Layer() memory.Layer { return memory.LayerExperience }

func (e *ExperienceExtractor) Schema(opts Options) *schema.StructuredOutput {
	out := schema.Build(ExperienceOutput{}, schema.Options{
		Name:        "experience_memories",
		Description: "Experience memories extracted from the conversation",
		TypeSchemas: envelopeSchemas(memory.LayerExperience, opts),
	})
	return &out
}

func (e *ExperienceExtractor) Tools(Options) []llm.Tool { return nil }

func (e *ExperienceExtractor) Extract(ctx context.Context, opts Options) (Output, error) {
	resp, err := e.structuredCall(ctx, opts, e.Schema(opts), nil)
	if err != nil {
		return nil, err
	}
	var out ExperienceOutput
	if err := e.decodeStrict([]byte(resp.Content), &out); err != nil {
		return nil, err
	}
	for i := range out.Memories {
		if err := checkEnvelope(&out.Memories[i].MemoryEnvelope, memory.LayerExperience, opts.categories()); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

type PreferenceExtractor struct {
	*base
}

var _ Extractor = (*PreferenceExtractor)(nil)

func NewPreferenceExtractor(cfg Config) *PreferenceExtractor {
	return &PreferenceExtractor{base: newBase(string(memory.LayerPreference), cfg)}
}

func (e *PreferenceExtractor) Layer() memory.Layer { return memory.LayerPreference }

func (e *PreferenceExtractor) Schema(opts Options) *schema.StructuredOutput {
	out := schema.Build(PreferenceOutput{}, schema.Options{
		Name:        "preference_memories",
		Description: "Preference memories extracted from the conversation",
		TypeSchemas: envelopeSchemas(memory.LayerPreference, opts),
	})
	return &out
}

func (e *PreferenceExtractor) Tools(Options) []llm.Tool { return nil }

func (e *PreferenceExtractor) Extract(ctx context.Context, opts Options) (Output, error) {
	resp, err := e.structuredCall(ctx, opts, e.Schema(opts), nil)
	if err != nil {
		return nil, err
	}
	var out PreferenceOutput
	if err := e.decodeStrict([]byte(resp.Content), &out); err != nil {
		return nil, err
	}
	for i := range out.Memories {
		if err := checkEnvelope(&out.Memories[i].MemoryEnvelope, memory.LayerPreference, opts.categories()); err != nil {
			return nil, err
		}
	}
	return &out, nil
}
