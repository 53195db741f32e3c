// Package extractor runs the per-layer memory extraction model calls and the
// gatekeeper that decides which layers to run.
package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aiox-platform/usermemory/internal/llm"
	"github.com/aiox-platform/usermemory/internal/memory"
	"github.com/aiox-platform/usermemory/internal/schema"
)

// DefaultLanguage is used when a call names no output language.
const DefaultLanguage = "English"

var (
	ErrTemplateNotLoaded = errors.New("template not loaded")
	ErrInvalidOutput     = errors.New("invalid model output")
)

// Options carry the per-call inputs shared by every extractor.
type Options struct {
	Conversation        []llm.Message
	RetrievedContexts   []string
	RetrievedIdentities string
	MemoryCategories    []string
	Language            string
	Username            string
	SessionDate         time.Time
	TopK                int
}

func (o Options) categories() []string {
	if len(o.MemoryCategories) > 0 {
		return o.MemoryCategories
	}
	return memory.DefaultCategories
}

// Output is the parsed result of one layer extraction.
type Output interface {
	ProcessedCount() int
}

// Extractor extracts one memory layer.
type Extractor interface {
	Layer() memory.Layer
	EnsurePromptTemplate() error
	// Schema is nil for tool-only extraction.
	Schema(opts Options) *schema.StructuredOutput
	Tools(opts Options) []llm.Tool
	BuildUserPrompt(opts Options) (string, error)
	Extract(ctx context.Context, opts Options) (Output, error)
}

// Config is shared by every extractor.
type Config struct {
	Generator llm.Generator
	Model     string
	Prompts   Prompts
}

// base holds the prompt and model plumbing every extractor shares.
type base struct {
	name     string
	gen      llm.Generator
	model    string
	prompts  Prompts
	validate *validator.Validate

	once    sync.Once
	loadErr error
	// tmpl stays nil until EnsurePromptTemplate succeeds.
	tmpl atomic.Pointer[compiledPrompt]
}

func newBase(name string, cfg Config) *base {
	return &base{
		name:     name,
		gen:      cfg.Generator,
		model:    cfg.Model,
		prompts:  cfg.Prompts,
		validate: validator.New(),
	}
}

// EnsurePromptTemplate compiles the templates once per instance.
func (b *base) EnsurePromptTemplate() error {
	b.once.Do(func() {
		var tmpl *compiledPrompt
		tmpl, b.loadErr = b.prompts.compile(b.name)
		if b.loadErr == nil {
			b.tmpl.Store(tmpl)
		}
	})
	return b.loadErr
}

func (b *base) BuildUserPrompt(opts Options) (string, error) {
	tmpl := b.tmpl.Load()
	if tmpl == nil {
		return "", ErrTemplateNotLoaded
	}
	return render(tmpl.user, newPromptData(opts))
}

func (b *base) buildSystemPrompt(opts Options) (string, error) {
	tmpl := b.tmpl.Load()
	if tmpl == nil {
		return "", ErrTemplateNotLoaded
	}
	return render(tmpl.system, newPromptData(opts))
}

// structuredCall sends system prompt, conversation and user prompt to the
// model with either a response schema or tools attached.
func (b *base) structuredCall(ctx context.Context, opts Options, sch *schema.StructuredOutput, tools []llm.Tool) (*llm.Response, error) {
	if err := b.EnsurePromptTemplate(); err != nil {
		return nil, err
	}
	system, err := b.buildSystemPrompt(opts)
	if err != nil {
		return nil, err
	}
	user, err := b.BuildUserPrompt(opts)
	if err != nil {
		return nil, err
	}

	msgs := make([]llm.Message, 0, len(opts.Conversation)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	msgs = append(msgs, opts.Conversation...)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: user})

	resp, err := b.gen.Generate(ctx, llm.Request{
		Model:    b.model,
		Messages: msgs,
		Schema:   sch,
		Tools:    tools,
	})
	if err != nil {
		return nil, fmt.Errorf("%s model call: %w", b.name, err)
	}
	return resp, nil
}

// decodeStrict decodes a model document, rejecting unknown fields, and runs
// struct validation on the result.
func (b *base) decodeStrict(data []byte, dst any) error {
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: decoding %s output: %v", ErrInvalidOutput, b.name, err)
	}
	if err := b.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: validating %s output: %v", ErrInvalidOutput, b.name, err)
	}
	return nil
}

// checkEnvelope fills in the layer and rejects categories outside the allowed set.
func checkEnvelope(env *memory.MemoryEnvelope, layer memory.Layer, allowed []string) error {
	if env.MemoryLayer == "" {
		env.MemoryLayer = layer
	}
	if env.MemoryLayer != layer {
		return fmt.Errorf("%w: memoryLayer %q in %s output", ErrInvalidOutput, env.MemoryLayer, layer)
	}
	for _, c := range allowed {
		if string(env.MemoryCategory) == c {
			return nil
		}
	}
	return fmt.Errorf("%w: memoryCategory %q is not allowed", ErrInvalidOutput, env.MemoryCategory)
}

// envelopeSchemas pins the layer literal and the category enum of a call.
func envelopeSchemas(layer memory.Layer, opts Options) schema.TypeSchemas {
	return schema.TypeSchemas{
		schema.TypeOf[memory.Category](): schema.Enum(opts.categories()...),
		schema.TypeOf[memory.Layer]():    schema.Literal(string(layer)),
	}
}

// NewLayerExtractors builds one extractor per layer.
func NewLayerExtractors(cfg Config) map[memory.Layer]Extractor {
	return map[memory.Layer]Extractor{
		memory.LayerIdentity:   NewIdentityExtractor(cfg),
		memory.LayerContext:    NewContextExtractor(cfg),
		memory.LayerPreference: NewPreferenceExtractor(cfg),
		memory.LayerExperience: NewExperienceExtractor(cfg),
	}
}
