package extractor

import (
	"context"

	"github.com/aiox-platform/usermemory/internal/memory"
	"github.com/aiox-platform/usermemory/internal/schema"
)

const gatekeeperName = "gatekeeper"

// LayerDecision is the gatekeeper verdict for one layer.
type LayerDecision struct {
	Reasoning     string `json:"reasoning"`
	ShouldExtract bool   `json:"shouldExtract"`
}

// Decision maps every layer to a verdict.
type Decision map[memory.Layer]LayerDecision

type gatekeeperResponse struct {
	Identity   *LayerDecision `json:"identity" validate:"required"`
	Context    *LayerDecision `json:"context" validate:"required"`
	Preference *LayerDecision `json:"preference" validate:"required"`
	Experience *LayerDecision `json:"experience" validate:"required"`
}

// Gatekeeper decides which layers are worth extracting from a conversation.
type Gatekeeper struct {
	*base
}

func NewGatekeeper(cfg Config) *Gatekeeper {
	return &Gatekeeper{base: newBase(gatekeeperName, cfg)}
}

// Schema is built by hand: four closed layer keys, each with a reasoning and a verdict.
func (g *Gatekeeper) Schema() *schema.StructuredOutput {
	decision := func() map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"reasoning":     map[string]any{"type": "string"},
				"shouldExtract": map[string]any{"type": "boolean"},
			},
			"required":             []any{"reasoning", "shouldExtract"},
			"additionalProperties": false,
		}
	}

	properties := map[string]any{}
	required := make([]any, 0, len(memory.LayerOrder))
	for _, l := range memory.LayerOrder {
		properties[string(l)] = decision()
		required = append(required, string(l))
	}

	out := schema.Build(map[string]any{
		"type":       "object",
		"properties": properties,
		"required":   required,
	}, schema.Options{
		Name:        "gatekeeper_decision",
		Description: "Which memory layers to extract",
	})
	return &out
}

// Check runs the gatekeeper once and returns a verdict for every layer.
func (g *Gatekeeper) Check(ctx context.Context, opts Options) (Decision, error) {
	resp, err := g.structuredCall(ctx, opts, g.Schema(), nil)
	if err != nil {
		return nil, err
	}

	var raw gatekeeperResponse
	if err := g.decodeStrict([]byte(resp.Content), &raw); err != nil {
		return nil, err
	}
	return Decision{
		memory.LayerIdentity:   *raw.Identity,
		memory.LayerContext:    *raw.Context,
		memory.LayerPreference: *raw.Preference,
		memory.LayerExperience: *raw.Experience,
	}, nil
}
