package extractor

import (
	"context"
	"fmt"

	"github.com/aiox-platform/usermemory/internal/llm"
	"github.com/aiox-platform/usermemory/internal/memory"
	"github.com/aiox-platform/usermemory/internal/schema"
)

const (
	ToolAddIdentity    = "addIdentity"
	ToolUpdateIdentity = "updateIdentity"
	ToolRemoveIdentity = "removeIdentity"
)

// IdentityAddition is the argument of the addIdentity tool.
type IdentityAddition struct {
	Title        string                `json:"title" validate:"required"`
	Summary      string                `json:"summary" jsonschema_description:"Defaults to the description when empty"`
	Details      string                `json:"details"`
	WithIdentity memory.IdentityFields `json:"withIdentity"`
}

// IdentityActions collects the identity tool calls of one extraction.
type IdentityActions struct {
	Add    []IdentityAddition           `json:"add"`
	Update []memory.UpdateIdentityInput `json:"update"`
	Remove []memory.RemoveIdentityInput `json:"remove"`
}

func (a *IdentityActions) ProcessedCount() int {
	return len(a.Add) + len(a.Update) + len(a.Remove)
}

// IdentityExtractor maintains identity entries through tool calls instead of a
// response schema.
type IdentityExtractor struct {
	*base
}

var _ Extractor = (*IdentityExtractor)(nil)

func NewIdentityExtractor(cfg Config) *IdentityExtractor {
	return &IdentityExtractor{base: newBase(string(memory.LayerIdentity), cfg)}
}

func (e *IdentityExtractor) Layer() memory.Layer { return memory.LayerIdentity }

func (e *IdentityExtractor) Schema(Options) *schema.StructuredOutput { return nil }

func (e *IdentityExtractor) Tools(Options) []llm.Tool {
	add := schema.Build(IdentityAddition{}, schema.Options{Name: ToolAddIdentity})
	// The patch is sparse, which strict mode does not allow.
	update := schema.Build(memory.UpdateIdentityInput{}, schema.Options{Name: ToolUpdateIdentity, Strict: boolPtr(false)})
	remove := schema.Build(memory.RemoveIdentityInput{}, schema.Options{Name: ToolRemoveIdentity, Strict: boolPtr(false)})

	return []llm.Tool{
		{
			Name:        ToolAddIdentity,
			Description: "Add a new identity entry about the user or someone in their life",
			Parameters:  add.Schema,
			Strict:      add.Strict,
		},
		{
			Name:        ToolUpdateIdentity,
			Description: "Update an existing identity entry by id",
			Parameters:  update.Schema,
			Strict:      update.Strict,
		},
		{
			Name:        ToolRemoveIdentity,
			Description: "Remove an identity entry that is wrong or obsolete",
			Parameters:  remove.Schema,
			Strict:      remove.Strict,
		},
	}
}

func (e *IdentityExtractor) Extract(ctx context.Context, opts Options) (Output, error) {
	resp, err := e.structuredCall(ctx, opts, nil, e.Tools(opts))
	if err != nil {
		return nil, err
	}

	out := &IdentityActions{}
	for _, call := range resp.ToolCalls {
		switch call.Name {
		case ToolAddIdentity:
			var add IdentityAddition
			if err := e.decodeStrict(call.Arguments, &add); err != nil {
				return nil, err
			}
			out.Add = append(out.Add, add)
		case ToolUpdateIdentity:
			var upd memory.UpdateIdentityInput
			if err := e.decodeStrict(call.Arguments, &upd); err != nil {
				return nil, err
			}
			out.Update = append(out.Update, upd)
		case ToolRemoveIdentity:
			var rm memory.RemoveIdentityInput
			if err := e.decodeStrict(call.Arguments, &rm); err != nil {
				return nil, err
			}
			out.Remove = append(out.Remove, rm)
		default:
			return nil, fmt.Errorf("%w: unknown tool %q", ErrInvalidOutput, call.Name)
		}
	}
	return out, nil
}

func boolPtr(b bool) *bool { return &b }
