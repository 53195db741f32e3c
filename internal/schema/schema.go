// Package schema turns Go types into closed, self-contained JSON schemas
// suitable for strict structured model output.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/invopop/jsonschema"
)

var (
	ErrUnresolvedRef = errors.New("unresolvable schema reference")
	ErrCyclicRef     = errors.New("cyclic schema definition")
)

// StructuredOutput is the response_format payload for a structured model call.
type StructuredOutput struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema"`
	Strict      bool           `json:"strict"`
}

// Options tune a single Build call.
type Options struct {
	Name        string
	Description string
	// Strict defaults to true when nil.
	Strict *bool
	// TypeSchemas replaces the reflected schema of the given types, e.g. to
	// inject a per-call enum for a string type.
	TypeSchemas TypeSchemas
}

// TypeSchemas maps Go types to fixed sub-schemas.
type TypeSchemas map[reflect.Type]*jsonschema.Schema

// Build converts v into a StructuredOutput. v is either a Go value whose type
// is reflected, or a map[string]any holding an already-converted schema tree.
// When the tree cannot be dereferenced the raw tree is returned as is.
func Build(v any, opts Options) StructuredOutput {
	out := StructuredOutput{
		Name:        opts.Name,
		Description: opts.Description,
		Strict:      opts.Strict == nil || *opts.Strict,
	}

	raw, err := convert(v, opts.TypeSchemas)
	if err != nil {
		slog.Warn("schema: converting type", "name", opts.Name, "error", err)
		out.Schema = map[string]any{}
		return out
	}

	resolved, err := Dereference(raw)
	if err != nil {
		slog.Warn("schema: returning raw tree", "name", opts.Name, "error", err)
		resolved = raw
	} else if t, _ := resolved["type"].(string); t == "object" {
		resolved["additionalProperties"] = false
	}
	if out.Strict {
		replaceOneOf(resolved)
	}
	out.Schema = resolved
	return out
}

// replaceOneOf rewrites every oneOf in node to anyOf, in place. Strict
// structured output accepts anyOf as its only composition keyword, and the
// reflector renders nullable fields as oneOf with a null branch.
func replaceOneOf(node any) {
	switch n := node.(type) {
	case map[string]any:
		if branches, ok := n["oneOf"].([]any); ok {
			delete(n, "oneOf")
			existing, _ := n["anyOf"].([]any)
			n["anyOf"] = append(existing, branches...)
		}
		for _, v := range n {
			replaceOneOf(v)
		}
	case []any:
		for _, v := range n {
			replaceOneOf(v)
		}
	}
}

// Enum returns a string schema restricted to values.
func Enum(values ...string) *jsonschema.Schema {
	s := &jsonschema.Schema{Type: "string"}
	for _, v := range values {
		s.Enum = append(s.Enum, v)
	}
	return s
}

// Literal returns a string schema that accepts exactly value.
func Literal(value string) *jsonschema.Schema {
	return Enum(value)
}

// TypeOf is a shorthand for the reflect.Type key of TypeSchemas.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

func convert(v any, overrides TypeSchemas) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return deepCopy(m).(map[string]any), nil
	}
	if v == nil {
		return nil, errors.New("nil schema source")
	}

	r := &jsonschema.Reflector{
		Anonymous:                 true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: false,
	}
	if len(overrides) > 0 {
		r.Mapper = func(t reflect.Type) *jsonschema.Schema {
			return overrides[t]
		}
	}

	b, err := json.Marshal(r.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("marshaling reflected schema: %w", err)
	}
	var tree map[string]any
	if err := json.Unmarshal(b, &tree); err != nil {
		return nil, fmt.Errorf("decoding reflected schema: %w", err)
	}
	delete(tree, "$schema")
	delete(tree, "$id")
	return tree, nil
}

// Dereference inlines every local $ref of tree and drops the definition table.
// tree is not modified.
func Dereference(tree map[string]any) (map[string]any, error) {
	defs := map[string]any{}
	for _, key := range []string{"definitions", "$defs"} {
		if d, ok := tree[key].(map[string]any); ok {
			for name, def := range d {
				defs["#/"+key+"/"+name] = def
			}
		}
	}

	d := &dereferencer{defs: defs, visiting: map[string]bool{}}
	out, err := d.walk(tree)
	if err != nil {
		return nil, err
	}
	root := out.(map[string]any)
	delete(root, "$defs")
	delete(root, "definitions")
	return root, nil
}

type dereferencer struct {
	defs     map[string]any
	visiting map[string]bool
}

func (d *dereferencer) walk(node any) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		if ref, ok := n["$ref"].(string); ok {
			return d.resolve(ref, n)
		}
		out := make(map[string]any, len(n))
		for k, v := range n {
			if k == "$defs" || k == "definitions" {
				continue
			}
			w, err := d.walk(v)
			if err != nil {
				return nil, err
			}
			out[k] = w
		}
		return out, nil
	case []any:
		out := make([]any, len(n))
		for i, v := range n {
			w, err := d.walk(v)
			if err != nil {
				return nil, err
			}
			out[i] = w
		}
		return out, nil
	}
	return node, nil
}

func (d *dereferencer) resolve(ref string, node map[string]any) (any, error) {
	if !strings.HasPrefix(ref, "#/") {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedRef, ref)
	}
	def, ok := d.defs[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnresolvedRef, ref)
	}
	if d.visiting[ref] {
		return nil, fmt.Errorf("%w: %s", ErrCyclicRef, ref)
	}

	d.visiting[ref] = true
	resolved, err := d.walk(def)
	delete(d.visiting, ref)
	if err != nil {
		return nil, err
	}

	// Keywords next to $ref (e.g. a description) win over the definition.
	out, ok := resolved.(map[string]any)
	if !ok {
		return resolved, nil
	}
	for k, v := range node {
		if k == "$ref" {
			continue
		}
		w, err := d.walk(v)
		if err != nil {
			return nil, err
		}
		out[k] = w
	}
	return out, nil
}

func deepCopy(v any) any {
	switch n := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(n))
		for k, val := range n {
			out[k] = deepCopy(val)
		}
		return out
	case []any:
		out := make([]any, len(n))
		for i, val := range n {
			out[i] = deepCopy(val)
		}
		return out
	}
	return v
}
