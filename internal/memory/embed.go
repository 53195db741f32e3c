package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmbeddingMismatch is returned when the embedder answers with a different
// number of vectors than inputs, or with a vector of the wrong length.
var ErrEmbeddingMismatch = errors.New("embedding response length mismatch")

// Embedder turns texts into fixed-length vectors, one per input, in input order.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// NormalizeEmbeddable trims s. An empty result means the field is absent.
func NormalizeEmbeddable(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

// EmbedFields embeds the present texts with a single call and returns one vector
// per text, nil where the text is absent. No call is made when every text is absent.
func EmbedFields(ctx context.Context, e Embedder, texts ...*string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	inputs := make([]string, 0, len(texts))
	positions := make([]int, 0, len(texts))
	for i, t := range texts {
		if v := NormalizeEmbeddable(t); v != "" {
			inputs = append(inputs, v)
			positions = append(positions, i)
		}
	}
	if len(inputs) == 0 {
		return out, nil
	}

	vectors, err := e.Embed(ctx, inputs)
	if err != nil {
		return nil, fmt.Errorf("embedding fields: %w", err)
	}
	if len(vectors) != len(inputs) {
		return nil, ErrEmbeddingMismatch
	}
	for i, v := range vectors {
		if len(v) != EmbeddingDimensions {
			return nil, fmt.Errorf("%w: got %d dimensions", ErrEmbeddingMismatch, len(v))
		}
		out[positions[i]] = v
	}
	return out, nil
}

// TrimTextToTokenLimit keeps the last limit whitespace-separated tokens of text.
// A limit of zero or less leaves the text untouched.
func TrimTextToTokenLimit(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	tokens := strings.Fields(text)
	if len(tokens) <= limit {
		return text
	}
	return strings.Join(tokens[len(tokens)-limit:], " ")
}

func strPtr(s string) *string {
	return &s
}
