package llm

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachedEmbedder memoizes embeddings per (model, text).
type CachedEmbedder struct {
	next  Embedder
	model string
	cache *ristretto.Cache
}

var _ Embedder = (*CachedEmbedder)(nil)

// NewCachedEmbedder wraps next with an in-memory cache holding up to size vectors.
func NewCachedEmbedder(next Embedder, model string, size int64) (*CachedEmbedder, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        size * 10,
		MaxCost:            size,
		BufferItems:        64,
		// Cost is counted in vectors, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &CachedEmbedder{next: next, model: model, cache: cache}, nil
}

// Embed serves cached vectors and embeds the misses in a single call.
func (c *CachedEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	var misses []string
	var positions []int
	for i, in := range inputs {
		if v, ok := c.cache.Get(c.key(in)); ok {
			out[i] = v.([]float32)
			continue
		}
		misses = append(misses, in)
		positions = append(positions, i)
	}
	if len(misses) == 0 {
		return out, nil
	}

	vectors, err := c.next.Embed(ctx, misses)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(misses) {
		return nil, fmt.Errorf("embedding cache: expected %d vectors, got %d", len(misses), len(vectors))
	}
	for i, v := range vectors {
		out[positions[i]] = v
		c.cache.Set(c.key(misses[i]), v, 1)
	}
	return out, nil
}

// Wait blocks until pending cache writes are visible.
func (c *CachedEmbedder) Wait() {
	c.cache.Wait()
}

// Close releases the cache.
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}

func (c *CachedEmbedder) key(text string) string {
	return c.model + "\x00" + text
}
