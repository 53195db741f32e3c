package memory

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// DefaultSearchLimits returns DefaultSearchLimit for every layer.
func DefaultSearchLimits() SearchLimits {
	return SearchLimits{
		Contexts:    DefaultSearchLimit,
		Experiences: DefaultSearchLimit,
		Preferences: DefaultSearchLimit,
	}
}

// Retriever answers free-text queries with the most similar stored memories.
type Retriever struct {
	searcher Searcher
	embedder Embedder
}

// NewRetriever creates a Retriever.
func NewRetriever(searcher Searcher, embedder Embedder) *Retriever {
	return &Retriever{searcher: searcher, embedder: embedder}
}

// Retrieve embeds query once and searches contexts, experiences and preferences.
// Any failure is logged and yields an empty result for all three layers.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, limits SearchLimits) *SearchResult {
	vectors, err := EmbedFields(ctx, r.embedder, &query)
	if err != nil {
		slog.Warn("memory: embedding retrieval query failed", "user_id", userID, "error", err)
		return EmptySearchResult()
	}
	embedding := vectors[0]
	if embedding == nil {
		return EmptySearchResult()
	}

	result := EmptySearchResult()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := r.searcher.SearchContexts(gctx, userID, embedding, limits.Contexts)
		if err == nil {
			result.Contexts = rows
		}
		return err
	})
	g.Go(func() error {
		rows, err := r.searcher.SearchExperiences(gctx, userID, embedding, limits.Experiences)
		if err == nil {
			result.Experiences = rows
		}
		return err
	})
	g.Go(func() error {
		rows, err := r.searcher.SearchPreferences(gctx, userID, embedding, limits.Preferences)
		if err == nil {
			result.Preferences = rows
		}
		return err
	})
	if err := g.Wait(); err != nil {
		slog.Warn("memory: similarity search failed", "user_id", userID, "error", err)
		return EmptySearchResult()
	}
	return result
}

// ListIdentities returns every identity entry of the user, newest first.
func (r *Retriever) ListIdentities(ctx context.Context, userID string) ([]IdentityDTO, error) {
	return r.searcher.ListIdentities(ctx, userID)
}
