package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededSearcher() *fakeSearcher {
	return &fakeSearcher{
		contexts:    []ContextDTO{{ID: uuid.New(), Description: ptr("Planning a trip to Lisbon"), Similarity: 0.9}},
		experiences: []ExperienceDTO{{ID: uuid.New(), Situation: ptr("Missed a flight"), Similarity: 0.8}},
		preferences: []PreferenceDTO{{ID: uuid.New(), ConclusionDirectives: ptr("Prefers aisle seats"), Similarity: 0.7}},
	}
}

func TestRetriever_OnePerLayer(t *testing.T) {
	searcher := seededSearcher()
	emb := &fakeEmbedder{}
	r := NewRetriever(searcher, emb)

	res := r.Retrieve(context.Background(), "user-1", "travel plans", SearchLimits{Contexts: 1, Experiences: 1, Preferences: 1})
	require.Len(t, res.Contexts, 1)
	require.Len(t, res.Experiences, 1)
	require.Len(t, res.Preferences, 1)
	assert.Equal(t, "Planning a trip to Lisbon", *res.Contexts[0].Description)
	assert.Equal(t, 1, emb.callCount())
	assert.Equal(t, []string{"travel plans"}, emb.calls[0])
}

func TestRetriever_ZeroLimitIsEmpty(t *testing.T) {
	r := NewRetriever(seededSearcher(), &fakeEmbedder{})
	res := r.Retrieve(context.Background(), "user-1", "anything", SearchLimits{Contexts: 0, Experiences: 1, Preferences: 0})
	assert.Empty(t, res.Contexts)
	assert.Len(t, res.Experiences, 1)
	assert.Empty(t, res.Preferences)
}

func TestRetriever_DegradesToEmpty(t *testing.T) {
	t.Run("embedding failure", func(t *testing.T) {
		r := NewRetriever(seededSearcher(), &fakeEmbedder{err: errors.New("down")})
		res := r.Retrieve(context.Background(), "user-1", "q", DefaultSearchLimits())
		assert.Equal(t, EmptySearchResult(), res)
	})

	t.Run("one layer fails", func(t *testing.T) {
		searcher := seededSearcher()
		searcher.failLayer = "experiences"
		r := NewRetriever(searcher, &fakeEmbedder{})
		res := r.Retrieve(context.Background(), "user-1", "q", DefaultSearchLimits())
		assert.Equal(t, EmptySearchResult(), res)
	})

	t.Run("blank query", func(t *testing.T) {
		emb := &fakeEmbedder{}
		r := NewRetriever(seededSearcher(), emb)
		res := r.Retrieve(context.Background(), "user-1", "   ", DefaultSearchLimits())
		assert.Equal(t, EmptySearchResult(), res)
		assert.Equal(t, 0, emb.callCount())
	})
}

func TestService_SearchMemoryDefaults(t *testing.T) {
	searcher := seededSearcher()
	svc := NewService(&fakeWriter{}, &fakeEmbedder{}, NewRetriever(searcher, &fakeEmbedder{}))

	res := svc.SearchMemory(context.Background(), "user-1", SearchMemoryInput{Query: "q"})
	assert.Len(t, res.Contexts, 1)
	assert.Equal(t, DefaultSearchLimits(), searcher.limits)

	res = svc.SearchMemory(context.Background(), "user-1", SearchMemoryInput{})
	assert.Equal(t, EmptySearchResult(), res)
}
