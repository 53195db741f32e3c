package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope() MemoryEnvelope {
	return MemoryEnvelope{
		Title:          "Trip",
		Summary:        "Planning a trip",
		Details:        "Flying to Lisbon in May",
		MemoryCategory: "personal",
		MemoryType:     TypeEvent,
	}
}

func newTestService(w *fakeWriter, e *fakeEmbedder) *Service {
	return NewService(w, e, NewRetriever(&fakeSearcher{}, e))
}

func TestService_AddContextMemory(t *testing.T) {
	w := &fakeWriter{}
	emb := &fakeEmbedder{}
	svc := newTestService(w, emb)

	res := svc.AddContextMemory(context.Background(), "user-1", ContextMemory{
		MemoryEnvelope: envelope(),
		WithContext:    ContextFields{Description: "Trip planning", Tags: []string{"travel"}},
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Memory saved successfully", res.Message)
	assert.NotEmpty(t, res.MemoryID)
	assert.NotEmpty(t, res.ContextID)

	require.Len(t, w.contexts, 1)
	assert.Equal(t, LayerContext, w.bases[0].MemoryLayer)
	assert.Len(t, w.bases[0].SummaryVector, EmbeddingDimensions)
	assert.Len(t, w.bases[0].DetailsVector, EmbeddingDimensions)
	assert.Len(t, w.contexts[0].DescriptionVector, EmbeddingDimensions)
	assert.Equal(t, []string{"travel"}, w.contexts[0].Tags)
	assert.Equal(t, 1, emb.callCount())
}

func TestService_AddExperienceMemory_SkipsAbsentFields(t *testing.T) {
	w := &fakeWriter{}
	svc := newTestService(w, &fakeEmbedder{})

	env := envelope()
	env.Details = ""
	res := svc.AddExperienceMemory(context.Background(), "user-1", ExperienceMemory{
		MemoryEnvelope: env,
		WithExperience: ExperienceFields{Situation: ptr("Missed the train"), KeyLearning: ptr("Leave earlier")},
	})

	require.True(t, res.Success, res.Message)
	assert.NotEmpty(t, res.ExperienceID)
	exp := w.experience[0]
	assert.Nil(t, w.bases[0].DetailsVector)
	assert.Len(t, exp.SituationVector, EmbeddingDimensions)
	assert.Nil(t, exp.ActionVector)
	assert.Len(t, exp.KeyLearningVector, EmbeddingDimensions)
	assert.Equal(t, TypeEvent, *exp.Type)
}

func TestService_AddPreferenceMemory(t *testing.T) {
	w := &fakeWriter{}
	svc := newTestService(w, &fakeEmbedder{})

	t.Run("joins suggestions", func(t *testing.T) {
		res := svc.AddPreferenceMemory(context.Background(), "user-1", PreferenceMemory{
			MemoryEnvelope: envelope(),
			WithPreference: PreferenceFields{
				ConclusionDirectives: "Answer briefly",
				Suggestions:          []string{"use bullets", "skip intros"},
				ExtractedScopes:      []string{"chat"},
			},
		})
		require.True(t, res.Success, res.Message)
		assert.NotEmpty(t, res.PreferenceID)
		pref := w.prefs[0]
		assert.Equal(t, "use bullets\nskip intros", *pref.Suggestions)
		assert.Contains(t, pref.Metadata, "appContext")
		assert.Contains(t, pref.Metadata, "originContext")
		assert.Equal(t, []string{"chat"}, pref.Metadata["extractedScopes"])
	})

	t.Run("empty suggestions are null", func(t *testing.T) {
		res := svc.AddPreferenceMemory(context.Background(), "user-1", PreferenceMemory{
			MemoryEnvelope: envelope(),
			WithPreference: PreferenceFields{ConclusionDirectives: "Answer briefly"},
		})
		require.True(t, res.Success, res.Message)
		assert.Nil(t, w.prefs[len(w.prefs)-1].Suggestions)
	})
}

func TestService_AddIdentityMemory(t *testing.T) {
	w := &fakeWriter{}
	svc := newTestService(w, &fakeEmbedder{})

	res := svc.AddIdentityMemory(context.Background(), "user-1", IdentityMemory{
		MemoryEnvelope: envelope(),
		WithIdentity: IdentityFields{
			Description:     "Works as a nurse",
			Role:            ptr("nurse"),
			ScoreConfidence: ptr(0.8),
			Tags:            []string{"career"},
		},
	})

	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Identity memory saved successfully", res.Message)
	assert.NotEmpty(t, res.IdentityID)
	assert.Equal(t, map[string]any{"scoreConfidence": 0.8}, w.identities[0].Metadata)
	assert.Equal(t, w.identities[0].Metadata, w.bases[0].Metadata)
	assert.Equal(t, []string{"career"}, w.bases[0].Tags)
	assert.Equal(t, LayerIdentity, w.bases[0].MemoryLayer)
}

func TestService_AddFailures(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		svc := newTestService(&fakeWriter{}, &fakeEmbedder{})
		res := svc.AddContextMemory(context.Background(), "user-1", ContextMemory{})
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "Failed to save memory: ")
	})

	t.Run("storage error", func(t *testing.T) {
		svc := newTestService(&fakeWriter{err: errors.New("db down")}, &fakeEmbedder{})
		res := svc.AddIdentityMemory(context.Background(), "user-1", IdentityMemory{
			MemoryEnvelope: envelope(),
			WithIdentity:   IdentityFields{Description: "x"},
		})
		assert.False(t, res.Success)
		assert.Equal(t, "Failed to save identity memory: db down", res.Message)
	})

	t.Run("embedding error", func(t *testing.T) {
		svc := newTestService(&fakeWriter{}, &fakeEmbedder{err: errors.New("quota")})
		res := svc.AddPreferenceMemory(context.Background(), "user-1", PreferenceMemory{
			MemoryEnvelope: envelope(),
			WithPreference: PreferenceFields{ConclusionDirectives: "x"},
		})
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "quota")
	})
}

func TestService_UpdateIdentityMemory(t *testing.T) {
	id := uuid.New()

	t.Run("embeds description only when set", func(t *testing.T) {
		w := &fakeWriter{}
		emb := &fakeEmbedder{}
		svc := newTestService(w, emb)

		res := svc.UpdateIdentityMemory(context.Background(), "user-1", UpdateIdentityInput{
			ID:  id.String(),
			Set: IdentityPatch{Role: ptr("manager")},
		})
		require.True(t, res.Success, res.Message)
		assert.Equal(t, "Identity memory updated successfully", res.Message)
		assert.Equal(t, 0, emb.callCount())
		require.Len(t, w.updates, 1)
		assert.Equal(t, id, w.updates[0].IdentityID)
		assert.Nil(t, w.updates[0].Identity.Description)
		assert.Equal(t, "manager", *w.updates[0].Identity.Role)

		res = svc.UpdateIdentityMemory(context.Background(), "user-1", UpdateIdentityInput{
			ID:            id.String(),
			MergeStrategy: MergeStrategyReplace,
			Set:           IdentityPatch{Description: ptr("Leads a team"), SourceEvidence: ptr("said so")},
		})
		require.True(t, res.Success, res.Message)
		assert.Equal(t, 1, emb.callCount())
		upd := w.updates[1]
		assert.Equal(t, MergeStrategyReplace, upd.MergeStrategy)
		assert.Len(t, upd.Identity.DescriptionVector, EmbeddingDimensions)
		assert.Equal(t, map[string]any{"sourceEvidence": "said so"}, upd.Identity.Metadata)
	})

	t.Run("updates the parent memory", func(t *testing.T) {
		w := &fakeWriter{}
		emb := &fakeEmbedder{}
		svc := newTestService(w, emb)

		res := svc.UpdateIdentityMemory(context.Background(), "user-1", UpdateIdentityInput{
			ID:  id.String(),
			Set: IdentityPatch{Description: ptr("Runs the platform team")},
			Base: &BasePatch{
				Title:      ptr("Platform lead"),
				Summary:    ptr("Leads platform"),
				Details:    ptr("  "),
				MemoryType: ptr("people"),
				Tags:       []string{"work"},
			},
		})
		require.True(t, res.Success, res.Message)

		require.Len(t, emb.calls, 1)
		assert.Equal(t, []string{"Runs the platform team", "Leads platform"}, emb.calls[0])

		upd := w.updates[0]
		require.NotNil(t, upd.Base)
		assert.Equal(t, "Platform lead", *upd.Base.Title)
		assert.Equal(t, "people", *upd.Base.MemoryType)
		assert.Equal(t, []string{"work"}, upd.Base.Tags)
		assert.Len(t, upd.Base.SummaryVector, EmbeddingDimensions)
		assert.Nil(t, upd.Base.DetailsVector)
		assert.Len(t, upd.Identity.DescriptionVector, EmbeddingDimensions)
	})

	t.Run("base patch without texts is not embedded", func(t *testing.T) {
		w := &fakeWriter{}
		emb := &fakeEmbedder{}
		svc := newTestService(w, emb)

		res := svc.UpdateIdentityMemory(context.Background(), "user-1", UpdateIdentityInput{
			ID:   id.String(),
			Base: &BasePatch{MemoryCategory: ptr("work")},
		})
		require.True(t, res.Success, res.Message)
		assert.Equal(t, 0, emb.callCount())
		require.NotNil(t, w.updates[0].Base)
		assert.Equal(t, "work", *w.updates[0].Base.MemoryCategory)
		assert.Nil(t, w.updates[0].Identity)

		res = svc.UpdateIdentityMemory(context.Background(), "user-1", UpdateIdentityInput{
			ID:   id.String(),
			Base: &BasePatch{},
		})
		require.True(t, res.Success, res.Message)
		assert.Nil(t, w.updates[1].Base)
	})

	t.Run("rejects an unknown memory type", func(t *testing.T) {
		w := &fakeWriter{}
		svc := newTestService(w, &fakeEmbedder{})
		res := svc.UpdateIdentityMemory(context.Background(), "user-1", UpdateIdentityInput{
			ID:   id.String(),
			Base: &BasePatch{MemoryType: ptr("gossip")},
		})
		assert.False(t, res.Success)
		assert.Empty(t, w.updates)
	})

	t.Run("empty patch sends no identity update", func(t *testing.T) {
		w := &fakeWriter{}
		svc := newTestService(w, &fakeEmbedder{})
		res := svc.UpdateIdentityMemory(context.Background(), "user-1", UpdateIdentityInput{ID: id.String()})
		require.True(t, res.Success)
		assert.Nil(t, w.updates[0].Identity)
	})

	t.Run("not found", func(t *testing.T) {
		svc := newTestService(&fakeWriter{missing: true}, &fakeEmbedder{})
		res := svc.UpdateIdentityMemory(context.Background(), "user-1", UpdateIdentityInput{ID: id.String(), Set: IdentityPatch{Role: ptr("x")}})
		assert.False(t, res.Success)
		assert.True(t, res.NotFound())
		assert.Equal(t, "Identity memory not found", res.Message)
	})

	t.Run("invalid id", func(t *testing.T) {
		svc := newTestService(&fakeWriter{}, &fakeEmbedder{})
		res := svc.UpdateIdentityMemory(context.Background(), "user-1", UpdateIdentityInput{ID: "nope"})
		assert.False(t, res.Success)
		assert.Contains(t, res.Message, "Failed to update identity memory")
	})
}

func TestService_RemoveIdentityMemory(t *testing.T) {
	id := uuid.New()

	t.Run("removed", func(t *testing.T) {
		w := &fakeWriter{}
		svc := newTestService(w, &fakeEmbedder{})
		res := svc.RemoveIdentityMemory(context.Background(), "user-1", RemoveIdentityInput{ID: id.String(), Reason: "outdated"})
		require.True(t, res.Success)
		assert.Equal(t, "Identity memory removed successfully", res.Message)
		assert.Equal(t, id.String(), res.IdentityID)
		assert.Equal(t, "outdated", res.Reason)
		assert.Equal(t, []uuid.UUID{id}, w.removed)
	})

	t.Run("not found", func(t *testing.T) {
		svc := newTestService(&fakeWriter{missing: true}, &fakeEmbedder{})
		res := svc.RemoveIdentityMemory(context.Background(), "user-1", RemoveIdentityInput{ID: id.String()})
		assert.False(t, res.Success)
		assert.Equal(t, "Identity memory not found", res.Message)
	})

	t.Run("storage error", func(t *testing.T) {
		svc := newTestService(&fakeWriter{err: errors.New("boom")}, &fakeEmbedder{})
		res := svc.RemoveIdentityMemory(context.Background(), "user-1", RemoveIdentityInput{ID: id.String()})
		assert.Equal(t, "Failed to remove identity memory: boom", res.Message)
	})
}

func TestJoinSuggestions(t *testing.T) {
	assert.Nil(t, JoinSuggestions(nil))
	assert.Equal(t, "a", *JoinSuggestions([]string{"a"}))
	assert.Equal(t, "a\nb", *JoinSuggestions([]string{"a", "b"}))
}
