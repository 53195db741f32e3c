package providers

import (
	"context"
	"strconv"
	"time"

	"github.com/aiox-platform/usermemory/internal/memory"
)

// RetrievalMemoryProvider renders already retrieved contexts, experiences and
// preferences so extractors can see what the user memory holds.
type RetrievalMemoryProvider struct {
	result    *memory.SearchResult
	fetchedAt time.Time
}

var _ Renderer = (*RetrievalMemoryProvider)(nil)

func NewRetrievalMemoryProvider(result *memory.SearchResult, fetchedAt time.Time) *RetrievalMemoryProvider {
	if result == nil {
		result = memory.EmptySearchResult()
	}
	return &RetrievalMemoryProvider{result: result, fetchedAt: fetchedAt}
}

func (p *RetrievalMemoryProvider) BuildContext(_ context.Context, job Job) (*BuiltContext, error) {
	return &BuiltContext{
		Context: p.Render(),
		Metadata: map[string]any{
			"contexts":    len(p.result.Contexts),
			"experiences": len(p.result.Experiences),
			"preferences": len(p.result.Preferences),
		},
		SourceID: job.SourceID,
		UserID:   job.UserID,
	}, nil
}

func (p *RetrievalMemoryProvider) Render() string {
	var w xmlWriter
	w.open("user_memories",
		attr{"contexts", strconv.Itoa(len(p.result.Contexts))},
		attr{"experiences", strconv.Itoa(len(p.result.Experiences))},
		attr{"preferences", strconv.Itoa(len(p.result.Preferences))},
		attr{"memory_fetched_at", formatTime(p.fetchedAt)},
	)
	w.newline()

	for _, c := range p.result.Contexts {
		w.open("context", attr{"id", c.ID.String()}, attr{"similarity", formatFloat(c.Similarity)})
		w.newline()
		w.field("context_title", c.Title)
		w.field("context_description", c.Description)
		w.field("context_type", c.Type)
		w.field("context_current_status", c.CurrentStatus)
		w.floatField("context_score_impact", c.ScoreImpact)
		w.floatField("context_score_urgency", c.ScoreUrgency)
		w.listField("context_associated_subjects", objectNames(c.AssociatedSubjects))
		w.listField("context_associated_objects", objectNames(c.AssociatedObjects))
		w.listField("context_tags", c.Tags)
		w.close("context")
		w.newline()
	}

	for _, e := range p.result.Experiences {
		w.open("experience", attr{"id", e.ID.String()}, attr{"similarity", formatFloat(e.Similarity)})
		w.newline()
		w.field("experience_type", e.Type)
		w.field("experience_situation", e.Situation)
		w.field("experience_reasoning", e.Reasoning)
		w.field("experience_possible_outcome", e.PossibleOutcome)
		w.field("experience_action", e.Action)
		w.field("experience_key_learning", e.KeyLearning)
		w.floatField("experience_score_confidence", e.ScoreConfidence)
		w.listField("experience_tags", e.Tags)
		w.close("experience")
		w.newline()
	}

	for _, pr := range p.result.Preferences {
		w.open("preference", attr{"id", pr.ID.String()}, attr{"similarity", formatFloat(pr.Similarity)})
		w.newline()
		w.field("preference_type", pr.Type)
		w.field("preference_conclusion_directives", pr.ConclusionDirectives)
		w.field("preference_suggestions", pr.Suggestions)
		w.floatField("preference_score_priority", pr.ScorePriority)
		w.listField("preference_tags", pr.Tags)
		w.close("preference")
		w.newline()
	}

	w.close("user_memories")
	return w.String()
}

// RetrievalIdentitiesProvider renders the user's stored identity entries.
type RetrievalIdentitiesProvider struct {
	identities []memory.IdentityDTO
	fetchedAt  time.Time
}

var _ Renderer = (*RetrievalIdentitiesProvider)(nil)

func NewRetrievalIdentitiesProvider(identities []memory.IdentityDTO, fetchedAt time.Time) *RetrievalIdentitiesProvider {
	return &RetrievalIdentitiesProvider{identities: identities, fetchedAt: fetchedAt}
}

func (p *RetrievalIdentitiesProvider) BuildContext(_ context.Context, job Job) (*BuiltContext, error) {
	return &BuiltContext{
		Context:  p.Render(),
		Metadata: map[string]any{"identities": len(p.identities)},
		SourceID: job.SourceID,
		UserID:   job.UserID,
	}, nil
}

func (p *RetrievalIdentitiesProvider) Render() string {
	var w xmlWriter
	w.open("user_identities",
		attr{"identities", strconv.Itoa(len(p.identities))},
		attr{"memory_fetched_at", formatTime(p.fetchedAt)},
	)
	w.newline()

	for _, id := range p.identities {
		w.open("identity", attr{"id", id.ID.String()})
		w.newline()
		w.field("identity_type", id.Type)
		w.field("identity_role", id.Role)
		w.field("identity_relationship", id.Relationship)
		w.field("identity_description", id.Description)
		if id.EpisodicDate != nil {
			w.element("identity_episodic_date", id.EpisodicDate.UTC().Format(time.DateOnly))
		}
		w.listField("identity_tags", id.Tags)
		w.close("identity")
		w.newline()
	}

	w.close("user_identities")
	return w.String()
}

func objectNames(objs []memory.AssociatedObject) []string {
	names := make([]string, 0, len(objs))
	for _, o := range objs {
		names = append(names, o.Name)
	}
	return names
}
