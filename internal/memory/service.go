package memory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// Service implements the public mutation and search operations. Methods never
// return Go errors; failures are reported in MutationResult.
type Service struct {
	writer    Writer
	embedder  Embedder
	retriever *Retriever
	validate  *validator.Validate
}

// NewService creates a new memory service.
func NewService(writer Writer, embedder Embedder, retriever *Retriever) *Service {
	return &Service{
		writer:    writer,
		embedder:  embedder,
		retriever: retriever,
		validate:  validator.New(),
	}
}

func failed(prefix string, err error) MutationResult {
	return MutationResult{Message: fmt.Sprintf("%s: %s", prefix, err.Error())}
}

// AddContextMemory stores a context memory with its summary, details and description vectors.
func (s *Service) AddContextMemory(ctx context.Context, userID string, in ContextMemory) MutationResult {
	in.MemoryLayer = LayerContext
	if err := s.validate.Struct(in); err != nil {
		return failed("Failed to save memory", err)
	}

	vectors, err := EmbedFields(ctx, s.embedder, &in.Summary, &in.Details, &in.WithContext.Description)
	if err != nil {
		slog.Error("memory: embedding context memory", "user_id", userID, "error", err)
		return failed("Failed to save memory", err)
	}

	created, err := s.writer.CreateContextMemory(ctx, userID,
		baseRecord(in.MemoryEnvelope, nil, nil, vectors[0], vectors[1]),
		ContextRecord{
			Title:              in.WithContext.Title,
			Description:        strPtr(in.WithContext.Description),
			DescriptionVector:  vectors[2],
			Type:               in.WithContext.Type,
			CurrentStatus:      in.WithContext.CurrentStatus,
			ScoreImpact:        in.WithContext.ScoreImpact,
			ScoreUrgency:       in.WithContext.ScoreUrgency,
			AssociatedSubjects: in.WithContext.AssociatedSubjects,
			AssociatedObjects:  in.WithContext.AssociatedObjects,
			Tags:               in.WithContext.Tags,
			Metadata:           in.Metadata,
			CapturedAt:         in.CapturedAt,
		},
	)
	if err != nil {
		slog.Error("memory: saving context memory", "user_id", userID, "error", err)
		return failed("Failed to save memory", err)
	}

	return MutationResult{
		Success:   true,
		Message:   "Memory saved successfully",
		MemoryID:  created.UserMemoryID.String(),
		ContextID: created.LayerID.String(),
	}
}

// AddExperienceMemory stores an experience memory.
func (s *Service) AddExperienceMemory(ctx context.Context, userID string, in ExperienceMemory) MutationResult {
	in.MemoryLayer = LayerExperience
	if err := s.validate.Struct(in); err != nil {
		return failed("Failed to save memory", err)
	}

	exp := in.WithExperience
	vectors, err := EmbedFields(ctx, s.embedder, &in.Summary, &in.Details, exp.Situation, exp.Action, exp.KeyLearning)
	if err != nil {
		slog.Error("memory: embedding experience memory", "user_id", userID, "error", err)
		return failed("Failed to save memory", err)
	}

	expType := exp.Type
	if expType == nil {
		expType = strPtr(in.MemoryType)
	}
	created, err := s.writer.CreateExperienceMemory(ctx, userID,
		baseRecord(in.MemoryEnvelope, nil, nil, vectors[0], vectors[1]),
		ExperienceRecord{
			Type:              expType,
			Situation:         exp.Situation,
			SituationVector:   vectors[2],
			Reasoning:         exp.Reasoning,
			PossibleOutcome:   exp.PossibleOutcome,
			Action:            exp.Action,
			ActionVector:      vectors[3],
			KeyLearning:       exp.KeyLearning,
			KeyLearningVector: vectors[4],
			ScoreConfidence:   exp.ScoreConfidence,
			Tags:              exp.Tags,
			Metadata:          in.Metadata,
			CapturedAt:        in.CapturedAt,
		},
	)
	if err != nil {
		slog.Error("memory: saving experience memory", "user_id", userID, "error", err)
		return failed("Failed to save memory", err)
	}

	return MutationResult{
		Success:      true,
		Message:      "Memory saved successfully",
		MemoryID:     created.UserMemoryID.String(),
		ExperienceID: created.LayerID.String(),
	}
}

// AddPreferenceMemory stores a preference memory. Suggestions are joined by newlines.
func (s *Service) AddPreferenceMemory(ctx context.Context, userID string, in PreferenceMemory) MutationResult {
	in.MemoryLayer = LayerPreference
	if err := s.validate.Struct(in); err != nil {
		return failed("Failed to save memory", err)
	}

	pref := in.WithPreference
	vectors, err := EmbedFields(ctx, s.embedder, &in.Summary, &in.Details, &pref.ConclusionDirectives)
	if err != nil {
		slog.Error("memory: embedding preference memory", "user_id", userID, "error", err)
		return failed("Failed to save memory", err)
	}

	prefType := pref.Type
	if prefType == nil {
		prefType = strPtr(in.MemoryType)
	}
	created, err := s.writer.CreatePreferenceMemory(ctx, userID,
		baseRecord(in.MemoryEnvelope, nil, nil, vectors[0], vectors[1]),
		PreferenceRecord{
			Type:                       prefType,
			ConclusionDirectives:       strPtr(pref.ConclusionDirectives),
			ConclusionDirectivesVector: vectors[2],
			Suggestions:                JoinSuggestions(pref.Suggestions),
			ScorePriority:              pref.ScorePriority,
			Tags:                       pref.Tags,
			Metadata: mergeMetadata(in.Metadata, map[string]any{
				"appContext":      pref.AppContext,
				"extractedScopes": pref.ExtractedScopes,
				"originContext":   pref.OriginContext,
			}),
			CapturedAt: in.CapturedAt,
		},
	)
	if err != nil {
		slog.Error("memory: saving preference memory", "user_id", userID, "error", err)
		return failed("Failed to save memory", err)
	}

	return MutationResult{
		Success:      true,
		Message:      "Memory saved successfully",
		MemoryID:     created.UserMemoryID.String(),
		PreferenceID: created.LayerID.String(),
	}
}

// AddIdentityMemory stores an identity entry. Confidence and evidence go to metadata.
func (s *Service) AddIdentityMemory(ctx context.Context, userID string, in IdentityMemory) MutationResult {
	in.MemoryLayer = LayerIdentity
	if err := s.validate.Struct(in); err != nil {
		return failed("Failed to save identity memory", err)
	}

	id := in.WithIdentity
	vectors, err := EmbedFields(ctx, s.embedder, &in.Summary, &in.Details, &id.Description)
	if err != nil {
		slog.Error("memory: embedding identity memory", "user_id", userID, "error", err)
		return failed("Failed to save identity memory", err)
	}

	metadata := mergeMetadata(in.Metadata, identityMetadata(id.ScoreConfidence, id.SourceEvidence))
	created, err := s.writer.AddIdentityEntry(ctx, userID,
		baseRecord(in.MemoryEnvelope, id.Tags, metadata, vectors[0], vectors[1]),
		IdentityRecord{
			Type:              id.Type,
			Role:              id.Role,
			Relationship:      id.Relationship,
			Description:       strPtr(id.Description),
			DescriptionVector: vectors[2],
			EpisodicDate:      id.EpisodicDate,
			Tags:              id.Tags,
			Metadata:          metadata,
			CapturedAt:        in.CapturedAt,
		},
	)
	if err != nil {
		slog.Error("memory: saving identity memory", "user_id", userID, "error", err)
		return failed("Failed to save identity memory", err)
	}

	return MutationResult{
		Success:    true,
		Message:    "Identity memory saved successfully",
		MemoryID:   created.UserMemoryID.String(),
		IdentityID: created.LayerID.String(),
	}
}

// UpdateIdentityMemory changes the fields named in in.Set and in.Base. Only the
// texts that are part of the change are re-embedded.
func (s *Service) UpdateIdentityMemory(ctx context.Context, userID string, in UpdateIdentityInput) MutationResult {
	if err := s.validate.Struct(in); err != nil {
		return failed("Failed to update identity memory", err)
	}
	identityID, err := uuid.Parse(in.ID)
	if err != nil {
		return failed("Failed to update identity memory", err)
	}

	set := in.Set
	update := &IdentityUpdate{
		EpisodicDate: set.EpisodicDate,
		Relationship: set.Relationship,
		Role:         set.Role,
		Tags:         set.Tags,
		Type:         set.Type,
	}
	var base *BaseUpdate
	if in.Base != nil && !in.Base.empty() {
		base = &BaseUpdate{
			Title:          in.Base.Title,
			Summary:        in.Base.Summary,
			Details:        in.Base.Details,
			MemoryCategory: in.Base.MemoryCategory,
			MemoryType:     in.Base.MemoryType,
			Tags:           in.Base.Tags,
		}
	}

	var summary, details *string
	if base != nil {
		summary, details = base.Summary, base.Details
	}
	vectors, err := EmbedFields(ctx, s.embedder, set.Description, summary, details)
	if err != nil {
		slog.Error("memory: embedding identity update", "user_id", userID, "error", err)
		return failed("Failed to update identity memory", err)
	}
	if set.Description != nil {
		update.Description = set.Description
		update.DescriptionVector = vectors[0]
	}
	if base != nil {
		base.SummaryVector = vectors[1]
		base.DetailsVector = vectors[2]
	}
	if md := identityMetadata(set.ScoreConfidence, set.SourceEvidence); len(md) > 0 {
		update.Metadata = md
	}

	params := UpdateIdentityParams{
		IdentityID:    identityID,
		MergeStrategy: in.MergeStrategy,
		Base:          base,
	}
	if !update.empty() {
		params.Identity = update
	}

	ok, err := s.writer.UpdateIdentityEntry(ctx, userID, params)
	if err != nil {
		slog.Error("memory: updating identity memory", "user_id", userID, "identity_id", identityID, "error", err)
		return failed("Failed to update identity memory", err)
	}
	if !ok {
		return MutationResult{Message: "Identity memory not found", notFound: true}
	}

	return MutationResult{
		Success:    true,
		Message:    "Identity memory updated successfully",
		IdentityID: in.ID,
	}
}

// RemoveIdentityMemory deletes an identity entry together with its base memory.
func (s *Service) RemoveIdentityMemory(ctx context.Context, userID string, in RemoveIdentityInput) MutationResult {
	if err := s.validate.Struct(in); err != nil {
		return failed("Failed to remove identity memory", err)
	}
	identityID, err := uuid.Parse(in.ID)
	if err != nil {
		return failed("Failed to remove identity memory", err)
	}

	ok, err := s.writer.RemoveIdentityEntry(ctx, userID, identityID)
	if err != nil {
		slog.Error("memory: removing identity memory", "user_id", userID, "identity_id", identityID, "error", err)
		return failed("Failed to remove identity memory", err)
	}
	if !ok {
		return MutationResult{Message: "Identity memory not found", notFound: true}
	}

	return MutationResult{
		Success:    true,
		Message:    "Identity memory removed successfully",
		IdentityID: in.ID,
		Reason:     in.Reason,
	}
}

// SearchMemory returns the most similar memories for in.Query, or empty results on any failure.
func (s *Service) SearchMemory(ctx context.Context, userID string, in SearchMemoryInput) *SearchResult {
	if err := s.validate.Struct(in); err != nil {
		slog.Warn("memory: invalid search input", "user_id", userID, "error", err)
		return EmptySearchResult()
	}
	limits := DefaultSearchLimits()
	if in.TopK != nil {
		limits = *in.TopK
	}
	return s.retriever.Retrieve(ctx, userID, in.Query, limits)
}

// ListIdentities returns every identity entry of the user.
func (s *Service) ListIdentities(ctx context.Context, userID string) ([]IdentityDTO, error) {
	return s.retriever.ListIdentities(ctx, userID)
}

// JoinSuggestions joins suggestions with newlines; an empty list yields nil.
func JoinSuggestions(suggestions []string) *string {
	if len(suggestions) == 0 {
		return nil
	}
	return strPtr(strings.Join(suggestions, "\n"))
}

func baseRecord(env MemoryEnvelope, tags []string, metadata map[string]any, summaryVec, detailsVec []float32) UserMemoryRecord {
	return UserMemoryRecord{
		Title:          env.Title,
		Summary:        env.Summary,
		Details:        env.Details,
		MemoryCategory: string(env.MemoryCategory),
		MemoryType:     env.MemoryType,
		MemoryLayer:    env.MemoryLayer,
		Tags:           tags,
		Metadata:       mergeMetadata(env.Metadata, metadata),
		CapturedAt:     env.CapturedAt,
		SummaryVector:  summaryVec,
		DetailsVector:  detailsVec,
	}
}

// mergeMetadata returns base overlaid with extra. Either may be nil.
func mergeMetadata(base, extra map[string]any) map[string]any {
	if len(base) == 0 {
		return extra
	}
	if len(extra) == 0 {
		return base
	}
	out := make(map[string]any, len(base)+len(extra))
	maps.Copy(out, base)
	maps.Copy(out, extra)
	return out
}

func identityMetadata(confidence *float64, evidence *string) map[string]any {
	md := map[string]any{}
	if confidence != nil {
		md["scoreConfidence"] = *confidence
	}
	if evidence != nil {
		md["sourceEvidence"] = *evidence
	}
	return md
}

func (u *IdentityUpdate) empty() bool {
	return u.Description == nil && u.EpisodicDate == nil && u.Relationship == nil && u.Role == nil &&
		u.Tags == nil && u.Type == nil && u.Metadata == nil && u.CapturedAt == nil
}
