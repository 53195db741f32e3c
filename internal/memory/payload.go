package memory

import "time"

// Category is a memory category drawn from a per-call or default set.
type Category string

// MemoryEnvelope is the base shape every layered memory shares.
type MemoryEnvelope struct {
	Title          string   `json:"title" validate:"required" jsonschema_description:"Short human-readable title"`
	Summary        string   `json:"summary" validate:"required" jsonschema_description:"One or two sentence summary"`
	Details        string   `json:"details" jsonschema_description:"Longer free-form details, may be empty"`
	MemoryCategory Category `json:"memoryCategory" validate:"required"`
	MemoryType     string   `json:"memoryType" validate:"required,oneof=activity context event fact location other people preference technology topic" jsonschema:"enum=activity,enum=context,enum=event,enum=fact,enum=location,enum=other,enum=people,enum=preference,enum=technology,enum=topic"`
	MemoryLayer    Layer    `json:"memoryLayer"`

	// Metadata and CapturedAt are set by extraction, never decoded from input.
	// Metadata is merged into the stored base and layer metadata.
	Metadata   map[string]any `json:"-"`
	CapturedAt *time.Time     `json:"-"`
}

// ContextFields is the context-layer payload.
type ContextFields struct {
	Title              *string            `json:"title" jsonschema:"nullable"`
	Description        string             `json:"description" validate:"required"`
	Type               *string            `json:"type" jsonschema:"nullable"`
	CurrentStatus      *string            `json:"currentStatus" jsonschema:"nullable" jsonschema_description:"e.g. planned, ongoing, completed, blocked"`
	ScoreImpact        *float64           `json:"scoreImpact" validate:"omitempty,gte=0,lte=1" jsonschema:"nullable"`
	ScoreUrgency       *float64           `json:"scoreUrgency" validate:"omitempty,gte=0,lte=1" jsonschema:"nullable"`
	AssociatedSubjects []AssociatedObject `json:"associatedSubjects" validate:"dive"`
	AssociatedObjects  []AssociatedObject `json:"associatedObjects" validate:"dive"`
	Tags               []string           `json:"tags"`
}

// ContextMemory is a complete context memory as written by tools or extraction.
type ContextMemory struct {
	MemoryEnvelope
	WithContext ContextFields `json:"withContext"`
}

// ExperienceFields is the experience-layer payload.
type ExperienceFields struct {
	Type            *string  `json:"type" jsonschema:"nullable"`
	Situation       *string  `json:"situation" jsonschema:"nullable"`
	Reasoning       *string  `json:"reasoning" jsonschema:"nullable"`
	PossibleOutcome *string  `json:"possibleOutcome" jsonschema:"nullable"`
	Action          *string  `json:"action" jsonschema:"nullable"`
	KeyLearning     *string  `json:"keyLearning" jsonschema:"nullable"`
	ScoreConfidence *float64 `json:"scoreConfidence" validate:"omitempty,gte=0,lte=1" jsonschema:"nullable"`
	Tags            []string `json:"tags"`
}

// ExperienceMemory is a complete experience memory.
type ExperienceMemory struct {
	MemoryEnvelope
	WithExperience ExperienceFields `json:"withExperience"`
}

// AppContext locates where a preference applies.
type AppContext struct {
	App     *string `json:"app" jsonschema:"nullable"`
	Surface *string `json:"surface" jsonschema:"nullable"`
	Feature *string `json:"feature" jsonschema:"nullable"`
	Route   *string `json:"route" jsonschema:"nullable"`
}

// OriginContext records how a preference was learned.
type OriginContext struct {
	Actor    *string `json:"actor" jsonschema:"nullable"`
	Scenario *string `json:"scenario" jsonschema:"nullable"`
	Trigger  *string `json:"trigger" jsonschema:"nullable"`
}

// PreferenceFields is the preference-layer payload.
type PreferenceFields struct {
	Type                 *string        `json:"type" jsonschema:"nullable"`
	ConclusionDirectives string         `json:"conclusionDirectives" validate:"required"`
	Suggestions          []string       `json:"suggestions"`
	ScorePriority        *float64       `json:"scorePriority" validate:"omitempty,gte=0,lte=1" jsonschema:"nullable"`
	AppContext           *AppContext    `json:"appContext" jsonschema:"nullable"`
	ExtractedScopes      []string       `json:"extractedScopes"`
	OriginContext        *OriginContext `json:"originContext" jsonschema:"nullable"`
	Tags                 []string       `json:"tags"`
}

// PreferenceMemory is a complete preference memory.
type PreferenceMemory struct {
	MemoryEnvelope
	WithPreference PreferenceFields `json:"withPreference"`
}

// IdentityFields is the identity-layer payload.
type IdentityFields struct {
	Type            *string    `json:"type" jsonschema:"nullable" jsonschema_description:"e.g. personal, professional, demographic"`
	Role            *string    `json:"role" jsonschema:"nullable"`
	Relationship    *string    `json:"relationship" jsonschema:"nullable" jsonschema_description:"Relationship to the user, self when describing the user"`
	Description     string     `json:"description" validate:"required"`
	EpisodicDate    *time.Time `json:"episodicDate" jsonschema:"nullable"`
	ScoreConfidence *float64   `json:"scoreConfidence" validate:"omitempty,gte=0,lte=1" jsonschema:"nullable"`
	SourceEvidence  *string    `json:"sourceEvidence" jsonschema:"nullable"`
	Tags            []string   `json:"tags"`
}

// IdentityMemory is a complete identity memory.
type IdentityMemory struct {
	MemoryEnvelope
	WithIdentity IdentityFields `json:"withIdentity"`
}

// IdentityPatch lists identity fields to change. Nil fields are not part of the update.
type IdentityPatch struct {
	Description     *string    `json:"description,omitempty"`
	EpisodicDate    *time.Time `json:"episodicDate,omitempty"`
	Relationship    *string    `json:"relationship,omitempty"`
	Role            *string    `json:"role,omitempty"`
	Tags            []string   `json:"tags,omitempty"`
	Type            *string    `json:"type,omitempty"`
	ScoreConfidence *float64   `json:"scoreConfidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	SourceEvidence  *string    `json:"sourceEvidence,omitempty"`
}

// BasePatch lists changes to the parent memory of an identity. Nil fields are
// not part of the update.
type BasePatch struct {
	Title          *string  `json:"title,omitempty"`
	Summary        *string  `json:"summary,omitempty"`
	Details        *string  `json:"details,omitempty"`
	MemoryCategory *string  `json:"memoryCategory,omitempty"`
	MemoryType     *string  `json:"memoryType,omitempty" validate:"omitempty,oneof=activity context event fact location other people preference technology topic"`
	Tags           []string `json:"tags,omitempty"`
}

func (b *BasePatch) empty() bool {
	return b.Title == nil && b.Summary == nil && b.Details == nil &&
		b.MemoryCategory == nil && b.MemoryType == nil && b.Tags == nil
}

// UpdateIdentityInput updates one identity entry and, through Base, its parent memory.
type UpdateIdentityInput struct {
	ID            string        `json:"id" validate:"required,uuid"`
	MergeStrategy MergeStrategy `json:"mergeStrategy,omitempty" validate:"omitempty,oneof=merge replace"`
	Set           IdentityPatch `json:"set"`
	Base          *BasePatch    `json:"base,omitempty"`
}

// RemoveIdentityInput removes one identity entry.
type RemoveIdentityInput struct {
	ID     string `json:"id" validate:"required,uuid"`
	Reason string `json:"reason,omitempty"`
}

// SearchMemoryInput is a free-text memory query.
type SearchMemoryInput struct {
	Query string        `json:"query" validate:"required"`
	TopK  *SearchLimits `json:"topK,omitempty" validate:"omitempty"`
}

// MutationResult is returned by every write operation. It never carries a Go error.
type MutationResult struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	MemoryID     string `json:"memoryId,omitempty"`
	ContextID    string `json:"contextId,omitempty"`
	ExperienceID string `json:"experienceId,omitempty"`
	PreferenceID string `json:"preferenceId,omitempty"`
	IdentityID   string `json:"identityId,omitempty"`
	Reason       string `json:"reason,omitempty"`

	notFound bool
}

// NotFound reports whether the operation failed because the entry does not exist.
func (r MutationResult) NotFound() bool {
	return r.notFound
}
