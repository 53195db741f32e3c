package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// EmbeddingDimensions is the fixed length of every stored vector column.
const EmbeddingDimensions = 1024

// Layer is one of the four semantic memory layers.
type Layer string

const (
	LayerIdentity   Layer = "identity"
	LayerContext    Layer = "context"
	LayerPreference Layer = "preference"
	LayerExperience Layer = "experience"
)

// LayerOrder is the declared evaluation order of layers.
var LayerOrder = []Layer{LayerIdentity, LayerContext, LayerPreference, LayerExperience}

// Valid reports whether l is a known layer.
func (l Layer) Valid() bool {
	switch l {
	case LayerIdentity, LayerContext, LayerPreference, LayerExperience:
		return true
	}
	return false
}

// Label returns the plural form used in metrics labels and error messages.
func (l Layer) Label() string {
	switch l {
	case LayerContext:
		return "contexts"
	case LayerExperience:
		return "experiences"
	case LayerIdentity:
		return "identities"
	case LayerPreference:
		return "preferences"
	}
	return string(l)
}

// ParseLayer lowercases s and returns the matching layer.
func ParseLayer(s string) (Layer, bool) {
	l := Layer(strings.ToLower(strings.TrimSpace(s)))
	return l, l.Valid()
}

// Memory types stored in user_memories.memory_type.
const (
	TypeActivity   = "activity"
	TypeContext    = "context"
	TypeEvent      = "event"
	TypeFact       = "fact"
	TypeLocation   = "location"
	TypeOther      = "other"
	TypePeople     = "people"
	TypePreference = "preference"
	TypeTechnology = "technology"
	TypeTopic      = "topic"
)

// MemoryTypes lists every accepted memory type.
var MemoryTypes = []string{
	TypeActivity, TypeContext, TypeEvent, TypeFact, TypeLocation,
	TypeOther, TypePeople, TypePreference, TypeTechnology, TypeTopic,
}

// DefaultCategories is used when the caller supplies no category set.
var DefaultCategories = []string{
	"people",
	"personal",
	"work",
	"education",
	"health",
	"hobbies",
	"relationships",
	"location",
	"technology",
	"finance",
	"other",
}

// StatusActive is the status of a freshly written memory.
const StatusActive = "active"

// MergeStrategy controls how identity updates are applied.
type MergeStrategy string

const (
	MergeStrategyMerge   MergeStrategy = "merge"
	MergeStrategyReplace MergeStrategy = "replace"
)

// AssociatedObject is a subject or object referenced by a context memory.
type AssociatedObject struct {
	Name string  `json:"name" validate:"required"`
	Type *string `json:"type" jsonschema:"nullable"`
}

// UserMemoryRecord is the base envelope row written to user_memories.
type UserMemoryRecord struct {
	Title          string
	Summary        string
	Details        string
	MemoryCategory string
	MemoryType     string
	MemoryLayer    Layer
	Tags           []string
	Metadata       map[string]any
	Status         string
	CapturedAt     *time.Time
	SummaryVector  []float32
	DetailsVector  []float32
}

// ContextRecord is the layer row written to user_memories_contexts.
type ContextRecord struct {
	Title              *string
	Description        *string
	DescriptionVector  []float32
	Type               *string
	CurrentStatus      *string
	ScoreImpact        *float64
	ScoreUrgency       *float64
	AssociatedSubjects []AssociatedObject
	AssociatedObjects  []AssociatedObject
	Tags               []string
	Metadata           map[string]any
	CapturedAt         *time.Time
}

// ExperienceRecord is the layer row written to user_memories_experiences.
type ExperienceRecord struct {
	Type              *string
	Situation         *string
	SituationVector   []float32
	Reasoning         *string
	PossibleOutcome   *string
	Action            *string
	ActionVector      []float32
	KeyLearning       *string
	KeyLearningVector []float32
	ScoreConfidence   *float64
	Tags              []string
	Metadata          map[string]any
	CapturedAt        *time.Time
}

// PreferenceRecord is the layer row written to user_memories_preferences.
type PreferenceRecord struct {
	Type                       *string
	ConclusionDirectives       *string
	ConclusionDirectivesVector []float32
	Suggestions                *string
	ScorePriority              *float64
	Tags                       []string
	Metadata                   map[string]any
	CapturedAt                 *time.Time
}

// IdentityRecord is the layer row written to user_memories_identities.
type IdentityRecord struct {
	Type              *string
	Role              *string
	Relationship      *string
	Description       *string
	DescriptionVector []float32
	EpisodicDate      *time.Time
	Tags              []string
	Metadata          map[string]any
	CapturedAt        *time.Time
}

// CreatedMemory holds the ids of a base row and its layer row.
type CreatedMemory struct {
	UserMemoryID uuid.UUID
	LayerID      uuid.UUID
}

// BaseUpdate carries optional changes to a user_memories row. Nil fields are left untouched.
type BaseUpdate struct {
	Title          *string
	Summary        *string
	Details        *string
	MemoryCategory *string
	MemoryType     *string
	Tags           []string
	SummaryVector  []float32
	DetailsVector  []float32
}

// IdentityUpdate carries changes to an identity row.
// DescriptionVector is only written when Description is set.
type IdentityUpdate struct {
	Description       *string
	DescriptionVector []float32
	Type              *string
	Role              *string
	Relationship      *string
	EpisodicDate      *time.Time
	Tags              []string
	Metadata          map[string]any
	CapturedAt        *time.Time
}

// UpdateIdentityParams describes a single identity update.
type UpdateIdentityParams struct {
	IdentityID    uuid.UUID
	MergeStrategy MergeStrategy
	Base          *BaseUpdate
	Identity      *IdentityUpdate
}

// ContextDTO is a retrieved context memory without vector columns.
type ContextDTO struct {
	ID                 uuid.UUID          `json:"id"`
	UserMemoryID       uuid.UUID          `json:"userMemoryId"`
	Title              *string            `json:"title"`
	Description        *string            `json:"description"`
	Type               *string            `json:"type"`
	CurrentStatus      *string            `json:"currentStatus"`
	ScoreImpact        *float64           `json:"scoreImpact"`
	ScoreUrgency       *float64           `json:"scoreUrgency"`
	AssociatedSubjects []AssociatedObject `json:"associatedSubjects"`
	AssociatedObjects  []AssociatedObject `json:"associatedObjects"`
	Tags               []string           `json:"tags"`
	Similarity         float64            `json:"similarity"`
	CreatedAt          time.Time          `json:"createdAt"`
}

// ExperienceDTO is a retrieved experience memory without vector columns.
type ExperienceDTO struct {
	ID              uuid.UUID `json:"id"`
	UserMemoryID    uuid.UUID `json:"userMemoryId"`
	Type            *string   `json:"type"`
	Situation       *string   `json:"situation"`
	Reasoning       *string   `json:"reasoning"`
	PossibleOutcome *string   `json:"possibleOutcome"`
	Action          *string   `json:"action"`
	KeyLearning     *string   `json:"keyLearning"`
	ScoreConfidence *float64  `json:"scoreConfidence"`
	Tags            []string  `json:"tags"`
	Similarity      float64   `json:"similarity"`
	CreatedAt       time.Time `json:"createdAt"`
}

// PreferenceDTO is a retrieved preference memory without vector columns.
type PreferenceDTO struct {
	ID                   uuid.UUID `json:"id"`
	UserMemoryID         uuid.UUID `json:"userMemoryId"`
	Type                 *string   `json:"type"`
	ConclusionDirectives *string   `json:"conclusionDirectives"`
	Suggestions          *string   `json:"suggestions"`
	ScorePriority        *float64  `json:"scorePriority"`
	Tags                 []string  `json:"tags"`
	Similarity           float64   `json:"similarity"`
	CreatedAt            time.Time `json:"createdAt"`
}

// IdentityDTO is a stored identity entry without vector columns.
type IdentityDTO struct {
	ID           uuid.UUID  `json:"id"`
	UserMemoryID uuid.UUID  `json:"userMemoryId"`
	Type         *string    `json:"type"`
	Role         *string    `json:"role"`
	Relationship *string    `json:"relationship"`
	Description  *string    `json:"description"`
	EpisodicDate *time.Time `json:"episodicDate"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// SearchLimits bounds the number of rows returned per layer.
type SearchLimits struct {
	Contexts    int `json:"contexts"`
	Experiences int `json:"experiences"`
	Preferences int `json:"preferences"`
}

// DefaultSearchLimit is the per-layer top-K used when the caller passes none.
const DefaultSearchLimit = 5

// SearchResult groups retrieved rows per layer.
type SearchResult struct {
	Contexts    []ContextDTO    `json:"contexts"`
	Experiences []ExperienceDTO `json:"experiences"`
	Preferences []PreferenceDTO `json:"preferences"`
}

// EmptySearchResult returns a result with non-nil empty slices.
func EmptySearchResult() *SearchResult {
	return &SearchResult{
		Contexts:    []ContextDTO{},
		Experiences: []ExperienceDTO{},
		Preferences: []PreferenceDTO{},
	}
}
