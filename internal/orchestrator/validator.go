package orchestrator

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aiox-platform/usermemory/internal/memory"
	inats "github.com/aiox-platform/usermemory/internal/nats"
	"github.com/aiox-platform/usermemory/internal/providers"
)

var ErrInvalidPayload = errors.New("invalid extraction payload")

var validate = validator.New()

var sourceAliases = map[string]providers.Source{
	"chatTopic":  providers.SourceChatTopic,
	"chatTopics": providers.SourceChatTopic,
	"chat_topic": providers.SourceChatTopic,
	"lark":       providers.SourceLark,
	"notion":     providers.SourceNotion,
	"obsidian":   providers.SourceObsidian,
}

// ExtractionPayload is the raw request to extract memories for users and topics.
type ExtractionPayload struct {
	ForceAll    bool       `json:"forceAll"`
	ForceTopics bool       `json:"forceTopics"`
	FromDate    *time.Time `json:"fromDate"`
	ToDate      *time.Time `json:"toDate"`
	Layers      []string   `json:"layers"`
	Sources     []string   `json:"sources"`
	TopicIDs    []string   `json:"topicIds"`
	UserID      string     `json:"userId"`
	UserIDs     []string   `json:"userIds"`
}

// NormalizedPayload is an ExtractionPayload with aliases resolved and lists deduplicated.
type NormalizedPayload struct {
	ForceAll    bool
	ForceTopics bool
	From        *time.Time
	To          *time.Time
	Layers      []memory.Layer
	Sources     []providers.Source `validate:"required,min=1"`
	TopicIDs    []string
	UserIDs     []string `validate:"required,min=1,dive,required"`
}

// NormalizePayload maps source aliases, lowercases and filters layers, and
// deduplicates user and topic ids. An empty source list means chat topics.
func NormalizePayload(p ExtractionPayload) (*NormalizedPayload, error) {
	n := &NormalizedPayload{
		ForceAll:    p.ForceAll,
		ForceTopics: p.ForceTopics,
		From:        p.FromDate,
		To:          p.ToDate,
		Layers:      normalizeLayers(p.Layers),
		Sources:     normalizeSources(p.Sources),
		TopicIDs:    dedupe(p.TopicIDs),
		UserIDs:     dedupe(append(slices.Clone(p.UserIDs), p.UserID)),
	}
	if len(p.Sources) == 0 {
		n.Sources = []providers.Source{providers.SourceChatTopic}
	}

	if err := validate.Struct(n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if n.From != nil && n.To != nil && n.From.After(*n.To) {
		return nil, fmt.Errorf("%w: fromDate is after toDate", ErrInvalidPayload)
	}
	return n, nil
}

// HasSource reports whether s was requested.
func (n *NormalizedPayload) HasSource(s providers.Source) bool {
	return slices.Contains(n.Sources, s)
}

// TopicJobs builds one chat topic job per topic of userID.
func (n *NormalizedPayload) TopicJobs(userID string, topicIDs []string, traceID string) []TopicJob {
	jobs := make([]TopicJob, 0, len(topicIDs))
	for _, id := range topicIDs {
		jobs = append(jobs, TopicJob{
			UserID:      userID,
			TopicID:     id,
			Source:      providers.SourceChatTopic,
			Layers:      n.Layers,
			ForceAll:    n.ForceAll,
			ForceTopics: n.ForceTopics,
			From:        n.From,
			To:          n.To,
			TraceID:     traceID,
		})
	}
	return jobs
}

// TopicJob asks for the extraction of one chat topic.
type TopicJob struct {
	UserID      string           `json:"userId" validate:"required"`
	TopicID     string           `json:"topicId" validate:"required"`
	Source      providers.Source `json:"source" validate:"required"`
	Layers      []memory.Layer   `json:"layers,omitempty"`
	ForceAll    bool             `json:"forceAll,omitempty"`
	ForceTopics bool             `json:"forceTopics,omitempty"`
	From        *time.Time       `json:"from,omitempty"`
	To          *time.Time       `json:"to,omitempty"`
	TraceID     string           `json:"traceId,omitempty"`
}

// Force reports whether an already extracted topic should run again.
func (j TopicJob) Force() bool {
	return j.ForceAll || j.ForceTopics
}

// Job converts the topic job into an orchestrator job.
func (j TopicJob) Job(sourceUpdatedAt time.Time) Job {
	return Job{
		Source:          j.Source,
		SourceID:        j.TopicID,
		UserID:          j.UserID,
		Layers:          j.Layers,
		Force:           j.Force(),
		SourceUpdatedAt: sourceUpdatedAt,
		TraceID:         j.TraceID,
	}
}

// Message converts the job into its wire form.
func (j TopicJob) Message() inats.ExtractionJob {
	layers := make([]string, len(j.Layers))
	for i, l := range j.Layers {
		layers[i] = string(l)
	}
	return inats.ExtractionJob{
		UserID:      j.UserID,
		TopicID:     j.TopicID,
		Source:      string(j.Source),
		Layers:      layers,
		ForceAll:    j.ForceAll,
		ForceTopics: j.ForceTopics,
		From:        j.From,
		To:          j.To,
		TraceID:     j.TraceID,
		EnqueuedAt:  time.Now().UTC(),
	}
}

// TopicJobFromMessage normalizes and validates a job read off the wire.
func TopicJobFromMessage(m inats.ExtractionJob) (TopicJob, error) {
	source, ok := sourceAliases[m.Source]
	if !ok && m.Source == "" {
		source, ok = providers.SourceChatTopic, true
	}
	if !ok || source != providers.SourceChatTopic {
		return TopicJob{}, fmt.Errorf("%w: unsupported source %q", ErrInvalidPayload, m.Source)
	}

	job := TopicJob{
		UserID:      strings.TrimSpace(m.UserID),
		TopicID:     strings.TrimSpace(m.TopicID),
		Source:      source,
		Layers:      normalizeLayers(m.Layers),
		ForceAll:    m.ForceAll,
		ForceTopics: m.ForceTopics,
		From:        m.From,
		To:          m.To,
		TraceID:     m.TraceID,
	}
	if err := validate.Struct(job); err != nil {
		return TopicJob{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return job, nil
}

func normalizeLayers(raw []string) []memory.Layer {
	var layers []memory.Layer
	for _, s := range raw {
		l, ok := memory.ParseLayer(s)
		if ok && !slices.Contains(layers, l) {
			layers = append(layers, l)
		}
	}
	return layers
}

func normalizeSources(raw []string) []providers.Source {
	var sources []providers.Source
	for _, s := range raw {
		src, ok := sourceAliases[s]
		if ok && !slices.Contains(sources, src) {
			sources = append(sources, src)
		}
	}
	return sources
}

func dedupe(ids []string) []string {
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
