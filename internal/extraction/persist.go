package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aiox-platform/usermemory/internal/extractor"
	"github.com/aiox-platform/usermemory/internal/memory"
	"github.com/aiox-platform/usermemory/internal/orchestrator"
)

// MemoryWriter is the write side of memory.Service.
type MemoryWriter interface {
	AddContextMemory(ctx context.Context, userID string, in memory.ContextMemory) memory.MutationResult
	AddExperienceMemory(ctx context.Context, userID string, in memory.ExperienceMemory) memory.MutationResult
	AddPreferenceMemory(ctx context.Context, userID string, in memory.PreferenceMemory) memory.MutationResult
	AddIdentityMemory(ctx context.Context, userID string, in memory.IdentityMemory) memory.MutationResult
	UpdateIdentityMemory(ctx context.Context, userID string, in memory.UpdateIdentityInput) memory.MutationResult
	RemoveIdentityMemory(ctx context.Context, userID string, in memory.RemoveIdentityInput) memory.MutationResult
}

// Persisted counts what one run wrote.
type Persisted struct {
	Layers    map[memory.Layer]int
	MemoryIDs []string
}

// Persister writes extractor outputs through the memory service, which embeds
// every present text field.
type Persister struct {
	writer MemoryWriter
}

func NewPersister(writer MemoryWriter) *Persister {
	return &Persister{writer: writer}
}

// Persist writes every successful layer of res. Failed layers and failed
// writes are returned as "[extract|persist] <label>: <message>" errors; the
// remaining entries are still written.
func (p *Persister) Persist(ctx context.Context, job orchestrator.Job, messageIDs []string, res *orchestrator.Result) (*Persisted, []error) {
	out := &Persisted{Layers: map[memory.Layer]int{}, MemoryIDs: []string{}}
	var errs []error

	for _, layer := range res.Layers {
		outcome, ok := res.Outputs[layer]
		if !ok {
			continue
		}
		if outcome.Err != nil {
			errs = append(errs, fmt.Errorf("[extract] %s: %w", layer.Label(), outcome.Err))
			continue
		}

		w := &layerWrite{job: job, layer: layer, messageIDs: messageIDs}
		switch data := outcome.Data.(type) {
		case *extractor.ContextOutput:
			for _, m := range data.Memories {
				m.MemoryEnvelope = w.envelope(m.MemoryEnvelope, m.WithContext.Tags)
				w.record(p.writer.AddContextMemory(ctx, job.UserID, m), true)
			}
		case *extractor.ExperienceOutput:
			for _, m := range data.Memories {
				m.MemoryEnvelope = w.envelope(m.MemoryEnvelope, m.WithExperience.Tags)
				w.record(p.writer.AddExperienceMemory(ctx, job.UserID, m), true)
			}
		case *extractor.PreferenceOutput:
			for _, m := range data.Memories {
				m.MemoryEnvelope = w.envelope(m.MemoryEnvelope, m.WithPreference.Tags)
				w.record(p.writer.AddPreferenceMemory(ctx, job.UserID, m), true)
			}
		case *extractor.IdentityActions:
			p.persistIdentities(ctx, w, data)
		case nil:
		default:
			w.errs = append(w.errs, fmt.Errorf("unexpected output %T", data))
		}

		out.Layers[layer] = w.written
		out.MemoryIDs = append(out.MemoryIDs, w.ids...)
		for _, err := range w.errs {
			errs = append(errs, fmt.Errorf("[persist] %s: %w", layer.Label(), err))
		}
	}
	return out, errs
}

func (p *Persister) persistIdentities(ctx context.Context, w *layerWrite, actions *extractor.IdentityActions) {
	userID := w.job.UserID
	for _, a := range actions.Add {
		summary := a.Summary
		if summary == "" {
			summary = a.WithIdentity.Description
		}
		env := w.envelope(memory.MemoryEnvelope{
			Title:          a.Title,
			Summary:        summary,
			Details:        a.Details,
			MemoryCategory: "people",
			MemoryType:     memory.TypePeople,
		}, a.WithIdentity.Tags)
		w.record(p.writer.AddIdentityMemory(ctx, userID, memory.IdentityMemory{
			MemoryEnvelope: env,
			WithIdentity:   a.WithIdentity,
		}), true)
	}
	for _, u := range actions.Update {
		w.record(p.writer.UpdateIdentityMemory(ctx, userID, u), false)
	}
	for _, r := range actions.Remove {
		w.record(p.writer.RemoveIdentityMemory(ctx, userID, r), false)
	}
}

// layerWrite accumulates the results of one layer.
type layerWrite struct {
	job        orchestrator.Job
	layer      memory.Layer
	messageIDs []string

	written int
	ids     []string
	errs    []error
}

func (w *layerWrite) envelope(env memory.MemoryEnvelope, labels []string) memory.MemoryEnvelope {
	env.Metadata = map[string]any{
		"source":     string(w.job.Source),
		"sourceId":   w.job.SourceID,
		"layer":      string(w.layer),
		"messageIds": w.messageIDs,
	}
	if len(labels) > 0 {
		env.Metadata["labels"] = labels
	}
	if !w.job.SourceUpdatedAt.IsZero() {
		at := w.job.SourceUpdatedAt
		env.CapturedAt = &at
	}
	return env
}

func (w *layerWrite) record(res memory.MutationResult, created bool) {
	if !res.Success {
		slog.Warn("extraction: persisting entry failed",
			"layer", w.layer, "source_id", w.job.SourceID, "user_id", w.job.UserID, "message", res.Message)
		w.errs = append(w.errs, errors.New(res.Message))
		return
	}
	w.written++
	if created && res.MemoryID != "" {
		w.ids = append(w.ids, res.MemoryID)
	}
}
