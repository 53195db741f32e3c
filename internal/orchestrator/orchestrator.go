package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aiox-platform/usermemory/internal/extractor"
	"github.com/aiox-platform/usermemory/internal/llm"
	"github.com/aiox-platform/usermemory/internal/memory"
	"github.com/aiox-platform/usermemory/internal/providers"
)

// Job is the unit of work the orchestrator runs.
type Job = providers.Job

// State is the lifecycle stage of one run.
type State string

const (
	StatePending        State = "PENDING"
	StateGatekeeping    State = "GATEKEEPING"
	StateLayerExecution State = "LAYER_EXECUTION"
	StateAggregated     State = "AGGREGATED"
	StateFailed         State = "FAILED"
)

// Gatekeeper decides which layers a conversation warrants.
type Gatekeeper interface {
	Check(ctx context.Context, opts extractor.Options) (extractor.Decision, error)
}

// Recorder receives call metrics. *metrics.Metrics implements it.
type Recorder interface {
	RecordGatekeeper(source, userID string, d time.Duration, err error)
	RecordLayer(layer, source, userID string, d time.Duration, err error)
}

// Options are the per-run inputs besides the job itself.
type Options struct {
	RetrievedContexts          []string
	RetrievedIdentitiesContext string
	MemoryCategories           []string
	Language                   string
	Username                   string
	SessionDate                time.Time
	TopK                       int
	// OnFailure is called once when the run fails before any layer executes.
	OnFailure func(err error)
}

// Outcome is the result of one layer: either Data or Err is set.
type Outcome struct {
	Data extractor.Output
	Err  error
}

func (o Outcome) MarshalJSON() ([]byte, error) {
	if o.Err != nil {
		return json.Marshal(map[string]string{"error": o.Err.Error()})
	}
	return json.Marshal(map[string]any{"data": o.Data})
}

// Inputs echo the retrieval context a run was given.
type Inputs struct {
	RetrievedContexts          []string `json:"retrievedContexts"`
	RetrievedIdentitiesContext string   `json:"retrievedIdentitiesContext"`
}

// Result is the aggregated outcome of a run.
type Result struct {
	Prepared             *providers.PreparedContext `json:"-"`
	Decision             extractor.Decision         `json:"decision"`
	Inputs               Inputs                     `json:"inputs"`
	Layers               []memory.Layer             `json:"layers"`
	Outputs              map[memory.Layer]Outcome   `json:"outputs"`
	ProcessedCounts      map[memory.Layer]int       `json:"processedCounts"`
	ProcessedErrorsCount int                        `json:"processedErrorsCount"`
	ProcessedLayersCount int                        `json:"processedLayersCount"`
	State                State                      `json:"state"`
}

// Orchestrator runs the gatekeeper and the selected layer extractors for a job.
type Orchestrator struct {
	gatekeeper Gatekeeper
	extractors map[memory.Layer]extractor.Extractor
	recorder   Recorder
}

// New resolves one extractor per layer. It fails when any layer has none.
func New(gatekeeper Gatekeeper, extractors map[memory.Layer]extractor.Extractor, recorder Recorder) (*Orchestrator, error) {
	if gatekeeper == nil {
		return nil, errors.New("orchestrator: gatekeeper is required")
	}
	resolved := make(map[memory.Layer]extractor.Extractor, len(memory.LayerOrder))
	for _, l := range memory.LayerOrder {
		e, ok := extractors[l]
		if !ok || e == nil {
			return nil, fmt.Errorf("orchestrator: no extractor for layer %s", l)
		}
		resolved[l] = e
	}
	return &Orchestrator{gatekeeper: gatekeeper, extractors: resolved, recorder: recorder}, nil
}

// Run prepares the job, asks the gatekeeper which layers to run and runs them
// concurrently. A nil result with a nil error means the provider had nothing
// to extract. Layer failures are isolated in Result.Outputs; only a
// preparation or gatekeeper failure is returned as an error.
func (o *Orchestrator) Run(ctx context.Context, job Job, provider providers.Provider, opts Options) (*Result, error) {
	log := slog.With("source", job.Source, "source_id", job.SourceID, "user_id", job.UserID)
	log.Debug("orchestrator: run", "state", StatePending)

	prepared, err := provider.Prepare(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("preparing context: %w", err)
	}
	if prepared == nil {
		log.Info("orchestrator: nothing to extract")
		return nil, nil
	}

	result := &Result{
		Prepared: prepared,
		Inputs: Inputs{
			RetrievedContexts:          opts.RetrievedContexts,
			RetrievedIdentitiesContext: opts.RetrievedIdentitiesContext,
		},
		Outputs:         map[memory.Layer]Outcome{},
		ProcessedCounts: map[memory.Layer]int{},
		State:           StateGatekeeping,
	}
	log.Debug("orchestrator: run", "state", result.State)

	extractOpts := extractor.Options{
		Conversation:        conversation(prepared.Conversation),
		RetrievedContexts:   opts.RetrievedContexts,
		RetrievedIdentities: opts.RetrievedIdentitiesContext,
		MemoryCategories:    opts.MemoryCategories,
		Language:            opts.Language,
		Username:            opts.Username,
		SessionDate:         opts.SessionDate,
		TopK:                opts.TopK,
	}

	start := time.Now()
	decision, err := o.gatekeeper.Check(ctx, extractOpts)
	o.recordGatekeeper(job, time.Since(start), err)
	if err != nil {
		result.State = StateFailed
		err = fmt.Errorf("gatekeeper check: %w", err)
		log.Error("orchestrator: run failed", "state", result.State, "error", err)
		if opts.OnFailure != nil {
			opts.OnFailure(err)
		}
		if f, ok := provider.(providers.Failer); ok {
			if ferr := f.Fail(ctx, job, prepared, err); ferr != nil {
				log.Warn("orchestrator: recording failure on source", "error", ferr)
			}
		}
		return result, err
	}
	result.Decision = decision
	result.Layers = ResolveJobLayers(decision, job.Layers)

	result.State = StateLayerExecution
	log.Debug("orchestrator: run", "state", result.State, "layers", result.Layers)

	outcomes := make([]Outcome, len(result.Layers))
	// Layer errors live in the outcomes; no goroutine cancels its siblings.
	var g errgroup.Group
	for i, l := range result.Layers {
		g.Go(func() error {
			outcomes[i] = o.runLayer(ctx, job, l, extractOpts)
			return nil
		})
	}
	_ = g.Wait()

	for i, l := range result.Layers {
		out := outcomes[i]
		result.Outputs[l] = out
		if out.Err != nil {
			result.ProcessedErrorsCount++
			log.Warn("orchestrator: layer failed", "layer", l, "error", out.Err)
			continue
		}
		result.ProcessedLayersCount++
		if out.Data != nil {
			result.ProcessedCounts[l] = out.Data.ProcessedCount()
		}
	}

	result.State = StateAggregated
	log.Info("orchestrator: run finished",
		"state", result.State,
		"layers", result.Layers,
		"errors", result.ProcessedErrorsCount,
	)
	return result, nil
}

// runLayer executes one extractor. A panic becomes the layer's error.
func (o *Orchestrator) runLayer(ctx context.Context, job Job, layer memory.Layer, opts extractor.Options) (out Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("orchestrator: layer panicked", "layer", layer, "panic", r, "stack", string(debug.Stack()))
			out = Outcome{Err: fmt.Errorf("%s extractor panicked: %v", layer, r)}
		}
		o.recordLayer(job, layer, time.Since(start), out.Err)
	}()

	data, err := o.extractors[layer].Extract(ctx, opts)
	if err != nil {
		return Outcome{Err: err}
	}
	return Outcome{Data: data}
}

func (o *Orchestrator) recordGatekeeper(job Job, d time.Duration, err error) {
	if o.recorder != nil {
		o.recorder.RecordGatekeeper(string(job.Source), job.UserID, d, err)
	}
}

func (o *Orchestrator) recordLayer(job Job, layer memory.Layer, d time.Duration, err error) {
	if o.recorder != nil {
		o.recorder.RecordLayer(string(layer), string(job.Source), job.UserID, d, err)
	}
}

// conversation maps provider messages to model messages. Roles the model API
// does not accept are sent as user turns.
func conversation(msgs []providers.Message) []llm.Message {
	out := make([]llm.Message, len(msgs))
	for i, m := range msgs {
		role := m.Role
		if role != llm.RoleUser && role != llm.RoleAssistant && role != llm.RoleSystem {
			role = llm.RoleUser
		}
		out[i] = llm.Message{Role: role, Content: m.Content}
	}
	return out
}
