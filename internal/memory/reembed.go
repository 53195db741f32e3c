package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/aiox-platform/usermemory/internal/worker"
)

// ReembedTable names a table whose vectors can be regenerated.
type ReembedTable string

const (
	TableUserMemories ReembedTable = "userMemories"
	TableContexts     ReembedTable = "contexts"
	TablePreferences  ReembedTable = "preferences"
	TableIdentities   ReembedTable = "identities"
	TableExperiences  ReembedTable = "experiences"
)

// ReembedTables is the processing order of a full re-embed.
var ReembedTables = []ReembedTable{
	TableUserMemories, TableContexts, TablePreferences, TableIdentities, TableExperiences,
}

type tableSpec struct {
	name          string
	textColumns   []string
	vectorColumns []string
}

func (t ReembedTable) spec() (tableSpec, bool) {
	switch t {
	case TableUserMemories:
		return tableSpec{"user_memories", []string{"summary", "details"}, []string{"summary_vector_1024", "details_vector_1024"}}, true
	case TableContexts:
		return tableSpec{"user_memories_contexts", []string{"description"}, []string{"description_vector"}}, true
	case TablePreferences:
		return tableSpec{"user_memories_preferences", []string{"conclusion_directives"}, []string{"conclusion_directives_vector"}}, true
	case TableIdentities:
		return tableSpec{"user_memories_identities", []string{"description"}, []string{"description_vector"}}, true
	case TableExperiences:
		return tableSpec{
			"user_memories_experiences",
			[]string{"situation", "action", "key_learning"},
			[]string{"situation_vector", "action_vector", "key_learning_vector"},
		}, true
	}
	return tableSpec{}, false
}

// ReembedFilter narrows the rows read from one table.
type ReembedFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
}

// EmbeddableRow is a row id plus its text columns in field order.
type EmbeddableRow struct {
	ID    uuid.UUID
	Texts []*string
}

// ReembedInput is the request for a batch re-embed.
type ReembedInput struct {
	Concurrency int            `json:"concurrency,omitempty" validate:"omitempty,min=1,max=50"`
	StartDate   *time.Time     `json:"startDate,omitempty"`
	EndDate     *time.Time     `json:"endDate,omitempty"`
	Limit       int            `json:"limit,omitempty" validate:"omitempty,min=1"`
	Only        []ReembedTable `json:"only,omitempty" validate:"omitempty,dive,oneof=userMemories contexts preferences identities experiences"`
}

// ReembedStats counts row outcomes.
type ReembedStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (s *ReembedStats) add(o ReembedStats) {
	s.Total += o.Total
	s.Succeeded += o.Succeeded
	s.Failed += o.Failed
	s.Skipped += o.Skipped
}

// ReembedResult summarizes a run.
type ReembedResult struct {
	Success   bool                          `json:"success"`
	Message   string                        `json:"message"`
	Aggregate *ReembedStats                 `json:"aggregate,omitempty"`
	Results   map[ReembedTable]ReembedStats `json:"results,omitempty"`
	// PeakConcurrency is the most rows that were embedded at once.
	PeakConcurrency int `json:"peakConcurrency,omitempty"`
}

// ReembedRecorder receives one observation per processed row.
type ReembedRecorder interface {
	RecordReembedRow(table, outcome string)
}

const (
	outcomeSucceeded = "succeeded"
	outcomeFailed    = "failed"
	outcomeSkipped   = "skipped"
)

// Reembedder regenerates stored vectors from their source text.
type Reembedder struct {
	store    VectorStore
	embedder Embedder
	recorder ReembedRecorder
	validate *validator.Validate

	// DefaultConcurrency applies when the input leaves Concurrency unset.
	DefaultConcurrency int
}

// NewReembedder creates a Reembedder. recorder may be nil.
func NewReembedder(store VectorStore, embedder Embedder, recorder ReembedRecorder) *Reembedder {
	return &Reembedder{
		store:    store,
		embedder: embedder,
		recorder: recorder,
		validate: validator.New(),
	}
}

// Validate checks the input bounds.
func (r *Reembedder) Validate(in ReembedInput) error {
	return r.validate.Struct(in)
}

// Run re-embeds every selected table for the user. Row failures are logged and
// counted. Invalid input or a table read failure ends the run with Success false.
func (r *Reembedder) Run(ctx context.Context, userID string, in ReembedInput) *ReembedResult {
	result, err := r.run(ctx, userID, in)
	if err != nil {
		slog.Error("memory: re-embed failed", "user_id", userID, "error", err)
		return &ReembedResult{Message: "Failed to re-embed memories: " + err.Error()}
	}
	return result
}

func (r *Reembedder) run(ctx context.Context, userID string, in ReembedInput) (*ReembedResult, error) {
	if err := r.Validate(in); err != nil {
		return nil, fmt.Errorf("invalid input: %w", err)
	}
	size := in.Concurrency
	if size == 0 {
		size = r.DefaultConcurrency
	}
	pool, err := worker.NewPool(size)
	if err != nil {
		return nil, err
	}

	tables := ReembedTables
	if len(in.Only) > 0 {
		tables = selectTables(in.Only)
	}

	filter := ReembedFilter{StartDate: in.StartDate, EndDate: in.EndDate, Limit: in.Limit}
	results := make(map[ReembedTable]ReembedStats, len(tables))
	for _, table := range tables {
		stats, err := r.runTable(ctx, pool, userID, table, filter)
		if err != nil {
			return nil, err
		}
		results[table] = stats
	}

	if len(results) == 0 {
		return &ReembedResult{Success: true, Message: "No memory records matched re-embed criteria", Results: results}, nil
	}

	aggregate := &ReembedStats{}
	for _, table := range tables {
		aggregate.add(results[table])
	}
	message := fmt.Sprintf("Re-embedded %d of %d records", aggregate.Succeeded, aggregate.Total)
	if aggregate.Total == 0 {
		message = "No memory records required re-embedding"
	}

	slog.Info("memory: re-embed finished",
		"user_id", userID,
		"total", aggregate.Total,
		"succeeded", aggregate.Succeeded,
		"failed", aggregate.Failed,
		"skipped", aggregate.Skipped,
		"concurrency", pool.Size(),
		"peak_concurrency", pool.Peak(),
	)

	return &ReembedResult{
		Success:         true,
		Message:         message,
		Aggregate:       aggregate,
		Results:         results,
		PeakConcurrency: pool.Peak(),
	}, nil
}

func (r *Reembedder) runTable(ctx context.Context, pool *worker.Pool, userID string, table ReembedTable, f ReembedFilter) (ReembedStats, error) {
	rows, err := r.store.ListEmbeddable(ctx, userID, table, f)
	if err != nil {
		return ReembedStats{}, fmt.Errorf("loading %s rows: %w", table, err)
	}

	var succeeded, failed, skipped atomic.Int64
	err = pool.Run(ctx, len(rows), func(ctx context.Context, i int) error {
		row := rows[i]
		outcome, err := r.reembedRow(ctx, userID, table, row)
		if err != nil {
			slog.Warn("memory: re-embedding row failed", "table", table, "id", row.ID, "user_id", userID, "error", err)
		}
		switch outcome {
		case outcomeSucceeded:
			succeeded.Add(1)
		case outcomeSkipped:
			skipped.Add(1)
		default:
			failed.Add(1)
		}
		if r.recorder != nil {
			r.recorder.RecordReembedRow(string(table), outcome)
		}
		return nil
	})
	if err != nil {
		return ReembedStats{}, fmt.Errorf("re-embedding %s: %w", table, err)
	}

	return ReembedStats{
		Total:     len(rows),
		Succeeded: int(succeeded.Load()),
		Failed:    int(failed.Load()),
		Skipped:   int(skipped.Load()),
	}, nil
}

func (r *Reembedder) reembedRow(ctx context.Context, userID string, table ReembedTable, row EmbeddableRow) (string, error) {
	vectors, err := EmbedFields(ctx, r.embedder, row.Texts...)
	if err != nil {
		return outcomeFailed, err
	}

	outcome := outcomeSkipped
	for _, v := range vectors {
		if v != nil {
			outcome = outcomeSucceeded
			break
		}
	}

	if err := r.store.UpdateVectors(ctx, userID, table, row.ID, vectors); err != nil {
		return outcomeFailed, err
	}
	return outcome, nil
}

// selectTables keeps the declared processing order and drops duplicates.
func selectTables(only []ReembedTable) []ReembedTable {
	wanted := make(map[ReembedTable]bool, len(only))
	for _, t := range only {
		wanted[t] = true
	}
	var tables []ReembedTable
	for _, t := range ReembedTables {
		if wanted[t] {
			tables = append(tables, t)
		}
	}
	return tables
}
