package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

type fakeEmbedder struct {
	mu      sync.Mutex
	calls   [][]string
	err     error
	dropOne bool
}

func (f *fakeEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), inputs...))
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, testVector(float32(len(in))))
	}
	if f.dropOne && len(out) > 0 {
		out = out[:len(out)-1]
	}
	return out, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testVector(v float32) []float32 {
	vec := make([]float32, EmbeddingDimensions)
	for i := range vec {
		vec[i] = v
	}
	return vec
}

type fakeWriter struct {
	mu         sync.Mutex
	err        error
	missing    bool
	bases      []UserMemoryRecord
	contexts   []ContextRecord
	experience []ExperienceRecord
	prefs      []PreferenceRecord
	identities []IdentityRecord
	updates    []UpdateIdentityParams
	removed    []uuid.UUID
}

func (f *fakeWriter) created(base UserMemoryRecord) (*CreatedMemory, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bases = append(f.bases, base)
	return &CreatedMemory{UserMemoryID: uuid.New(), LayerID: uuid.New()}, nil
}

func (f *fakeWriter) CreateContextMemory(_ context.Context, _ string, base UserMemoryRecord, c ContextRecord) (*CreatedMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, c)
	return f.created(base)
}

func (f *fakeWriter) CreateExperienceMemory(_ context.Context, _ string, base UserMemoryRecord, e ExperienceRecord) (*CreatedMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.experience = append(f.experience, e)
	return f.created(base)
}

func (f *fakeWriter) CreatePreferenceMemory(_ context.Context, _ string, base UserMemoryRecord, p PreferenceRecord) (*CreatedMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prefs = append(f.prefs, p)
	return f.created(base)
}

func (f *fakeWriter) AddIdentityEntry(_ context.Context, _ string, base UserMemoryRecord, i IdentityRecord) (*CreatedMemory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identities = append(f.identities, i)
	return f.created(base)
}

func (f *fakeWriter) UpdateIdentityEntry(_ context.Context, _ string, p UpdateIdentityParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.updates = append(f.updates, p)
	return !f.missing, nil
}

func (f *fakeWriter) RemoveIdentityEntry(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.removed = append(f.removed, id)
	return !f.missing, nil
}

type fakeSearcher struct {
	contexts    []ContextDTO
	experiences []ExperienceDTO
	preferences []PreferenceDTO
	identities  []IdentityDTO
	err         error
	failLayer   string
	limits      SearchLimits
	mu          sync.Mutex
}

func (f *fakeSearcher) SearchContexts(_ context.Context, _ string, _ []float32, limit int) ([]ContextDTO, error) {
	f.mu.Lock()
	f.limits.Contexts = limit
	f.mu.Unlock()
	if f.failLayer == "contexts" {
		return nil, errors.New("contexts down")
	}
	return truncate(f.contexts, limit), nil
}

func (f *fakeSearcher) SearchExperiences(_ context.Context, _ string, _ []float32, limit int) ([]ExperienceDTO, error) {
	f.mu.Lock()
	f.limits.Experiences = limit
	f.mu.Unlock()
	if f.failLayer == "experiences" {
		return nil, errors.New("experiences down")
	}
	return truncate(f.experiences, limit), nil
}

func (f *fakeSearcher) SearchPreferences(_ context.Context, _ string, _ []float32, limit int) ([]PreferenceDTO, error) {
	f.mu.Lock()
	f.limits.Preferences = limit
	f.mu.Unlock()
	if f.failLayer == "preferences" {
		return nil, errors.New("preferences down")
	}
	return truncate(f.preferences, limit), nil
}

func (f *fakeSearcher) ListIdentities(_ context.Context, _ string) ([]IdentityDTO, error) {
	return f.identities, f.err
}

func truncate[T any](rows []T, limit int) []T {
	if limit <= 0 {
		return []T{}
	}
	if len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

type vectorWrite struct {
	table   ReembedTable
	id      uuid.UUID
	vectors [][]float32
}

type fakeVectorStore struct {
	mu       sync.Mutex
	rows     map[ReembedTable][]EmbeddableRow
	listErr  error
	writeErr map[uuid.UUID]error
	filters  []ReembedFilter
	writes   []vectorWrite
}

func (f *fakeVectorStore) ListEmbeddable(_ context.Context, _ string, table ReembedTable, filter ReembedFilter) ([]EmbeddableRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
	if f.listErr != nil {
		return nil, f.listErr
	}
	rows := f.rows[table]
	if filter.Limit > 0 && len(rows) > filter.Limit {
		rows = rows[:filter.Limit]
	}
	return rows, nil
}

func (f *fakeVectorStore) UpdateVectors(_ context.Context, _ string, table ReembedTable, id uuid.UUID, vectors [][]float32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.writeErr[id]; err != nil {
		return err
	}
	f.writes = append(f.writes, vectorWrite{table: table, id: id, vectors: vectors})
	return nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (f *fakeRecorder) RecordReembedRow(table, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.outcomes == nil {
		f.outcomes = map[string]int{}
	}
	f.outcomes[table+"/"+outcome]++
}

func ptr[T any](v T) *T {
	return &v
}
