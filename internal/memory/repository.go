package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// ErrNotFound is returned when a referenced memory row does not exist for the user.
var ErrNotFound = errors.New("memory not found")

// Writer persists layered memories. Every create writes the base row and the
// layer row in one transaction.
type Writer interface {
	CreateContextMemory(ctx context.Context, userID string, base UserMemoryRecord, c ContextRecord) (*CreatedMemory, error)
	CreateExperienceMemory(ctx context.Context, userID string, base UserMemoryRecord, e ExperienceRecord) (*CreatedMemory, error)
	CreatePreferenceMemory(ctx context.Context, userID string, base UserMemoryRecord, p PreferenceRecord) (*CreatedMemory, error)
	AddIdentityEntry(ctx context.Context, userID string, base UserMemoryRecord, i IdentityRecord) (*CreatedMemory, error)
	UpdateIdentityEntry(ctx context.Context, userID string, p UpdateIdentityParams) (bool, error)
	RemoveIdentityEntry(ctx context.Context, userID string, identityID uuid.UUID) (bool, error)
}

// Searcher runs vector similarity queries and identity listings.
type Searcher interface {
	SearchContexts(ctx context.Context, userID string, embedding []float32, limit int) ([]ContextDTO, error)
	SearchExperiences(ctx context.Context, userID string, embedding []float32, limit int) ([]ExperienceDTO, error)
	SearchPreferences(ctx context.Context, userID string, embedding []float32, limit int) ([]PreferenceDTO, error)
	ListIdentities(ctx context.Context, userID string) ([]IdentityDTO, error)
}

// VectorStore reads embeddable text and rewrites vector columns.
type VectorStore interface {
	ListEmbeddable(ctx context.Context, userID string, table ReembedTable, f ReembedFilter) ([]EmbeddableRow, error)
	UpdateVectors(ctx context.Context, userID string, table ReembedTable, id uuid.UUID, vectors [][]float32) error
}

// Repository is the full persistence surface of the memory package.
type Repository interface {
	Writer
	Searcher
	VectorStore
}

// PostgresRepository implements Repository using pgx + pgvector.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository creates a new memory repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) insertUserMemory(ctx context.Context, tx pgx.Tx, userID string, m UserMemoryRecord) (uuid.UUID, error) {
	id := uuid.New()
	metadata, err := jsonObject(m.Metadata)
	if err != nil {
		return uuid.Nil, err
	}
	status := m.Status
	if status == "" {
		status = StatusActive
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO user_memories
		   (id, user_id, title, summary, details, memory_category, memory_type, memory_layer,
		    tags, metadata, status, captured_at, summary_vector_1024, details_vector_1024)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()), $13, $14)`,
		id, userID, m.Title, m.Summary, m.Details, m.MemoryCategory, m.MemoryType, string(m.MemoryLayer),
		tagsArg(m.Tags), metadata, status, m.CapturedAt, vectorArg(m.SummaryVector), vectorArg(m.DetailsVector),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("inserting user memory: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) CreateContextMemory(ctx context.Context, userID string, base UserMemoryRecord, c ContextRecord) (*CreatedMemory, error) {
	created := &CreatedMemory{LayerID: uuid.New()}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		memID, err := r.insertUserMemory(ctx, tx, userID, base)
		if err != nil {
			return err
		}
		created.UserMemoryID = memID

		metadata, err := jsonObject(c.Metadata)
		if err != nil {
			return err
		}
		subjects, err := jsonArray(c.AssociatedSubjects)
		if err != nil {
			return err
		}
		objects, err := jsonArray(c.AssociatedObjects)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO user_memories_contexts
			   (id, user_id, user_memory_id, title, description, description_vector, type, current_status,
			    score_impact, score_urgency, associated_subjects, associated_objects, tags, metadata, captured_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, COALESCE($15, NOW()))`,
			created.LayerID, userID, memID, c.Title, c.Description, vectorArg(c.DescriptionVector), c.Type, c.CurrentStatus,
			c.ScoreImpact, c.ScoreUrgency, subjects, objects, tagsArg(c.Tags), metadata, c.CapturedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting context memory: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PostgresRepository) CreateExperienceMemory(ctx context.Context, userID string, base UserMemoryRecord, e ExperienceRecord) (*CreatedMemory, error) {
	created := &CreatedMemory{LayerID: uuid.New()}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		memID, err := r.insertUserMemory(ctx, tx, userID, base)
		if err != nil {
			return err
		}
		created.UserMemoryID = memID

		metadata, err := jsonObject(e.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO user_memories_experiences
			   (id, user_id, user_memory_id, type, situation, situation_vector, reasoning, possible_outcome,
			    action, action_vector, key_learning, key_learning_vector, score_confidence, tags, metadata, captured_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, COALESCE($16, NOW()))`,
			created.LayerID, userID, memID, e.Type, e.Situation, vectorArg(e.SituationVector), e.Reasoning, e.PossibleOutcome,
			e.Action, vectorArg(e.ActionVector), e.KeyLearning, vectorArg(e.KeyLearningVector), e.ScoreConfidence,
			tagsArg(e.Tags), metadata, e.CapturedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting experience memory: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PostgresRepository) CreatePreferenceMemory(ctx context.Context, userID string, base UserMemoryRecord, p PreferenceRecord) (*CreatedMemory, error) {
	created := &CreatedMemory{LayerID: uuid.New()}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		memID, err := r.insertUserMemory(ctx, tx, userID, base)
		if err != nil {
			return err
		}
		created.UserMemoryID = memID

		metadata, err := jsonObject(p.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO user_memories_preferences
			   (id, user_id, user_memory_id, type, conclusion_directives, conclusion_directives_vector,
			    suggestions, score_priority, tags, metadata, captured_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))`,
			created.LayerID, userID, memID, p.Type, p.ConclusionDirectives, vectorArg(p.ConclusionDirectivesVector),
			p.Suggestions, p.ScorePriority, tagsArg(p.Tags), metadata, p.CapturedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting preference memory: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (r *PostgresRepository) AddIdentityEntry(ctx context.Context, userID string, base UserMemoryRecord, i IdentityRecord) (*CreatedMemory, error) {
	created := &CreatedMemory{LayerID: uuid.New()}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		memID, err := r.insertUserMemory(ctx, tx, userID, base)
		if err != nil {
			return err
		}
		created.UserMemoryID = memID

		metadata, err := jsonObject(i.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO user_memories_identities
			   (id, user_id, user_memory_id, type, role, relationship, description, description_vector,
			    episodic_date, tags, metadata, captured_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, COALESCE($12, NOW()))`,
			created.LayerID, userID, memID, i.Type, i.Role, i.Relationship, i.Description, vectorArg(i.DescriptionVector),
			i.EpisodicDate, tagsArg(i.Tags), metadata, i.CapturedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting identity memory: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// UpdateIdentityEntry applies p to an identity and its parent row. It reports
// false when the identity does not exist for the user.
func (r *PostgresRepository) UpdateIdentityEntry(ctx context.Context, userID string, p UpdateIdentityParams) (bool, error) {
	found := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var memID uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT user_memory_id FROM user_memories_identities WHERE id = $1 AND user_id = $2 FOR UPDATE`,
			p.IdentityID, userID,
		).Scan(&memID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("finding identity: %w", err)
		}
		found = true

		if p.Base != nil {
			set := baseAssignments(p.Base)
			if err := execUpdate(ctx, tx, "user_memories", set, memID, userID); err != nil {
				return fmt.Errorf("updating user memory: %w", err)
			}
		}

		if p.Identity != nil {
			var set *assignments
			if p.MergeStrategy == MergeStrategyReplace {
				set, err = identityReplaceAssignments(p.Identity)
			} else {
				set, err = identityMergeAssignments(p.Identity)
			}
			if err != nil {
				return err
			}
			if err := execUpdate(ctx, tx, "user_memories_identities", set, p.IdentityID, userID); err != nil {
				return fmt.Errorf("updating identity: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// RemoveIdentityEntry deletes the parent user_memories row; the identity row cascades.
func (r *PostgresRepository) RemoveIdentityEntry(ctx context.Context, userID string, identityID uuid.UUID) (bool, error) {
	found := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var memID uuid.UUID
		err := tx.QueryRow(ctx,
			`SELECT user_memory_id FROM user_memories_identities WHERE id = $1 AND user_id = $2`,
			identityID, userID,
		).Scan(&memID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("finding identity: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM user_memories WHERE id = $1 AND user_id = $2`, memID, userID)
		if err != nil {
			return fmt.Errorf("deleting user memory: %w", err)
		}
		found = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

func (r *PostgresRepository) SearchContexts(ctx context.Context, userID string, embedding []float32, limit int) ([]ContextDTO, error) {
	if limit <= 0 {
		return []ContextDTO{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_memory_id, title, description, type, current_status, score_impact, score_urgency,
		        associated_subjects, associated_objects, tags, created_at,
		        1 - (description_vector <=> $1) AS similarity
		 FROM user_memories_contexts
		 WHERE user_id = $2 AND description_vector IS NOT NULL
		 ORDER BY description_vector <=> $1
		 LIMIT $3`,
		pgvector.NewVector(embedding), userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching contexts: %w", err)
	}
	defer rows.Close()

	results := []ContextDTO{}
	for rows.Next() {
		var c ContextDTO
		if err := rows.Scan(&c.ID, &c.UserMemoryID, &c.Title, &c.Description, &c.Type, &c.CurrentStatus,
			&c.ScoreImpact, &c.ScoreUrgency, &c.AssociatedSubjects, &c.AssociatedObjects, &c.Tags, &c.CreatedAt,
			&c.Similarity); err != nil {
			return nil, fmt.Errorf("scanning context: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func (r *PostgresRepository) SearchExperiences(ctx context.Context, userID string, embedding []float32, limit int) ([]ExperienceDTO, error) {
	if limit <= 0 {
		return []ExperienceDTO{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_memory_id, type, situation, reasoning, possible_outcome, action, key_learning,
		        score_confidence, tags, created_at,
		        1 - (situation_vector <=> $1) AS similarity
		 FROM user_memories_experiences
		 WHERE user_id = $2 AND situation_vector IS NOT NULL
		 ORDER BY situation_vector <=> $1
		 LIMIT $3`,
		pgvector.NewVector(embedding), userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching experiences: %w", err)
	}
	defer rows.Close()

	results := []ExperienceDTO{}
	for rows.Next() {
		var e ExperienceDTO
		if err := rows.Scan(&e.ID, &e.UserMemoryID, &e.Type, &e.Situation, &e.Reasoning, &e.PossibleOutcome,
			&e.Action, &e.KeyLearning, &e.ScoreConfidence, &e.Tags, &e.CreatedAt, &e.Similarity); err != nil {
			return nil, fmt.Errorf("scanning experience: %w", err)
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

func (r *PostgresRepository) SearchPreferences(ctx context.Context, userID string, embedding []float32, limit int) ([]PreferenceDTO, error) {
	if limit <= 0 {
		return []PreferenceDTO{}, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_memory_id, type, conclusion_directives, suggestions, score_priority, tags, created_at,
		        1 - (conclusion_directives_vector <=> $1) AS similarity
		 FROM user_memories_preferences
		 WHERE user_id = $2 AND conclusion_directives_vector IS NOT NULL
		 ORDER BY conclusion_directives_vector <=> $1
		 LIMIT $3`,
		pgvector.NewVector(embedding), userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("searching preferences: %w", err)
	}
	defer rows.Close()

	results := []PreferenceDTO{}
	for rows.Next() {
		var p PreferenceDTO
		if err := rows.Scan(&p.ID, &p.UserMemoryID, &p.Type, &p.ConclusionDirectives, &p.Suggestions,
			&p.ScorePriority, &p.Tags, &p.CreatedAt, &p.Similarity); err != nil {
			return nil, fmt.Errorf("scanning preference: %w", err)
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

func (r *PostgresRepository) ListIdentities(ctx context.Context, userID string) ([]IdentityDTO, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_memory_id, type, role, relationship, description, episodic_date, tags, created_at
		 FROM user_memories_identities
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing identities: %w", err)
	}
	defer rows.Close()

	results := []IdentityDTO{}
	for rows.Next() {
		var i IdentityDTO
		if err := rows.Scan(&i.ID, &i.UserMemoryID, &i.Type, &i.Role, &i.Relationship, &i.Description,
			&i.EpisodicDate, &i.Tags, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning identity: %w", err)
		}
		results = append(results, i)
	}
	return results, rows.Err()
}

// ListEmbeddable returns the text columns of table for the user, oldest first.
func (r *PostgresRepository) ListEmbeddable(ctx context.Context, userID string, table ReembedTable, f ReembedFilter) ([]EmbeddableRow, error) {
	spec, ok := table.spec()
	if !ok {
		return nil, fmt.Errorf("unknown re-embed table %q", table)
	}

	args := []any{userID}
	query := "SELECT id, " + strings.Join(spec.textColumns, ", ") + " FROM " + spec.name + " WHERE user_id = $1"
	if f.StartDate != nil {
		args = append(args, *f.StartDate)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.EndDate != nil {
		args = append(args, *f.EndDate)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}
	query += " ORDER BY created_at ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing %s rows: %w", spec.name, err)
	}
	defer rows.Close()

	var result []EmbeddableRow
	for rows.Next() {
		row := EmbeddableRow{Texts: make([]*string, len(spec.textColumns))}
		dest := make([]any, 0, len(spec.textColumns)+1)
		dest = append(dest, &row.ID)
		for i := range row.Texts {
			dest = append(dest, &row.Texts[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", spec.name, err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// UpdateVectors writes one vector per vector column of table; nil entries become NULL.
func (r *PostgresRepository) UpdateVectors(ctx context.Context, userID string, table ReembedTable, id uuid.UUID, vectors [][]float32) error {
	spec, ok := table.spec()
	if !ok {
		return fmt.Errorf("unknown re-embed table %q", table)
	}
	if len(vectors) != len(spec.vectorColumns) {
		return fmt.Errorf("%s: expected %d vectors, got %d", spec.name, len(spec.vectorColumns), len(vectors))
	}

	set := &assignments{}
	for i, col := range spec.vectorColumns {
		set.add(col, vectorArg(vectors[i]))
	}
	if err := execUpdate(ctx, r.pool, spec.name, set, id, userID); err != nil {
		return fmt.Errorf("updating %s vectors: %w", spec.name, err)
	}
	return nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// assignments accumulates "col = $n" pairs for a dynamic UPDATE.
type assignments struct {
	cols []string
	args []any
}

func (a *assignments) add(col string, v any) {
	a.args = append(a.args, v)
	a.cols = append(a.cols, fmt.Sprintf("%s = $%d", col, len(a.args)))
}

// addExpr appends an assignment whose format holds one %d for the placeholder index.
func (a *assignments) addExpr(format string, v any) {
	a.args = append(a.args, v)
	a.cols = append(a.cols, fmt.Sprintf(format, len(a.args)))
}

func (a *assignments) empty() bool { return len(a.cols) == 0 }

func execUpdate(ctx context.Context, db execer, table string, set *assignments, id uuid.UUID, userID string) error {
	if set.empty() {
		return nil
	}
	args := append(set.args, id, userID)
	query := fmt.Sprintf("UPDATE %s SET %s, updated_at = NOW() WHERE id = $%d AND user_id = $%d",
		table, strings.Join(set.cols, ", "), len(args)-1, len(args))
	_, err := db.Exec(ctx, query, args...)
	return err
}

func baseAssignments(b *BaseUpdate) *assignments {
	set := &assignments{}
	if b.Title != nil {
		set.add("title", *b.Title)
	}
	if b.Summary != nil {
		set.add("summary", *b.Summary)
		set.add("summary_vector_1024", vectorArg(b.SummaryVector))
	}
	if b.Details != nil {
		set.add("details", *b.Details)
		set.add("details_vector_1024", vectorArg(b.DetailsVector))
	}
	if b.MemoryCategory != nil {
		set.add("memory_category", *b.MemoryCategory)
	}
	if b.MemoryType != nil {
		set.add("memory_type", *b.MemoryType)
	}
	if b.Tags != nil {
		set.add("tags", b.Tags)
	}
	return set
}

func identityMergeAssignments(u *IdentityUpdate) (*assignments, error) {
	set := &assignments{}
	if u.Description != nil {
		set.add("description", *u.Description)
		set.add("description_vector", vectorArg(u.DescriptionVector))
	}
	if u.Type != nil {
		set.add("type", *u.Type)
	}
	if u.Role != nil {
		set.add("role", *u.Role)
	}
	if u.Relationship != nil {
		set.add("relationship", *u.Relationship)
	}
	if u.EpisodicDate != nil {
		set.add("episodic_date", *u.EpisodicDate)
	}
	if u.Tags != nil {
		set.add("tags", u.Tags)
	}
	if u.Metadata != nil {
		metadata, err := jsonObject(u.Metadata)
		if err != nil {
			return nil, err
		}
		set.addExpr("metadata = metadata || $%d::jsonb", metadata)
	}
	if u.CapturedAt != nil {
		set.add("captured_at", *u.CapturedAt)
	}
	return set, nil
}

// identityReplaceAssignments overwrites every identity column; unset fields become NULL.
func identityReplaceAssignments(u *IdentityUpdate) (*assignments, error) {
	metadata, err := jsonObject(u.Metadata)
	if err != nil {
		return nil, err
	}
	set := &assignments{}
	set.add("description", u.Description)
	if u.Description != nil {
		set.add("description_vector", vectorArg(u.DescriptionVector))
	} else {
		set.add("description_vector", nil)
	}
	set.add("type", u.Type)
	set.add("role", u.Role)
	set.add("relationship", u.Relationship)
	set.add("episodic_date", u.EpisodicDate)
	set.add("tags", tagsArg(u.Tags))
	set.add("metadata", metadata)
	if u.CapturedAt != nil {
		set.add("captured_at", *u.CapturedAt)
	}
	return set, nil
}

// vectorArg maps an absent vector to SQL NULL.
func vectorArg(v []float32) any {
	if len(v) == 0 {
		return nil
	}
	return pgvector.NewVector(v)
}

func tagsArg(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func jsonObject(m map[string]any) (json.RawMessage, error) {
	if len(m) == 0 {
		return json.RawMessage(`{}`), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return b, nil
}

func jsonArray(objs []AssociatedObject) (json.RawMessage, error) {
	if len(objs) == 0 {
		return json.RawMessage(`[]`), nil
	}
	b, err := json.Marshal(objs)
	if err != nil {
		return nil, fmt.Errorf("marshaling associated objects: %w", err)
	}
	return b, nil
}
