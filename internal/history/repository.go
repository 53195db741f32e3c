package history

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles extraction_runs PostgreSQL operations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new history Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert persists a single run.
func (r *Repository) Insert(ctx context.Context, run *Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	layers := run.Layers
	if layers == nil {
		layers = map[string]int{}
	}
	layersJSON, err := json.Marshal(layers)
	if err != nil {
		return fmt.Errorf("encoding layers: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO extraction_runs (id, user_id, source, source_id, status, layers, error, trace_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9)`,
		run.ID, run.UserID, run.Source, run.SourceID, run.Status, layersJSON, run.Error, run.TraceID, run.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting extraction run: %w", err)
	}
	return nil
}

// ListByUser returns paginated runs for a user with optional filters, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID string, params ListParams) ([]Run, int64, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 || params.PageSize > 100 {
		params.PageSize = 20
	}

	var conditions []string
	var args []any
	argIdx := 1

	add := func(cond string, v any) {
		conditions = append(conditions, fmt.Sprintf(cond, argIdx))
		args = append(args, v)
		argIdx++
	}

	add("user_id = $%d", userID)
	if params.Status != "" {
		add("status = $%d", params.Status)
	}
	if params.Source != "" {
		add("source = $%d", params.Source)
	}
	if params.SourceID != "" {
		add("source_id = $%d", params.SourceID)
	}
	if params.From != nil {
		add("created_at >= $%d", *params.From)
	}
	if params.To != nil {
		add("created_at <= $%d", *params.To)
	}

	where := strings.Join(conditions, " AND ")

	var totalCount int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM extraction_runs WHERE "+where, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("counting extraction runs: %w", err)
	}

	offset := (params.Page - 1) * params.PageSize
	dataQuery := fmt.Sprintf(
		`SELECT id, user_id, source, source_id, status, layers, COALESCE(error, ''), COALESCE(trace_id, ''), created_at
		 FROM extraction_runs WHERE %s
		 ORDER BY created_at DESC
		 LIMIT $%d OFFSET $%d`, where, argIdx, argIdx+1)
	args = append(args, params.PageSize, offset)

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("querying extraction runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		var layers []byte
		if err := rows.Scan(&run.ID, &run.UserID, &run.Source, &run.SourceID, &run.Status,
			&layers, &run.Error, &run.TraceID, &run.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning extraction run: %w", err)
		}
		if err := json.Unmarshal(layers, &run.Layers); err != nil {
			return nil, 0, fmt.Errorf("decoding layers of run %s: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating extraction runs: %w", err)
	}

	return runs, totalCount, nil
}
