package topics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("topic not found")

// Repository reads chat topics and records extraction state on them.
type Repository interface {
	GetTopic(ctx context.Context, userID, topicID string) (*Topic, error)
	ListMessages(ctx context.Context, userID, topicID string) ([]Message, error)
	ListTopicIDs(ctx context.Context, userID string, from, to *time.Time) ([]string, error)
	SaveExtractionState(ctx context.Context, userID, topicID string, state ExtractionState) error
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) GetTopic(ctx context.Context, userID, topicID string) (*Topic, error) {
	var t Topic
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, title, metadata, created_at, updated_at
		 FROM topics WHERE id = $1 AND user_id = $2`,
		topicID, userID,
	).Scan(&t.ID, &t.UserID, &t.Title, &t.Metadata, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting topic: %w", err)
	}
	return &t, nil
}

// ListMessages returns the topic's messages oldest first.
func (r *PostgresRepository) ListMessages(ctx context.Context, userID, topicID string) ([]Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, topic_id, user_id, role, content, created_at
		 FROM messages
		 WHERE topic_id = $1 AND user_id = $2
		 ORDER BY created_at ASC, id ASC`,
		topicID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.TopicID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ListTopicIDs returns the user's topic ids created within [from, to], oldest first.
func (r *PostgresRepository) ListTopicIDs(ctx context.Context, userID string, from, to *time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM topics
		 WHERE user_id = $1
		   AND ($2::timestamptz IS NULL OR created_at >= $2)
		   AND ($3::timestamptz IS NULL OR created_at <= $3)
		 ORDER BY created_at ASC`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("listing topics: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning topic id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SaveExtractionState writes state under metadata.memoryExtraction.sources.chat_topic,
// keeping every other metadata key.
func (r *PostgresRepository) SaveExtractionState(ctx context.Context, userID, topicID string, state ExtractionState) error {
	b, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshaling extraction state: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE topics SET
		   metadata = metadata || jsonb_build_object('memoryExtraction',
		     COALESCE(metadata->'memoryExtraction', '{}'::jsonb) || jsonb_build_object('sources',
		       COALESCE(metadata->'memoryExtraction'->'sources', '{}'::jsonb) || jsonb_build_object('chat_topic', $1::jsonb))),
		   updated_at = NOW()
		 WHERE id = $2 AND user_id = $3`,
		b, topicID, userID,
	)
	if err != nil {
		return fmt.Errorf("saving extraction state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
