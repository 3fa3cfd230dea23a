package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

const dbTimeout = 5 * time.Second

// PostgresStore reads and writes the node_progress table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed progress store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

// Append inserts a record. Re-inserting an existing id is a no-op, which keeps
// guest merges idempotent.
func (s *PostgresStore) Append(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO node_progress
		   (id, user_id, topic, topic_key, node_label, node_key, kind, quiz_score, question_count, feedback_text, created_at)
		 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID,
		rec.UserID,
		roadmap.DisplayTopic(rec.Topic),
		roadmap.Key(rec.Topic),
		rec.NodeLabel,
		roadmap.Key(rec.NodeLabel),
		rec.Kind,
		rec.QuizScore,
		rec.QuestionCount,
		nullIfEmpty(rec.FeedbackText),
		rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert progress: %w", err)
	}
	return nil
}

// List returns a user's attempts for a topic, oldest first. An empty topic
// lists every attempt of the user.
func (s *PostgresStore) List(ctx context.Context, userID, topic string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, user_id, topic, node_label, kind, quiz_score, question_count, feedback_text, created_at
		 FROM node_progress
		 WHERE user_id = $1
		   AND ($2 = '' OR topic_key = $2)
		 ORDER BY created_at ASC`,
		userID,
		roadmap.Key(topic),
	)
	if err != nil {
		return nil, fmt.Errorf("query progress: %w", err)
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var rec Record
		var feedback *string
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.Topic,
			&rec.NodeLabel,
			&rec.Kind,
			&rec.QuizScore,
			&rec.QuestionCount,
			&feedback,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		if feedback != nil {
			rec.FeedbackText = *feedback
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate progress: %w", err)
	}
	return out, nil
}

func nullIfEmpty(v string) any {
	if v == "" {
		return nil
	}
	return v
}
