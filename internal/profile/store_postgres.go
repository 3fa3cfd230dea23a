package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/studymatehub/studymate-bot/internal/guest"
	"github.com/studymatehub/studymate-bot/internal/roadmap"
)

const dbTimeout = 5 * time.Second

// PostgresStore reads the user_roadmaps and saved_resources tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Roadmaps(ctx context.Context, userID string) ([]SavedRoadmap, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT topic, mode, graph_data, created_at
		 FROM user_roadmaps
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query saved roadmaps: %w", err)
	}
	defer rows.Close()

	var out []SavedRoadmap
	for rows.Next() {
		var (
			rm    SavedRoadmap
			mode  string
			graph []byte
		)
		if err := rows.Scan(&rm.Topic, &mode, &graph, &rm.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan saved roadmap: %w", err)
		}
		rm.Mode = roadmap.ParseMode(mode)
		nodes, err := decodeGraph(graph)
		if err != nil {
			return nil, fmt.Errorf("saved roadmap %q: %w", rm.Topic, err)
		}
		rm.Nodes = nodes
		out = append(out, rm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved roadmaps: %w", err)
	}
	return out, nil
}

// decodeGraph reads the stored graph_data column: {"nodes": [...]}.
func decodeGraph(data []byte) ([]roadmap.Node, error) {
	var graph struct {
		Nodes []roadmap.Node `json:"nodes"`
	}
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &graph); err != nil {
		return nil, fmt.Errorf("decode graph_data: %w", err)
	}
	return graph.Nodes, nil
}

func (s *PostgresStore) Resources(ctx context.Context, userID string) ([]guest.SavedResource, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT title, url, resource_type, roadmap_topic, node_label
		 FROM saved_resources
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("query saved resources: %w", err)
	}
	defer rows.Close()

	var out []guest.SavedResource
	for rows.Next() {
		var r guest.SavedResource
		if err := rows.Scan(&r.Title, &r.URL, &r.Type, &r.Topic, &r.NodeLabel); err != nil {
			return nil, fmt.Errorf("scan saved resource: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate saved resources: %w", err)
	}
	return out, nil
}
