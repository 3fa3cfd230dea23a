// Package database manages the PostgreSQL pool that backs account data
// (saved roadmaps, saved resources, node progress, chat account links).
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Options configures the pool.
type Options struct {
	URL      string
	MaxConns int
	MinConns int
}

// DB wraps a pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// ParseURL validates a PostgreSQL connection URL.
func ParseURL(url string) (*pgxpool.Config, error) {
	if url == "" {
		return nil, fmt.Errorf("database URL is empty")
	}
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("invalid database URL: %w", err)
	}
	return cfg, nil
}

// New creates a connection pool and verifies it with a ping.
func New(ctx context.Context, opts Options) (*DB, error) {
	cfg, err := ParseURL(opts.URL)
	if err != nil {
		return nil, err
	}

	if opts.MaxConns > 0 {
		cfg.MaxConns = int32(opts.MaxConns)
	}
	if opts.MinConns > 0 {
		cfg.MinConns = int32(opts.MinConns)
	}
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	slog.Info("database connected", "max_conns", cfg.MaxConns)
	return &DB{Pool: pool}, nil
}

// Close shuts down the connection pool.
func (db *DB) Close() {
	db.Pool.Close()
}

// HealthCheck verifies the database connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// schema mirrors the account tables of the managed backend. Every statement
// is idempotent so Migrate can run on each start.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS user_roadmaps (
		id          BIGSERIAL PRIMARY KEY,
		user_id     TEXT NOT NULL,
		topic       TEXT NOT NULL,
		topic_key   TEXT NOT NULL,
		mode        TEXT NOT NULL DEFAULT 'standard',
		graph_data  JSONB NOT NULL,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, topic_key)
	)`,
	`CREATE TABLE IF NOT EXISTS saved_resources (
		id             BIGSERIAL PRIMARY KEY,
		user_id        TEXT NOT NULL,
		roadmap_topic  TEXT NOT NULL,
		node_label     TEXT NOT NULL,
		resource_type  TEXT NOT NULL,
		title          TEXT NOT NULL,
		url            TEXT NOT NULL,
		thumbnail      TEXT NOT NULL DEFAULT '',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (user_id, url)
	)`,
	`CREATE TABLE IF NOT EXISTS node_progress (
		id              UUID PRIMARY KEY,
		user_id         TEXT NOT NULL,
		topic           TEXT NOT NULL,
		topic_key       TEXT NOT NULL,
		node_label      TEXT NOT NULL,
		node_key        TEXT NOT NULL,
		kind            TEXT NOT NULL DEFAULT 'full',
		quiz_score      INT NOT NULL CHECK (quiz_score >= 0),
		question_count  INT NOT NULL DEFAULT 0,
		feedback_text   TEXT,
		sentiment_score REAL,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_node_progress_user_topic ON node_progress(user_id, topic_key, created_at)`,
	`CREATE TABLE IF NOT EXISTS chat_accounts (
		channel      TEXT NOT NULL,
		external_id  TEXT NOT NULL,
		account_id   TEXT NOT NULL,
		linked_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (channel, external_id)
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id          BIGSERIAL PRIMARY KEY,
		user_id     TEXT NOT NULL,
		channel     TEXT NOT NULL DEFAULT '',
		is_guest    BOOLEAN NOT NULL DEFAULT FALSE,
		event_type  TEXT NOT NULL,
		data        JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_events_user ON events(user_id, created_at)`,
}

// Migrate creates the tables this service reads and writes.
func (db *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i, err)
		}
	}
	slog.Info("database schema up to date", "statements", len(schema))
	return nil
}
