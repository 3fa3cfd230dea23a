package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresStore is a PostgreSQL-backed AccountStore using the chat_accounts table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a PostgreSQL-backed account store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Link(link AccountLink) error {
	if link.Channel == "" || link.ExternalID == "" || link.AccountID == "" {
		return fmt.Errorf("channel, external_id and account_id are required")
	}
	linkedAt := link.LinkedAt
	if linkedAt.IsZero() {
		linkedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO chat_accounts (channel, external_id, account_id, linked_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (channel, external_id)
		 DO UPDATE SET account_id = EXCLUDED.account_id, linked_at = EXCLUDED.linked_at`,
		link.Channel,
		link.ExternalID,
		link.AccountID,
		linkedAt,
	)
	if err != nil {
		return fmt.Errorf("link account: %w", err)
	}
	return nil
}

func (s *PostgresStore) Lookup(channel, externalID string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	var accountID string
	err := s.pool.QueryRow(ctx,
		`SELECT account_id
		 FROM chat_accounts
		 WHERE channel = $1 AND external_id = $2`,
		channel,
		externalID,
	).Scan(&accountID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			slog.Warn("account lookup failed", "channel", channel, "external_id", externalID, "error", err)
		}
		return "", false
	}
	return accountID, true
}

func (s *PostgresStore) Unlink(channel, externalID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), dbTimeout)
	defer cancel()

	cmd, err := s.pool.Exec(ctx,
		`DELETE FROM chat_accounts
		 WHERE channel = $1 AND external_id = $2`,
		channel,
		externalID,
	)
	if err != nil {
		return fmt.Errorf("unlink account: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return fmt.Errorf("account link not found: %s", linkKey(channel, externalID))
	}
	return nil
}
