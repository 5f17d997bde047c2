package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"coinpayments-webhooks/internal/common/errors"
	"coinpayments-webhooks/internal/storage"
)

type Config struct {
	// DSN is a libpq keyword/value string or a postgres:// URL.
	DSN      string
	MaxConns int32
}

func (c *Config) Validate() error {
	if c.DSN == "" {
		return errors.ConfigError("postgres DSN is required")
	}
	if c.MaxConns < 0 {
		return errors.ConfigError("max connections cannot be negative")
	}
	return nil
}

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, config Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL config: %w", err)
	}

	poolConfig, err := pgxpool.ParseConfig(config.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid PostgreSQL DSN: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL DEFAULT '',
			event_kind TEXT NOT NULL DEFAULT '',
			client_id TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			body_sha256 TEXT NOT NULL,
			received_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_received_at ON notifications(received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_event_id ON notifications(event_id)`,
	}

	for _, query := range queries {
		if _, err := s.pool.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}
	return nil
}

func (s *Store) Record(ctx context.Context, n *storage.Notification) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notifications (id, event_id, event_type, event_kind, client_id, outcome, reason, body_sha256, received_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.EventID, n.EventType, n.EventKind, n.ClientID, string(n.Outcome), n.Reason, n.BodySHA256, n.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]*storage.Notification, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_id, event_type, event_kind, client_id, outcome, reason, body_sha256, received_at
		 FROM notifications ORDER BY received_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []*storage.Notification
	for rows.Next() {
		var n storage.Notification
		var outcome string
		if err := rows.Scan(&n.ID, &n.EventID, &n.EventType, &n.EventKind, &n.ClientID, &outcome, &n.Reason, &n.BodySHA256, &n.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Outcome = storage.Outcome(outcome)
		n.ReceivedAt = n.ReceivedAt.UTC()
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *Store) CountByOutcome(ctx context.Context, since time.Time) (map[storage.Outcome]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT outcome, COUNT(*) FROM notifications WHERE received_at >= $1 GROUP BY outcome`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count notifications: %w", err)
	}
	defer rows.Close()

	counts := storage.EmptyCounts()
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[storage.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

func (s *Store) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE received_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

var _ storage.Store = (*Store)(nil)
