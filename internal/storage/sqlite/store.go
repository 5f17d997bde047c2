package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"coinpayments-webhooks/internal/common/errors"
	"coinpayments-webhooks/internal/storage"
)

type Config struct {
	DatabasePath string
}

func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return errors.ConfigError("database path is required")
	}
	return nil
}

// Store keeps received_at as unix nanoseconds so range scans compare
// integers rather than driver-formatted text.
type Store struct {
	db *sql.DB
}

func New(config Config) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid SQLite config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps :memory: databases
	// shared across calls.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
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
			received_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_received_at ON notifications(received_at)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_event_id ON notifications(event_id)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration query: %w", err)
		}
	}
	return nil
}

func (s *Store) Record(ctx context.Context, n *storage.Notification) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, event_id, event_type, event_kind, client_id, outcome, reason, body_sha256, received_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.EventID, n.EventType, n.EventKind, n.ClientID, string(n.Outcome), n.Reason, n.BodySHA256, n.ReceivedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to record notification: %w", err)
	}
	return nil
}

func (s *Store) Recent(ctx context.Context, limit int) ([]*storage.Notification, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_id, event_type, event_kind, client_id, outcome, reason, body_sha256, received_at
		 FROM notifications ORDER BY received_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var out []*storage.Notification
	for rows.Next() {
		var n storage.Notification
		var outcome string
		var receivedAt int64
		if err := rows.Scan(&n.ID, &n.EventID, &n.EventType, &n.EventKind, &n.ClientID, &outcome, &n.Reason, &n.BodySHA256, &receivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Outcome = storage.Outcome(outcome)
		n.ReceivedAt = time.Unix(0, receivedAt).UTC()
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (s *Store) CountByOutcome(ctx context.Context, since time.Time) (map[storage.Outcome]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM notifications WHERE received_at >= ? GROUP BY outcome`, since.UnixNano())
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
	res, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE received_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
