package outbox

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Store handles all database operations on the outbox table
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new outbox Store
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Insert persists events as PENDING rows. It accepts any sqlx executor so
// the caller can bind it into the same transaction as the ledger write.
func (s *Store) Insert(ctx context.Context, ext sqlx.ExtContext, events []Event) error {
	query := `
		INSERT INTO outbox_events (id, aggregate_id, event_type, payload, status, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, NOW())
	`

	for _, event := range events {
		_, err := ext.ExecContext(ctx, query,
			uuid.New().String(),
			event.AggregateID,
			event.EventType,
			[]byte(event.Payload),
			StatusPending,
		)
		if err != nil {
			return fmt.Errorf("failed to insert outbox event: %w", err)
		}
	}

	return nil
}

// ListPending returns the oldest PENDING rows, bounded by limit. seq breaks
// created_at ties so events persisted in one transaction keep their
// insertion order.
func (s *Store) ListPending(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, seq, aggregate_id, event_type, payload, status, attempts,
		       COALESCE(last_error, '') AS last_error, created_at, relayed_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY created_at ASC, seq ASC
		LIMIT $2
	`

	var entries []Entry
	err := s.db.SelectContext(ctx, &entries, query, StatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending outbox events: %w", err)
	}

	return entries, nil
}

// MarkRelayed records a successful publish
func (s *Store) MarkRelayed(ctx context.Context, id string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, relayed_at = NOW()
		WHERE id = $2 AND status = $3
	`

	_, err := s.db.ExecContext(ctx, query, StatusRelayed, id, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark outbox event relayed: %w", err)
	}

	return nil
}

// RecordPublishFailure increments attempts and, once the row exceeds
// maxAttempts, parks it as FAILED so it surfaces via the admin API instead
// of being retried forever.
func (s *Store) RecordPublishFailure(ctx context.Context, id, reason string, maxAttempts int) (failed bool, err error) {
	query := `
		UPDATE outbox_events
		SET attempts = attempts + 1,
		    last_error = $1,
		    status = CASE WHEN attempts + 1 >= $2 THEN $3 ELSE status END
		WHERE id = $4 AND status = $5
		RETURNING status
	`

	var status string
	err = s.db.QueryRowContext(ctx, query, reason, maxAttempts, StatusFailed, id, StatusPending).Scan(&status)
	if err != nil {
		return false, fmt.Errorf("failed to record outbox publish failure: %w", err)
	}

	return status == StatusFailed, nil
}

// ListFailed returns rows that exhausted their relay attempts
func (s *Store) ListFailed(ctx context.Context, limit int) ([]Entry, error) {
	query := `
		SELECT id, seq, aggregate_id, event_type, payload, status, attempts,
		       COALESCE(last_error, '') AS last_error, created_at, relayed_at
		FROM outbox_events
		WHERE status = $1
		ORDER BY created_at ASC, seq ASC
		LIMIT $2
	`

	var entries []Entry
	err := s.db.SelectContext(ctx, &entries, query, StatusFailed, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed outbox events: %w", err)
	}

	return entries, nil
}

// ResetFailed puts a FAILED row back to PENDING with a fresh attempt budget
func (s *Store) ResetFailed(ctx context.Context, id string) error {
	query := `
		UPDATE outbox_events
		SET status = $1, attempts = 0, last_error = NULL
		WHERE id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, StatusPending, id, StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to reset outbox event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("outbox event %s is not in FAILED status", id)
	}

	s.logger.Info("Outbox event reset to pending",
		slog.String("outbox_id", id),
	)
	return nil
}
