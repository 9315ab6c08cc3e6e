package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
)

// Store handles all database operations on the job ledger
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a new ledger Store
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Claim attempts to acquire a job for processing. Exactly one caller wins
// for a given job_id: the insert relies on the primary-key constraint, and
// the conflict branch only succeeds when a scheduled retry reopened the row.
func (s *Store) Claim(ctx context.Context, jobID string) (ClaimResult, error) {
	query := `
		INSERT INTO job_ledger (job_id, status, claimed_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (job_id) DO UPDATE
		SET status = $2,
		    claimed_at = NOW(),
		    updated_at = NOW()
		WHERE job_ledger.status = $3
		RETURNING job_id
	`

	var claimed string
	err := s.db.QueryRowContext(ctx, query, jobID, StatusClaimed, StatusRetryScheduled).Scan(&claimed)
	if err == nil {
		s.logger.Info("Job claimed",
			slog.String("job_id", jobID),
		)
		return ClaimAcquired, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return ClaimUnknown, fmt.Errorf("failed to claim job: %w", err)
	}

	// Somebody else holds the row; classify from its current status
	var status string
	err = s.db.GetContext(ctx, &status, `SELECT status FROM job_ledger WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Row vanished between the insert and the read; ledger rows are
			// never deleted so this should not happen
			return ClaimUnknown, fmt.Errorf("failed to classify claim for job %s: %w", jobID, ErrEntryNotFound)
		}
		return ClaimUnknown, fmt.Errorf("failed to read ledger status: %w", err)
	}

	if IsTerminal(status) {
		return ClaimAlreadyTerminal, nil
	}
	return ClaimAlreadyInProgress, nil
}

// MarkProcessing transitions CLAIMED -> PROCESSING. Any other starting
// status makes this a logged no-op.
func (s *Store) MarkProcessing(ctx context.Context, jobID string) error {
	query := `
		UPDATE job_ledger
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, StatusProcessing, jobID, StatusClaimed)
	if err != nil {
		return fmt.Errorf("failed to mark job processing: %w", err)
	}

	s.warnIfNoRows(result, jobID, StatusProcessing)
	return nil
}

// MarkRetryScheduled reopens a CLAIMED/PROCESSING row for the next attempt
// and records why the current one failed.
func (s *Store) MarkRetryScheduled(ctx context.Context, jobID, reason string) error {
	query := `
		UPDATE job_ledger
		SET status = $1, last_error = $2, updated_at = NOW()
		WHERE job_id = $3 AND status IN ($4, $5)
	`

	result, err := s.db.ExecContext(ctx, query, StatusRetryScheduled, reason, jobID, StatusClaimed, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark job retry-scheduled: %w", err)
	}

	s.warnIfNoRows(result, jobID, StatusRetryScheduled)
	return nil
}

// MarkCompleted transitions a non-terminal row to COMPLETED. It accepts any
// sqlx executor so the caller can bind it into the same transaction as the
// outbox insert.
func (s *Store) MarkCompleted(ctx context.Context, ext sqlx.ExtContext, jobID string) error {
	query := `
		UPDATE job_ledger
		SET status = $1, completed_at = NOW(), updated_at = NOW()
		WHERE job_id = $2 AND status IN ($3, $4)
	`

	result, err := ext.ExecContext(ctx, query, StatusCompleted, jobID, StatusClaimed, StatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}

	s.warnIfNoRows(result, jobID, StatusCompleted)
	return nil
}

// MarkFailed transitions a non-terminal row to FAILED with the final error
func (s *Store) MarkFailed(ctx context.Context, ext sqlx.ExtContext, jobID, reason string) error {
	query := `
		UPDATE job_ledger
		SET status = $1, last_error = $2, completed_at = NOW(), updated_at = NOW()
		WHERE job_id = $3 AND status IN ($4, $5, $6)
	`

	result, err := ext.ExecContext(ctx, query, StatusFailed, reason, jobID, StatusClaimed, StatusProcessing, StatusRetryScheduled)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	s.warnIfNoRows(result, jobID, StatusFailed)
	return nil
}

// GetEntry retrieves a ledger row by job_id
func (s *Store) GetEntry(ctx context.Context, jobID string) (*Entry, error) {
	query := `
		SELECT job_id, status, COALESCE(last_error, '') AS last_error,
		       claimed_at, completed_at, updated_at
		FROM job_ledger
		WHERE job_id = $1
	`

	var entry Entry
	err := s.db.GetContext(ctx, &entry, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return &entry, nil
}

// warnIfNoRows logs monotonicity no-ops: transitions against missing or
// already-terminal rows are ignored, never an error.
func (s *Store) warnIfNoRows(result sql.Result, jobID, target string) {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		s.logger.Warn("Failed to read rows affected for ledger transition",
			slog.String("job_id", jobID),
			slog.String("target_status", target),
			slog.Any("error", err),
		)
		return
	}

	if rowsAffected == 0 {
		s.logger.Warn("Ledger transition skipped - row missing or already terminal",
			slog.String("job_id", jobID),
			slog.String("target_status", target),
		)
	}
}
