package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/khanhnd/jobengine/internal/ledger"
	"github.com/khanhnd/jobengine/shared/postgresql"
)

// ErrNotRequeueable is returned when a requeue targets a job that is not
// terminally FAILED
var ErrNotRequeueable = errors.New("job is not in FAILED status")

// Storage handles read and administrative queries against the
// engine-owned tables
type Storage struct {
	db *sqlx.DB
}

// NewStorage creates the api storage
func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// GetLedgerEntry retrieves one ledger row
func (s *Storage) GetLedgerEntry(ctx context.Context, jobID string) (*ledger.Entry, error) {
	query := `
		SELECT job_id, status, COALESCE(last_error, '') AS last_error,
		       claimed_at, completed_at, updated_at
		FROM job_ledger
		WHERE job_id = $1
	`

	var entry ledger.Entry
	err := s.db.GetContext(ctx, &entry, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound
		}
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return &entry, nil
}

// LedgerFilter restricts a ledger listing
type LedgerFilter struct {
	Status   string
	PageSize int
	Cursor   *LedgerCursor
}

// LedgerCursor is a keyset cursor over (claimed_at, job_id)
type LedgerCursor struct {
	ClaimedAt time.Time
	JobID     string
}

// ListLedgerEntries lists ledger rows newest first with keyset pagination
func (s *Storage) ListLedgerEntries(ctx context.Context, filter LedgerFilter) ([]ledger.Entry, error) {
	query := `
		SELECT job_id, status, COALESCE(last_error, '') AS last_error,
		       claimed_at, completed_at, updated_at
		FROM job_ledger
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (claimed_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.ClaimedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY claimed_at DESC, job_id DESC"

	// Fetch one extra to determine if there are more results
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var entries []ledger.Entry
	err := s.db.SelectContext(ctx, &entries, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}

	return entries, nil
}

// ReopenFailedJob resets a FAILED row to RETRY_SCHEDULED so an
// administrative resubmission can be claimed again
func (s *Storage) ReopenFailedJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE job_ledger
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, ledger.StatusRetryScheduled, jobID, ledger.StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to reopen job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrNotRequeueable
	}

	return nil
}

// AbortRequeue compensates a reopened row when the republish failed: the
// job must not sit RETRY_SCHEDULED with no message in flight, so it goes
// back to FAILED. The original last_error is untouched.
func (s *Storage) AbortRequeue(ctx context.Context, jobID string) error {
	query := `
		UPDATE job_ledger
		SET status = $1, updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	_, err := s.db.ExecContext(ctx, query, ledger.StatusFailed, jobID, ledger.StatusRetryScheduled)
	if err != nil {
		return fmt.Errorf("failed to abort requeue: %w", err)
	}

	return nil
}
