package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/khanhnd/jobengine/internal/ledger"
	"github.com/khanhnd/jobengine/internal/outbox"
)

// Storage composes the ledger and outbox stores behind the single
// transaction boundary the engine requires: a terminal job-status write and
// the outbox rows it produces commit together or not at all.
type Storage struct {
	db     *sqlx.DB
	ledger *ledger.Store
	outbox *outbox.Store
	logger *slog.Logger
}

// NewStorage creates the composed engine store
func NewStorage(db *sqlx.DB, ledgerStore *ledger.Store, outboxStore *outbox.Store, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		ledger: ledgerStore,
		outbox: outboxStore,
		logger: logger,
	}
}

// Claim attempts to acquire a job for processing
func (s *Storage) Claim(ctx context.Context, jobID string) (ledger.ClaimResult, error) {
	return s.ledger.Claim(ctx, jobID)
}

// MarkProcessing transitions the claimed job to PROCESSING
func (s *Storage) MarkProcessing(ctx context.Context, jobID string) error {
	return s.ledger.MarkProcessing(ctx, jobID)
}

// MarkRetryScheduled reopens the job for its next attempt
func (s *Storage) MarkRetryScheduled(ctx context.Context, jobID, reason string) error {
	return s.ledger.MarkRetryScheduled(ctx, jobID, reason)
}

// CompleteJob marks the job COMPLETED and persists its domain events in one
// transaction
func (s *Storage) CompleteJob(ctx context.Context, jobID string, events []outbox.Event) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.ledger.MarkCompleted(ctx, tx, jobID); err != nil {
		return err
	}

	if len(events) > 0 {
		if err := s.outbox.Insert(ctx, tx, events); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit completion for job %s: %w", jobID, err)
	}

	s.logger.Debug("Job completion committed",
		slog.String("job_id", jobID),
		slog.Int("events", len(events)),
	)
	return nil
}

// FailJob marks the job FAILED terminally
func (s *Storage) FailJob(ctx context.Context, jobID, reason string) error {
	return s.ledger.MarkFailed(ctx, s.db, jobID, reason)
}
