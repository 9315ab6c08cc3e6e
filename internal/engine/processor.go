package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/khanhnd/jobengine/internal/engine/domain"
	"github.com/khanhnd/jobengine/internal/ledger"
)

// processJob runs one delivery through the job lifecycle: claim, handler,
// terminal-or-retry write. The returned action carries the core contract:
// ackDone is only ever returned after the deciding ledger write committed,
// so a crash before that point leaves the message for redelivery and the
// idempotent claim keeps it from double-processing.
func (e *Engine) processJob(ctx context.Context, msg domain.JobMessage) (ackAction, error) {
	logger := e.logger.With(
		slog.String("job_id", msg.JobID),
		slog.String("job_type", msg.Type),
		slog.Int("attempt", msg.Attempt),
	)

	claim, err := e.store.Claim(ctx, msg.JobID)
	if err != nil {
		return nackRequeue, domain.NewRetryableError(fmt.Errorf("claim failed: %w", err))
	}

	switch claim {
	case ledger.ClaimAlreadyTerminal:
		// Redelivery of a finished job; acknowledge without touching the
		// handler
		logger.Info("Duplicate delivery of terminal job discarded")
		return ackDone, nil

	case ledger.ClaimAlreadyInProgress:
		// Another worker holds the claim. Defer instead of discarding: if
		// that worker crashes without completing, redelivery recovers the
		// job.
		logger.Warn("Job claimed by another worker, deferring")
		return nackRequeue, nil
	}

	if err := e.store.MarkProcessing(ctx, msg.JobID); err != nil {
		return nackRequeue, domain.NewRetryableError(fmt.Errorf("mark processing failed: %w", err))
	}

	handler, err := e.registry.Resolve(msg.Type)
	if err != nil {
		// No handler can ever process this type; terminal failure
		logger.Error("No handler for job type")
		if failErr := e.store.FailJob(ctx, msg.JobID, err.Error()); failErr != nil {
			return nackRequeue, domain.NewRetryableError(fmt.Errorf("fail write failed: %w", failErr))
		}
		return ackDone, err
	}

	result := handler.Handle(ctx, msg.Payload, msg.Attempt)

	switch result.Outcome {
	case domain.OutcomeSuccess:
		if err := e.store.CompleteJob(ctx, msg.JobID, result.Events); err != nil {
			return nackRequeue, domain.NewRetryableError(fmt.Errorf("completion write failed: %w", err))
		}
		logger.Info("Job completed",
			slog.Int("events", len(result.Events)),
		)
		return ackDone, nil

	case domain.OutcomeRetryableFailure:
		if msg.Attempt < e.maxAttempts {
			return e.handleRetry(ctx, logger, msg, result.Reason)
		}

		reason := fmt.Sprintf("retries exhausted after %d attempts: %s", msg.Attempt, result.Reason)
		if err := e.store.FailJob(ctx, msg.JobID, reason); err != nil {
			return nackRequeue, domain.NewRetryableError(fmt.Errorf("fail write failed: %w", err))
		}
		logger.Warn("Job failed terminally - retries exhausted",
			slog.String("reason", result.Reason),
		)
		return ackDone, nil

	case domain.OutcomeFatalFailure:
		if err := e.store.FailJob(ctx, msg.JobID, result.Reason); err != nil {
			return nackRequeue, domain.NewRetryableError(fmt.Errorf("fail write failed: %w", err))
		}
		logger.Warn("Job failed terminally - fatal failure",
			slog.String("reason", result.Reason),
		)
		return ackDone, nil

	default:
		// Unknown outcome from a handler is a bug; keep the message so the
		// attempt can be replayed once the handler is fixed
		return nackRequeue, fmt.Errorf("handler returned unknown outcome %d", result.Outcome)
	}
}

// handleRetry reopens the ledger row, then publishes the next attempt to
// the delayed route. The order matters: if the publish fails the row is
// RETRY_SCHEDULED and the message stays unacked, so the redelivered
// original can re-claim and run the attempt again. Acking happens only
// after both writes succeeded.
func (e *Engine) handleRetry(ctx context.Context, logger *slog.Logger, msg domain.JobMessage, reason string) (ackAction, error) {
	if err := e.store.MarkRetryScheduled(ctx, msg.JobID, reason); err != nil {
		return nackRequeue, domain.NewRetryableError(fmt.Errorf("retry mark failed: %w", err))
	}

	if err := e.scheduler.ScheduleRetry(ctx, msg, reason); err != nil {
		return nackRequeue, domain.NewRetryableError(err)
	}

	logger.Info("Job handed off for retry",
		slog.String("reason", reason),
	)
	return ackDone, nil
}
