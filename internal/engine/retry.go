package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/khanhnd/jobengine/internal/engine/domain"
)

// DelayedPublisher publishes a message to the delayed-delivery route; the
// broker holds it for delay and then routes it back to the primary queue.
type DelayedPublisher interface {
	PublishDelayed(ctx context.Context, body []byte, delay time.Duration) error
}

// RetryConfig holds backoff policy settings
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Backoff computes the deterministic delay before the given failed attempt
// is retried: base * 2^(attempt-1), capped at max. Jitter is applied
// separately at schedule time so this stays monotone.
func Backoff(cfg RetryConfig, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := cfg.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cfg.MaxDelay {
			return cfg.MaxDelay
		}
	}

	if delay > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return delay
}

// RetryScheduler re-injects failed jobs into the broker through the delayed
// route with exponential backoff.
type RetryScheduler struct {
	publisher DelayedPublisher
	config    RetryConfig
	logger    *slog.Logger
}

// NewRetryScheduler creates a new retry scheduler
func NewRetryScheduler(publisher DelayedPublisher, config RetryConfig, logger *slog.Logger) *RetryScheduler {
	return &RetryScheduler{
		publisher: publisher,
		config:    config,
		logger:    logger,
	}
}

// ScheduleRetry publishes a new job message with attempt incremented to the
// delayed route. A publish failure is surfaced to the caller: the original
// delivery must then stay unacked so broker redelivery can recover the
// attempt.
func (s *RetryScheduler) ScheduleRetry(ctx context.Context, msg domain.JobMessage, cause string) error {
	nextAttempt := msg.Attempt + 1
	if nextAttempt > s.config.MaxAttempts {
		return fmt.Errorf("%w: attempt %d of %d for job %s",
			domain.ErrMaxAttemptsExceeded, nextAttempt, s.config.MaxAttempts, msg.JobID)
	}

	delay := Backoff(s.config, msg.Attempt)
	delay += jitter(s.config.BaseDelay)

	retry := domain.JobMessage{
		JobID:      msg.JobID,
		Type:       msg.Type,
		Payload:    msg.Payload,
		Attempt:    nextAttempt,
		EnqueuedAt: msg.EnqueuedAt,
		LastError:  cause,
	}

	body, err := json.Marshal(retry)
	if err != nil {
		return fmt.Errorf("failed to marshal retry message: %w", err)
	}

	if err := s.publisher.PublishDelayed(ctx, body, delay); err != nil {
		return fmt.Errorf("failed to publish retry for job %s: %w", msg.JobID, err)
	}

	s.logger.Info("Retry scheduled",
		slog.String("job_id", msg.JobID),
		slog.String("job_type", msg.Type),
		slog.Int("next_attempt", nextAttempt),
		slog.Duration("delay", delay),
		slog.String("cause", cause),
	)

	return nil
}

// jitter returns a random spread of up to half the base delay, so a burst
// of failures does not retry in lockstep.
func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(base)/2 + 1))
}
