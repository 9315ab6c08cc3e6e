package outbox

import (
	"context"
	"log/slog"
	"time"
)

// RelayStore is the slice of the outbox store the relay needs
type RelayStore interface {
	ListPending(ctx context.Context, limit int) ([]Entry, error)
	MarkRelayed(ctx context.Context, id string) error
	RecordPublishFailure(ctx context.Context, id, reason string, maxAttempts int) (bool, error)
}

// Publisher publishes a domain event to the broker
type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, body []byte) error
}

// RelayConfig holds relay loop settings
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
}

// Relay is the single continuous loop that drains PENDING outbox rows to
// the broker. It is started once per process, after the DB pool and broker
// connection are confirmed healthy, and stops with its own context.
type Relay struct {
	store        RelayStore
	publisher    Publisher
	logger       *slog.Logger
	pollInterval time.Duration
	batchSize    int
	maxAttempts  int
}

// NewRelay creates a new outbox relay
func NewRelay(store RelayStore, publisher Publisher, cfg RelayConfig, logger *slog.Logger) *Relay {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 10
	}

	return &Relay{
		store:        store,
		publisher:    publisher,
		logger:       logger,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		maxAttempts:  maxAttempts,
	}
}

// Run polls until ctx is canceled
func (r *Relay) Run(ctx context.Context) {
	r.logger.Info("Outbox relay started",
		slog.Duration("poll_interval", r.pollInterval),
		slog.Int("batch_size", r.batchSize),
		slog.Int("max_attempts", r.maxAttempts),
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopped")
			return

		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("Outbox relay cycle failed",
					slog.Any("error", err),
				)
			}
		}
	}
}

// RunOnce processes one bounded batch of pending rows in created_at order.
// A publish failure parks the row (and any later rows of the same aggregate
// in this batch) for the next cycle; unrelated aggregates keep going, which
// preserves per-aggregate ordering without blocking the whole batch.
func (r *Relay) RunOnce(ctx context.Context) error {
	pending, err := r.store.ListPending(ctx, r.batchSize)
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		return nil
	}

	failedAggregates := make(map[string]bool)
	relayed := 0

	for _, entry := range pending {
		if failedAggregates[entry.AggregateID] {
			continue
		}

		if err := r.publisher.PublishEvent(ctx, entry.EventType, entry.Payload); err != nil {
			failedAggregates[entry.AggregateID] = true

			parked, recordErr := r.store.RecordPublishFailure(ctx, entry.ID, err.Error(), r.maxAttempts)
			if recordErr != nil {
				r.logger.Error("Failed to record outbox publish failure",
					slog.String("outbox_id", entry.ID),
					slog.Any("error", recordErr),
				)
				continue
			}

			if parked {
				r.logger.Error("Outbox event exhausted relay attempts",
					slog.String("outbox_id", entry.ID),
					slog.String("aggregate_id", entry.AggregateID),
					slog.String("event_type", entry.EventType),
					slog.Int("attempts", entry.Attempts+1),
					slog.Any("error", err),
				)
			} else {
				r.logger.Warn("Outbox publish failed, will retry next cycle",
					slog.String("outbox_id", entry.ID),
					slog.String("aggregate_id", entry.AggregateID),
					slog.String("event_type", entry.EventType),
					slog.Any("error", err),
				)
			}
			continue
		}

		if err := r.store.MarkRelayed(ctx, entry.ID); err != nil {
			// The event is out but the row is still PENDING; the next cycle
			// republishes it. Downstream consumers must tolerate duplicates,
			// which at-least-once delivery already requires.
			r.logger.Error("Failed to mark outbox event relayed",
				slog.String("outbox_id", entry.ID),
				slog.Any("error", err),
			)
			continue
		}

		relayed++
	}

	if relayed > 0 {
		r.logger.Debug("Outbox relay cycle completed",
			slog.Int("relayed", relayed),
			slog.Int("batch", len(pending)),
		)
	}

	return nil
}
