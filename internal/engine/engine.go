package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/khanhnd/jobengine/internal/engine/domain"
	"github.com/khanhnd/jobengine/internal/ledger"
	"github.com/khanhnd/jobengine/internal/outbox"
	"github.com/khanhnd/jobengine/shared/rabbitmq"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Store is the persistence surface the engine drives: ledger transitions
// plus the transactional terminal-write-with-events commit.
type Store interface {
	Claim(ctx context.Context, jobID string) (ledger.ClaimResult, error)
	MarkProcessing(ctx context.Context, jobID string) error
	MarkRetryScheduled(ctx context.Context, jobID, reason string) error
	CompleteJob(ctx context.Context, jobID string, events []outbox.Event) error
	FailJob(ctx context.Context, jobID, reason string) error
}

// Config holds engine configuration
type Config struct {
	Logger        *slog.Logger
	Store         Store
	RabbitClient  *rabbitmq.Client
	Registry      *Registry
	Concurrency   int
	PrefetchCount int
	Retry         RetryConfig
	DrainTimeout  time.Duration
}

// Engine is the job consumer: a dispatcher goroutine fans broker
// deliveries into a channel, a pool of worker slots claims each job via
// the ledger, runs the registered handler, and acks only after the
// terminal-or-retry write has committed.
type Engine struct {
	logger       *slog.Logger
	store        Store
	rabbitClient *rabbitmq.Client
	registry     *Registry
	scheduler    *RetryScheduler
	drain        *DrainCoordinator

	concurrency   int
	prefetchCount int
	maxAttempts   int
	consumerTag   string

	jobsChan chan *jobDelivery
	wg       sync.WaitGroup
}

// jobDelivery pairs a decoded message with its broker delivery for ack/nack
type jobDelivery struct {
	msg      domain.JobMessage
	delivery amqp.Delivery
}

// NewEngine creates a new engine instance
func NewEngine(cfg *Config) *Engine {
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = cfg.Concurrency
	}

	return &Engine{
		logger:        cfg.Logger,
		store:         cfg.Store,
		rabbitClient:  cfg.RabbitClient,
		registry:      cfg.Registry,
		scheduler:     NewRetryScheduler(cfg.RabbitClient, cfg.Retry, cfg.Logger),
		drain:         NewDrainCoordinator(cfg.DrainTimeout, cfg.Logger),
		concurrency:   cfg.Concurrency,
		prefetchCount: prefetch,
		maxAttempts:   cfg.Retry.MaxAttempts,
		consumerTag:   fmt.Sprintf("jobengine-%s", uuid.New().String()[:8]),
		jobsChan:      make(chan *jobDelivery),
	}
}

// Start subscribes to the primary queue and blocks dispatching jobs to the
// worker pool until ctx is canceled or the delivery channel closes.
func (e *Engine) Start(ctx context.Context) error {
	e.logger.Info("Starting engine",
		slog.Int("concurrency", e.concurrency),
		slog.Int("prefetch_count", e.prefetchCount),
		slog.Int("max_attempts", e.maxAttempts),
		slog.Any("job_types", e.registry.Types()),
	)

	deliveries, err := e.setupConsumer()
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	e.spawnWorkerPool(ctx)
	e.runDispatcher(ctx, deliveries)
	return nil
}

// Shutdown drains the engine: it cancels the broker subscription so no new
// deliveries arrive, lets in-flight jobs finish up to the drain timeout,
// and returns the number of jobs abandoned. Abandoned jobs stay
// CLAIMED/PROCESSING in the ledger for external reconciliation to find.
func (e *Engine) Shutdown(ctx context.Context) int64 {
	e.logger.Info("Engine shutdown started",
		slog.Int64("in_flight", e.drain.InFlight()),
	)

	if err := e.rabbitClient.CancelConsumer(e.consumerTag); err != nil {
		e.logger.Error("Failed to cancel consumer subscription",
			slog.Any("error", err),
		)
	}

	abandoned := e.drain.Wait(ctx)
	if abandoned == 0 {
		e.logger.Info("Engine drained, no jobs abandoned")
	} else {
		e.logger.Warn("Engine shutdown with abandoned jobs",
			slog.Int64("abandoned", abandoned),
		)
	}

	return abandoned
}
