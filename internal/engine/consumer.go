package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/khanhnd/jobengine/internal/engine/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// setupConsumer configures QoS and opens the delivery stream from the
// primary queue
func (e *Engine) setupConsumer() (<-chan amqp.Delivery, error) {
	channel := e.rabbitClient.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}

	// Bound unacked deliveries per consumer so prefetch does not outrun the
	// worker slots
	err := channel.Qos(
		e.prefetchCount, // prefetch count
		0,               // prefetch size
		false,           // global
	)
	if err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := e.rabbitClient.Consume(e.consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	e.logger.Info("Consumer started",
		slog.String("consumer_tag", e.consumerTag),
		slog.Int("prefetch_count", e.prefetchCount),
	)

	return deliveries, nil
}

// runDispatcher decodes broker deliveries and hands them to the worker
// pool. It returns when the delivery channel closes (consumer canceled or
// connection lost) or ctx is canceled; either way it closes jobsChan so
// workers exit after finishing what they hold.
func (e *Engine) runDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer close(e.jobsChan)

	e.logger.Info("Message dispatcher started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Message dispatcher stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				e.logger.Info("Message dispatcher stopped - delivery channel closed")
				return
			}

			var msg domain.JobMessage
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				e.logger.Error("Failed to parse job message",
					slog.Any("error", err),
					slog.String("body", string(delivery.Body)),
				)
				// Malformed messages can never succeed; drop without requeue
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					e.logger.Error("Failed to NACK malformed message",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			if err := msg.Validate(); err != nil {
				e.logger.Error("Invalid job message",
					slog.String("job_id", msg.JobID),
					slog.Any("error", err),
				)
				if nackErr := delivery.Nack(false, false); nackErr != nil {
					e.logger.Error("Failed to NACK invalid message",
						slog.Any("error", nackErr),
					)
				}
				continue
			}

			e.drain.Begin()

			select {
			case e.jobsChan <- &jobDelivery{msg: msg, delivery: delivery}:
				e.logger.Debug("Job dispatched to worker pool",
					slog.String("job_id", msg.JobID),
					slog.Int("attempt", msg.Attempt),
				)
			case <-ctx.Done():
				e.drain.Finish()
				e.logger.Info("Message dispatcher stopped while dispatching job")
				// Requeue so another consumer picks it up
				if nackErr := delivery.Nack(false, true); nackErr != nil {
					e.logger.Error("Failed to NACK message on shutdown",
						slog.Any("error", nackErr),
					)
				}
				return
			}
		}
	}
}
