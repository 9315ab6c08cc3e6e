package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// ackAction is what the worker must tell the broker after processing
type ackAction int

const (
	// ackDone removes the message: the terminal or retry-handoff write has
	// committed
	ackDone ackAction = iota
	// nackRequeue returns the message for redelivery, used for transient
	// infrastructure failures and claims held by another worker. Messages
	// that can never succeed are discarded by the dispatcher before they
	// reach a worker.
	nackRequeue
)

// spawnWorkerPool starts N worker goroutines based on concurrency
// configuration
func (e *Engine) spawnWorkerPool(ctx context.Context) {
	e.logger.Info("Spawning worker pool",
		slog.Int("concurrency", e.concurrency),
	)

	for i := 0; i < e.concurrency; i++ {
		e.wg.Add(1)
		go e.workerLoop(ctx, i)
	}
}

// workerLoop is the processing loop for one worker slot. Each slot blocks
// only on its own job; it exits when jobsChan closes.
func (e *Engine) workerLoop(ctx context.Context, workerNum int) {
	defer e.wg.Done()

	workerName := fmt.Sprintf("%s-%d", e.consumerTag, workerNum)
	e.logger.Info("Worker started",
		slog.String("worker", workerName),
	)

	for jd := range e.jobsChan {
		action, err := e.processJob(ctx, jd.msg)
		if err != nil {
			e.logger.Error("Job processing attempt failed",
				slog.String("worker", workerName),
				slog.String("job_id", jd.msg.JobID),
				slog.Int("attempt", jd.msg.Attempt),
				slog.Any("error", err),
			)
		}

		switch action {
		case ackDone:
			if ackErr := jd.delivery.Ack(false); ackErr != nil {
				e.logger.Error("Failed to ACK message",
					slog.String("worker", workerName),
					slog.String("job_id", jd.msg.JobID),
					slog.Any("error", ackErr),
				)
			}
		case nackRequeue:
			if nackErr := jd.delivery.Nack(false, true); nackErr != nil {
				e.logger.Error("Failed to NACK message for requeue",
					slog.String("worker", workerName),
					slog.String("job_id", jd.msg.JobID),
					slog.Any("error", nackErr),
				)
			}
		}

		e.drain.Finish()
	}

	e.logger.Info("Worker stopped",
		slog.String("worker", workerName),
	)
}
