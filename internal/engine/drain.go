package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DrainCoordinator tracks in-flight jobs so shutdown can wait for them.
// Workers call Begin when they take ownership of a delivery and Finish when
// they are done with it, whatever the outcome.
type DrainCoordinator struct {
	mu       sync.Mutex
	inflight int64
	zeroChan chan struct{}
	timeout  time.Duration
	logger   *slog.Logger
}

// NewDrainCoordinator creates a drain coordinator with the given shutdown
// wait bound
func NewDrainCoordinator(timeout time.Duration, logger *slog.Logger) *DrainCoordinator {
	return &DrainCoordinator{
		zeroChan: make(chan struct{}),
		timeout:  timeout,
		logger:   logger,
	}
}

// Begin increments the in-flight counter
func (d *DrainCoordinator) Begin() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inflight++
}

// Finish decrements the in-flight counter and wakes waiters when it hits
// zero
func (d *DrainCoordinator) Finish() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inflight == 0 {
		d.logger.Warn("Drain counter decrement below zero ignored")
		return
	}

	d.inflight--
	if d.inflight == 0 {
		close(d.zeroChan)
		d.zeroChan = make(chan struct{})
	}
}

// InFlight returns the current in-flight count
func (d *DrainCoordinator) InFlight() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inflight
}

// Wait blocks until the in-flight count reaches zero, the configured
// timeout elapses, or ctx is canceled. It returns the number of jobs still
// in flight; a non-zero return means those jobs were abandoned and stay
// CLAIMED/PROCESSING in the ledger for external reconciliation to find.
func (d *DrainCoordinator) Wait(ctx context.Context) int64 {
	deadline := time.NewTimer(d.timeout)
	defer deadline.Stop()

	for {
		d.mu.Lock()
		if d.inflight == 0 {
			d.mu.Unlock()
			return 0
		}
		zeroChan := d.zeroChan
		d.mu.Unlock()

		select {
		case <-zeroChan:
			// Re-check: another Begin may have raced in
		case <-deadline.C:
			abandoned := d.InFlight()
			d.logger.Warn("Drain timeout exceeded, abandoning in-flight jobs",
				slog.Int64("abandoned", abandoned),
				slog.Duration("timeout", d.timeout),
			)
			return abandoned
		case <-ctx.Done():
			abandoned := d.InFlight()
			d.logger.Warn("Drain canceled, abandoning in-flight jobs",
				slog.Int64("abandoned", abandoned),
			)
			return abandoned
		}
	}
}
