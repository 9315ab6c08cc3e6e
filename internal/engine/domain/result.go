package domain

import (
	"context"
	"encoding/json"

	"github.com/khanhnd/jobengine/internal/outbox"
)

// Outcome classifies a handler result
type Outcome int

const (
	// OutcomeSuccess completes the job
	OutcomeSuccess Outcome = iota
	// OutcomeRetryableFailure routes the job through the retry scheduler
	// until the attempt ceiling is reached
	OutcomeRetryableFailure
	// OutcomeFatalFailure fails the job immediately, no retry
	OutcomeFatalFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryableFailure:
		return "retryable_failure"
	case OutcomeFatalFailure:
		return "fatal_failure"
	default:
		return "unknown"
	}
}

// Result is what a business handler reports back to the engine. Events are
// persisted to the outbox only on success, in the same transaction as the
// COMPLETED mark.
type Result struct {
	Outcome Outcome
	Reason  string
	Events  []outbox.Event
}

// Success builds a successful result carrying zero or more domain events
func Success(events ...outbox.Event) Result {
	return Result{Outcome: OutcomeSuccess, Events: events}
}

// RetryableFailure builds a result that requests another attempt
func RetryableFailure(reason string) Result {
	return Result{Outcome: OutcomeRetryableFailure, Reason: reason}
}

// FatalFailure builds a result that terminates the job
func FatalFailure(reason string) Result {
	return Result{Outcome: OutcomeFatalFailure, Reason: reason}
}

// Handler is the business-logic collaborator. It must not ack the broker
// message or write to the ledger/outbox; it only reports a Result the
// engine persists.
type Handler interface {
	Handle(ctx context.Context, payload json.RawMessage, attempt int) Result
}

// HandlerFunc adapts a function to the Handler interface
type HandlerFunc func(ctx context.Context, payload json.RawMessage, attempt int) Result

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, payload json.RawMessage, attempt int) Result {
	return f(ctx, payload, attempt)
}
