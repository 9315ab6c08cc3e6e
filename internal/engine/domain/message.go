package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobMessage is the unit of work delivered by the broker. The same job_id
// can arrive more than once; attempt is strictly increasing across retries
// of the same logical job and enqueued_at is preserved from the original
// submission.
type JobMessage struct {
	JobID      string          `json:"job_id"`
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	// LastError carries the previous attempt's failure summary through the
	// delayed route. Empty on first delivery.
	LastError string `json:"last_error,omitempty"`
}

// Validate checks the fields every delivery must carry
func (m *JobMessage) Validate() error {
	if _, err := uuid.Parse(m.JobID); err != nil {
		return fmt.Errorf("%w: job_id %q is not a UUID", ErrInvalidMessage, m.JobID)
	}

	if m.Type == "" {
		return fmt.Errorf("%w: type is required", ErrInvalidMessage)
	}

	if m.Attempt < 1 {
		return fmt.Errorf("%w: attempt must be >= 1, got %d", ErrInvalidMessage, m.Attempt)
	}

	return nil
}
