package ledger

import (
	"errors"
	"time"
)

// Entry statuses. CLAIMED -> PROCESSING -> {COMPLETED, FAILED} is the only
// forward path; RETRY_SCHEDULED reopens a job for exactly one more claim
// after a retryable failure. Terminal rows never change again.
const (
	StatusClaimed        = "CLAIMED"
	StatusProcessing     = "PROCESSING"
	StatusRetryScheduled = "RETRY_SCHEDULED"
	StatusCompleted      = "COMPLETED"
	StatusFailed         = "FAILED"
)

// ClaimResult is the outcome of a claim attempt
type ClaimResult int

const (
	// ClaimUnknown is the zero value, returned only alongside an error so a
	// dropped error check can never read as an acquired claim
	ClaimUnknown ClaimResult = iota
	// ClaimAcquired means this caller owns the job for the current attempt
	ClaimAcquired
	// ClaimAlreadyTerminal means the job previously completed or failed
	ClaimAlreadyTerminal
	// ClaimAlreadyInProgress means another worker currently holds the claim
	ClaimAlreadyInProgress
)

func (r ClaimResult) String() string {
	switch r {
	case ClaimAcquired:
		return "acquired"
	case ClaimAlreadyTerminal:
		return "already_terminal"
	case ClaimAlreadyInProgress:
		return "already_in_progress"
	default:
		return "unknown"
	}
}

// Entry is one ledger row per job_id ever claimed
type Entry struct {
	JobID       string     `db:"job_id"`
	Status      string     `db:"status"`
	LastError   string     `db:"last_error"`
	ClaimedAt   time.Time  `db:"claimed_at"`
	CompletedAt *time.Time `db:"completed_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// IsTerminal reports whether a status is final
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

var (
	// ErrEntryNotFound is returned when a ledger row cannot be found
	ErrEntryNotFound = errors.New("ledger entry not found")
)
