package outbox

import (
	"encoding/json"
	"time"
)

// Entry statuses
const (
	StatusPending = "PENDING"
	StatusRelayed = "RELAYED"
	StatusFailed  = "FAILED"
)

// Entry is one outbound domain event awaiting relay. Rows are inserted in
// the same transaction as the job-status write that caused them; seq is
// assigned by the database in insertion order and breaks created_at ties
// between rows committed together.
type Entry struct {
	ID          string          `db:"id"`
	Seq         int64           `db:"seq"`
	AggregateID string          `db:"aggregate_id"`
	EventType   string          `db:"event_type"`
	Payload     json.RawMessage `db:"payload"`
	Status      string          `db:"status"`
	Attempts    int             `db:"attempts"`
	LastError   string          `db:"last_error"`
	CreatedAt   time.Time       `db:"created_at"`
	RelayedAt   *time.Time      `db:"relayed_at"`
}

// Event is what a business handler returns for publication. The engine
// assigns the row id and timestamps when persisting.
type Event struct {
	AggregateID string
	EventType   string
	Payload     json.RawMessage
}
