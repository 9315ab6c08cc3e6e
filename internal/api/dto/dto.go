package dto

import "encoding/json"

// LedgerEntryDTO is the wire representation of a ledger row
type LedgerEntryDTO struct {
	JobID       string `json:"job_id"`
	Status      string `json:"status"`
	LastError   string `json:"last_error,omitempty"`
	ClaimedAt   string `json:"claimed_at"`
	CompletedAt string `json:"completed_at,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

// ListJobsRequest filters a ledger listing
type ListJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListJobsResponse is a page of ledger rows
type ListJobsResponse struct {
	Jobs       []LedgerEntryDTO `json:"jobs"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// RequeueJobRequest resubmits a failed job. The engine does not persist job
// payloads, so the caller supplies the message content again.
type RequeueJobRequest struct {
	Type    string          `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// OutboxEntryDTO is the wire representation of an outbox row
type OutboxEntryDTO struct {
	ID          string          `json:"id"`
	AggregateID string          `json:"aggregate_id"`
	EventType   string          `json:"event_type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	LastError   string          `json:"last_error,omitempty"`
	CreatedAt   string          `json:"created_at"`
}
