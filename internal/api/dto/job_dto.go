package dto

import "encoding/json"

// EnqueueJobRequest is the body of POST /api/v1/jobs.
type EnqueueJobRequest struct {
	JobType     string          `json:"job_type" binding:"required"`
	Priority    string          `json:"priority"`
	OwnerID     string          `json:"owner_id" binding:"required"`
	Payload     json.RawMessage `json:"payload"`
	MaxAttempts int             `json:"max_attempts"`
}

// EnqueueJobResponse acknowledges submission. The caller learns the job id
// only; outcome is observed via the status and stats endpoints.
type EnqueueJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// ListEventsRequest is the query of GET /api/v1/events.
type ListEventsRequest struct {
	OwnerID  string `form:"owner_id"`
	JobType  string `form:"job_type"`
	Outcome  string `form:"outcome"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// EventDTO is one archived execution outcome.
type EventDTO struct {
	EventID    string          `json:"event_id"`
	JobID      string          `json:"job_id"`
	JobType    string          `json:"job_type"`
	OwnerID    string          `json:"owner_id"`
	Outcome    string          `json:"outcome"`
	DurationMS int64           `json:"duration_ms"`
	Usage      json.RawMessage `json:"usage,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  string          `json:"created_at"`
}

// ListEventsResponse pages archived events newest first.
type ListEventsResponse struct {
	Events     []EventDTO `json:"events"`
	NextCursor string     `json:"next_cursor,omitempty"`
}
