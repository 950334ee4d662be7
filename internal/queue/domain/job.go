package domain

import (
	"encoding/json"
	"time"
)

// JobType identifies the kind of work a job carries.
type JobType string

// Known job types
const (
	JobTypeAIGeneration    JobType = "ai_generation"
	JobTypeVideoGeneration JobType = "video_generation"
	JobTypeEmail           JobType = "email"
	JobTypeAnalytics       JobType = "analytics"
	JobTypeCleanup         JobType = "cleanup"
)

// KnownJobTypes returns every job type the queue accepts.
func KnownJobTypes() []JobType {
	return []JobType{
		JobTypeAIGeneration,
		JobTypeVideoGeneration,
		JobTypeEmail,
		JobTypeAnalytics,
		JobTypeCleanup,
	}
}

// Valid reports whether t is a recognized job type.
func (t JobType) Valid() bool {
	switch t {
	case JobTypeAIGeneration, JobTypeVideoGeneration, JobTypeEmail, JobTypeAnalytics, JobTypeCleanup:
		return true
	}
	return false
}

// Priority is a sort key for dequeue order, never a starvation guarantee.
type Priority string

// Job priorities
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a recognized priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Weight returns the numeric ordering weight for the priority.
// Unknown values weigh the same as medium.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 10
	case PriorityLow:
		return 1
	default:
		return 5
	}
}

// JobStatus constants
const (
	JobStatusPending    = "PENDING"
	JobStatusProcessing = "PROCESSING"
	JobStatusRetrying   = "RETRYING"
	JobStatusCompleted  = "COMPLETED"
	JobStatusFailed     = "FAILED"
)

// Job is one unit of background work. The description fields are immutable
// after creation; Attempts and BatchID change as the job moves through the
// queue.
type Job struct {
	ID          string
	Type        JobType
	Priority    Priority
	OwnerID     string
	Payload     json.RawMessage
	Attempts    int
	MaxAttempts int
	CreatedAt   time.Time
	ScheduledAt time.Time // earliest eligible execution time; zero until a retry is scheduled
	BatchID     string    // set only while the job is a member of an open batch
}

// ExecResult is the outcome an executor reports for one successful job.
// Usage carries opaque provider usage/cost facts which the queue forwards
// to the event sink without inspecting them.
type ExecResult struct {
	Output map[string]any
	Usage  map[string]any
}
