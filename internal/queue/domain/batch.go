package domain

import "time"

// BatchStatus tracks the one-way batch lifecycle:
// open -> processing -> completed|failed.
type BatchStatus string

// Batch statuses
const (
	BatchStatusOpen       BatchStatus = "open"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
)

// BatchItemResult is the per-member outcome of a batch execution.
// Exactly one of Result and Err is set.
type BatchItemResult struct {
	JobID  string
	Result *ExecResult
	Err    error
}

// Batch is a bounded group of same-type jobs executed through a single
// grouped external call. Member order is insertion order. Once the batch
// leaves the open state no further jobs may be added.
type Batch struct {
	ID          string
	Type        JobType
	Jobs        []*Job
	Status      BatchStatus
	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
	Results     []BatchItemResult
}

// Size returns the number of member jobs.
func (b *Batch) Size() int {
	return len(b.Jobs)
}
