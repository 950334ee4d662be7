package queue

import (
	"context"
	"time"

	"github.com/platefull/jobqueue/internal/queue/domain"
)

// Executor performs the real work for a single job of one type (AI call,
// transcode, cleanup...). Implementations live outside the queue; the queue
// only sees the outcome.
type Executor interface {
	Execute(ctx context.Context, job *domain.Job) (*domain.ExecResult, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, job *domain.Job) (*domain.ExecResult, error)

func (f ExecutorFunc) Execute(ctx context.Context, job *domain.Job) (*domain.ExecResult, error) {
	return f(ctx, job)
}

// BatchExecutor performs the real work for a batch of same-type jobs as one
// grouped external call. Partial failure is allowed: the returned slice
// carries one result or error per member job.
type BatchExecutor interface {
	ExecuteBatch(ctx context.Context, jobs []*domain.Job) ([]domain.BatchItemResult, error)
}

// BatchExecutorFunc adapts a plain function to the BatchExecutor interface.
type BatchExecutorFunc func(ctx context.Context, jobs []*domain.Job) ([]domain.BatchItemResult, error)

func (f BatchExecutorFunc) ExecuteBatch(ctx context.Context, jobs []*domain.Job) ([]domain.BatchItemResult, error) {
	return f(ctx, jobs)
}

// Event outcome values reported to the sink.
const (
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
	OutcomeRetrying  = "retrying"
)

// Event is one fire-and-forget execution outcome forwarded to an external
// sink (metrics, archive). Usage is whatever the executor reported; the
// queue never interprets it.
type Event struct {
	JobID    string
	JobType  domain.JobType
	OwnerID  string
	Outcome  string
	Duration time.Duration
	Usage    map[string]any
	Error    string
}

// EventSink receives execution outcome events. Implementations may block;
// the stats collector decouples them from the worker hot path.
type EventSink interface {
	Record(ev Event)
}
