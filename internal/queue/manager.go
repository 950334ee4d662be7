package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platefull/jobqueue/internal/queue/domain"
)

// DefaultMaxAttempts is used when enqueue does not specify a ceiling.
const DefaultMaxAttempts = 3

// Config holds everything the manager needs to assemble the queue core.
type Config struct {
	Logger *slog.Logger

	// Workers is the concurrency ceiling per type. Missing types get one slot.
	Workers map[domain.JobType]int

	// Batching lists the batchable types. Types absent here execute individually.
	Batching map[domain.JobType]BatchConfig

	// Backoff is the attempt-indexed retry delay table. Empty means DefaultBackoffTable.
	Backoff []time.Duration

	// DefaultMaxAttempts applies when enqueue passes zero. Zero means DefaultMaxAttempts.
	DefaultMaxAttempts int

	// IdleInterval bounds how long an idle worker sleeps between queue checks.
	IdleInterval time.Duration

	Executors      map[domain.JobType]Executor
	BatchExecutors map[domain.JobType]BatchExecutor

	// Sink optionally receives execution outcome events.
	Sink EventSink
}

// JobStatus is the read-model snapshot for a single job.
type JobStatus struct {
	JobID       string            `json:"job_id"`
	Type        domain.JobType    `json:"job_type"`
	Priority    domain.Priority   `json:"priority"`
	OwnerID     string            `json:"owner_id"`
	Status      string            `json:"status"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"`
	BatchID     string            `json:"batch_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	ScheduledAt *time.Time        `json:"scheduled_at,omitempty"`
	Result      map[string]any    `json:"result,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// Manager is the caller-facing surface of the queue core: the single
// enqueue entry point plus the stats and per-job read paths. It owns the
// per-type dispatch state and wires the aggregator, worker pool, retry
// scheduler and stats collector together.
type Manager struct {
	logger             *slog.Logger
	stats              *StatsCollector
	aggregator         *BatchAggregator
	retry              *RetryScheduler
	pool               *WorkerPool
	states             map[domain.JobType]*typeState
	defaultMaxAttempts int

	jobsMu sync.RWMutex
	jobs   map[string]*jobRecord

	lifecycleMu sync.Mutex
	stopped     bool
}

// jobRecord snapshots the mutable side of a job under the manager's lock so
// the read path never races a worker mutating the job in place.
type jobRecord struct {
	job         *domain.Job
	status      string
	attempts    int
	batchID     string
	scheduledAt time.Time
	result      *domain.ExecResult
	errMsg      string
}

// NewManager assembles the queue core from cfg. Call Start before enqueuing.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	defaultMax := cfg.DefaultMaxAttempts
	if defaultMax <= 0 {
		defaultMax = DefaultMaxAttempts
	}

	states := make(map[domain.JobType]*typeState, len(domain.KnownJobTypes()))
	for _, t := range domain.KnownJobTypes() {
		states[t] = newTypeState()
	}

	m := &Manager{
		logger:             logger,
		states:             states,
		defaultMaxAttempts: defaultMax,
		jobs:               make(map[string]*jobRecord),
	}

	m.stats = NewStatsCollector(logger, cfg.Sink)
	m.retry = NewRetryScheduler(logger, m.stats, cfg.Backoff, m.requeue, m.recordTransition)
	m.aggregator = NewBatchAggregator(logger, m.stats, cfg.Batching, states)
	m.pool = NewWorkerPool(
		logger,
		m.stats,
		m.retry,
		states,
		cfg.Workers,
		cfg.Executors,
		cfg.BatchExecutors,
		cfg.IdleInterval,
	)
	m.pool.onTransition = m.recordTransition

	return m
}

// Start spawns the worker pool. ctx cancellation stops all workers.
func (m *Manager) Start(ctx context.Context) {
	m.pool.Start(ctx)
	m.logger.Info("Job queue started")
}

// Stop rejects further submissions, cancels batch and retry timers, and
// waits for in-flight executions to finish.
func (m *Manager) Stop() {
	m.lifecycleMu.Lock()
	if m.stopped {
		m.lifecycleMu.Unlock()
		return
	}
	m.stopped = true
	m.lifecycleMu.Unlock()

	m.aggregator.Stop()
	m.pool.Stop()
	m.retry.Stop()
	m.stats.Stop()

	m.logger.Info("Job queue stopped")
}

// Enqueue is the only job-submission entry point. It validates the type,
// applies defaults for priority and maxAttempts, and routes the job through
// the batch aggregator. The caller learns the job id, never the eventual
// outcome; use GetJobStatus to poll.
func (m *Manager) Enqueue(jobType domain.JobType, priority domain.Priority, ownerID string, payload json.RawMessage, maxAttempts int) (string, error) {
	m.lifecycleMu.Lock()
	stopped := m.stopped
	m.lifecycleMu.Unlock()
	if stopped {
		return "", domain.ErrQueueStopped
	}

	if !jobType.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownJobType, jobType)
	}
	if priority == "" {
		priority = domain.PriorityMedium
	}
	if !priority.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidPriority, priority)
	}
	if maxAttempts <= 0 {
		maxAttempts = m.defaultMaxAttempts
	}

	job := &domain.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Priority:    priority,
		OwnerID:     ownerID,
		Payload:     payload,
		MaxAttempts: maxAttempts,
		CreatedAt:   time.Now(),
	}

	m.jobsMu.Lock()
	m.jobs[job.ID] = &jobRecord{job: job, status: domain.JobStatusPending}
	m.jobsMu.Unlock()

	m.aggregator.Add(job)

	m.logger.Debug("Job enqueued",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(jobType)),
		slog.String("priority", string(priority)),
		slog.String("owner_id", ownerID),
	)

	return job.ID, nil
}

// GetQueueStats returns per-type backlog and cumulative counters. Pending
// combines the priority queue depth, flushed-but-unclaimed batch members,
// and the open batch the aggregator is still filling; jobs waiting out a
// retry delay are reported separately as retrying.
func (m *Manager) GetQueueStats() map[domain.JobType]TypeStats {
	out := make(map[domain.JobType]TypeStats, len(m.states))
	for t, st := range m.states {
		s := m.stats.TypeSnapshot(t)
		s.Pending = st.backlog() + m.aggregator.OpenSize(t)
		out[t] = s
	}
	return out
}

// GetBatchStats returns batch counts per lifecycle status.
func (m *Manager) GetBatchStats() BatchStats {
	return m.stats.BatchSnapshot()
}

// GetJobStatus returns the current snapshot for a job submitted to this
// process. Records live for the process lifetime; durable history is the
// archive collaborator's concern.
func (m *Manager) GetJobStatus(jobID string) (*JobStatus, error) {
	m.jobsMu.RLock()
	rec, ok := m.jobs[jobID]
	if !ok {
		m.jobsMu.RUnlock()
		return nil, domain.ErrJobNotFound
	}

	job := rec.job
	view := &JobStatus{
		JobID:       job.ID,
		Type:        job.Type,
		Priority:    job.Priority,
		OwnerID:     job.OwnerID,
		Status:      rec.status,
		Attempts:    rec.attempts,
		MaxAttempts: job.MaxAttempts,
		BatchID:     rec.batchID,
		CreatedAt:   job.CreatedAt,
		Error:       rec.errMsg,
	}
	if !rec.scheduledAt.IsZero() {
		at := rec.scheduledAt
		view.ScheduledAt = &at
	}
	if rec.result != nil {
		view.Result = rec.result.Output
	}
	m.jobsMu.RUnlock()

	return view, nil
}

// requeue is the retry scheduler's path back into the priority queue.
func (m *Manager) requeue(job *domain.Job) {
	m.states[job.Type].insertJob(job)
}

func (m *Manager) recordTransition(job *domain.Job, status string, result *domain.ExecResult, errMsg string) {
	m.jobsMu.Lock()
	if rec, ok := m.jobs[job.ID]; ok {
		rec.status = status
		rec.attempts = job.Attempts
		rec.batchID = job.BatchID
		rec.scheduledAt = job.ScheduledAt
		if result != nil {
			rec.result = result
		}
		rec.errMsg = errMsg
	}
	m.jobsMu.Unlock()
}
