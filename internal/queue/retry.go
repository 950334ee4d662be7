package queue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/platefull/jobqueue/internal/queue/domain"
)

// DefaultBackoffTable is used when the configuration does not provide one.
// The last entry is reused for any attempt beyond the table's length.
var DefaultBackoffTable = []time.Duration{
	1 * time.Second,
	5 * time.Second,
	15 * time.Second,
	30 * time.Second,
}

// RetryScheduler decides whether and when a failed job gets another
// attempt. Re-insertion is timer-driven and independent of any worker; a
// job waiting out its backoff delay is not counted as queued.
type RetryScheduler struct {
	logger  *slog.Logger
	stats   *StatsCollector
	backoff []time.Duration

	// requeue puts the job back into its type's priority queue.
	requeue func(job *domain.Job)
	// onTransition mirrors the worker pool's status tracking hook.
	onTransition transitionFunc

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// NewRetryScheduler creates a scheduler with the given backoff table.
// An empty table falls back to DefaultBackoffTable.
func NewRetryScheduler(
	logger *slog.Logger,
	stats *StatsCollector,
	backoff []time.Duration,
	requeue func(job *domain.Job),
	onTransition transitionFunc,
) *RetryScheduler {
	if len(backoff) == 0 {
		backoff = DefaultBackoffTable
	}
	return &RetryScheduler{
		logger:       logger,
		stats:        stats,
		backoff:      backoff,
		requeue:      requeue,
		onTransition: onTransition,
		timers:       make(map[string]*time.Timer),
	}
}

func (r *RetryScheduler) transition(job *domain.Job, status string, errMsg string) {
	if r.onTransition != nil {
		r.onTransition(job, status, nil, errMsg)
	}
}

// Schedule handles a job whose execution attempt just failed. The job is
// either re-queued after its backoff delay or marked permanently failed
// when attempts are exhausted or the error is permanent.
func (r *RetryScheduler) Schedule(job *domain.Job, execErr error, attemptDuration time.Duration) {
	if domain.IsPermanent(execErr) || job.Attempts >= job.MaxAttempts {
		r.logger.Warn("Job permanently failed",
			slog.String("job_id", job.ID),
			slog.String("job_type", string(job.Type)),
			slog.Int("attempts", job.Attempts),
			slog.Int("max_attempts", job.MaxAttempts),
			slog.String("error", execErr.Error()),
		)
		r.stats.JobFailedPermanently(job.Type, job.ID, job.OwnerID, attemptDuration, execErr.Error())
		r.transition(job, domain.JobStatusFailed, execErr.Error())
		return
	}

	delay := r.delayFor(job.Attempts)
	job.BatchID = ""
	job.ScheduledAt = time.Now().Add(delay)

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		r.logger.Warn("Retry scheduler stopped, dropping job",
			slog.String("job_id", job.ID),
		)
		return
	}
	r.timers[job.ID] = time.AfterFunc(delay, func() {
		r.fire(job)
	})
	r.mu.Unlock()

	r.stats.RetryScheduled(job.Type, job.ID, job.OwnerID, execErr.Error())
	r.transition(job, domain.JobStatusRetrying, execErr.Error())

	r.logger.Info("Job scheduled for retry",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.Duration("delay", delay),
	)
}

func (r *RetryScheduler) fire(job *domain.Job) {
	r.mu.Lock()
	delete(r.timers, job.ID)
	stopped := r.stopped
	r.mu.Unlock()

	if stopped {
		return
	}

	r.stats.RetryRequeued(job.Type)
	r.transition(job, domain.JobStatusPending, "")
	r.requeue(job)

	r.logger.Debug("Job re-queued after backoff",
		slog.String("job_id", job.ID),
		slog.Int("attempts", job.Attempts),
	)
}

// delayFor returns the backoff delay before attempt number attempts+1.
func (r *RetryScheduler) delayFor(attempts int) time.Duration {
	idx := attempts - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.backoff) {
		idx = len(r.backoff) - 1
	}
	return r.backoff[idx]
}

// Stop cancels all outstanding retry timers. Jobs waiting on a backoff
// delay are dropped; queued-job durability is out of scope.
func (r *RetryScheduler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopped = true
	for id, timer := range r.timers {
		timer.Stop()
		delete(r.timers, id)
	}
}
