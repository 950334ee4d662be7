package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/platefull/jobqueue/internal/queue/domain"
)

const defaultIdleInterval = 250 * time.Millisecond

// transitionFunc lets the manager track per-job status for the read path.
// It must be cheap and non-blocking.
type transitionFunc func(job *domain.Job, status string, result *domain.ExecResult, errMsg string)

// WorkerPool bounds concurrency per job type. Each type gets its own fixed
// set of execution slots; there is no global ceiling, so a slow type never
// starves another.
type WorkerPool struct {
	logger         *slog.Logger
	stats          *StatsCollector
	retry          *RetryScheduler
	states         map[domain.JobType]*typeState
	concurrency    map[domain.JobType]int
	executors      map[domain.JobType]Executor
	batchExecutors map[domain.JobType]BatchExecutor
	idleInterval   time.Duration
	onTransition   transitionFunc

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWorkerPool creates a pool. Types with no concurrency entry get one slot.
func NewWorkerPool(
	logger *slog.Logger,
	stats *StatsCollector,
	retry *RetryScheduler,
	states map[domain.JobType]*typeState,
	concurrency map[domain.JobType]int,
	executors map[domain.JobType]Executor,
	batchExecutors map[domain.JobType]BatchExecutor,
	idleInterval time.Duration,
) *WorkerPool {
	if idleInterval <= 0 {
		idleInterval = defaultIdleInterval
	}
	return &WorkerPool{
		logger:         logger,
		stats:          stats,
		retry:          retry,
		states:         states,
		concurrency:    concurrency,
		executors:      executors,
		batchExecutors: batchExecutors,
		idleInterval:   idleInterval,
		stopChan:       make(chan struct{}),
	}
}

// Start spawns the per-type worker goroutines.
func (p *WorkerPool) Start(ctx context.Context) {
	total := 0
	for t, st := range p.states {
		n := p.concurrency[t]
		if n <= 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			p.wg.Add(1)
			go p.workerLoop(ctx, t, st, i)
		}
		total += n
	}

	p.logger.Info("Worker pool spawned",
		slog.Int("worker_count", total),
		slog.Int("type_count", len(p.states)),
	)
}

// Stop signals all workers and waits for in-flight executions to finish.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
	p.wg.Wait()
}

// workerLoop is one execution slot: pull a ready batch or the next job,
// execute it, and otherwise block on the type's wake channel with a bounded
// fallback sleep.
func (p *WorkerPool) workerLoop(ctx context.Context, t domain.JobType, st *typeState, slot int) {
	defer p.wg.Done()

	slotName := fmt.Sprintf("%s-%d", t, slot)
	p.logger.Debug("Worker slot started",
		slog.String("slot", slotName),
	)

	for {
		select {
		case <-p.stopChan:
			p.logger.Debug("Worker slot stopping",
				slog.String("slot", slotName),
			)
			return
		case <-ctx.Done():
			p.logger.Debug("Worker slot stopping - context canceled",
				slog.String("slot", slotName),
			)
			return
		default:
		}

		if batch := st.popBatch(); batch != nil {
			p.executeBatch(ctx, batch)
			continue
		}

		if job, ok := st.queue.PopNext(); ok {
			p.executeJob(ctx, job)
			continue
		}

		select {
		case <-p.stopChan:
			return
		case <-ctx.Done():
			return
		case <-st.wake:
		case <-time.After(p.idleInterval):
		}
	}
}

func (p *WorkerPool) transition(job *domain.Job, status string, result *domain.ExecResult, errMsg string) {
	if p.onTransition != nil {
		p.onTransition(job, status, result, errMsg)
	}
}

// executeJob runs one individual job through its type executor.
func (p *WorkerPool) executeJob(ctx context.Context, job *domain.Job) {
	job.Attempts++
	p.stats.JobStarted(job.Type)
	p.transition(job, domain.JobStatusProcessing, nil, "")

	exec, ok := p.executors[job.Type]

	start := time.Now()
	var result *domain.ExecResult
	var err error
	if !ok {
		err = domain.NewPermanentError(fmt.Errorf("no executor registered for type %s", job.Type))
	} else {
		result, err = exec.Execute(ctx, job)
	}
	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Job execution failed",
			slog.String("job_id", job.ID),
			slog.String("job_type", string(job.Type)),
			slog.Int("attempts", job.Attempts),
			slog.String("error", err.Error()),
		)
		p.stats.AttemptFailed(job.Type)
		p.retry.Schedule(job, err, duration)
		return
	}

	var usage map[string]any
	if result != nil {
		usage = result.Usage
	}
	p.stats.JobSucceeded(job.Type, job.ID, job.OwnerID, duration, usage)
	p.transition(job, domain.JobStatusCompleted, result, "")

	p.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.Duration("duration", duration),
	)
}

// executeBatch runs a flushed batch through its type's batch executor.
// Partial failure is allowed: successes are finalized per job, failures
// leave the batch and go through the normal retry path individually.
func (p *WorkerPool) executeBatch(ctx context.Context, batch *domain.Batch) {
	for _, job := range batch.Jobs {
		job.Attempts++
		p.stats.JobStarted(batch.Type)
		p.transition(job, domain.JobStatusProcessing, nil, "")
	}

	be, ok := p.batchExecutors[batch.Type]

	start := time.Now()
	var results []domain.BatchItemResult
	var err error
	if !ok {
		err = domain.NewPermanentError(fmt.Errorf("no batch executor registered for type %s", batch.Type))
	} else {
		results, err = be.ExecuteBatch(ctx, batch.Jobs)
	}
	duration := time.Since(start)

	byID := make(map[string]domain.BatchItemResult, len(results))
	for _, r := range results {
		byID[r.JobID] = r
	}

	aligned := make([]domain.BatchItemResult, 0, len(batch.Jobs))
	failures := 0
	for _, job := range batch.Jobs {
		var item domain.BatchItemResult
		switch {
		case err != nil:
			item = domain.BatchItemResult{JobID: job.ID, Err: err}
		default:
			var found bool
			if item, found = byID[job.ID]; !found {
				item = domain.BatchItemResult{
					JobID: job.ID,
					Err:   fmt.Errorf("batch executor returned no result for job %s", job.ID),
				}
			}
		}
		aligned = append(aligned, item)

		if item.Err != nil {
			failures++
			p.stats.AttemptFailed(batch.Type)
			// Failed members leave the batch and retry individually.
			job.BatchID = ""
			p.retry.Schedule(job, item.Err, duration)
			continue
		}

		var usage map[string]any
		if item.Result != nil {
			usage = item.Result.Usage
		}
		p.stats.JobSucceeded(batch.Type, job.ID, job.OwnerID, duration, usage)
		p.transition(job, domain.JobStatusCompleted, item.Result, "")
	}

	batch.Results = aligned
	batch.CompletedAt = time.Now()
	final := domain.BatchStatusCompleted
	if failures > 0 {
		final = domain.BatchStatusFailed
	}
	batch.Status = final
	p.stats.BatchTransitioned(domain.BatchStatusProcessing, final)

	p.logger.Info("Batch executed",
		slog.String("batch_id", batch.ID),
		slog.String("job_type", string(batch.Type)),
		slog.Int("size", batch.Size()),
		slog.Int("failures", failures),
		slog.Duration("duration", duration),
	)
}
