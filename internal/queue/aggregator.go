package queue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/platefull/jobqueue/internal/queue/domain"
)

// BatchConfig controls batch formation for one job type.
type BatchConfig struct {
	// Size is the member count that triggers an immediate flush.
	Size int
	// Timeout is the maximum time an open batch may wait before being
	// flushed regardless of size.
	Timeout time.Duration
}

// BatchAggregator decides individual-vs-batched execution per job type.
// Types without a BatchConfig go straight to their priority queue. Batchable
// types accumulate into at most one open batch per type, flushed when the
// size threshold is reached or the timeout fires, whichever comes first.
type BatchAggregator struct {
	logger *slog.Logger
	stats  *StatsCollector
	states map[domain.JobType]*typeState

	// lanes is read-only after construction; each lane has its own lock so
	// batch formation for one type never serializes another.
	lanes map[domain.JobType]*batchLane
}

type batchLane struct {
	cfg BatchConfig

	mu    sync.Mutex
	open  *domain.Batch
	timer *time.Timer
}

// NewBatchAggregator creates an aggregator for the configured batchable
// types. states must contain a typeState for every known type.
func NewBatchAggregator(
	logger *slog.Logger,
	stats *StatsCollector,
	configs map[domain.JobType]BatchConfig,
	states map[domain.JobType]*typeState,
) *BatchAggregator {
	lanes := make(map[domain.JobType]*batchLane, len(configs))
	for t, cfg := range configs {
		lanes[t] = &batchLane{cfg: cfg}
	}
	return &BatchAggregator{
		logger: logger,
		stats:  stats,
		states: states,
		lanes:  lanes,
	}
}

// Add routes a job: non-batchable types are queued individually, batchable
// types join (or open) the type's current batch.
func (a *BatchAggregator) Add(job *domain.Job) {
	lane, ok := a.lanes[job.Type]
	if !ok {
		a.states[job.Type].insertJob(job)
		return
	}

	lane.mu.Lock()

	if lane.open == nil {
		batch := &domain.Batch{
			ID:        uuid.New().String(),
			Type:      job.Type,
			Status:    domain.BatchStatusOpen,
			CreatedAt: time.Now(),
		}
		lane.open = batch
		lane.timer = time.AfterFunc(lane.cfg.Timeout, func() {
			a.flushLane(lane, batch)
		})
		a.stats.BatchCreated(job.Type)

		a.logger.Debug("Opened new batch",
			slog.String("batch_id", batch.ID),
			slog.String("job_type", string(job.Type)),
			slog.Duration("timeout", lane.cfg.Timeout),
		)
	}

	batch := lane.open
	job.BatchID = batch.ID
	batch.Jobs = append(batch.Jobs, job)

	full := batch.Size() >= lane.cfg.Size
	if full {
		a.flushLocked(lane, batch)
	}
	lane.mu.Unlock()
}

// flushLane is the timeout-trigger path; it may race the size trigger on
// the same batch, which is why the transition below is idempotent.
func (a *BatchAggregator) flushLane(lane *batchLane, batch *domain.Batch) {
	lane.mu.Lock()
	a.flushLocked(lane, batch)
	lane.mu.Unlock()
}

// flushLocked transitions batch open -> processing and hands it to the
// worker pool's batch path. Flushing a batch that already left the open
// state is a no-op. Caller holds lane.mu.
func (a *BatchAggregator) flushLocked(lane *batchLane, batch *domain.Batch) {
	if batch.Status != domain.BatchStatusOpen {
		return
	}

	batch.Status = domain.BatchStatusProcessing
	batch.StartedAt = time.Now()

	if lane.open == batch {
		lane.open = nil
	}
	if lane.timer != nil {
		lane.timer.Stop()
		lane.timer = nil
	}

	a.stats.BatchTransitioned(domain.BatchStatusOpen, domain.BatchStatusProcessing)
	a.states[batch.Type].pushBatch(batch)

	a.logger.Info("Batch flushed",
		slog.String("batch_id", batch.ID),
		slog.String("job_type", string(batch.Type)),
		slog.Int("size", batch.Size()),
	)
}

// Flush forces the type's current open batch out regardless of size.
// Used on shutdown so short batches are not silently dropped.
func (a *BatchAggregator) Flush(t domain.JobType) {
	lane, ok := a.lanes[t]
	if !ok {
		return
	}

	lane.mu.Lock()
	if lane.open != nil {
		a.flushLocked(lane, lane.open)
	}
	lane.mu.Unlock()
}

// OpenSize returns the member count of the type's current open batch.
func (a *BatchAggregator) OpenSize(t domain.JobType) int {
	lane, ok := a.lanes[t]
	if !ok {
		return 0
	}

	lane.mu.Lock()
	defer lane.mu.Unlock()

	if lane.open == nil {
		return 0
	}
	return lane.open.Size()
}

// Stop cancels all pending timeout flushes.
func (a *BatchAggregator) Stop() {
	for _, lane := range a.lanes {
		lane.mu.Lock()
		if lane.timer != nil {
			lane.timer.Stop()
			lane.timer = nil
		}
		lane.mu.Unlock()
	}
}
