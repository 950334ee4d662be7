package queue

import (
	"log/slog"
	"sync"
	"time"

	"github.com/platefull/jobqueue/internal/queue/domain"
)

const sinkBufferSize = 256

// TypeStats is the per-type counter snapshot returned by queue stats.
// Pending is filled in by the manager from live queue depth; the collector
// itself only aggregates events.
type TypeStats struct {
	Pending            int     `json:"pending"`
	Retrying           int     `json:"retrying"`
	Active             int     `json:"active"`
	Processed          int64   `json:"processed"`
	Failed             int64   `json:"failed"`
	AvgDurationSeconds float64 `json:"avg_duration_seconds"`
}

// BatchStats is the batch count snapshot per status.
type BatchStats struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// StatsCollector aggregates execution events from the worker pool and retry
// scheduler. All update methods are cheap counter bumps under a short lock
// and never block the producer; sink delivery runs on its own goroutine
// behind a buffered channel (events are dropped, not queued, when the sink
// cannot keep up).
type StatsCollector struct {
	logger *slog.Logger

	mu      sync.Mutex
	types   map[domain.JobType]*typeCounters
	batches BatchStats

	sink     EventSink
	events   chan Event
	sinkDone chan struct{}
}

type typeCounters struct {
	retrying      int
	active        int
	processed     int64
	failed        int64
	totalDuration time.Duration
}

// NewStatsCollector creates a collector. sink may be nil.
func NewStatsCollector(logger *slog.Logger, sink EventSink) *StatsCollector {
	c := &StatsCollector{
		logger: logger,
		types:  make(map[domain.JobType]*typeCounters),
		sink:   sink,
	}
	for _, t := range domain.KnownJobTypes() {
		c.types[t] = &typeCounters{}
	}

	if sink != nil {
		c.events = make(chan Event, sinkBufferSize)
		c.sinkDone = make(chan struct{})
		go c.drainSink()
	}
	return c
}

// Stop flushes and shuts down sink delivery.
func (c *StatsCollector) Stop() {
	if c.events != nil {
		close(c.events)
		<-c.sinkDone
	}
}

func (c *StatsCollector) drainSink() {
	defer close(c.sinkDone)
	for ev := range c.events {
		c.sink.Record(ev)
	}
}

func (c *StatsCollector) emit(ev Event) {
	if c.events == nil {
		return
	}
	select {
	case c.events <- ev:
	default:
		c.logger.Warn("Event sink buffer full, dropping event",
			slog.String("job_id", ev.JobID),
			slog.String("outcome", ev.Outcome),
		)
	}
}

func (c *StatsCollector) counters(t domain.JobType) *typeCounters {
	tc, ok := c.types[t]
	if !ok {
		tc = &typeCounters{}
		c.types[t] = tc
	}
	return tc
}

// JobStarted records the start of one execution attempt.
func (c *StatsCollector) JobStarted(t domain.JobType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters(t).active++
}

// JobSucceeded records a successful attempt and forwards the outcome event.
func (c *StatsCollector) JobSucceeded(t domain.JobType, jobID, ownerID string, duration time.Duration, usage map[string]any) {
	c.mu.Lock()
	tc := c.counters(t)
	tc.active--
	tc.processed++
	tc.totalDuration += duration
	c.mu.Unlock()

	c.emit(Event{
		JobID:    jobID,
		JobType:  t,
		OwnerID:  ownerID,
		Outcome:  OutcomeProcessed,
		Duration: duration,
		Usage:    usage,
	})
}

// AttemptFailed records the end of a failed attempt. Whether the job is
// retried or permanently failed is reported separately by the retry
// scheduler.
func (c *StatsCollector) AttemptFailed(t domain.JobType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters(t).active--
}

// RetryScheduled records a job entering its backoff delay window.
func (c *StatsCollector) RetryScheduled(t domain.JobType, jobID, ownerID string, errMsg string) {
	c.mu.Lock()
	c.counters(t).retrying++
	c.mu.Unlock()

	c.emit(Event{
		JobID:   jobID,
		JobType: t,
		OwnerID: ownerID,
		Outcome: OutcomeRetrying,
		Error:   errMsg,
	})
}

// RetryRequeued records a job leaving its backoff delay window.
func (c *StatsCollector) RetryRequeued(t domain.JobType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters(t).retrying--
}

// JobFailedPermanently records attempt exhaustion (or a permanent error).
func (c *StatsCollector) JobFailedPermanently(t domain.JobType, jobID, ownerID string, duration time.Duration, errMsg string) {
	c.mu.Lock()
	c.counters(t).failed++
	c.mu.Unlock()

	c.emit(Event{
		JobID:    jobID,
		JobType:  t,
		OwnerID:  ownerID,
		Outcome:  OutcomeFailed,
		Duration: duration,
		Error:    errMsg,
	})
}

// BatchCreated records a new open batch.
func (c *StatsCollector) BatchCreated(t domain.JobType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches.Total++
	c.batches.Pending++
}

// BatchTransitioned records a batch status change.
func (c *StatsCollector) BatchTransitioned(from, to domain.BatchStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batchBucket(from, -1)
	c.batchBucket(to, 1)
}

func (c *StatsCollector) batchBucket(s domain.BatchStatus, delta int) {
	switch s {
	case domain.BatchStatusOpen:
		c.batches.Pending += delta
	case domain.BatchStatusProcessing:
		c.batches.Processing += delta
	case domain.BatchStatusCompleted:
		c.batches.Completed += delta
	case domain.BatchStatusFailed:
		c.batches.Failed += delta
	}
}

// TypeSnapshot returns the current counters for one type. Pending is left
// zero; the manager fills it from live queue depth.
func (c *StatsCollector) TypeSnapshot(t domain.JobType) TypeStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	tc := c.counters(t)
	s := TypeStats{
		Retrying:  tc.retrying,
		Active:    tc.active,
		Processed: tc.processed,
		Failed:    tc.failed,
	}
	if tc.processed > 0 {
		s.AvgDurationSeconds = tc.totalDuration.Seconds() / float64(tc.processed)
	}
	return s
}

// BatchSnapshot returns the current batch counts per status.
func (c *StatsCollector) BatchSnapshot() BatchStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches
}
