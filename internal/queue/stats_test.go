package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platefull/jobqueue/internal/queue/domain"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) Record(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) all() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func TestStatsCollector_TypeCounters(t *testing.T) {
	c := NewStatsCollector(testLogger(), nil)

	c.JobStarted(domain.JobTypeEmail)
	snap := c.TypeSnapshot(domain.JobTypeEmail)
	assert.Equal(t, 1, snap.Active)

	c.JobSucceeded(domain.JobTypeEmail, "job-1", "user-1", 2*time.Second, nil)
	snap = c.TypeSnapshot(domain.JobTypeEmail)
	assert.Equal(t, 0, snap.Active)
	assert.Equal(t, int64(1), snap.Processed)
	assert.InDelta(t, 2.0, snap.AvgDurationSeconds, 0.001)

	// A second, faster success moves the average.
	c.JobStarted(domain.JobTypeEmail)
	c.JobSucceeded(domain.JobTypeEmail, "job-2", "user-1", 1*time.Second, nil)
	snap = c.TypeSnapshot(domain.JobTypeEmail)
	assert.Equal(t, int64(2), snap.Processed)
	assert.InDelta(t, 1.5, snap.AvgDurationSeconds, 0.001)

	// Other types are untouched.
	assert.Equal(t, int64(0), c.TypeSnapshot(domain.JobTypeCleanup).Processed)
}

func TestStatsCollector_RetryCounters(t *testing.T) {
	c := NewStatsCollector(testLogger(), nil)

	c.JobStarted(domain.JobTypeAIGeneration)
	c.AttemptFailed(domain.JobTypeAIGeneration)
	c.RetryScheduled(domain.JobTypeAIGeneration, "job-1", "user-1", "boom")

	snap := c.TypeSnapshot(domain.JobTypeAIGeneration)
	assert.Equal(t, 0, snap.Active)
	assert.Equal(t, 1, snap.Retrying)
	assert.Equal(t, int64(0), snap.Failed)

	c.RetryRequeued(domain.JobTypeAIGeneration)
	snap = c.TypeSnapshot(domain.JobTypeAIGeneration)
	assert.Equal(t, 0, snap.Retrying)

	c.JobFailedPermanently(domain.JobTypeAIGeneration, "job-1", "user-1", time.Second, "boom")
	snap = c.TypeSnapshot(domain.JobTypeAIGeneration)
	assert.Equal(t, int64(1), snap.Failed)
}

func TestStatsCollector_BatchCounters(t *testing.T) {
	c := NewStatsCollector(testLogger(), nil)

	c.BatchCreated(domain.JobTypeEmail)
	c.BatchCreated(domain.JobTypeAnalytics)

	snap := c.BatchSnapshot()
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 2, snap.Pending)

	c.BatchTransitioned(domain.BatchStatusOpen, domain.BatchStatusProcessing)
	snap = c.BatchSnapshot()
	assert.Equal(t, 1, snap.Pending)
	assert.Equal(t, 1, snap.Processing)

	c.BatchTransitioned(domain.BatchStatusProcessing, domain.BatchStatusCompleted)
	c.BatchTransitioned(domain.BatchStatusOpen, domain.BatchStatusProcessing)
	c.BatchTransitioned(domain.BatchStatusProcessing, domain.BatchStatusFailed)

	snap = c.BatchSnapshot()
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 0, snap.Pending)
	assert.Equal(t, 0, snap.Processing)
	assert.Equal(t, 1, snap.Completed)
	assert.Equal(t, 1, snap.Failed)
}

func TestStatsCollector_SinkDelivery(t *testing.T) {
	sink := &captureSink{}
	c := NewStatsCollector(testLogger(), sink)

	c.JobStarted(domain.JobTypeAIGeneration)
	c.JobSucceeded(domain.JobTypeAIGeneration, "job-1", "user-1", 500*time.Millisecond, map[string]any{"tokens": 42})
	c.JobFailedPermanently(domain.JobTypeEmail, "job-2", "user-2", time.Second, "smtp down")

	// Stop drains the buffer before returning.
	c.Stop()

	events := sink.all()
	require.Len(t, events, 2)

	assert.Equal(t, "job-1", events[0].JobID)
	assert.Equal(t, domain.JobTypeAIGeneration, events[0].JobType)
	assert.Equal(t, OutcomeProcessed, events[0].Outcome)
	assert.Equal(t, 500*time.Millisecond, events[0].Duration)
	assert.Equal(t, 42, events[0].Usage["tokens"])

	assert.Equal(t, "job-2", events[1].JobID)
	assert.Equal(t, OutcomeFailed, events[1].Outcome)
	assert.Equal(t, "smtp down", events[1].Error)
}

func TestStatsCollector_NilSink(t *testing.T) {
	c := NewStatsCollector(testLogger(), nil)

	// Must not panic or block without a sink goroutine.
	c.JobStarted(domain.JobTypeCleanup)
	c.JobSucceeded(domain.JobTypeCleanup, "job-1", "user-1", time.Millisecond, nil)
	c.Stop()
}
