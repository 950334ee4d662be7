package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platefull/jobqueue/internal/queue/domain"
)

func startManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = testLogger()
	}
	if cfg.IdleInterval == 0 {
		cfg.IdleInterval = 10 * time.Millisecond
	}

	m := NewManager(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	t.Cleanup(func() {
		cancel()
		m.Stop()
	})
	return m
}

func noopExecutor() Executor {
	return ExecutorFunc(func(ctx context.Context, job *domain.Job) (*domain.ExecResult, error) {
		return &domain.ExecResult{Output: map[string]any{"ok": true}}, nil
	})
}

func TestManager_EnqueueValidation(t *testing.T) {
	m := startManager(t, Config{})

	t.Run("unknown job type", func(t *testing.T) {
		_, err := m.Enqueue("pdf_render", domain.PriorityHigh, "user-1", nil, 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrUnknownJobType)
	})

	t.Run("invalid priority", func(t *testing.T) {
		_, err := m.Enqueue(domain.JobTypeCleanup, "urgent", "user-1", nil, 0)
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrInvalidPriority)
	})

	t.Run("rejected job leaves no trace", func(t *testing.T) {
		_, err := m.Enqueue("pdf_render", domain.PriorityHigh, "user-1", nil, 0)
		require.Error(t, err)

		for _, s := range m.GetQueueStats() {
			assert.Equal(t, 0, s.Pending)
		}
	})
}

func TestManager_EnqueueDefaults(t *testing.T) {
	m := startManager(t, Config{})

	id, err := m.Enqueue(domain.JobTypeVideoGeneration, "", "user-1", nil, 0)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	status, err := m.GetJobStatus(id)
	require.NoError(t, err)
	assert.Equal(t, domain.PriorityMedium, status.Priority)
	assert.Equal(t, DefaultMaxAttempts, status.MaxAttempts)

	// No executor is registered, so the job fails permanently once picked up.
	require.Eventually(t, func() bool {
		status, err := m.GetJobStatus(id)
		return err == nil && status.Status == domain.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	status, err = m.GetJobStatus(id)
	require.NoError(t, err)
	assert.Contains(t, status.Error, "no executor registered")
}

func TestManager_GetJobStatus_NotFound(t *testing.T) {
	m := startManager(t, Config{})

	_, err := m.GetJobStatus("nope")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}

func TestManager_StoppedRejectsEnqueue(t *testing.T) {
	m := NewManager(Config{Logger: testLogger()})
	m.Start(context.Background())
	m.Stop()

	_, err := m.Enqueue(domain.JobTypeCleanup, domain.PriorityLow, "user-1", nil, 0)
	assert.ErrorIs(t, err, domain.ErrQueueStopped)
}

func TestManager_IndividualJobLifecycle(t *testing.T) {
	m := startManager(t, Config{
		Workers: map[domain.JobType]int{domain.JobTypeCleanup: 2},
		Executors: map[domain.JobType]Executor{
			domain.JobTypeCleanup: noopExecutor(),
		},
	})

	payload := json.RawMessage(`{"older_than":"720h"}`)
	id, err := m.Enqueue(domain.JobTypeCleanup, domain.PriorityHigh, "user-1", payload, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := m.GetJobStatus(id)
		return err == nil && status.Status == domain.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	status, err := m.GetJobStatus(id)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Attempts)
	assert.Equal(t, true, status.Result["ok"])
	assert.Empty(t, status.Error)

	stats := m.GetQueueStats()
	assert.Equal(t, int64(1), stats[domain.JobTypeCleanup].Processed)
	assert.Equal(t, 0, stats[domain.JobTypeCleanup].Pending)
}

func TestManager_RetryUntilSuccess(t *testing.T) {
	var calls atomic.Int64

	m := startManager(t, Config{
		Backoff: []time.Duration{5 * time.Millisecond, 5 * time.Millisecond},
		Executors: map[domain.JobType]Executor{
			domain.JobTypeAIGeneration: ExecutorFunc(func(ctx context.Context, job *domain.Job) (*domain.ExecResult, error) {
				if calls.Add(1) < 3 {
					return nil, errors.New("provider overloaded")
				}
				return &domain.ExecResult{}, nil
			}),
		},
	})

	id, err := m.Enqueue(domain.JobTypeAIGeneration, domain.PriorityHigh, "user-1", nil, 3)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := m.GetJobStatus(id)
		return err == nil && status.Status == domain.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(3), calls.Load())

	status, err := m.GetJobStatus(id)
	require.NoError(t, err)
	assert.Equal(t, 3, status.Attempts)

	stats := m.GetQueueStats()
	assert.Equal(t, int64(1), stats[domain.JobTypeAIGeneration].Processed)
	assert.Equal(t, int64(0), stats[domain.JobTypeAIGeneration].Failed)
}

func TestManager_AttemptExhaustion(t *testing.T) {
	var calls atomic.Int64

	m := startManager(t, Config{
		Backoff: []time.Duration{5 * time.Millisecond},
		Executors: map[domain.JobType]Executor{
			domain.JobTypeAIGeneration: ExecutorFunc(func(ctx context.Context, job *domain.Job) (*domain.ExecResult, error) {
				calls.Add(1)
				return nil, errors.New("provider down")
			}),
		},
	})

	id, err := m.Enqueue(domain.JobTypeAIGeneration, domain.PriorityHigh, "user-1", nil, 2)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := m.GetJobStatus(id)
		return err == nil && status.Status == domain.JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int64(2), calls.Load(), "max_attempts bounds total executions")

	status, err := m.GetJobStatus(id)
	require.NoError(t, err)
	assert.Equal(t, "provider down", status.Error)
	assert.Equal(t, int64(1), m.GetQueueStats()[domain.JobTypeAIGeneration].Failed)
}

func TestManager_BatchTimeoutFlush(t *testing.T) {
	m := startManager(t, Config{
		Batching: map[domain.JobType]BatchConfig{
			domain.JobTypeEmail: {Size: 50, Timeout: 150 * time.Millisecond},
		},
		BatchExecutors: map[domain.JobType]BatchExecutor{
			domain.JobTypeEmail: BatchExecutorFunc(func(ctx context.Context, jobs []*domain.Job) ([]domain.BatchItemResult, error) {
				results := make([]domain.BatchItemResult, len(jobs))
				for i, job := range jobs {
					results[i] = domain.BatchItemResult{JobID: job.ID, Result: &domain.ExecResult{}}
				}
				return results, nil
			}),
		},
	})

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := m.Enqueue(domain.JobTypeEmail, domain.PriorityMedium, "user-1", json.RawMessage(`{"template":"welcome"}`), 0)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	// Open batch members count as pending until the timeout flush.
	assert.Equal(t, 3, m.GetQueueStats()[domain.JobTypeEmail].Pending)

	for _, id := range ids {
		id := id
		require.Eventually(t, func() bool {
			status, err := m.GetJobStatus(id)
			return err == nil && status.Status == domain.JobStatusCompleted
		}, 2*time.Second, 10*time.Millisecond)
	}

	batches := m.GetBatchStats()
	assert.Equal(t, 1, batches.Total, "all three jobs must share one batch")
	assert.Equal(t, 1, batches.Completed)
	assert.Equal(t, 0, batches.Pending)

	// All members carry the same batch id.
	first, err := m.GetJobStatus(ids[0])
	require.NoError(t, err)
	for _, id := range ids[1:] {
		status, err := m.GetJobStatus(id)
		require.NoError(t, err)
		assert.Equal(t, first.BatchID, status.BatchID)
	}
}

func TestManager_BatchSizeFlush(t *testing.T) {
	flushed := make(chan int, 4)

	m := startManager(t, Config{
		Batching: map[domain.JobType]BatchConfig{
			domain.JobTypeAnalytics: {Size: 2, Timeout: time.Hour},
		},
		BatchExecutors: map[domain.JobType]BatchExecutor{
			domain.JobTypeAnalytics: BatchExecutorFunc(func(ctx context.Context, jobs []*domain.Job) ([]domain.BatchItemResult, error) {
				flushed <- len(jobs)
				results := make([]domain.BatchItemResult, len(jobs))
				for i, job := range jobs {
					results[i] = domain.BatchItemResult{JobID: job.ID, Result: &domain.ExecResult{}}
				}
				return results, nil
			}),
		},
	})

	for i := 0; i < 4; i++ {
		_, err := m.Enqueue(domain.JobTypeAnalytics, domain.PriorityLow, "user-1", nil, 0)
		require.NoError(t, err)
	}

	for i := 0; i < 2; i++ {
		select {
		case size := <-flushed:
			assert.Equal(t, 2, size, "size threshold flushes exactly full batches")
		case <-time.After(2 * time.Second):
			t.Fatal("expected two size-triggered batch executions")
		}
	}

	require.Eventually(t, func() bool {
		return m.GetBatchStats().Completed == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestManager_SinkReceivesOutcomes(t *testing.T) {
	sink := &captureSink{}

	m := NewManager(Config{
		Logger:       testLogger(),
		IdleInterval: 10 * time.Millisecond,
		Executors: map[domain.JobType]Executor{
			domain.JobTypeAIGeneration: ExecutorFunc(func(ctx context.Context, job *domain.Job) (*domain.ExecResult, error) {
				return &domain.ExecResult{Usage: map[string]any{"tokens": 128}}, nil
			}),
		},
		Sink: sink,
	})
	m.Start(context.Background())

	id, err := m.Enqueue(domain.JobTypeAIGeneration, domain.PriorityHigh, "user-9", nil, 0)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := m.GetJobStatus(id)
		return err == nil && status.Status == domain.JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	m.Stop() // drains the sink buffer

	events := sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].JobID)
	assert.Equal(t, "user-9", events[0].OwnerID)
	assert.Equal(t, OutcomeProcessed, events[0].Outcome)
	assert.Equal(t, 128, events[0].Usage["tokens"])
}
