package queue

import (
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/platefull/jobqueue/internal/queue/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testStates() map[domain.JobType]*typeState {
	states := make(map[domain.JobType]*typeState)
	for _, t := range domain.KnownJobTypes() {
		states[t] = newTypeState()
	}
	return states
}

func testJob(jobType domain.JobType, priority domain.Priority) *domain.Job {
	return &domain.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Priority:    priority,
		OwnerID:     "user-1",
		MaxAttempts: 3,
		CreatedAt:   time.Now(),
	}
}
