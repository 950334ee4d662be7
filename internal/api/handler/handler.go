package handler

import (
	"log/slog"

	"github.com/platefull/jobqueue/internal/archive"
	"github.com/platefull/jobqueue/internal/queue"
)

// Dependencies holds everything the handlers need. Archive may be nil when
// the service runs without PostgreSQL; the events endpoint then reports
// unavailable.
type Dependencies struct {
	Logger  *slog.Logger
	Manager *queue.Manager
	Archive *archive.Storage
}

// JobHandler serves the job submission, status and stats endpoints.
type JobHandler struct {
	logger  *slog.Logger
	manager *queue.Manager
	archive *archive.Storage
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		manager: deps.Manager,
		archive: deps.Archive,
	}
}
