package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/platefull/jobqueue/internal/api/dto"
	"github.com/platefull/jobqueue/internal/archive"
	"github.com/platefull/jobqueue/internal/queue/domain"
)

// EnqueueJob handles POST /api/v1/jobs
func (h *JobHandler) EnqueueJob(c *gin.Context) {
	var req dto.EnqueueJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	jobID, err := h.manager.Enqueue(
		domain.JobType(req.JobType),
		domain.Priority(req.Priority),
		req.OwnerID,
		req.Payload,
		req.MaxAttempts,
	)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownJobType), errors.Is(err, domain.ErrInvalidPriority):
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
		case errors.Is(err, domain.ErrQueueStopped):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "queue is shutting down",
			})
		default:
			h.logger.Error("Failed to enqueue job", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to enqueue job",
			})
		}
		return
	}

	c.JSON(http.StatusAccepted, dto.EnqueueJobResponse{
		JobID:  jobID,
		Status: domain.JobStatusPending,
	})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	status, err := h.manager.GetJobStatus(jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "job not found",
			})
			return
		}
		h.logger.Error("Failed to get job status",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job status",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetQueueStats handles GET /api/v1/stats/queues
func (h *JobHandler) GetQueueStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.GetQueueStats())
}

// GetBatchStats handles GET /api/v1/stats/batches
func (h *JobHandler) GetBatchStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.manager.GetBatchStats())
}

// ListEvents handles GET /api/v1/events
// Lists archived execution outcomes with filtering and keyset pagination.
func (h *JobHandler) ListEvents(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "event archive is not configured",
		})
		return
	}

	var req dto.ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeEventCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	events, err := h.archive.ListEvents(c.Request.Context(), archive.EventFilter{
		OwnerID:  req.OwnerID,
		JobType:  req.JobType,
		Outcome:  req.Outcome,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list job events", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list job events",
		})
		return
	}

	hasMore := len(events) > req.PageSize
	if hasMore {
		events = events[:req.PageSize]
	}

	out := make([]dto.EventDTO, len(events))
	for i, ev := range events {
		out[i] = dto.EventDTO{
			EventID:    ev.EventID,
			JobID:      ev.JobID,
			JobType:    ev.JobType,
			OwnerID:    ev.OwnerID,
			Outcome:    ev.Outcome,
			DurationMS: ev.DurationMS,
			Usage:      ev.Usage,
			Error:      ev.ErrorMsg,
			CreatedAt:  ev.CreatedAt.Format(time.RFC3339),
		}
	}

	var nextCursor string
	if hasMore {
		last := events[len(events)-1]
		nextCursor = EncodeEventCursor(&archive.EventCursor{
			CreatedAt: last.CreatedAt,
			EventID:   last.EventID,
		})
	}

	c.JSON(http.StatusOK, dto.ListEventsResponse{
		Events:     out,
		NextCursor: nextCursor,
	})
}
