package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/platefull/jobqueue/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "jobqueue-service",
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a job
			jobs.POST("", jobHandler.EnqueueJob)

			// GET /api/v1/jobs/:job_id - Live job status
			jobs.GET("/:job_id", jobHandler.GetJob)
		}

		stats := v1.Group("/stats")
		{
			// GET /api/v1/stats/queues - Per-type queue stats
			stats.GET("/queues", jobHandler.GetQueueStats)

			// GET /api/v1/stats/batches - Batch counts per status
			stats.GET("/batches", jobHandler.GetBatchStats)
		}

		// GET /api/v1/events - Archived execution outcomes
		v1.GET("/events", jobHandler.ListEvents)
	}

	return r
}
